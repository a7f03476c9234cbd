/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Seednode/mathlobby/coordinator"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind           string
	defaultAvatar  string
	historySize    int
	maxMessageSize int64
	metrics        bool
	origins        []string
	pingInterval   time.Duration
	port           int
	prefix         string
	profile        bool
	rateBurst      int
	rateLimit      float64
	sendBuffer     int
	tlsCert        string
	tlsKey         string
	verbose        bool
	version        bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return eris.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return eris.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.historySize < 1 {
		return eris.Errorf("invalid history size (must be positive): %d", c.historySize)
	}
	if c.sendBuffer < 1 {
		return eris.Errorf("invalid send buffer (must be positive): %d", c.sendBuffer)
	}
	if c.maxMessageSize < 1 {
		return eris.Errorf("invalid max message size (must be positive): %d", c.maxMessageSize)
	}
	if c.rateLimit < 0 {
		return eris.Errorf("invalid rate limit (must not be negative): %v", c.rateLimit)
	}
	if c.rateLimit > 0 && c.rateBurst < 1 {
		return eris.Errorf("invalid rate burst (must be positive when rate limiting): %d", c.rateBurst)
	}
	if c.pingInterval < 0 {
		return eris.Errorf("invalid ping interval (must not be negative): %s", c.pingInterval)
	}

	for _, origin := range c.origins {
		u, err := url.Parse(origin)
		if err != nil {
			return eris.Wrapf(err, "invalid origin %q", origin)
		}
		if u.Scheme == "" || u.Host == "" {
			return eris.Errorf("invalid origin %q (must include scheme and host)", origin)
		}
	}

	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

// originAllowed reports whether a websocket handshake may proceed. With no
// configured origins every origin is accepted.
func (c *Config) originAllowed(r *http.Request) bool {
	if len(c.origins) == 0 {
		return true
	}

	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	for _, allowed := range c.origins {
		if strings.EqualFold(strings.TrimSuffix(allowed, "/"), origin) {
			return true
		}
	}

	return false
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("MATHLOBBY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "mathlobby",
		Short:         "Matchmaking lobby and chat for four-player team math games.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: MATHLOBBY_BIND)")
	fs.StringVar(&cfg.defaultAvatar, "default-avatar", "/images/default-avatar.png", "avatar used when a client does not send one (env: MATHLOBBY_DEFAULT_AVATAR)")
	fs.IntVar(&cfg.historySize, "history-size", coordinator.DefaultHistorySize, "chat messages kept per channel (env: MATHLOBBY_HISTORY_SIZE)")
	fs.Int64Var(&cfg.maxMessageSize, "max-message-size", 4096, "largest inbound websocket frame in bytes (env: MATHLOBBY_MAX_MESSAGE_SIZE)")
	fs.BoolVar(&cfg.metrics, "metrics", false, "serve prometheus metrics at /metrics (env: MATHLOBBY_METRICS)")
	fs.StringSliceVar(&cfg.origins, "origin", nil, "allowed websocket origin, repeatable; empty allows any (env: MATHLOBBY_ORIGIN)")
	fs.DurationVar(&cfg.pingInterval, "ping-interval", 30*time.Second, "interval between websocket keepalive pings, 0 to disable (env: MATHLOBBY_PING_INTERVAL)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: MATHLOBBY_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: MATHLOBBY_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: MATHLOBBY_PROFILE)")
	fs.IntVar(&cfg.rateBurst, "rate-burst", 10, "inbound events a connection may send in a burst (env: MATHLOBBY_RATE_BURST)")
	fs.Float64Var(&cfg.rateLimit, "rate-limit", 5, "sustained inbound events per second per connection, 0 to disable (env: MATHLOBBY_RATE_LIMIT)")
	fs.IntVar(&cfg.sendBuffer, "send-buffer", coordinator.DefaultSendBuffer, "outbound frames buffered per connection before it is dropped (env: MATHLOBBY_SEND_BUFFER)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: MATHLOBBY_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: MATHLOBBY_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: MATHLOBBY_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: MATHLOBBY_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("mathlobby v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}

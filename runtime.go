/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Seednode/mathlobby/coordinator"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
)

const maxRuntimeBody = 4096

type scoreRequest struct {
	ConnectionID string `json:"connectionId"`
	Delta        int    `json:"delta"`
}

func runtimeStatus(err error) int {
	switch {
	case errors.Is(err, coordinator.ErrSessionNotFound), errors.Is(err, coordinator.ErrNotInSession):
		return http.StatusNotFound
	case errors.Is(err, coordinator.ErrStopped):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func serveScore(cfg *Config, log zerolog.Logger, lobby *coordinator.Coordinator, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		var req scoreRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRuntimeBody)).Decode(&req); err != nil || req.ConnectionID == "" {
			writeError(cfg, w, http.StatusBadRequest, "body must be {\"connectionId\": string, \"delta\": int}")
			return
		}

		participant, err := lobby.ReportScore(r.Context(), p.ByName("session"), req.ConnectionID, req.Delta)
		if err != nil {
			writeError(cfg, w, runtimeStatus(err), err.Error())
			return
		}

		written, err := writeJSON(cfg, w, http.StatusOK, participant)
		if err != nil {
			errs <- err

			return
		}

		logServe(log, r, "score report", written, startTime)
	}
}

func serveComplete(cfg *Config, log zerolog.Logger, lobby *coordinator.Coordinator) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		startTime := time.Now()

		if _, err := lobby.CompleteSession(r.Context(), p.ByName("session")); err != nil {
			writeError(cfg, w, runtimeStatus(err), err.Error())
			return
		}

		_, _ = writeJSON(cfg, w, http.StatusNoContent, nil)

		logServe(log, r, "session completion", 0, startTime)
	}
}

func serveLobby(cfg *Config, log zerolog.Logger, lobby *coordinator.Coordinator, errs chan<- error) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		startTime := time.Now()

		state, err := lobby.Lobby(r.Context())
		if err != nil {
			writeError(cfg, w, runtimeStatus(err), err.Error())
			return
		}

		written, err := writeJSON(cfg, w, http.StatusOK, state)
		if err != nil {
			errs <- err

			return
		}

		logServe(log, r, "lobby state", written, startTime)
	}
}

/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strings"
)

func newPage(title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(`<style>`)
	htmlBody.WriteString(`html,body{display:block;height:100%;width:100%;color:inherit;cursor:auto;}</style>`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", html.EscapeString(title)))
	htmlBody.WriteString(fmt.Sprintf("<body><p>%s</p></body></html>", html.EscapeString(body)))

	return htmlBody.String()
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v as the response body. A nil v writes only the status.
func writeJSON(cfg *Config, w http.ResponseWriter, status int, v any) (int, error) {
	securityHeaders(cfg, w)

	if v == nil {
		w.WriteHeader(status)
		return 0, nil
	}

	data, err := json.Marshal(v)
	if err != nil {
		return 0, err
	}
	data = append(data, '\n')

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)

	return w.Write(data)
}

func writeError(cfg *Config, w http.ResponseWriter, status int, message string) {
	_, _ = writeJSON(cfg, w, status, errorResponse{Error: message})
}

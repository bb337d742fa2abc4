/*
Copyright 2025 Nemo(shengyi) Lv

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package httpapi is Cube's external HTTP surface: a single POST route
// carrying the command grammar, plus health and stats endpoints for
// operators.
package httpapi

import (
	"cube/command"
	"cube/comment"
	"cube/engine"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"unicode"
	"unicode/utf8"
)

const maxBodyBytes = 64 * 1024

// Server wraps an engine.Engine behind Cube's HTTP command surface.
type Server struct {
	eng *engine.Engine
	mux *http.ServeMux
}

// New builds a Server ready to be handed to an http.Server as its Handler.
func New(eng *engine.Engine) *Server {
	s := &Server{eng: eng, mux: http.NewServeMux()}
	s.mux.HandleFunc("/", s.handleRoot)
	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.HandleFunc("/stats", s.handleStats)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if r.URL.Path != "/" {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		writeText(w, http.StatusOK, "Hello")
	case http.MethodPost:
		s.handleCommand(w, r)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	client := r.Header.Get("X-Client-Name")
	if client == "" {
		writeErr(w, "X-Client-Name header required")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		writeErr(w, "failed to read body")
		return
	}
	if len(body) > maxBodyBytes {
		writeErr(w, "request body too large")
		return
	}

	cmd, err := command.Parse(string(body))
	if err != nil {
		writeErr(w, err.Error())
		return
	}

	switch cmd.Kind {
	case command.Get:
		v, err := s.eng.Get(client, cmd.Key)
		if err != nil {
			writeErr(w, err.Error())
			return
		}
		writeText(w, http.StatusOK, v)

	case command.Set:
		old, newVal, err := s.eng.Set(client, cmd.Key, cmd.Value)
		if err != nil {
			writeErr(w, err.Error())
			return
		}
		writeText(w, http.StatusOK, old+" "+newVal)

	case command.Begin:
		if err := s.eng.Begin(client); err != nil {
			writeErr(w, capitalize(err.Error()))
			return
		}
		writeText(w, http.StatusOK, "OK")

	case command.Commit:
		if err := s.eng.Commit(client); err != nil {
			var af *comment.AtomicityFailure
			if errors.As(err, &af) {
				writeErr(w, capitalize(af.Error()))
				return
			}
			writeErr(w, capitalize(err.Error()))
			return
		}
		writeText(w, http.StatusOK, "OK")

	case command.Rollback:
		if err := s.eng.Rollback(client); err != nil {
			writeErr(w, capitalize(err.Error()))
			return
		}
		writeText(w, http.StatusOK, "OK")

	default:
		writeErr(w, comment.ErrUnknownCommand.Error())
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, "OK")
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.eng.Stats())
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func writeErr(w http.ResponseWriter, reason string) {
	writeText(w, http.StatusBadRequest, "ERR "+reason)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}

package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/sweeney/grow-controller/internal/control"
	"github.com/sweeney/grow-controller/internal/grow"
	"github.com/sweeney/grow-controller/internal/history"
)

const maxSettingsBody = 64 << 10

type errorBody struct {
	Error string `json:"error"`
}

type growBody struct {
	SettingsReceived bool   `json:"settings_received"`
	GrowActive       bool   `json:"grow_active"`
	Warning          string `json:"warning,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("http: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, errorBody{Error: err.Error()})
}

func (s *Server) handleGrowStart(w http.ResponseWriter, r *http.Request) {
	s.growResponse(w, s.opts.Grow.Start())
}

func (s *Server) handleGrowStop(w http.ResponseWriter, r *http.Request) {
	s.growResponse(w, s.opts.Grow.Stop())
}

// growResponse maps a lifecycle error to a status code. A persistence
// failure still changed the running state, so it is reported as a warning.
func (s *Server) growResponse(w http.ResponseWriter, err error) {
	st := s.opts.Grow.State()
	body := growBody{SettingsReceived: st.SettingsReceived, GrowActive: st.GrowActive}
	switch {
	case err == nil:
	case errors.Is(err, grow.ErrPreconditions):
		writeError(w, http.StatusConflict, err)
		return
	case errors.Is(err, grow.ErrPersist):
		body.Warning = err.Error()
	default:
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSettingsBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}
	res, err := s.opts.Settings.Handle(payload)
	switch {
	case errors.Is(err, control.ErrInvalidPayload):
		writeError(w, http.StatusBadRequest, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	case len(res.Errors) > 0:
		writeJSON(w, http.StatusBadRequest, res)
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

const (
	defaultHistoryWindow = 24 * time.Hour
	defaultHistoryLimit  = 1000
	maxHistoryLimit      = 10000
)

// handleHistory returns stored readings for one channel. Query parameters:
// since (a Go duration, default 24h) and limit.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	channel := mux.Vars(r)["channel"]
	if _, ok := s.opts.Tracker.Snapshot().Channel(channel); !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown channel %q", channel))
		return
	}

	window := defaultHistoryWindow
	if v := r.URL.Query().Get("since"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid since %q", v))
			return
		}
		window = d
	}
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxHistoryLimit {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = n
	}

	points, err := s.opts.History.Query(channel, s.now().Add(-window), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if points == nil {
		points = []history.Point{}
	}
	writeJSON(w, http.StatusOK, points)
}

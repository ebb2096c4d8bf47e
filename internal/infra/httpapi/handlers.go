package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"smart-tracker/internal/application"
	"smart-tracker/internal/domain"
	"smart-tracker/internal/metrics"
)

type stateResponse struct {
	Snapshot domain.Snapshot `json:"snapshot"`
	application.SessionStatus
}

type visibilityRequest struct {
	State string `json:"state"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"status": "error", "message": message})
}

func (s *Server) handleOptions(w http.ResponseWriter, _ *http.Request) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type")
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (s *Server) handlePostTracker(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&body); err != nil || body == nil {
		metrics.ValidationErrors.Inc()
		writeError(w, http.StatusBadRequest, "request body must be a JSON object")
		return
	}

	deviceID, ok := deviceIDOf(body["device_id"])
	if !ok {
		metrics.ValidationErrors.Inc()
		err := &domain.ValidationError{Field: "device_id", Message: "device_id is required"}
		s.logger.Info("rejected tracker report", "error", err)
		writeError(w, http.StatusBadRequest, err.Message)
		return
	}

	rec := domain.Record{
		DeviceID:   deviceID,
		ReceivedAt: s.now().UTC(),
		Body:       body,
	}
	if err := s.records.Append(r.Context(), rec); err != nil {
		s.logger.Error("storing tracker report", "device_id", deviceID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store data")
		return
	}

	metrics.RecordsStored.Inc()
	s.logger.Debug("tracker report stored", "device_id", deviceID)

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "success",
		"message": "Data received",
		"data":    rec.Document(),
	})
}

// deviceIDOf accepts a non-empty string or a non-zero number.
func deviceIDOf(v any) (string, bool) {
	switch id := v.(type) {
	case string:
		id = strings.TrimSpace(id)
		return id, id != ""
	case float64:
		if id == 0 {
			return "", false
		}
		return strconv.FormatFloat(id, 'f', -1, 64), true
	default:
		return "", false
	}
}

func (s *Server) handleListTracker(w http.ResponseWriter, r *http.Request) {
	records, err := s.records.List(r.Context())
	if err != nil {
		s.logger.Error("listing tracker reports", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read data")
		return
	}

	docs := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		docs = append(docs, rec.Document())
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	payload, ok, err := s.latest.Get(r.Context())
	if err != nil {
		s.logger.Error("reading latest report", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read latest report")
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]string{"status": "no data yet"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, stateResponse{
		Snapshot:      s.session.Snapshot(),
		SessionStatus: s.session.Status(),
	})
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	control, ok := domain.ParseControl(mux.Vars(r)["control"])
	if !ok {
		writeError(w, http.StatusNotFound, "unknown control")
		return
	}

	result, err := s.session.Control(r.Context(), control)
	if err != nil {
		status := controlErrorStatus(err)
		if status >= 500 {
			s.logger.Warn("control failed", "control", control, "error", err)
		}
		writeError(w, status, err.Error())
		return
	}

	if result.Sent == nil {
		result.Sent = []string{}
	}
	writeJSON(w, http.StatusOK, result)
}

func controlErrorStatus(err error) int {
	var notConnected *domain.NotConnectedError
	switch {
	case errors.As(err, &notConnected), errors.Is(err, domain.ErrSessionClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrIgnitionOff),
		errors.Is(err, domain.ErrStarterBusy),
		errors.Is(err, domain.ErrRelaysLocked),
		errors.Is(err, domain.ErrAutomaticRelay):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUnknownControl):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleVisibility(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req visibilityRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "request body must be a JSON object")
		return
	}

	var visible bool
	switch req.State {
	case "visible":
		visible = true
	case "hidden":
	default:
		writeError(w, http.StatusBadRequest, `state must be "hidden" or "visible"`)
		return
	}

	if err := s.session.SetVisible(r.Context(), visible); err != nil {
		writeError(w, controlErrorStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "success", "state": req.State})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"link":   s.session.Status().Link,
	})
}

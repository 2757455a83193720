package testtarget

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type ingestRequest struct {
	EventID       string         `json:"event_id"`
	EventType     string         `json:"event_type"`
	SchemaVersion int            `json:"schema_version"`
	OccurredAt    string         `json:"occurred_at"`
	Payload       map[string]any `json:"payload"`
}

func (r *ingestRequest) validate() string {
	switch {
	case r.EventID == "":
		return "event_id is required"
	case r.EventType == "":
		return "event_type is required"
	case r.SchemaVersion <= 0:
		return "schema_version must be positive"
	case r.OccurredAt == "":
		return "occurred_at is required"
	case r.Payload == nil:
		return "payload is required"
	}
	if _, err := time.Parse(time.RFC3339, r.OccurredAt); err != nil {
		return "occurred_at must be in RFC3339 format"
	}
	return ""
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.invalid.Add(1)
		respondError(w, http.StatusBadRequest, codeValidation, "Invalid JSON payload")
		return
	}
	if msg := req.validate(); msg != "" {
		s.invalid.Add(1)
		respondError(w, http.StatusBadRequest, codeValidation, msg)
		return
	}

	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		s.invalid.Add(1)
		respondError(w, http.StatusBadRequest, codeValidation, "Idempotency-Key header is required")
		return
	}

	resp := ingestResponse{Status: "accepted", RequestID: uuid.NewString()}
	if s.seen(tenantFrom(r.Context()), key) {
		s.duplicates.Add(1)
		resp.Duplicate = true
	} else {
		s.accepted.Add(1)
	}
	respondJSON(w, http.StatusAccepted, resp)
}

// seen records key for tenant and reports whether it was already known and
// unexpired.
func (s *Server) seen(tenant, key string) bool {
	now := s.now()
	id := tenant + ":" + key

	s.idemMu.Lock()
	defer s.idemMu.Unlock()

	if expires, ok := s.idem[id]; ok && (s.cfg.IdempotencyTTL <= 0 || now.Before(expires)) {
		return true
	}
	s.idem[id] = now.Add(s.cfg.IdempotencyTTL)
	return false
}

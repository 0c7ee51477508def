// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-docvault.
//
// go-docvault is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package rest

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jeremyhahn/go-docvault/pkg/health"
	"github.com/jeremyhahn/go-docvault/pkg/logger"
	"github.com/jeremyhahn/go-docvault/pkg/types"
)

// UpsertRecordHandler handles PUT /v1/users/{userID}/records/{category}/{id}.
// Repeating a PUT with the same body leaves the same stored state.
func (s *Server) UpsertRecordHandler(w http.ResponseWriter, r *http.Request) {
	userID, category, id := chi.URLParam(r, "userID"), chi.URLParam(r, "category"), chi.URLParam(r, "id")
	if err := validatePath(userID, category, id); err != nil {
		handleError(w, err)
		return
	}

	var req UpsertRecordRequest
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeErrorWithMessage(w, ErrInvalidRequest, "Request body must be a JSON payload", http.StatusBadRequest)
		return
	}
	if req.Payload == nil {
		writeErrorWithMessage(w, ErrInvalidRequest, "payload is required", http.StatusBadRequest)
		return
	}
	if err := req.Payload.Validate(); err != nil {
		writeErrorWithMessage(w, ErrInvalidRequest, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.store.UpsertEncrypted(r.Context(), userID, category, id, req.Payload); err != nil {
		s.logger.ErrorContext(r.Context(), "failed to store record",
			logger.String("category", category), logger.String("id", id), logger.Error(err))
		handleError(w, err)
		return
	}

	s.logger.DebugContext(r.Context(), "record stored",
		logger.String("category", category), logger.String("id", id))
	w.WriteHeader(http.StatusNoContent)
}

// GetRecordHandler handles GET /v1/users/{userID}/records/{category}/{id}.
func (s *Server) GetRecordHandler(w http.ResponseWriter, r *http.Request) {
	userID, category, id := chi.URLParam(r, "userID"), chi.URLParam(r, "category"), chi.URLParam(r, "id")
	if err := validatePath(userID, category, id); err != nil {
		handleError(w, err)
		return
	}

	rec, err := s.store.Get(r.Context(), userID, category, id)
	if err != nil {
		handleError(w, err)
		return
	}

	writeJSON(w, RecordResponse{
		UserID:        rec.UserID,
		Category:      rec.Category,
		ID:            rec.ID,
		Payload:       rec.Payload,
		UpdatedAt:     rec.UpdatedAt,
		SchemaVersion: rec.SchemaVersion,
	}, http.StatusOK)
}

// ListRecordsHandler handles GET /v1/users/{userID}/records/{category}.
func (s *Server) ListRecordsHandler(w http.ResponseWriter, r *http.Request) {
	userID, category := chi.URLParam(r, "userID"), chi.URLParam(r, "category")
	if err := types.ValidateRecordKey(userID, category); err != nil {
		handleError(w, err)
		return
	}

	ids, err := s.store.List(r.Context(), userID, category)
	if err != nil {
		handleError(w, err)
		return
	}
	writeJSON(w, ListRecordsResponse{Category: category, IDs: ids}, http.StatusOK)
}

// HealthHandler handles GET /health. It returns 503 when any readiness
// check fails.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	results := s.health.Ready(r.Context())
	status := health.AggregateStatus(results)

	code := http.StatusOK
	if status != health.StatusHealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, HealthCheckResponse{
		Status:  status,
		Version: s.version,
		Checks:  results,
	}, code)
}

func validatePath(userID, category, id string) error {
	if err := types.ValidateRecordKey(category, id); err != nil {
		return err
	}
	if err := types.ValidateRecordKey(userID, category); err != nil {
		return fmt.Errorf("%w: invalid user id", types.ErrInvalidRecordKey)
	}
	return nil
}

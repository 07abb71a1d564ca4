// Threadline - Real-time Threaded Discussions
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadline

package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/tomtom215/threadline/internal/auth"
	"github.com/tomtom215/threadline/internal/database"
	"github.com/tomtom215/threadline/internal/logging"
	"github.com/tomtom215/threadline/internal/models"
	"github.com/tomtom215/threadline/internal/validation"
	"github.com/tomtom215/threadline/internal/votes"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// sanitizeLogValue removes control characters from strings to prevent log injection attacks.
func sanitizeLogValue(s string) string {
	var result strings.Builder
	result.Grow(len(s))
	for _, r := range s {
		if r < 0x20 || r == 0x7F {
			result.WriteString(fmt.Sprintf("\\x%02x", r))
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// respondJSON sends a JSON response with proper headers
func respondJSON(w http.ResponseWriter, status int, response *models.APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")

	data, err := json.Marshal(response)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("ETag", generateETag(data))

	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

// respondData wraps data in a success envelope.
func respondData(w http.ResponseWriter, status int, data interface{}, meta models.Metadata) {
	meta.Timestamp = time.Now()
	respondJSON(w, status, &models.APIResponse{
		Status:   "success",
		Data:     data,
		Metadata: meta,
	})
}

// generateETag creates a simple ETag from data using FNV-1a hash
func generateETag(data []byte) string {
	hash := uint32(2166136261)
	for _, b := range data {
		hash ^= uint32(b)
		hash *= 16777619
	}
	return strconv.FormatUint(uint64(hash), 16)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, code, message string, err error) {
	if err != nil {
		logging.Error().Str("code", sanitizeLogValue(code)).Str("error", sanitizeLogValue(err.Error())).Msg("API Error")
	}

	respondJSON(w, status, &models.APIResponse{
		Status: "error",
		Metadata: models.Metadata{
			Timestamp: time.Now(),
		},
		Error: &models.APIError{
			Code:    code,
			Message: message,
		},
	})
}

// respondAPIError sends a prepared APIError, typically from validateRequest.
func respondAPIError(w http.ResponseWriter, status int, apiErr *models.APIError) {
	respondJSON(w, status, &models.APIResponse{
		Status:   "error",
		Metadata: models.Metadata{Timestamp: time.Now()},
		Error:    apiErr,
	})
}

// respondDomainError maps an error returned by the discussion or account
// services to a status code and error envelope. Unrecognized errors are
// logged and reported as 500.
func respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validationErr *models.ValidationError
		permissionErr *models.PermissionError
		notFoundErr   *models.NotFoundError
		authErr       *models.AuthRequiredError
	)

	switch {
	case errors.As(err, &validationErr):
		details := map[string]interface{}(nil)
		if validationErr.Field != "" {
			details = map[string]interface{}{"field": validationErr.Field}
		}
		respondAPIError(w, http.StatusBadRequest, &models.APIError{
			Code:    "VALIDATION_ERROR",
			Message: validationErr.Message,
			Details: details,
		})
	case errors.As(err, &permissionErr):
		respondError(w, http.StatusForbidden, "PERMISSION_DENIED", permissionErr.Message, nil)
	case errors.As(err, &notFoundErr):
		respondError(w, http.StatusNotFound, "NOT_FOUND", notFoundErr.Error(), nil)
	case errors.Is(err, database.ErrPageNotFound):
		respondError(w, http.StatusNotFound, "NOT_FOUND", "Page not found", nil)
	case errors.As(err, &authErr), errors.Is(err, auth.ErrInvalidCredentials):
		respondError(w, http.StatusUnauthorized, "AUTHENTICATION_ERROR", err.Error(), nil)
	case errors.Is(err, database.ErrUsernameTaken):
		respondError(w, http.StatusConflict, "CONFLICT", "Username already taken", nil)
	case errors.Is(err, votes.ErrVoteConflict):
		respondError(w, http.StatusConflict, "CONFLICT", "Vote conflicted with a concurrent change, retry", nil)
	default:
		logging.Ctx(r.Context()).Error().
			Str("path", sanitizeLogValue(r.URL.Path)).
			Str("error", sanitizeLogValue(err.Error())).
			Msg("Request failed")
		respondError(w, http.StatusInternalServerError, "DATABASE_ERROR", "Internal server error", nil)
	}
}

// decodeJSON reads a bounded JSON body into dst and validates it. On failure
// it writes the error response and returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body", nil)
		return false
	}
	if apiErr := validateRequest(dst); apiErr != nil {
		respondAPIError(w, http.StatusBadRequest, apiErr)
		return false
	}
	return true
}

// validateRequest validates a struct using go-playground/validator.
// Returns nil if validation passes.
func validateRequest(v interface{}) *models.APIError {
	validationErr := validation.ValidateStruct(v)
	if validationErr == nil {
		return nil
	}
	return validationErr.ToAPIError()
}

// pathID parses a positive integer URL parameter. On failure it writes a
// 400 response and returns false.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := parseID(chi.URLParam(r, name))
	if err != nil {
		respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", fmt.Sprintf("Invalid %s: must be a positive integer", name), nil)
		return 0, false
	}
	return id, true
}

func parseID(value string) (int64, error) {
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, fmt.Errorf("id %d is not positive", id)
	}
	return id, nil
}

// viewer returns the caller's user id, 0 for anonymous callers.
func viewer(r *http.Request) int64 {
	return auth.IdentityFromContext(r.Context()).UserID
}

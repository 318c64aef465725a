package validators

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/pawpass-backend/pkg/errors"
)

func fieldError(field, message string, extra ...any) *pkgerrors.Error {
	details := map[string]any{"field": field}
	for i := 0; i+1 < len(extra); i += 2 {
		details[extra[i].(string)] = extra[i+1]
	}
	return pkgerrors.New(pkgerrors.CodeValidation, message).WithDetails(details)
}

// ParseQueryInt reads an optional integer query parameter bounded by [min, max].
func ParseQueryInt(r *http.Request, key string, fallback, min, max int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	switch {
	case err != nil:
		return 0, fieldError(key, key+" must be numeric")
	case value < min || value > max:
		return 0, fieldError(key, key+" out of range", "min", min, "max", max)
	}
	return value, nil
}

// ParseUUIDParam reads a chi route parameter as a uuid.
func ParseUUIDParam(r *http.Request, key string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, key))
	if raw == "" {
		return uuid.Nil, fieldError(key, key+" is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fieldError(key, "invalid "+key)
	}
	return id, nil
}

// RequireQuery returns a trimmed, non-empty query parameter.
func RequireQuery(r *http.Request, key string) (string, error) {
	if raw := strings.TrimSpace(r.URL.Query().Get(key)); raw != "" {
		return raw, nil
	}
	return "", fieldError(key, key+" is required")
}

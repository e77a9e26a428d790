package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
)

type contextKeyType string

const companyIDKey contextKeyType = "company_id"

// Tenant middleware extracts the tenant identifier from the X-Company-ID
// header, validates that it is a UUID, and injects it into the request
// context. Requests without a valid tenant are rejected with 400.
func Tenant() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get("X-Company-ID")
			if raw == "" {
				writeTenantError(w, "MISSING_COMPANY", "X-Company-ID header is required")
				return
			}

			companyID, err := uuid.Parse(raw)
			if err != nil {
				writeTenantError(w, "INVALID_COMPANY", "X-Company-ID must be a valid UUID")
				return
			}

			ctx := context.WithValue(r.Context(), companyIDKey, companyID.String())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CompanyIDFromContext extracts the tenant identifier from the request context.
func CompanyIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(companyIDKey).(string); ok {
		return id
	}
	return ""
}

func writeTenantError(w http.ResponseWriter, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"code":    code,
		"message": message,
	})
}

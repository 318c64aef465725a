package controllers

import (
	"net/http"

	"github.com/angelmondragon/pawpass-backend/api/middleware"
	"github.com/angelmondragon/pawpass-backend/api/responses"
)

type pingResponse struct {
	Scope  string `json:"scope"`
	Status string `json:"status"`
	UserID string `json:"user_id,omitempty"`
	Role   string `json:"role,omitempty"`
}

// PublicPing answers without touching any dependency.
func PublicPing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, pingResponse{Scope: "public", Status: "ok"})
	}
}

// PrivatePing echoes the authenticated actor so clients can check their token.
func PrivatePing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		responses.WriteSuccess(w, pingResponse{
			Scope:  "private",
			Status: "ok",
			UserID: middleware.UserIDFromContext(ctx),
			Role:   string(middleware.RoleFromContext(ctx)),
		})
	}
}

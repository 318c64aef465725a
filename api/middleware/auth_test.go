package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/angelmondragon/pawpass-backend/pkg/auth"
	"github.com/angelmondragon/pawpass-backend/pkg/config"
	"github.com/angelmondragon/pawpass-backend/pkg/enums"
	"github.com/google/uuid"
)

func testJWT() config.JWTConfig {
	return config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 60}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthRejectsMissingToken(t *testing.T) {
	handler := Auth(testJWT(), nil)(okHandler())

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthRejectsInvalidToken(t *testing.T) {
	handler := Auth(testJWT(), nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer invalid")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestAuthAllowsValidToken(t *testing.T) {
	cfg := testJWT()
	userID := uuid.New()
	token := mintTestToken(t, cfg, userID, enums.RoleStaff)

	var captured auth.Actor
	handler := Auth(cfg, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = ActorFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if captured.UserID != userID {
		t.Fatalf("expected user %s got %s", userID, captured.UserID)
	}
	if captured.Role != enums.RoleStaff {
		t.Fatalf("expected staff role got %s", captured.Role)
	}
}

func TestOptionalAuthPassesAnonymous(t *testing.T) {
	var sawActor bool
	handler := OptionalAuth(testJWT(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawActor = ActorFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if sawActor {
		t.Fatal("anonymous request must not carry an actor")
	}
}

func TestRequireStaff(t *testing.T) {
	handler := RequireStaff(nil)(okHandler())

	cases := []struct {
		name   string
		role   enums.Role
		anon   bool
		status int
	}{
		{name: "anonymous", anon: true, status: http.StatusUnauthorized},
		{name: "customer", role: enums.RoleCustomer, status: http.StatusForbidden},
		{name: "staff", role: enums.RoleStaff, status: http.StatusOK},
		{name: "admin", role: enums.RoleAdmin, status: http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			if !tc.anon {
				req = req.WithContext(WithActor(req.Context(), uuid.New(), tc.role))
			}
			resp := httptest.NewRecorder()
			handler.ServeHTTP(resp, req)
			if resp.Code != tc.status {
				t.Fatalf("expected %d got %d", tc.status, resp.Code)
			}
		})
	}
}

func TestCartSessionIssuesCookieOnce(t *testing.T) {
	var seen string
	handler := CartSession("cart", time.Hour, false, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CartSessionFromContext(r.Context())
	}))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/", nil))
	cookies := resp.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != "cart" {
		t.Fatalf("expected cart cookie, got %v", cookies)
	}
	if seen == "" || seen != cookies[0].Value {
		t.Fatalf("context session %q does not match cookie %q", seen, cookies[0].Value)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if len(resp.Result().Cookies()) != 0 {
		t.Fatal("existing session must not be reissued")
	}
	if seen != cookies[0].Value {
		t.Fatalf("expected session reuse, got %q", seen)
	}
}

func TestCartSessionReplacesForgedCookie(t *testing.T) {
	var seen string
	handler := CartSession("cart", time.Hour, false, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CartSessionFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "cart", Value: "../../etc"})
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if seen == "../../etc" {
		t.Fatal("non-uuid session ids must be replaced")
	}
}

func mintTestToken(t *testing.T, cfg config.JWTConfig, userID uuid.UUID, role enums.Role) string {
	t.Helper()
	token, err := auth.MintAccessToken(cfg, time.Now(), auth.AccessTokenPayload{UserID: userID, Role: role})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/MrEthical07/stagepass"
	"github.com/MrEthical07/stagepass/jwt"
)

type validatorFunc func(ctx context.Context, token string) (*jwt.Claims, error)

func (f validatorFunc) ValidateAccessToken(ctx context.Context, token string) (*jwt.Claims, error) {
	return f(ctx, token)
}

func acceptOnly(good string) validatorFunc {
	return func(_ context.Context, token string) (*jwt.Claims, error) {
		if token != good {
			return nil, errors.New("bad token")
		}
		c := &jwt.Claims{Email: "a@x.com"}
		c.Subject = "u1"
		return c, nil
	}
}

func TestRequireAccessToken(t *testing.T) {
	var seen *jwt.Claims
	h := RequireAccessToken(acceptOnly("good"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer good", http.StatusNoContent},
		{"lowercase scheme", "bearer good", http.StatusNoContent},
		{"missing", "", http.StatusUnauthorized},
		{"basic scheme", "Basic good", http.StatusUnauthorized},
		{"empty token", "Bearer ", http.StatusUnauthorized},
		{"rejected", "Bearer bad", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusNoContent {
				assert.Equal(t, "u1", seen.UserID())
			} else {
				assert.Nil(t, seen)
				assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
			}
		})
	}
}

func TestClientInfo(t *testing.T) {
	var ip string
	h := ClientInfo(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		ip = stagepass.ClientIPFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:41000"
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "203.0.113.9", ip)
}

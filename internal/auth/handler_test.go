package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type mockAuthService struct {
	registerFn   func(ctx context.Context, in RegisterInput) (*User, error)
	loginFn      func(ctx context.Context, email, password string) (*User, string, error)
	parseTokenFn func(ctx context.Context, tokenStr string) (*User, error)
}

func (m *mockAuthService) Register(ctx context.Context, in RegisterInput) (*User, error) {
	if m.registerFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.registerFn(ctx, in)
}

func (m *mockAuthService) Login(ctx context.Context, email, password string) (*User, string, error) {
	if m.loginFn == nil {
		return nil, "", errors.New("not implemented")
	}
	return m.loginFn(ctx, email, password)
}

func (m *mockAuthService) ParseToken(ctx context.Context, tokenStr string) (*User, error) {
	if m.parseTokenFn == nil {
		return nil, errors.New("not implemented")
	}
	return m.parseTokenFn(ctx, tokenStr)
}

func TestRegisterHandlerDuplicateEmail(t *testing.T) {
	h := NewHandler(&mockAuthService{
		registerFn: func(ctx context.Context, in RegisterInput) (*User, error) {
			return nil, ErrEmailTaken
		},
	})

	payload := []byte(`{"email":"dup@example.com","password":"longenough","full_name":"D"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", bytes.NewReader(payload))
	w := httptest.NewRecorder()

	h.Register(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
}

func TestLoginHandlerBadCredentials(t *testing.T) {
	h := NewHandler(&mockAuthService{
		loginFn: func(ctx context.Context, email, password string) (*User, string, error) {
			return nil, "", ErrInvalidCredentials
		},
	})

	payload := []byte(`{"email":"x@example.com","password":"wrong"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	w := httptest.NewRecorder()

	h.Login(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestLoginHandlerReturnsToken(t *testing.T) {
	h := NewHandler(&mockAuthService{
		loginFn: func(ctx context.Context, email, password string) (*User, string, error) {
			return &User{ID: 3, Email: email, Role: RoleStudent}, "signed-token", nil
		},
	})

	payload := []byte(`{"email":"x@example.com","password":"right"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	w := httptest.NewRecorder()

	h.Login(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Data.Token != "signed-token" {
		t.Fatalf("token missing from response: %s", w.Body.String())
	}
}

func TestRequireAuth(t *testing.T) {
	h := NewHandler(&mockAuthService{
		parseTokenFn: func(ctx context.Context, tokenStr string) (*User, error) {
			if tokenStr != "good" {
				return nil, ErrUnauthorized
			}
			return &User{ID: 5, Role: RoleStudent}, nil
		},
	})

	var seen *User
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = CurrentUser(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	protected := h.RequireAuth(next)

	tests := []struct {
		name   string
		header string
		code   int
	}{
		{name: "missing header", header: "", code: http.StatusUnauthorized},
		{name: "not bearer", header: "Basic abc", code: http.StatusUnauthorized},
		{name: "bad token", header: "Bearer bad", code: http.StatusUnauthorized},
		{name: "good token", header: "Bearer good", code: http.StatusNoContent},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()

			protected.ServeHTTP(w, req)

			if w.Code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, w.Code)
			}
			if tc.code == http.StatusNoContent && (seen == nil || seen.ID != 5) {
				t.Fatalf("user not injected into context")
			}
		})
	}
}

func TestRequireRoles(t *testing.T) {
	h := NewHandler(&mockAuthService{})
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	staffOnly := h.RequireRoles(RoleAdmin, RoleCoordinator)(next)

	tests := []struct {
		name string
		user *User
		code int
	}{
		{name: "no user", user: nil, code: http.StatusUnauthorized},
		{name: "student", user: &User{ID: 1, Role: RoleStudent}, code: http.StatusForbidden},
		{name: "coordinator", user: &User{ID: 2, Role: RoleCoordinator}, code: http.StatusNoContent},
		{name: "admin", user: &User{ID: 3, Role: RoleAdmin}, code: http.StatusNoContent},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/admin", nil)
			if tc.user != nil {
				req = req.WithContext(ContextWithUser(req.Context(), tc.user))
			}
			w := httptest.NewRecorder()

			staffOnly.ServeHTTP(w, req)

			if w.Code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, w.Code)
			}
		})
	}
}

func TestMeRequiresUser(t *testing.T) {
	h := NewHandler(&mockAuthService{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	w := httptest.NewRecorder()
	h.Me(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req = req.WithContext(ContextWithUser(req.Context(), &User{ID: 9, Role: RoleStudent}))
	w = httptest.NewRecorder()
	h.Me(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

const testToken = "0123456789abcdef0123456789abcdef"

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter(sm *SessionManager, ta *TokenAuthenticator) *gin.Engine {
	r := gin.New()
	r.GET("/login", func(c *gin.Context) {
		if err := sm.Set(c.Writer, c.Request, &SessionData{UserID: "u1", Email: "admin@example.com"}); err != nil {
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusNoContent)
	})
	api := r.Group("/api", RequireAuth(sm, ta), ValidateCSRF())
	api.GET("/me", func(c *gin.Context) {
		c.JSON(http.StatusOK, GetCurrentUser(c))
	})
	api.POST("/things", func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})
	return r
}

func TestTokenAuthenticator(t *testing.T) {
	ta := NewTokenAuthenticator(testToken)

	tests := []struct {
		name   string
		header string
		want   bool
	}{
		{"valid", "Bearer " + testToken, true},
		{"wrong token", "Bearer " + strings.Repeat("x", 32), false},
		{"wrong scheme", "Basic " + testToken, false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			got := ta.Authenticate(req)
			if (got != nil) != tt.want {
				t.Errorf("Authenticate() = %v, want %v", got, tt.want)
			}
			if got != nil && (!got.ViaToken || got.UserID != TokenUserID) {
				t.Errorf("unexpected session %+v", got)
			}
		})
	}

	t.Run("disabled", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer ")
		if NewTokenAuthenticator("").Authenticate(req) != nil {
			t.Error("expected disabled authenticator to reject")
		}
	})
}

func TestSessionData(t *testing.T) {
	t.Run("token session", func(t *testing.T) {
		data := newTokenSession()
		if data.UserID != TokenUserID || !data.ViaToken {
			t.Errorf("unexpected token session %+v", data)
		}
		if !data.VerifyCSRF("") {
			t.Error("token sessions are exempt from CSRF checks")
		}
	})

	t.Run("cookie session CSRF", func(t *testing.T) {
		data := &SessionData{UserID: "u1", CSRFToken: "abc"}
		tests := []struct {
			token string
			want  bool
		}{
			{"abc", true},
			{"abd", false},
			{"", false},
		}
		for _, tt := range tests {
			if got := data.VerifyCSRF(tt.token); got != tt.want {
				t.Errorf("VerifyCSRF(%q) = %v, want %v", tt.token, got, tt.want)
			}
		}
		if (&SessionData{UserID: "u1"}).VerifyCSRF("") {
			t.Error("a session without a CSRF token must not verify")
		}
	})

	t.Run("set and get round trip", func(t *testing.T) {
		sm := NewSessionManager(strings.Repeat("s", 32), false)
		w := httptest.NewRecorder()
		in := &SessionData{UserID: "u1", Email: "admin@example.com", Name: "Admin"}
		if err := sm.Set(w, httptest.NewRequest(http.MethodGet, "/", nil), in); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if in.CSRFToken == "" {
			t.Fatal("expected a generated CSRF token")
		}

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		for _, c := range w.Result().Cookies() {
			req.AddCookie(c)
		}
		got, err := sm.Get(req)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if *got != *in {
			t.Errorf("Get() = %+v, want %+v", got, in)
		}
	})

	t.Run("token sessions are not persisted", func(t *testing.T) {
		sm := NewSessionManager(strings.Repeat("s", 32), false)
		err := sm.Set(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil), newTokenSession())
		if !errors.Is(err, ErrInvalidSession) {
			t.Errorf("expected ErrInvalidSession, got %v", err)
		}
	})
}

func TestRequireAuth(t *testing.T) {
	sm := NewSessionManager(strings.Repeat("s", 32), false)
	r := newRouter(sm, NewTokenAuthenticator(testToken))

	t.Run("anonymous gets 401", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/me", nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", w.Code)
		}
	})

	t.Run("token allows writes without CSRF", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/things", nil)
		req.Header.Set("Authorization", "Bearer "+testToken)
		r.ServeHTTP(w, req)
		if w.Code != http.StatusCreated {
			t.Errorf("expected 201, got %d", w.Code)
		}
	})

	t.Run("session requires CSRF on writes", func(t *testing.T) {
		login := httptest.NewRecorder()
		r.ServeHTTP(login, httptest.NewRequest(http.MethodGet, "/login", nil))
		cookies := login.Result().Cookies()
		if len(cookies) == 0 {
			t.Fatal("expected session cookie")
		}

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		req.AddCookie(cookies[0])
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "admin@example.com") {
			t.Fatalf("expected session user, got %d %s", w.Code, w.Body.String())
		}

		w = httptest.NewRecorder()
		req = httptest.NewRequest(http.MethodPost, "/api/things", nil)
		req.AddCookie(cookies[0])
		r.ServeHTTP(w, req)
		if w.Code != http.StatusForbidden {
			t.Errorf("expected 403 without CSRF token, got %d", w.Code)
		}

		session, err := sm.Get(req)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		w = httptest.NewRecorder()
		req = httptest.NewRequest(http.MethodPost, "/api/things", nil)
		req.AddCookie(cookies[0])
		req.Header.Set("X-CSRF-Token", session.CSRFToken)
		r.ServeHTTP(w, req)
		if w.Code != http.StatusCreated {
			t.Errorf("expected 201 with CSRF token, got %d", w.Code)
		}
	})
}

func TestAuthorizeClaims(t *testing.T) {
	allowed := domainSet([]string{" Example.com ", ""})

	tests := []struct {
		name   string
		claims OIDCClaims
		domain map[string]bool
		want   error
	}{
		{"no restriction", OIDCClaims{Email: "a@other.org"}, nil, nil},
		{"missing email", OIDCClaims{}, nil, ErrMissingEmail},
		{"allowed domain", OIDCClaims{Email: "a@EXAMPLE.com", EmailVerified: true}, allowed, nil},
		{"unverified", OIDCClaims{Email: "a@example.com"}, allowed, ErrEmailNotVerified},
		{"other domain", OIDCClaims{Email: "a@other.org", EmailVerified: true}, allowed, ErrDomainNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := authorizeClaims(&tt.claims, tt.domain)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

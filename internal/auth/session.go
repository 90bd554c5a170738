package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/gorilla/sessions"
)

const (
	sessionName     = "syncbridge_session"
	oauthStateName  = "syncbridge_oauth_state"
	sessionMaxAge   = 7 * 24 * 60 * 60 // 7 days in seconds
	oauthStateAge   = 10 * 60
	csrfTokenLength = 32
	stateLength     = 32

	// TokenUserID identifies requests authenticated by the API token.
	TokenUserID = "api-token"
	tokenName   = "API token"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidSession  = errors.New("invalid session data")
)

// SessionData represents the authenticated caller of a request. Cookie
// sessions come from the OIDC login; token sessions are built per request.
type SessionData struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	CSRFToken string `json:"csrf_token"`
	// ViaToken is set for API token requests, which have no cookie session.
	ViaToken bool `json:"-"`
}

// newTokenSession returns the caller of a request carrying the API token.
func newTokenSession() *SessionData {
	return &SessionData{UserID: TokenUserID, Name: tokenName, ViaToken: true}
}

// VerifyCSRF reports whether token matches the session's CSRF token. Token
// sessions have no cookie to forge and always pass.
func (d *SessionData) VerifyCSRF(token string) bool {
	if d.ViaToken {
		return true
	}
	if token == "" || d.CSRFToken == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(d.CSRFToken)) == 1
}

// values maps cookie keys onto the persisted fields.
func (d *SessionData) values() map[string]*string {
	return map[string]*string{
		"user_id":    &d.UserID,
		"email":      &d.Email,
		"name":       &d.Name,
		"csrf_token": &d.CSRFToken,
	}
}

// SessionManager stores cookie sessions for browser users.
type SessionManager struct {
	store  *sessions.CookieStore
	secure bool
}

// NewSessionManager creates a new session manager.
func NewSessionManager(secret string, secure bool) *SessionManager {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   sessionMaxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}

	return &SessionManager{
		store:  store,
		secure: secure,
	}
}

// Get retrieves the cookie session of a request. Missing optional values
// read as empty strings.
func (sm *SessionManager) Get(r *http.Request) (*SessionData, error) {
	session, err := sm.store.Get(r, sessionName)
	if err != nil {
		return nil, ErrSessionNotFound
	}

	data := &SessionData{}
	for key, field := range data.values() {
		if v, ok := session.Values[key].(string); ok {
			*field = v
		}
	}
	if data.UserID == "" {
		return nil, ErrSessionNotFound
	}
	return data, nil
}

// Set stores the session data, generating a CSRF token on first login.
func (sm *SessionManager) Set(w http.ResponseWriter, r *http.Request, data *SessionData) error {
	if data.ViaToken {
		return ErrInvalidSession
	}

	session, err := sm.store.Get(r, sessionName)
	if err != nil {
		// Create a new session if the current one is invalid
		session, err = sm.store.New(r, sessionName)
		if err != nil {
			return err
		}
	}

	if data.CSRFToken == "" {
		if data.CSRFToken, err = randomToken(csrfTokenLength); err != nil {
			return err
		}
	}

	for key, field := range data.values() {
		session.Values[key] = *field
	}
	return session.Save(r, w)
}

// Clear removes the session.
func (sm *SessionManager) Clear(w http.ResponseWriter, r *http.Request) error {
	session, err := sm.store.Get(r, sessionName)
	if err != nil {
		return nil // Session doesn't exist, nothing to clear
	}

	session.Options.MaxAge = -1
	return session.Save(r, w)
}

// SetOAuthState stores the OAuth state for CSRF protection.
func (sm *SessionManager) SetOAuthState(w http.ResponseWriter, r *http.Request, state string) error {
	session, err := sm.store.Get(r, oauthStateName)
	if err != nil {
		session, err = sm.store.New(r, oauthStateName)
		if err != nil {
			return err
		}
	}

	session.Values["state"] = state
	session.Options.MaxAge = oauthStateAge

	return session.Save(r, w)
}

// GetOAuthState retrieves and clears the OAuth state.
func (sm *SessionManager) GetOAuthState(w http.ResponseWriter, r *http.Request) (string, error) {
	session, err := sm.store.Get(r, oauthStateName)
	if err != nil {
		return "", err
	}

	state, ok := session.Values["state"].(string)
	if !ok || state == "" {
		return "", ErrInvalidSession
	}

	// Single use
	session.Options.MaxAge = -1
	if err := session.Save(r, w); err != nil {
		return "", err
	}

	return state, nil
}

// GenerateState generates a random state string for OAuth.
func GenerateState() (string, error) {
	return randomToken(stateLength)
}

func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

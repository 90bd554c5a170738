package web

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/macjediwizard/syncbridge/internal/activity"
	"github.com/macjediwizard/syncbridge/internal/analytics"
	"github.com/macjediwizard/syncbridge/internal/api"
	"github.com/macjediwizard/syncbridge/internal/auth"
	"github.com/macjediwizard/syncbridge/internal/config"
	"github.com/macjediwizard/syncbridge/internal/crypto"
	"github.com/macjediwizard/syncbridge/internal/db"
	"github.com/macjediwizard/syncbridge/internal/health"
	"github.com/macjediwizard/syncbridge/internal/notify"
	"github.com/macjediwizard/syncbridge/internal/scheduler"
)

const redirectCookie = "redirect_after_login"

// Handlers contains all HTTP handlers and their dependencies.
type Handlers struct {
	cfg       *config.Config
	db        *db.DB
	oidc      *auth.OIDCProvider
	session   *auth.SessionManager
	encryptor *crypto.Encryptor
	analytics *analytics.Client
	scheduler *scheduler.Scheduler
	health    *health.Checker
	tracker   *activity.Tracker
	notifier  *notify.Notifier
}

// NewHandlers creates a new Handlers instance. notifier may be nil when
// alerts are disabled.
func NewHandlers(
	cfg *config.Config,
	database *db.DB,
	oidc *auth.OIDCProvider,
	session *auth.SessionManager,
	encryptor *crypto.Encryptor,
	analyticsClient *analytics.Client,
	sched *scheduler.Scheduler,
	healthChecker *health.Checker,
	tracker *activity.Tracker,
	notifier *notify.Notifier,
) *Handlers {
	return &Handlers{
		cfg:       cfg,
		db:        database,
		oidc:      oidc,
		session:   session,
		encryptor: encryptor,
		analytics: analyticsClient,
		scheduler: sched,
		health:    healthChecker,
		tracker:   tracker,
		notifier:  notifier,
	}
}

// HealthCheck returns a full health report.
func (h *Handlers) HealthCheck(c *gin.Context) {
	report := h.health.Check(c.Request.Context())
	status := http.StatusOK
	if report.Status == health.StatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

// Liveness returns a simple liveness check.
func (h *Handlers) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, h.health.Liveness())
}

// Readiness checks all dependencies.
func (h *Handlers) Readiness(c *gin.Context) {
	report := h.health.Check(c.Request.Context())
	if report.Status == health.StatusUnhealthy {
		c.JSON(http.StatusServiceUnavailable, report)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Login initiates OIDC authentication. An optional redirect query parameter
// names the page to return to after login.
func (h *Handlers) Login(c *gin.Context) {
	if h.oidc == nil {
		h.respondError(c, http.StatusServiceUnavailable, "Login is not configured")
		return
	}

	state, err := auth.GenerateState()
	if err != nil {
		h.respondError(c, http.StatusInternalServerError, sanitizeError(err, "Failed to generate state"))
		return
	}

	if err := h.session.SetOAuthState(c.Writer, c.Request, state); err != nil {
		h.respondError(c, http.StatusInternalServerError, sanitizeError(err, "Failed to save state"))
		return
	}

	if redirect := c.Query("redirect"); IsSafeRedirectURL(redirect) {
		c.SetCookie(redirectCookie, redirect, 600, "/", "", h.cfg.IsProduction(), true)
	}

	c.Redirect(http.StatusFound, h.oidc.AuthCodeURL(state))
}

// Callback handles the OIDC callback.
func (h *Handlers) Callback(c *gin.Context) {
	if h.oidc == nil {
		h.respondError(c, http.StatusServiceUnavailable, "Login is not configured")
		return
	}

	state := c.Query("state")
	savedState, err := h.session.GetOAuthState(c.Writer, c.Request)
	if err != nil || state == "" || state != savedState {
		h.respondError(c, http.StatusBadRequest, "Invalid state parameter")
		return
	}

	if errParam := c.Query("error"); errParam != "" {
		log.Printf("OIDC provider returned error: %s", errParam)
		h.respondError(c, http.StatusBadRequest, "Authentication failed")
		return
	}

	ctx := c.Request.Context()
	token, err := h.oidc.Exchange(ctx, c.Query("code"))
	if err != nil {
		h.respondError(c, http.StatusBadRequest, sanitizeError(err, "Failed to exchange code"))
		return
	}

	claims, err := h.oidc.VerifyIDToken(ctx, token)
	if err != nil {
		h.respondError(c, http.StatusBadRequest, sanitizeError(err, "Failed to verify token"))
		return
	}

	if err := h.oidc.Authorize(claims); err != nil {
		log.Printf("Login rejected for %s: %v", claims.Email, err)
		h.respondError(c, http.StatusForbidden, "Access denied")
		return
	}

	user, err := h.db.GetOrCreateUser(claims.Email, claims.Name)
	if err != nil {
		h.respondError(c, http.StatusInternalServerError, sanitizeError(err, "Failed to create user"))
		return
	}

	sessionData := &auth.SessionData{
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.Name,
	}
	if err := h.session.Set(c.Writer, c.Request, sessionData); err != nil {
		h.respondError(c, http.StatusInternalServerError, sanitizeError(err, "Failed to create session"))
		return
	}

	redirectURL := "/"
	if cookie, err := c.Cookie(redirectCookie); err == nil && cookie != "" {
		if IsSafeRedirectURL(cookie) {
			redirectURL = cookie
		}
		c.SetCookie(redirectCookie, "", -1, "/", "", h.cfg.IsProduction(), true)
	}

	c.Redirect(http.StatusFound, redirectURL)
}

// Logout clears the session.
func (h *Handlers) Logout(c *gin.Context) {
	if err := h.session.Clear(c.Writer, c.Request); err != nil {
		h.respondError(c, http.StatusInternalServerError, sanitizeError(err, "Failed to logout"))
		return
	}
	c.Redirect(http.StatusFound, "/")
}

// respondError sends a JSON error body.
func (h *Handlers) respondError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, api.NewError(status, message))
}

// respondDBError maps storage errors onto HTTP statuses. Unexpected errors
// are logged and reported with userMessage.
func (h *Handlers) respondDBError(c *gin.Context, err error, notFound, userMessage string) {
	switch {
	case errors.Is(err, db.ErrNotFound):
		h.respondError(c, http.StatusNotFound, notFound)
	case errors.Is(err, db.ErrDuplicate):
		h.respondError(c, http.StatusConflict,
			"Another active sync configuration already exists for this source entity")
	default:
		h.respondError(c, http.StatusInternalServerError, sanitizeError(err, userMessage))
	}
}

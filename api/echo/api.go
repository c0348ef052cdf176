// Package echo exposes the session lifecycle core over HTTP and
// WebSocket. Request identity comes from the auth middleware; this
// layer only maps operations and errors to wire responses.
package echo

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"go.pilab.hu/wabroker/domain"
	waerrors "go.pilab.hu/wabroker/errors"
	"go.pilab.hu/wabroker/notify"
	"go.pilab.hu/wabroker/services"
)

// SessionAPI struct to hold dependencies.
type SessionAPI struct {
	sessions *services.SessionService
	hub      *notify.Hub
}

// NewSessionAPI initializes the session API.
func NewSessionAPI(sessions *services.SessionService, hub *notify.Hub) *SessionAPI {
	return &SessionAPI{sessions: sessions, hub: hub}
}

// RegisterRoutes registers the session routes behind the auth
// middleware, plus the public WebSocket endpoint.
func (a *SessionAPI) RegisterRoutes(e *echo.Echo, requireAuth echo.MiddlewareFunc) {
	g := e.Group("/api/v1/sessions", requireAuth)
	g.POST("/create", a.CreateHandler)
	g.POST("/refresh", a.RefreshHandler)
	g.GET("/:id", a.GetHandler)
	g.DELETE("/:id", a.DeleteHandler)

	e.GET("/ws", a.WebSocketHandler)
}

// CreateHandler starts a new login flow and returns the QR artifact.
func (a *SessionAPI) CreateHandler(c echo.Context) error {
	ctx := c.Request().Context()
	userID, ok := domain.UserIDFromContext(ctx)
	if !ok {
		return c.JSON(http.StatusUnauthorized, waerrors.NewUnauthorized("no user ID provided"))
	}

	result, err := a.sessions.Create(ctx, userID)
	if err != nil {
		log.Error().Err(err).Str("userID", userID).Msg("Session creation failed")
		return sessionErrorResponse(c, err)
	}
	return c.JSON(http.StatusCreated, result)
}

type refreshRequest struct {
	SessionID string `json:"sessionId"`
}

// RefreshHandler re-issues a QR artifact. The returned session ID is
// authoritative and may differ from the requested one.
func (a *SessionAPI) RefreshHandler(c echo.Context) error {
	ctx := c.Request().Context()
	userID, ok := domain.UserIDFromContext(ctx)
	if !ok {
		return c.JSON(http.StatusUnauthorized, waerrors.NewUnauthorized("no user ID provided"))
	}

	var req refreshRequest
	if err := c.Bind(&req); err != nil || req.SessionID == "" {
		return c.JSON(http.StatusBadRequest, waerrors.NewNotFound("missing sessionId"))
	}

	result, err := a.sessions.Refresh(ctx, req.SessionID, userID)
	if err != nil {
		log.Error().Err(err).Str("sessionID", req.SessionID).Str("userID", userID).Msg("Session refresh failed")
		return sessionErrorResponse(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// GetHandler returns the session record plus, for authenticated
// sessions, a best-effort chat preview list.
func (a *SessionAPI) GetHandler(c echo.Context) error {
	ctx := c.Request().Context()
	userID, ok := domain.UserIDFromContext(ctx)
	if !ok {
		return c.JSON(http.StatusUnauthorized, waerrors.NewUnauthorized("no user ID provided"))
	}

	result, err := a.sessions.Inspect(ctx, c.Param("id"), userID)
	if err != nil {
		log.Error().Err(err).Str("sessionID", c.Param("id")).Str("userID", userID).Msg("Session inspect failed")
		return sessionErrorResponse(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

// DeleteHandler cleans the session up. Idempotent.
func (a *SessionAPI) DeleteHandler(c echo.Context) error {
	ctx := c.Request().Context()
	if _, ok := domain.UserIDFromContext(ctx); !ok {
		return c.JSON(http.StatusUnauthorized, waerrors.NewUnauthorized("no user ID provided"))
	}

	a.sessions.Cleanup(ctx, c.Param("id"))
	return c.NoContent(http.StatusNoContent)
}

// sessionErrorResponse maps the error taxonomy to HTTP statuses.
func sessionErrorResponse(c echo.Context, err error) error {
	switch {
	case waerrors.IsCode(err, waerrors.NotFound):
		return c.JSON(http.StatusNotFound, err)
	case waerrors.IsCode(err, waerrors.Unauthorized):
		return c.JSON(http.StatusUnauthorized, err)
	case waerrors.IsCode(err, waerrors.ResourceExhausted):
		return c.JSON(http.StatusServiceUnavailable, err)
	case waerrors.IsCode(err, waerrors.CaptureFailed):
		return c.JSON(http.StatusBadGateway, err)
	default:
		return c.JSON(http.StatusInternalServerError, &waerrors.SessionError{
			Code:        "server_error",
			Description: "internal error",
		})
	}
}

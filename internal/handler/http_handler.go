package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/telemed-live/videocall-service/internal/domain"
	"github.com/telemed-live/videocall-service/internal/middleware"
	"github.com/telemed-live/videocall-service/internal/service"
	"github.com/telemed-live/videocall-service/pkg/log"
	"github.com/telemed-live/videocall-service/pkg/response"
)

// Handler handles the orchestration HTTP endpoints.
type Handler struct {
	sessionService service.SessionService
	internalSecret string
	joinPagePath   string
	wsHandler      *WSHandler
}

// NewHandler creates the HTTP handler.
func NewHandler(sessionService service.SessionService, internalSecret, joinPagePath string, wsHandler *WSHandler) *Handler {
	return &Handler{
		sessionService: sessionService,
		internalSecret: internalSecret,
		joinPagePath:   joinPagePath,
		wsHandler:      wsHandler,
	}
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	// Orchestration endpoints are reachable only by the booking
	// service, proven by the internal-secret header.
	gate := middleware.InternalAuth(h.internalSecret)
	r.POST("/sessions", gate, h.CreateSession)
	r.POST("/sessions/:sessionId/join", gate, h.JoinSession)

	// Public: the join page is loaded by a browser navigation with
	// the token in the query string.
	r.GET("/join/:sessionId", h.JoinPage)

	r.GET("/ws", func(c *gin.Context) {
		h.wsHandler.HandleWebSocket(c.Writer, c.Request)
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

// CreateSession handles POST /sessions.
func (h *Handler) CreateSession(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	var req domain.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("failed to bind create session request")
		response.BadRequest(c, "missing required fields: appointmentId, doctorId, patientId")
		return
	}

	resp, err := h.sessionService.CreateSession(ctx, &req)
	if err != nil {
		if errors.Is(err, domain.ErrMalformedID) {
			response.BadRequest(c, err.Error())
			return
		}
		l.Error().Err(err).Msg("failed to create session")
		response.InternalError(c, "failed to create session")
		return
	}

	response.Success(c, resp)
}

// JoinSession handles POST /sessions/:sessionId/join.
func (h *Handler) JoinSession(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	sessionID := c.Param("sessionId")

	var req domain.JoinSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		l.Warn().Err(err).Msg("failed to bind join session request")
		response.BadRequest(c, "missing required fields: role, userId")
		return
	}

	c.Set(log.FieldUserID, req.UserID)
	c.Set(log.FieldRole, req.Role)

	resp, err := h.sessionService.JoinSession(ctx, sessionID, &req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRole),
			errors.Is(err, service.ErrMissingUser),
			errors.Is(err, domain.ErrMalformedID):
			response.BadRequest(c, err.Error())
		case errors.Is(err, service.ErrSessionNotFound):
			response.NotFound(c, "session not found or has ended")
		case errors.Is(err, service.ErrIdentityMismatch):
			response.Forbidden(c, "user does not match the requested role for this session")
		default:
			l.Error().Err(err).Str(log.FieldSessionID, sessionID).Msg("failed to join session")
			response.InternalError(c, "failed to generate join URL")
		}
		return
	}

	response.Success(c, resp)
}

// JoinPage serves the browser call page; the join token rides the
// query string and is consumed client side.
func (h *Handler) JoinPage(c *gin.Context) {
	c.File(h.joinPagePath)
}

package gateway

import (
	"chat-hub/contract"
	"chat-hub/domain"
	apperrors "chat-hub/errors"
	"chat-hub/observability"
	"chat-hub/services"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Handler owns the HTTP surface: credential endpoints and the websocket
// upgrade.
type Handler struct {
	log         *slog.Logger
	router      contract.IRouter
	authService services.IAuthService
	monitoring  *observability.MonitoringManager
	upgrader    websocket.Upgrader
}

func NewHandler(log *slog.Logger, router contract.IRouter,
	authService services.IAuthService, monitoring *observability.MonitoringManager) *Handler {
	return &Handler{
		log:         log,
		router:      router,
		authService: authService,
		monitoring:  monitoring,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Register binds the routes on the given engine.
func (h *Handler) Register(r *gin.Engine) {
	r.POST("/api/signup", h.signup)
	r.POST("/api/login", h.login)
	r.GET("/ws", h.serveWs)
}

type credentialsRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) signup(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	token, err := h.authService.Register(req.Username, req.Password)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, gin.H{"token": string(token)})
	case errors.Is(err, apperrors.ErrUserAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, apperrors.ErrInvalidPassword),
		errors.Is(err, apperrors.ErrReservedUsername),
		errors.Is(err, apperrors.ErrInvalidSignup):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.log.Error("Signup failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (h *Handler) login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	token, err := h.authService.Login(req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": apperrors.ErrInvalidCredentials.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": string(token)})
}

// serveWs upgrades the connection and binds it to an identity. A valid
// session token gives the account name; everybody else chats as a guest.
func (h *Handler) serveWs(c *gin.Context) {
	identity := h.resolveIdentity(c.Query("token"))

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("Websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	id := domain.ConnectionID(uuid.NewString())
	client := NewClient(id, conn, h.log, func() {
		h.router.Disconnect(id)
		h.monitoring.ConnectionClosed()
	})

	if err := h.router.Connect(id, identity, client, time.Now().UTC()); err != nil {
		h.log.Error(fmt.Sprintf("Failed to register connection %s", id),
			slog.String("error", err.Error()))
		_ = conn.Close()
		return
	}
	h.monitoring.ConnectionOpened()

	h.log.Info(fmt.Sprintf("Connection %s opened for %s", id, identity))

	go client.WritePump()
	go client.ReadPump(h.router.Dispatch)
}

func (h *Handler) resolveIdentity(token string) string {
	if token == "" {
		return domain.ResolveIdentity("")
	}
	name, err := h.authService.Identify(token)
	if err != nil {
		h.log.Warn("Invalid session token, downgrading to guest",
			slog.String("error", err.Error()))
		return domain.ResolveIdentity("")
	}
	return domain.ResolveIdentity(name)
}

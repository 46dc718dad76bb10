package http

import (
	"context"
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vinrai007/neww-mesgar10/internal/auth"
	"github.com/vinrai007/neww-mesgar10/internal/config"
	"github.com/vinrai007/neww-mesgar10/internal/core"
	"github.com/vinrai007/neww-mesgar10/internal/files"
	"github.com/vinrai007/neww-mesgar10/internal/store"
)

// Server is the HTTP server plus the WebSocket sessions it has handed off.
type Server struct {
	*stdhttp.Server
	ws *WSHandler
}

// Drain waits for WebSocket sessions, including messages they were still
// storing, to finish. Shutdown does not track hijacked connections.
func (s *Server) Drain(ctx context.Context) error {
	return s.ws.Wait(ctx)
}

// NewServer builds the HTTP server: REST API, attachment downloads and the WebSocket endpoint.
func NewServer(
	hub *core.Hub,
	authService *auth.Service,
	st store.Store,
	uploads *files.Storage,
	cfg *config.Config,
	logger *zerolog.Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)
	if uploads != nil {
		router.GET("/uploads/*filepath", gin.WrapH(stdhttp.StripPrefix("/uploads", uploads.Handler())))
	}

	apiHandlers := NewAPIHandlers(authService, cfg, logger)
	userHandlers := NewUserHandlers(st, hub, logger)
	messageHandlers := NewMessageHandlers(st, logger)

	api := router.Group("/api")
	api.POST("/register", apiHandlers.Register)
	api.POST("/login", apiHandlers.Login)
	api.POST("/logout", apiHandlers.Logout)
	api.GET("/online", userHandlers.Online)

	authed := api.Group("")
	authed.Use(AuthMiddleware(authService, cfg.AuthCookie, logger))
	authed.GET("/me", userHandlers.Me)
	authed.GET("/users", userHandlers.ListUsers)
	authed.GET("/users/search", userHandlers.SearchUsers)
	authed.GET("/messages/:userId", messageHandlers.Conversation)

	// gin marks the response written before a handler can hijack it, so the
	// upgrade lives on a plain mux in front of the router.
	ws := NewWSHandler(hub, cfg, logger)
	mux := stdhttp.NewServeMux()
	mux.Handle("/ws", ws)
	mux.Handle("/", router)

	return &Server{
		Server: &stdhttp.Server{
			Addr:              cfg.Addr,
			Handler:           mux,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		},
		ws: ws,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}

// Package api serves the message tree over HTTP with gin.
package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-go-golems/vizthinker/pkg/service"
	"github.com/rs/zerolog/log"
)

type Config struct {
	AllowedOrigins []string
	// StaticDir holds a built single page app. When set, /assets is served
	// from it and unknown GET routes fall back to its index.html.
	StaticDir string
}

type Server struct {
	svc    *service.ChatService
	engine *gin.Engine
}

func NewServer(svc *service.ChatService, cfg Config) *Server {
	engine := gin.New()
	engine.Use(RequestID(), RequestLogger(), Recovery())
	engine.Use(corsMiddleware(cfg.AllowedOrigins))

	s := &Server{svc: svc, engine: engine}
	s.routes()
	if cfg.StaticDir != "" {
		s.serveStatic(cfg.StaticDir)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	r := s.engine
	r.GET("/health", s.health)

	auth := r.Group("/auth")
	{
		auth.POST("/signup", s.signup)
		auth.POST("/login", s.login)
	}

	users := r.Group("/users/:user_id")
	{
		users.POST("/chats", s.createSession)
		users.GET("/chats", s.listSessions)
	}

	chats := r.Group("/chats/:chat_id")
	{
		chats.DELETE("", s.deleteSession)
		chats.POST("/chat", s.chat)
		chats.POST("/messages", s.createMessage)
		chats.GET("/messages", s.getMessages)
		chats.DELETE("/messages", s.deleteAllMessages)
		chats.POST("/positions", s.applyPositions)
		chats.GET("/export", s.exportSession)
	}

	messages := r.Group("/messages/:message_id")
	{
		messages.GET("/path", s.resolvePath)
		messages.DELETE("", s.deleteMessage)
	}

	r.POST("/settings/api-keys", s.updateAPIKeys)
}

func (s *Server) serveStatic(dir string) {
	s.engine.Static("/assets", filepath.Join(dir, "assets"))
	index := filepath.Join(dir, "index.html")
	s.engine.NoRoute(func(c *gin.Context) {
		if c.Request.Method != http.MethodGet || strings.HasPrefix(c.Request.URL.Path, "/assets/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		if _, err := os.Stat(index); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.File(index)
	})
	log.Info().Str("dir", dir).Msg("Serving static frontend")
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", RequestIDHeader},
		ExposeHeaders: []string{RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
		}
	}
	if !cfg.AllowAllOrigins {
		cfg.AllowOrigins = origins
		if len(origins) == 0 {
			cfg.AllowAllOrigins = true
		}
	}
	return cors.New(cfg)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

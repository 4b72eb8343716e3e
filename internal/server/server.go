package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/emilythestrangee/lireddit/backend/internal/database"
	"github.com/emilythestrangee/lireddit/backend/internal/handlers"
	"github.com/emilythestrangee/lireddit/backend/internal/loaders"
	"github.com/emilythestrangee/lireddit/backend/internal/middleware"
)

type Config struct {
	Address     string
	CORSOrigins []string
	CookieName  string
}

type Dependencies struct {
	Database     *database.Database
	Handler      *handlers.Handler
	Sessions     middleware.TokenValidator
	LoaderStore  loaders.Store
	LoaderConfig loaders.Config
	Logger       *zap.Logger
}

type Server struct {
	cfg     Config
	db      *database.Database
	handler *handlers.Handler
	deps    Dependencies
	logger  *zap.Logger
}

var defaultCORSOrigins = []string{"http://localhost:3000"}

// NewServer creates and configures a new server
func NewServer(cfg Config, deps Dependencies) (*http.Server, error) {
	newServer, err := New(cfg, deps)
	if err != nil {
		return nil, err
	}

	return &http.Server{
		Addr:         cfg.Address,
		Handler:      newServer.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}, nil
}

// New validates the dependencies without building the router.
func New(cfg Config, deps Dependencies) (*Server, error) {
	switch {
	case deps.Database == nil:
		return nil, errors.New("server: database required")
	case deps.Handler == nil:
		return nil, errors.New("server: handler required")
	case deps.Sessions == nil:
		return nil, errors.New("server: session validator required")
	case deps.LoaderStore == nil:
		return nil, errors.New("server: loader store required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "qid"
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = defaultCORSOrigins
	}
	return &Server{cfg: cfg, db: deps.Database, handler: deps.Handler, deps: deps, logger: logger}, nil
}

// RegisterRoutes sets up all application routes
func (s *Server) RegisterRoutes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(s.logger))

	// Credentials are allowed, so origins must be listed explicitly.
	r.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.Use(middleware.Session(s.deps.Sessions, s.cfg.CookieName, s.logger))
	r.Use(middleware.Loaders(s.deps.LoaderStore, s.deps.LoaderConfig))

	r.GET("/health", s.health)

	api := r.Group("/api")
	{
		api.GET("/health", s.health)

		// Auth routes (public)
		api.POST("/register", s.handler.Auth.Register)
		api.POST("/login", s.handler.Auth.Login)
		api.POST("/logout", s.handler.Auth.Logout)
		api.POST("/forgot-password", s.handler.Auth.ForgotPassword)
		api.POST("/change-password", s.handler.Auth.ChangePassword)
		api.GET("/me", s.handler.Auth.GetMe)

		// Post routes (public reads)
		api.GET("/posts", s.handler.Post.GetPosts)
		api.GET("/posts/:id", s.handler.Post.GetPost)

		protected := api.Group("")
		protected.Use(middleware.AuthMiddleware())
		{
			protected.POST("/posts", s.handler.Post.CreatePost)
			protected.PUT("/posts/:id", s.handler.Post.UpdatePost)
			protected.DELETE("/posts/:id", s.handler.Post.DeletePost)
			protected.POST("/posts/:id/vote", s.handler.Post.VotePost)
		}
	}

	return r
}

func (s *Server) health(c *gin.Context) {
	stats := s.db.Health(c.Request.Context())
	status := http.StatusOK
	if stats["status"] != "up" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, stats)
}

package handlers

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/emilythestrangee/lireddit/backend/internal/loaders"
	"github.com/emilythestrangee/lireddit/backend/internal/posts"
	"github.com/emilythestrangee/lireddit/backend/internal/users"
)

// SessionIssuer signs session tokens for logged in users.
type SessionIssuer interface {
	Issue(userID int) (string, time.Time, error)
}

type CookieConfig struct {
	Name   string
	Secure bool
}

type Dependencies struct {
	Users    *users.Service
	Posts    *posts.Service
	Votes    Voter
	Sessions SessionIssuer
	Cookie   CookieConfig
	// LoaderStore backs loaders for requests that arrive without them.
	LoaderStore  loaders.Store
	LoaderConfig loaders.Config
	Logger       *zap.Logger
}

// Handler combines all handler types
type Handler struct {
	Auth *AuthHandler
	Post *PostHandler
}

// NewHandler creates a unified handler with all sub-handlers
func NewHandler(deps Dependencies) (*Handler, error) {
	switch {
	case deps.Users == nil:
		return nil, errors.New("handlers: users service required")
	case deps.Posts == nil:
		return nil, errors.New("handlers: posts service required")
	case deps.Votes == nil:
		return nil, errors.New("handlers: vote engine required")
	case deps.Sessions == nil:
		return nil, errors.New("handlers: session issuer required")
	case deps.LoaderStore == nil:
		return nil, errors.New("handlers: loader store required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Cookie.Name == "" {
		deps.Cookie.Name = "qid"
	}

	return &Handler{
		Auth: NewAuthHandler(deps.Users, deps.Sessions, deps.Cookie, logger),
		Post: NewPostHandler(deps.Posts, deps.Votes, deps.LoaderStore, deps.LoaderConfig, logger),
	}, nil
}

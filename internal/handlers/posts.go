package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/emilythestrangee/lireddit/backend/internal/loaders"
	"github.com/emilythestrangee/lireddit/backend/internal/middleware"
	"github.com/emilythestrangee/lireddit/backend/internal/models"
	"github.com/emilythestrangee/lireddit/backend/internal/posts"
)

const defaultFeedLimit = 10

// Voter applies a vote and returns the post's committed point total.
type Voter interface {
	Vote(ctx context.Context, userID, postID int, direction posts.Direction) (int, error)
}

type PostHandler struct {
	posts       *posts.Service
	votes       Voter
	loaderStore loaders.Store
	loaderCfg   loaders.Config
	logger      *zap.Logger
}

func NewPostHandler(service *posts.Service, votes Voter, store loaders.Store, loaderCfg loaders.Config, logger *zap.Logger) *PostHandler {
	return &PostHandler{
		posts:       service,
		votes:       votes,
		loaderStore: store,
		loaderCfg:   loaderCfg,
		logger:      logger,
	}
}

type postResponse struct {
	ID          int          `json:"id"`
	Title       string       `json:"title"`
	Text        string       `json:"text"`
	TextSnippet string       `json:"text_snippet"`
	Points      int          `json:"points"`
	CreatorID   int          `json:"creator_id"`
	Creator     *models.User `json:"creator"`
	VoteStatus  *int         `json:"vote_status"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

type feedResponse struct {
	Posts   []postResponse `json:"posts"`
	HasMore bool           `json:"has_more"`
	Cursor  string         `json:"cursor,omitempty"`
}

func (h *PostHandler) loadersFor(ctx context.Context) *loaders.Loaders {
	if l := loaders.For(ctx); l != nil {
		return l
	}
	return loaders.New(h.loaderStore, h.loaderCfg)
}

// resolvePosts fills the creator and vote status of every post. All loads
// are queued before any is awaited so the page costs one query per loader.
func (h *PostHandler) resolvePosts(ctx context.Context, page []models.Post, viewerID int) ([]postResponse, error) {
	l := h.loadersFor(ctx)

	creators := make([]func() (*models.User, error), len(page))
	statuses := make([]func() (*int, error), len(page))
	for i, post := range page {
		creators[i] = l.LoadUser(ctx, post.CreatorID)
		statuses[i] = l.LoadVoteStatus(ctx, viewerID, post.ID)
	}

	responses := make([]postResponse, len(page))
	for i, post := range page {
		creator, err := creators[i]()
		if err != nil {
			return nil, err
		}
		status, err := statuses[i]()
		if err != nil {
			return nil, err
		}
		responses[i] = postResponse{
			ID:          post.ID,
			Title:       post.Title,
			Text:        post.Text,
			TextSnippet: posts.TextSnippet(post.Text),
			Points:      post.Points,
			CreatorID:   post.CreatorID,
			Creator:     creator,
			VoteStatus:  status,
			CreatedAt:   post.CreatedAt,
			UpdatedAt:   post.UpdatedAt,
		}
	}
	return responses, nil
}

func (h *PostHandler) resolvePost(c *gin.Context, status int, post *models.Post) {
	responses, err := h.resolvePosts(c.Request.Context(), []models.Post{*post}, middleware.CurrentUserID(c))
	if err != nil {
		h.logger.Error("failed to resolve post fields", zap.Int("post_id", post.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch post"})
		return
	}
	c.JSON(status, responses[0])
}

// GetPosts returns one page of the feed, newest first.
func (h *PostHandler) GetPosts(c *gin.Context) {
	limit := defaultFeedLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
			return
		}
		limit = parsed
	}

	page, err := h.posts.Feed(c.Request.Context(), limit, c.Query("cursor"))
	if errors.Is(err, posts.ErrInvalidCursor) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid cursor"})
		return
	}
	if err != nil {
		h.logger.Error("failed to load feed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch posts"})
		return
	}

	responses, err := h.resolvePosts(c.Request.Context(), page.Posts, middleware.CurrentUserID(c))
	if err != nil {
		h.logger.Error("failed to resolve feed fields", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch posts"})
		return
	}

	c.JSON(http.StatusOK, feedResponse{
		Posts:   responses,
		HasMore: page.HasMore,
		Cursor:  page.NextCursor,
	})
}

// GetPost returns a single post by ID, or null when it does not exist.
func (h *PostHandler) GetPost(c *gin.Context) {
	postID, ok := postIDParam(c)
	if !ok {
		return
	}

	post, err := h.posts.Get(c.Request.Context(), postID)
	if errors.Is(err, posts.ErrPostNotFound) {
		c.JSON(http.StatusOK, nil)
		return
	}
	if err != nil {
		h.logger.Error("failed to fetch post", zap.Int("post_id", postID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch post"})
		return
	}
	h.resolvePost(c, http.StatusOK, post)
}

// CreatePost creates a new post (PROTECTED - requires authentication)
func (h *PostHandler) CreatePost(c *gin.Context) {
	var input models.CreatePostRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Title is required"})
		return
	}

	post, err := h.posts.Create(c.Request.Context(), middleware.CurrentUserID(c), input.Title, input.Text)
	switch {
	case errors.Is(err, posts.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	case errors.Is(err, posts.ErrTitleRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Title is required"})
		return
	case err != nil:
		h.logger.Error("failed to create post", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create post"})
		return
	}
	h.resolvePost(c, http.StatusCreated, post)
}

// UpdatePost updates an existing post (PROTECTED - requires ownership)
func (h *PostHandler) UpdatePost(c *gin.Context) {
	postID, ok := postIDParam(c)
	if !ok {
		return
	}
	var input models.UpdatePostRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	post, err := h.posts.Update(c.Request.Context(), postID, middleware.CurrentUserID(c), input.Title, input.Text)
	switch {
	case errors.Is(err, posts.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	case errors.Is(err, posts.ErrTitleRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Title is required"})
		return
	case errors.Is(err, posts.ErrPostNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Post not found"})
		return
	case err != nil:
		h.logger.Error("failed to update post", zap.Int("post_id", postID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update post"})
		return
	}
	h.resolvePost(c, http.StatusOK, post)
}

// DeletePost deletes a post (PROTECTED - requires ownership)
func (h *PostHandler) DeletePost(c *gin.Context) {
	postID, ok := postIDParam(c)
	if !ok {
		return
	}

	deleted, err := h.posts.Delete(c.Request.Context(), postID, middleware.CurrentUserID(c))
	if errors.Is(err, posts.ErrUnauthorized) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete post"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// VotePost applies an up or down vote and returns the post's new total.
func (h *PostHandler) VotePost(c *gin.Context) {
	postID, ok := postIDParam(c)
	if !ok {
		return
	}
	var input models.VoteRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "value is required"})
		return
	}

	direction := posts.DirectionFromValue(*input.Value)
	points, err := h.votes.Vote(c.Request.Context(), middleware.CurrentUserID(c), postID, direction)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"points": points})
	case errors.Is(err, posts.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
	case errors.Is(err, posts.ErrPostNotFound):
		c.JSON(http.StatusNotFound, gin.H{"points": nil})
	case errors.Is(err, posts.ErrVoteConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "Vote conflicted with another change, try again"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to vote"})
	}
}

func postIDParam(c *gin.Context) (int, bool) {
	postID, err := strconv.Atoi(c.Param("id"))
	if err != nil || postID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid post id"})
		return 0, false
	}
	return postID, true
}

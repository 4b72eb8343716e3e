package posts

import "errors"

var (
	// ErrUnauthorized means the caller has no authenticated session.
	ErrUnauthorized = errors.New("posts: not authenticated")
	// ErrPostNotFound means the target post does not exist (or is not owned by the caller).
	ErrPostNotFound = errors.New("posts: post not found")
	// ErrVoteConflict means the vote transaction was rolled back because of a
	// concurrent change or a lost connection; nothing was applied.
	ErrVoteConflict  = errors.New("posts: vote conflicted with a concurrent change")
	ErrInvalidCursor = errors.New("posts: invalid cursor")
	ErrTitleRequired = errors.New("posts: title is required")
)

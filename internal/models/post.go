package models

import "time"

type Post struct {
	ID        int       `gorm:"primaryKey" json:"id"`
	Title     string    `gorm:"not null" json:"title"`
	Text      string    `gorm:"not null" json:"text"`
	Points    int       `gorm:"not null;default:0" json:"points"` // always Σ Vote.Value for this post
	CreatorID int       `gorm:"not null;index" json:"creator_id"`
	Creator   *User     `gorm:"foreignKey:CreatorID" json:"-"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CreatePostRequest struct {
	Title string `json:"title" binding:"required"`
	Text  string `json:"text"`
}

type UpdatePostRequest struct {
	Title *string `json:"title"`
	Text  *string `json:"text"`
}

type VoteRequest struct {
	Value *int `json:"value" binding:"required"`
}

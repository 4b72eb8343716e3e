package models

// Vote model - one user's directional vote on one post ("updoot").
// At most one row exists per (user, post) pair.
type Vote struct {
	UserID int   `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	PostID int   `gorm:"primaryKey;autoIncrement:false;index" json:"post_id"`
	Value  int   `gorm:"not null;check:chk_votes_value,value IN (-1, 1)" json:"value"`
	User   *User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Post   *Post `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE" json:"-"`
}

const (
	Upvote   = 1
	Downvote = -1
)

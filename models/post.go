package models

import "time"

// Post represents a blog post written by the administrator. Titles are
// unique across all posts; PublishedOn is the human-readable publication
// date assigned when the post is created ("January 02, 2006" style).
type Post struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	AuthorID    uint      `gorm:"index;not null" json:"author_id"`
	Title       string    `gorm:"size:250;not null;uniqueIndex" json:"title"`
	Subtitle    string    `gorm:"size:250" json:"subtitle"`
	Body        string    `gorm:"type:text;not null" json:"body"`
	ImageURL    string    `gorm:"size:512" json:"image_url"`
	PublishedOn string    `gorm:"size:64;not null" json:"published_on"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Author      User      `gorm:"foreignKey:AuthorID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"author"`
	Comments    []Comment `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"comments"`
}

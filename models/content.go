package models

import (
	"time"

	"gorm.io/gorm"
)

// Minimal content rows for the pieces of platform content the moderation
// jury can act on. The platform's own services own the full records; the
// engine only needs author, title and removal state.

type Post struct {
	gorm.Model
	AuthorUID uint64 `gorm:"column:author_uid;index;not null"`
	Title     string `gorm:"column:title"`
	Body      string `gorm:"column:body"`
}

func (Post) TableName() string {
	return "post"
}

type Offer struct {
	gorm.Model
	AuthorUID uint64 `gorm:"column:author_uid;index;not null"`
	Title     string `gorm:"column:title"`
	Hours     int64  `gorm:"column:hours"`
	Cancelled bool   `gorm:"column:cancelled;default:false"`
}

func (Offer) TableName() string {
	return "offer"
}

type CommunityEvent struct {
	gorm.Model
	AuthorUID uint64    `gorm:"column:author_uid;index;not null"`
	Title     string    `gorm:"column:title"`
	StartsAt  time.Time `gorm:"column:starts_at"`
	Cancelled bool      `gorm:"column:cancelled;default:false"`
}

func (CommunityEvent) TableName() string {
	return "community_event"
}

type TimebankEntry struct {
	gorm.Model
	FromUID   uint64 `gorm:"column:from_uid;index;not null"`
	ToUID     uint64 `gorm:"column:to_uid;index;not null"`
	Hours     int64  `gorm:"column:hours;not null"`
	Note      string `gorm:"column:note"`
	Cancelled bool   `gorm:"column:cancelled;default:false"`
}

func (TimebankEntry) TableName() string {
	return "timebank_entry"
}

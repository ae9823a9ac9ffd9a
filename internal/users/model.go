package users

import (
	"strings"
	"time"
)

// User captures a viewer authenticated through Twitch. VotedEntryID points
// at the voting entry the user currently backs; zero means no active vote.
type User struct {
	ID           uint      `gorm:"column:id;primaryKey;autoIncrement"`
	TwitchUserID string    `gorm:"column:twitch_user_id;size:64;uniqueIndex;not null"`
	Username     string    `gorm:"column:twitch_username;size:128"`
	IsAdmin      bool      `gorm:"column:is_admin;not null;default:false"`
	VotedEntryID uint      `gorm:"column:voted_entry_id;not null;default:0;index"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing viewer accounts.
func (User) TableName() string {
	return "users"
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}

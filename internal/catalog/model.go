package catalog

import "time"

// VotingEntry is a catalog item viewers can vote on. VoteCount accumulates
// since the last round reset; TotalVoteCount is all-time and only cleared
// explicitly. At most one entry carries SuperVoted at any time.
type VotingEntry struct {
	ID             uint      `gorm:"column:id;primaryKey;autoIncrement"`
	AppID          string    `gorm:"column:app_id;size:32"`
	Title          string    `gorm:"column:title;size:256;not null"`
	Cover          string    `gorm:"column:cover;size:512"`
	Header         string    `gorm:"column:header;size:512"`
	Description    string    `gorm:"column:description"`
	TrailerURL     string    `gorm:"column:trailer_url;size:512"`
	StoreURL       string    `gorm:"column:store_url;size:512"`
	IsActive       bool      `gorm:"column:is_active;not null;default:false"`
	VoteCount      int64     `gorm:"column:vote_count;not null;default:0"`
	TotalVoteCount int64     `gorm:"column:total_vote_count;not null;default:0"`
	SuperVoted     bool      `gorm:"column:super_voted;not null;default:false"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing entries under vote.
func (VotingEntry) TableName() string {
	return "voting_entries"
}

// GiveawayEntry is a catalog item gated behind a loyalty-point cost. Its row
// is removed exactly when the key is redeemed or an admin deletes it. The key
// must be unique across giveaway entries and redeemed keys collectively.
type GiveawayEntry struct {
	ID          uint      `gorm:"column:id;primaryKey;autoIncrement"`
	AppID       string    `gorm:"column:app_id;size:32"`
	Title       string    `gorm:"column:title;size:256;not null"`
	Cover       string    `gorm:"column:cover;size:512"`
	Header      string    `gorm:"column:header;size:512"`
	Description string    `gorm:"column:description"`
	TrailerURL  string    `gorm:"column:trailer_url;size:512"`
	StoreURL    string    `gorm:"column:store_url;size:512"`
	Cost        int64     `gorm:"column:cost;not null;default:0"`
	Key         string    `gorm:"column:game_key;size:128;uniqueIndex"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing giveaway entries.
func (GiveawayEntry) TableName() string {
	return "giveaway_entries"
}

// RedeemedKey is the historical record written when a giveaway entry is
// redeemed. It survives later user mutation and keeps a title snapshot.
type RedeemedKey struct {
	ID           uint      `gorm:"column:id;primaryKey;autoIncrement"`
	Title        string    `gorm:"column:title;size:256;not null"`
	Key          string    `gorm:"column:game_key;size:128;uniqueIndex;not null"`
	TwitchUserID string    `gorm:"column:twitch_user_id;size:64;not null;index"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName exposes the table backing redeemed keys.
func (RedeemedKey) TableName() string {
	return "redeemed_keys"
}

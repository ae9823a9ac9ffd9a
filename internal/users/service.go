package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/streamnight/nextup/internal/fault"
	"gorm.io/gorm"
)

const (
	opEnsure = "users.ensure"
	opLookup = "users.lookup"
)

// ServiceConfig describes the dependencies required for account resolution.
type ServiceConfig struct {
	Database *gorm.DB
	// BroadcasterID marks which Twitch account is granted the admin flag
	// on first sign-in.
	BroadcasterID string
	Clock         func() time.Time
}

// Service manages viewer accounts keyed by Twitch user id.
type Service struct {
	db            *gorm.DB
	broadcasterID string
	now           func() time.Time
}

// NewService constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		db:            cfg.Database,
		broadcasterID: normalize(cfg.BroadcasterID),
		now:           clock,
	}, nil
}

// Ensure upserts the account for a freshly authenticated Twitch identity and
// returns the stored row. Accounts are created on first sign-in and never
// deleted here; the broadcaster account is created with the admin flag set.
func (s *Service) Ensure(ctx context.Context, twitchUserID, username string) (User, error) {
	twitchUserID = normalize(twitchUserID)
	if twitchUserID == "" {
		return User{}, fault.New(fault.KindUnauthorized, opEnsure, "twitch user id required")
	}

	var user User
	err := s.db.WithContext(ctx).
		Where("twitch_user_id = ?", twitchUserID).
		First(&user).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user = User{
			TwitchUserID: twitchUserID,
			Username:     normalize(username),
			IsAdmin:      s.broadcasterID != "" && twitchUserID == s.broadcasterID,
		}
		if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
			return User{}, fault.Internal(opEnsure, err)
		}
		return user, nil
	}
	if err != nil {
		return User{}, fault.Internal(opEnsure, err)
	}

	if name := normalize(username); name != "" && name != user.Username {
		user.Username = name
		if err := s.db.WithContext(ctx).Model(&User{}).
			Where("twitch_user_id = ?", twitchUserID).
			Update("twitch_username", name).
			Error; err != nil {
			return User{}, fault.Internal(opEnsure, err)
		}
	}
	return user, nil
}

// Lookup fetches the account for a Twitch user id.
func (s *Service) Lookup(ctx context.Context, twitchUserID string) (User, error) {
	twitchUserID = normalize(twitchUserID)
	if twitchUserID == "" {
		return User{}, fault.New(fault.KindNotFound, opLookup, "twitch user id required")
	}

	var user User
	err := s.db.WithContext(ctx).
		Where("twitch_user_id = ?", twitchUserID).
		First(&user).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, fault.New(fault.KindNotFound, opLookup, "user not found")
	}
	if err != nil {
		return User{}, fault.Internal(opLookup, err)
	}
	return user, nil
}

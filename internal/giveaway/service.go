package giveaway

import (
	"context"
	"errors"
	"strings"

	"github.com/streamnight/nextup/internal/catalog"
	"github.com/streamnight/nextup/internal/fault"
	"github.com/streamnight/nextup/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opRedeem       = "giveaway.redeem"
	opAddEntry     = "giveaway.add_entry"
	opUpdateEntry  = "giveaway.update_entry"
	opDeleteEntry  = "giveaway.delete_entry"
	opEntryKey     = "giveaway.entry_key"
	opListEntries  = "giveaway.list_entries"
	opListRedeemed = "giveaway.list_redeemed"
	opUpdateKey    = "giveaway.update_redeemed_key"
	opDeleteKey    = "giveaway.delete_redeemed_key"
)

// Ledger is the slice of the remote points service the redemption machine
// needs. The debit runs after the local commit; the key is reserved before
// the spend is attempted, so a failed debit under-charges rather than
// risking a charge without a key.
type Ledger interface {
	Balance(ctx context.Context, username string) (int64, error)
	Debit(ctx context.Context, username string, amount int64) error
}

// GiveawayInput carries the editable fields of a giveaway entry. Key
// semantics: required on add, optional on edit (empty keeps the stored key).
type GiveawayInput struct {
	AppID        string
	Title        string
	Description  string
	TrailerURL   string
	StoreURL     string
	Cost         int64
	Key          string
	Cover        string
	Header       string
	RemoveCover  bool
	RemoveHeader bool
}

// ServiceConfig describes the dependencies of the redemption state machine.
type ServiceConfig struct {
	Database *gorm.DB
	Ledger   Ledger
	Logger   *zap.Logger
}

// Service implements key redemption and redeem-key administration.
type Service struct {
	db     *gorm.DB
	ledger Ledger
	logger *zap.Logger
}

// NewService constructs the redemption state machine.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errors.New("giveaway: database connection required")
	}
	if cfg.Ledger == nil {
		return nil, errors.New("giveaway: ledger client required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, ledger: cfg.Ledger, logger: logger}, nil
}

// Redemption is the outcome handed back to the viewer.
type Redemption struct {
	Title string `json:"title"`
	Key   string `json:"gameKey"`
}

// Redeem swaps a giveaway entry for a redeemed-key record. The entry row
// delete and the record insert are one transaction; whichever concurrent
// caller deletes the row wins, the loser observes NotFound. The ledger
// debit follows the commit.
func (s *Service) Redeem(ctx context.Context, twitchUserID string, entryID uint) (Redemption, error) {
	var account users.User
	err := s.db.WithContext(ctx).Where("twitch_user_id = ?", twitchUserID).Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Redemption{}, fault.New(fault.KindUnauthorized, opRedeem, "user not found")
	}
	if err != nil {
		return Redemption{}, fault.Internal(opRedeem, err)
	}

	var entry catalog.GiveawayEntry
	err = s.db.WithContext(ctx).Where("id = ?", entryID).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Redemption{}, fault.New(fault.KindNotFound, opRedeem, "entry not found")
	}
	if err != nil {
		return Redemption{}, fault.Internal(opRedeem, err)
	}

	balance, err := s.ledger.Balance(ctx, account.Username)
	if err != nil {
		return Redemption{}, fault.Internal(opRedeem, err)
	}
	if balance < entry.Cost {
		return Redemption{}, fault.New(fault.KindInsufficientFunds, opRedeem, "insufficient points")
	}

	redemption := Redemption{Title: entry.Title, Key: entry.Key}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ?", entryID).Delete(&catalog.GiveawayEntry{})
		if result.Error != nil {
			return fault.Internal(opRedeem, result.Error)
		}
		if result.RowsAffected == 0 {
			// Another redemption won the race since the pre-check.
			return fault.New(fault.KindNotFound, opRedeem, "entry not found")
		}
		record := catalog.RedeemedKey{
			Title:        entry.Title,
			Key:          entry.Key,
			TwitchUserID: twitchUserID,
		}
		if err := tx.Create(&record).Error; err != nil {
			return fault.Internal(opRedeem, err)
		}
		return nil
	})
	if txErr != nil {
		return Redemption{}, txErr
	}

	if entry.Cost > 0 {
		if err := s.ledger.Debit(ctx, account.Username, entry.Cost); err != nil {
			s.logger.Error("redemption debit failed after commit",
				zap.String("username", account.Username),
				zap.Int64("amount", entry.Cost),
				zap.Error(err))
		}
	}
	return redemption, nil
}

// AddEntry inserts a giveaway entry after checking its key against the
// unified key registry inside the insert transaction.
func (s *Service) AddEntry(ctx context.Context, input GiveawayInput) (catalog.GiveawayEntry, error) {
	key := strings.TrimSpace(input.Key)
	if key == "" {
		return catalog.GiveawayEntry{}, fault.New(fault.KindConflict, opAddEntry, "key required")
	}
	if input.Cost < 0 {
		return catalog.GiveawayEntry{}, fault.New(fault.KindConflict, opAddEntry, "cost must not be negative")
	}

	entry := catalog.GiveawayEntry{
		AppID:       input.AppID,
		Title:       input.Title,
		Cover:       input.Cover,
		Header:      input.Header,
		Description: input.Description,
		TrailerURL:  catalog.SecureURL(input.TrailerURL),
		StoreURL:    catalog.SecureURL(input.StoreURL),
		Cost:        input.Cost,
		Key:         key,
	}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inUse, err := keyInUse(tx, key, 0, 0)
		if err != nil {
			return fault.Internal(opAddEntry, err)
		}
		if inUse {
			return fault.New(fault.KindConflict, opAddEntry, "key already present")
		}
		if err := tx.Create(&entry).Error; err != nil {
			return fault.Internal(opAddEntry, err)
		}
		return nil
	})
	if txErr != nil {
		return catalog.GiveawayEntry{}, txErr
	}
	return entry, nil
}

// UpdateEntry edits a giveaway entry. A non-empty key is swapped after the
// registry check; an empty key leaves the stored key unchanged. It returns
// the previous row so the caller can retire replaced media.
func (s *Service) UpdateEntry(ctx context.Context, entryID uint, input GiveawayInput) (catalog.GiveawayEntry, error) {
	var previous catalog.GiveawayEntry
	key := strings.TrimSpace(input.Key)
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", entryID).
			Take(&previous).
			Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fault.New(fault.KindNotFound, opUpdateEntry, "entry not found")
		}
		if err != nil {
			return fault.Internal(opUpdateEntry, err)
		}

		if key != "" {
			inUse, err := keyInUse(tx, key, entryID, 0)
			if err != nil {
				return fault.Internal(opUpdateEntry, err)
			}
			if inUse {
				return fault.New(fault.KindConflict, opUpdateEntry, "key already present")
			}
		}

		updates := map[string]interface{}{
			"title":       input.Title,
			"description": input.Description,
			"trailer_url": catalog.SecureURL(input.TrailerURL),
			"store_url":   catalog.SecureURL(input.StoreURL),
			"cost":        input.Cost,
		}
		if key != "" {
			updates["game_key"] = key
		}
		switch {
		case input.RemoveCover:
			updates["cover"] = ""
		case input.Cover != "":
			updates["cover"] = input.Cover
		}
		switch {
		case input.RemoveHeader:
			updates["header"] = ""
		case input.Header != "":
			updates["header"] = input.Header
		}

		if err := tx.Model(&catalog.GiveawayEntry{}).Where("id = ?", entryID).Updates(updates).Error; err != nil {
			return fault.Internal(opUpdateEntry, err)
		}
		return nil
	})
	if txErr != nil {
		return catalog.GiveawayEntry{}, txErr
	}
	return previous, nil
}

// DeleteEntry removes a giveaway entry and returns the removed row so the
// caller can retire its media.
func (s *Service) DeleteEntry(ctx context.Context, entryID uint) (catalog.GiveawayEntry, error) {
	var removed catalog.GiveawayEntry
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", entryID).
			Take(&removed).
			Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fault.New(fault.KindNotFound, opDeleteEntry, "entry not found")
		}
		if err != nil {
			return fault.Internal(opDeleteEntry, err)
		}
		if err := tx.Where("id = ?", entryID).Delete(&catalog.GiveawayEntry{}).Error; err != nil {
			return fault.Internal(opDeleteEntry, err)
		}
		return nil
	})
	if txErr != nil {
		return catalog.GiveawayEntry{}, txErr
	}
	return removed, nil
}

// EntryKey exposes the stored key of a giveaway entry to admins.
func (s *Service) EntryKey(ctx context.Context, entryID uint) (string, error) {
	var entry catalog.GiveawayEntry
	err := s.db.WithContext(ctx).Where("id = ?", entryID).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && entry.Key == "") {
		return "", fault.New(fault.KindNotFound, opEntryKey, "key not found")
	}
	if err != nil {
		return "", fault.Internal(opEntryKey, err)
	}
	return entry.Key, nil
}

// ListEntries returns every giveaway entry.
func (s *Service) ListEntries(ctx context.Context) ([]catalog.GiveawayEntry, error) {
	var entries []catalog.GiveawayEntry
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&entries).Error; err != nil {
		return nil, fault.Internal(opListEntries, err)
	}
	return entries, nil
}

// RedeemedForUser lists the viewer's own redeemed keys.
func (s *Service) RedeemedForUser(ctx context.Context, twitchUserID string) ([]catalog.RedeemedKey, error) {
	var records []catalog.RedeemedKey
	if err := s.db.WithContext(ctx).
		Where("twitch_user_id = ?", twitchUserID).
		Order("id ASC").
		Find(&records).
		Error; err != nil {
		return nil, fault.Internal(opListRedeemed, err)
	}
	return records, nil
}

// RedeemedRecord is the admin view of a redeemed key joined with the
// owner's username.
type RedeemedRecord struct {
	ID       uint   `json:"id"`
	Username string `json:"twitchUsername"`
	Title    string `json:"title"`
	Key      string `json:"gameKey"`
}

// AllRedeemed lists every redeemed key with the owning viewer's username.
func (s *Service) AllRedeemed(ctx context.Context) ([]RedeemedRecord, error) {
	var records []RedeemedRecord
	err := s.db.WithContext(ctx).
		Table("redeemed_keys").
		Select("redeemed_keys.id AS id, users.twitch_username AS username, redeemed_keys.title AS title, redeemed_keys.game_key AS key").
		Joins("JOIN users ON users.twitch_user_id = redeemed_keys.twitch_user_id").
		Order("redeemed_keys.id ASC").
		Scan(&records).
		Error
	if err != nil {
		return nil, fault.Internal(opListRedeemed, err)
	}
	return records, nil
}

// UpdateRedeemedKey swaps the key on a historical record. Empty values keep
// the stored key; non-empty values pass the unified registry check.
func (s *Service) UpdateRedeemedKey(ctx context.Context, id uint, newKey string) error {
	newKey = strings.TrimSpace(newKey)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record catalog.RedeemedKey
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			Take(&record).
			Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fault.New(fault.KindNotFound, opUpdateKey, "key not found")
		}
		if err != nil {
			return fault.Internal(opUpdateKey, err)
		}
		if newKey == "" || newKey == record.Key {
			return nil
		}

		inUse, err := keyInUse(tx, newKey, 0, id)
		if err != nil {
			return fault.Internal(opUpdateKey, err)
		}
		if inUse {
			return fault.New(fault.KindConflict, opUpdateKey, "key already present")
		}
		if err := tx.Model(&catalog.RedeemedKey{}).Where("id = ?", id).Update("game_key", newKey).Error; err != nil {
			return fault.Internal(opUpdateKey, err)
		}
		return nil
	})
}

// DeleteRedeemedKey removes a historical record.
func (s *Service) DeleteRedeemedKey(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ?", id).Delete(&catalog.RedeemedKey{})
		if result.Error != nil {
			return fault.Internal(opDeleteKey, result.Error)
		}
		if result.RowsAffected == 0 {
			return fault.New(fault.KindNotFound, opDeleteKey, "key not found")
		}
		return nil
	})
}

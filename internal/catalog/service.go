package catalog

import (
	"context"
	"errors"

	"github.com/streamnight/nextup/internal/fault"
	"github.com/streamnight/nextup/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opAdd    = "catalog.add_entry"
	opUpdate = "catalog.update_entry"
	opDelete = "catalog.delete_entry"
	opGet    = "catalog.get_entry"
	opList   = "catalog.list_entries"
)

// VotingEntryInput carries the editable fields of an entry under vote.
// Cover and Header are media asset paths already persisted by the caller;
// empty values leave existing assets in place unless the Remove flag is set.
type VotingEntryInput struct {
	AppID        string
	Title        string
	Description  string
	TrailerURL   string
	StoreURL     string
	IsActive     bool
	Cover        string
	Header       string
	RemoveCover  bool
	RemoveHeader bool
}

// ServiceConfig describes the dependencies of the voting-entry catalog.
type ServiceConfig struct {
	Database *gorm.DB
	Logger   *zap.Logger
}

// Service implements admin CRUD over entries under vote. Vote counts on
// these rows are mutated only by the vote state machine.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewService constructs the catalog service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errors.New("catalog: database connection required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, logger: logger}, nil
}

// AddEntry inserts a new entry under vote with secured URLs.
func (s *Service) AddEntry(ctx context.Context, input VotingEntryInput) (VotingEntry, error) {
	entry := VotingEntry{
		AppID:       input.AppID,
		Title:       input.Title,
		Cover:       input.Cover,
		Header:      input.Header,
		Description: input.Description,
		TrailerURL:  SecureURL(input.TrailerURL),
		StoreURL:    SecureURL(input.StoreURL),
		IsActive:    input.IsActive,
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return VotingEntry{}, fault.Internal(opAdd, err)
	}
	return entry, nil
}

// UpdateEntry edits an entry under vote. The guard against editing the
// super-voted entry runs inside the same transaction as the update so a
// concurrent super-vote cannot slip past a pre-check.
// It returns the previous row so the caller can retire replaced media.
func (s *Service) UpdateEntry(ctx context.Context, entryID uint, input VotingEntryInput) (VotingEntry, error) {
	var previous VotingEntry
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", entryID).
			Take(&previous).
			Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fault.New(fault.KindNotFound, opUpdate, "entry not found")
		}
		if err != nil {
			return fault.Internal(opUpdate, err)
		}
		if previous.SuperVoted {
			return fault.New(fault.KindForbidden, opUpdate, "entry has been super voted")
		}

		updates := map[string]interface{}{
			"title":       input.Title,
			"description": input.Description,
			"trailer_url": SecureURL(input.TrailerURL),
			"store_url":   SecureURL(input.StoreURL),
			"is_active":   input.IsActive,
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

		if err := tx.Model(&VotingEntry{}).Where("id = ?", entryID).Updates(updates).Error; err != nil {
			return fault.Internal(opUpdate, err)
		}
		return nil
	})
	if txErr != nil {
		return VotingEntry{}, txErr
	}
	return previous, nil
}

// DeleteEntry removes an entry under vote and clears every viewer vote that
// pointed at it, atomically. The super-voted entry cannot be deleted.
// It returns the removed row so the caller can retire its media.
func (s *Service) DeleteEntry(ctx context.Context, entryID uint) (VotingEntry, error) {
	var removed VotingEntry
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", entryID).
			Take(&removed).
			Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fault.New(fault.KindNotFound, opDelete, "entry not found")
		}
		if err != nil {
			return fault.Internal(opDelete, err)
		}
		if removed.SuperVoted {
			return fault.New(fault.KindForbidden, opDelete, "entry has been super voted")
		}

		if err := tx.Model(&users.User{}).
			Where("voted_entry_id = ?", entryID).
			Update("voted_entry_id", 0).
			Error; err != nil {
			return fault.Internal(opDelete, err)
		}
		if err := tx.Where("id = ?", entryID).Delete(&VotingEntry{}).Error; err != nil {
			return fault.Internal(opDelete, err)
		}
		return nil
	})
	if txErr != nil {
		return VotingEntry{}, txErr
	}
	return removed, nil
}

// GetEntry fetches a single entry under vote.
func (s *Service) GetEntry(ctx context.Context, entryID uint) (VotingEntry, error) {
	var entry VotingEntry
	err := s.db.WithContext(ctx).Where("id = ?", entryID).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return VotingEntry{}, fault.New(fault.KindNotFound, opGet, "entry not found")
	}
	if err != nil {
		return VotingEntry{}, fault.Internal(opGet, err)
	}
	return entry, nil
}

// ListEntries returns entries under vote filtered by active flag when the
// filter is non-nil.
func (s *Service) ListEntries(ctx context.Context, active *bool) ([]VotingEntry, error) {
	query := s.db.WithContext(ctx).Order("id ASC")
	if active != nil {
		query = query.Where("is_active = ?", *active)
	}
	var entries []VotingEntry
	if err := query.Find(&entries).Error; err != nil {
		return nil, fault.Internal(opList, err)
	}
	return entries, nil
}

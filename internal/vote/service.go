package vote

import (
	"context"
	"errors"

	"github.com/streamnight/nextup/internal/catalog"
	"github.com/streamnight/nextup/internal/fault"
	"github.com/streamnight/nextup/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	opCast        = "vote.cast"
	opRemove      = "vote.remove"
	opSuper       = "vote.super"
	opResetRound  = "vote.reset_round"
	opResetCounts = "vote.reset_counts"
	opStatus      = "vote.status"
	opTallies     = "vote.tallies"
	opUserVote    = "vote.user_vote"
)

var noOpLogger = zap.NewNop()

// Ledger is the slice of the remote points service the vote machine needs.
// Debits happen after the local transaction commits and are never rolled
// back; a failed debit leaves the viewer with the vote and their points.
type Ledger interface {
	Balance(ctx context.Context, username string) (int64, error)
	Debit(ctx context.Context, username string, amount int64) error
}

// AssetRemover retires media assets of entries deleted during a round reset.
type AssetRemover interface {
	Remove(paths ...string)
}

// ServiceConfig describes the dependencies of the vote state machine.
type ServiceConfig struct {
	Database      *gorm.DB
	Ledger        Ledger
	Assets        AssetRemover
	SuperVoteCost int64
	Logger        *zap.Logger
}

// Service implements cast/remove/super-vote/reset against the store. The
// store is the single serialization point: every multi-row mutation runs in
// one transaction with row locks on the touched users and entries.
type Service struct {
	db            *gorm.DB
	ledger        Ledger
	assets        AssetRemover
	superVoteCost int64
	logger        *zap.Logger
}

// NewService constructs the vote state machine.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errors.New("vote: database connection required")
	}
	if cfg.Ledger == nil {
		return nil, errors.New("vote: ledger client required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{
		db:            cfg.Database,
		ledger:        cfg.Ledger,
		assets:        cfg.Assets,
		superVoteCost: cfg.SuperVoteCost,
		logger:        logger,
	}, nil
}

// CastOutcome reports whether a cast changed any state. Re-casting the same
// vote is modeled as success, not error.
type CastOutcome struct {
	Changed bool
}

// Cast points the viewer's single active vote at the given entry. The
// decrement of the previous entry, the increment of the target and the
// viewer row update commit as one unit or not at all.
func (s *Service) Cast(ctx context.Context, twitchUserID string, entryID uint) (CastOutcome, error) {
	outcome := CastOutcome{}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		enabled, err := votingEnabled(tx)
		if err != nil {
			return fault.Internal(opCast, err)
		}
		if !enabled {
			return fault.New(fault.KindForbidden, opCast, "voting is temporarily disabled")
		}

		var entry catalog.VotingEntry
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND is_active = ?", entryID, true).
			Take(&entry).
			Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fault.New(fault.KindNotFound, opCast, "entry is not active")
		}
		if err != nil {
			return fault.Internal(opCast, err)
		}

		user, err := lockUser(tx, twitchUserID)
		if err != nil {
			return faultFor(err, opCast)
		}

		if user.VotedEntryID == entryID {
			return nil
		}

		if user.VotedEntryID != 0 {
			if err := adjustCounts(tx, user.VotedEntryID, -1); err != nil {
				return fault.Internal(opCast, err)
			}
		}
		if err := adjustCounts(tx, entryID, +1); err != nil {
			return fault.Internal(opCast, err)
		}
		if err := setUserVote(tx, twitchUserID, entryID); err != nil {
			return fault.Internal(opCast, err)
		}
		outcome.Changed = true
		return nil
	})
	if txErr != nil {
		return CastOutcome{}, txErr
	}
	return outcome, nil
}

// Remove clears the viewer's active vote and decrements the entry it backed.
// A viewer without a vote gets a no-op success.
func (s *Service) Remove(ctx context.Context, twitchUserID string) (CastOutcome, error) {
	outcome := CastOutcome{}
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		enabled, err := votingEnabled(tx)
		if err != nil {
			return fault.Internal(opRemove, err)
		}
		if !enabled {
			return fault.New(fault.KindForbidden, opRemove, "voting is temporarily disabled")
		}

		user, err := lockUser(tx, twitchUserID)
		if err != nil {
			return faultFor(err, opRemove)
		}
		if user.VotedEntryID == 0 {
			return nil
		}

		if err := adjustCounts(tx, user.VotedEntryID, -1); err != nil {
			return fault.Internal(opRemove, err)
		}
		if err := setUserVote(tx, twitchUserID, 0); err != nil {
			return fault.Internal(opRemove, err)
		}
		outcome.Changed = true
		return nil
	})
	if txErr != nil {
		return CastOutcome{}, txErr
	}
	return outcome, nil
}

// Super locks in a winner: the viewer's vote moves to the entry, its counts
// increment, it is marked super-voted and voting closes, all in one
// transaction that re-checks the voting flag so two super-votes cannot both
// land. The ledger debit follows the commit and is best-effort.
func (s *Service) Super(ctx context.Context, twitchUserID string, entryID uint) error {
	if s.superVoteCost < 1 {
		return fault.New(fault.KindForbidden, opSuper, "super vote is currently disabled")
	}

	var account users.User
	if err := s.db.WithContext(ctx).Where("twitch_user_id = ?", twitchUserID).Take(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fault.New(fault.KindUnauthorized, opSuper, "user not found")
		}
		return fault.Internal(opSuper, err)
	}

	balance, err := s.ledger.Balance(ctx, account.Username)
	if err != nil {
		return fault.Internal(opSuper, err)
	}
	if balance < s.superVoteCost {
		return fault.New(fault.KindInsufficientFunds, opSuper, "insufficient points")
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		enabled, err := votingEnabled(tx)
		if err != nil {
			return fault.Internal(opSuper, err)
		}
		if !enabled {
			return fault.New(fault.KindForbidden, opSuper, "voting is temporarily disabled")
		}

		var entry catalog.VotingEntry
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", entryID).
			Take(&entry).
			Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fault.New(fault.KindNotFound, opSuper, "entry not found")
		}
		if err != nil {
			return fault.Internal(opSuper, err)
		}

		if err := setUserVote(tx, twitchUserID, entryID); err != nil {
			return fault.Internal(opSuper, err)
		}
		if err := tx.Model(&catalog.VotingEntry{}).
			Where("id = ?", entryID).
			Updates(map[string]interface{}{
				"vote_count":       gorm.Expr("vote_count + 1"),
				"total_vote_count": gorm.Expr("total_vote_count + 1"),
				"super_voted":      true,
			}).Error; err != nil {
			return fault.Internal(opSuper, err)
		}
		if err := setVotingEnabled(tx, false); err != nil {
			return fault.Internal(opSuper, err)
		}
		return nil
	})
	if txErr != nil {
		return txErr
	}

	if err := s.ledger.Debit(ctx, account.Username, s.superVoteCost); err != nil {
		s.logger.Error("super vote debit failed after commit",
			zap.String("username", account.Username),
			zap.Int64("amount", s.superVoteCost),
			zap.Error(err))
	}
	return nil
}

// ResetOutcome reports which phase of the round toggle ran.
type ResetOutcome struct {
	Closed   bool
	Reopened bool
}

// ResetRound toggles the round. With voting open it only closes voting,
// preserving every count. With voting closed it zeroes current counts,
// clears every viewer's vote, clears the super-voted marker, re-opens
// voting and optionally deletes the previous winner, all atomically.
func (s *Service) ResetRound(ctx context.Context, deleteEntryID uint) (ResetOutcome, error) {
	outcome := ResetOutcome{}
	var removed catalog.VotingEntry
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		enabled, err := votingEnabled(tx)
		if err != nil {
			return fault.Internal(opResetRound, err)
		}

		if enabled {
			if err := setVotingEnabled(tx, false); err != nil {
				return fault.Internal(opResetRound, err)
			}
			outcome.Closed = true
			return nil
		}

		if err := tx.Model(&users.User{}).
			Where("voted_entry_id <> ?", 0).
			Update("voted_entry_id", 0).
			Error; err != nil {
			return fault.Internal(opResetRound, err)
		}
		if err := tx.Model(&catalog.VotingEntry{}).
			Where("1 = 1").
			Updates(map[string]interface{}{"vote_count": 0, "super_voted": false}).
			Error; err != nil {
			return fault.Internal(opResetRound, err)
		}
		if deleteEntryID != 0 {
			err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
				Where("id = ?", deleteEntryID).
				Take(&removed).
				Error
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return fault.Internal(opResetRound, err)
			}
			if err == nil {
				if err := tx.Where("id = ?", deleteEntryID).Delete(&catalog.VotingEntry{}).Error; err != nil {
					return fault.Internal(opResetRound, err)
				}
			}
		}
		if err := setVotingEnabled(tx, true); err != nil {
			return fault.Internal(opResetRound, err)
		}
		outcome.Reopened = true
		return nil
	})
	if txErr != nil {
		return ResetOutcome{}, txErr
	}

	if removed.ID != 0 && s.assets != nil {
		s.assets.Remove(removed.Cover, removed.Header)
	}
	return outcome, nil
}

// ResetCounts zeroes the current count (and the cumulative count when
// requested) for one entry and clears every viewer vote pointing at it.
// The super-voted entry is protected.
func (s *Service) ResetCounts(ctx context.Context, entryID uint, resetCumulative bool) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry catalog.VotingEntry
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", entryID).
			Take(&entry).
			Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fault.New(fault.KindNotFound, opResetCounts, "entry not found")
		}
		if err != nil {
			return fault.Internal(opResetCounts, err)
		}
		if entry.SuperVoted {
			return fault.New(fault.KindForbidden, opResetCounts, "entry has been super voted")
		}

		updates := map[string]interface{}{"vote_count": 0}
		if resetCumulative {
			updates["total_vote_count"] = 0
		}
		if err := tx.Model(&catalog.VotingEntry{}).Where("id = ?", entryID).Updates(updates).Error; err != nil {
			return fault.Internal(opResetCounts, err)
		}
		if err := tx.Model(&users.User{}).
			Where("voted_entry_id = ?", entryID).
			Update("voted_entry_id", 0).
			Error; err != nil {
			return fault.Internal(opResetCounts, err)
		}
		return nil
	})
}

// Status reports the round state the front-end needs to render controls.
type Status struct {
	VotingEnabled bool  `json:"votingEnabled"`
	SuperVotedID  uint  `json:"superVotedID"`
	SuperVoteCost int64 `json:"superVoteCost"`
}

// Status reads the authoritative flag rows. Snapshot reads only.
func (s *Service) Status(ctx context.Context) (Status, error) {
	var flag GlobalFlag
	err := s.db.WithContext(ctx).Where("name = ?", FlagVotingEnabled).Take(&flag).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return Status{}, fault.Internal(opStatus, err)
	}

	var super catalog.VotingEntry
	superID := uint(0)
	err = s.db.WithContext(ctx).Where("super_voted = ?", true).Take(&super).Error
	if err == nil {
		superID = super.ID
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return Status{}, fault.Internal(opStatus, err)
	}

	return Status{
		VotingEnabled: flag.Value,
		SuperVotedID:  superID,
		SuperVoteCost: s.superVoteCost,
	}, nil
}

// Tally is the public per-entry count snapshot.
type Tally struct {
	EntryID        uint   `json:"entryID"`
	Title          string `json:"title"`
	VoteCount      int64  `json:"voteCount"`
	TotalVoteCount int64  `json:"totalVoteCount"`
}

// Tallies lists current and all-time counts for every entry under vote.
func (s *Service) Tallies(ctx context.Context) ([]Tally, error) {
	var entries []catalog.VotingEntry
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&entries).Error; err != nil {
		return nil, fault.Internal(opTallies, err)
	}
	tallies := make([]Tally, 0, len(entries))
	for _, entry := range entries {
		tallies = append(tallies, Tally{
			EntryID:        entry.ID,
			Title:          entry.Title,
			VoteCount:      entry.VoteCount,
			TotalVoteCount: entry.TotalVoteCount,
		})
	}
	return tallies, nil
}

// UserVote returns the entry id the viewer currently backs, zero when the
// viewer has no vote or no account yet.
func (s *Service) UserVote(ctx context.Context, twitchUserID string) (uint, error) {
	var account users.User
	err := s.db.WithContext(ctx).Where("twitch_user_id = ?", twitchUserID).Take(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fault.Internal(opUserVote, err)
	}
	return account.VotedEntryID, nil
}

func lockUser(tx *gorm.DB, twitchUserID string) (users.User, error) {
	var account users.User
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("twitch_user_id = ?", twitchUserID).
		Take(&account).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return users.User{}, gorm.ErrRecordNotFound
	}
	if err != nil {
		return users.User{}, err
	}
	return account, nil
}

func setUserVote(tx *gorm.DB, twitchUserID string, entryID uint) error {
	return tx.Model(&users.User{}).
		Where("twitch_user_id = ?", twitchUserID).
		Update("voted_entry_id", entryID).
		Error
}

func adjustCounts(tx *gorm.DB, entryID uint, delta int) error {
	return tx.Model(&catalog.VotingEntry{}).
		Where("id = ?", entryID).
		Updates(map[string]interface{}{
			"vote_count":       gorm.Expr("vote_count + ?", delta),
			"total_vote_count": gorm.Expr("total_vote_count + ?", delta),
		}).Error
}

func faultFor(err error, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fault.New(fault.KindUnauthorized, op, "user not found")
	}
	return fault.Internal(op, err)
}

package vote

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FlagVotingEnabled gates every vote mutation. It lives in the store, not in
// process memory, so multiple instances observe the same state; operations
// read it inside their own transaction.
const FlagVotingEnabled = "votingEnabled"

// GlobalFlag is a named boolean in the global_flags table.
type GlobalFlag struct {
	Name  string `gorm:"column:name;primaryKey;size:64"`
	Value bool   `gorm:"column:value;not null;default:false"`
}

// TableName exposes the table backing global flags.
func (GlobalFlag) TableName() string {
	return "global_flags"
}

// EnsureFlags seeds the voting flag row when absent. Voting starts open.
func EnsureFlags(db *gorm.DB) error {
	var flag GlobalFlag
	err := db.Where("name = ?", FlagVotingEnabled).First(&flag).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return db.Create(&GlobalFlag{Name: FlagVotingEnabled, Value: true}).Error
	}
	return err
}

// votingEnabled reads the flag under a row lock inside the caller's
// transaction so concurrent toggles serialize against vote mutations.
func votingEnabled(tx *gorm.DB) (bool, error) {
	var flag GlobalFlag
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("name = ?", FlagVotingEnabled).
		Take(&flag).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return flag.Value, nil
}

func setVotingEnabled(tx *gorm.DB, enabled bool) error {
	return tx.Model(&GlobalFlag{}).
		Where("name = ?", FlagVotingEnabled).
		Update("value", enabled).
		Error
}

package giveaway

import "gorm.io/gorm"

// keyInUse checks the unified key registry: a candidate key conflicts when
// it exists in giveaway_entries or redeemed_keys, excluding the row being
// edited in its own table. One query keeps the cross-table invariant in a
// single race window instead of two.
func keyInUse(tx *gorm.DB, key string, excludeEntryID, excludeRedeemedID uint) (bool, error) {
	var inUse bool
	err := tx.Raw(`
		SELECT EXISTS (
			SELECT 1 FROM giveaway_entries WHERE game_key = ? AND id <> ?
			UNION ALL
			SELECT 1 FROM redeemed_keys WHERE game_key = ? AND id <> ?
		)`, key, excludeEntryID, key, excludeRedeemedID).
		Scan(&inUse).
		Error
	if err != nil {
		return false, err
	}
	return inUse, nil
}

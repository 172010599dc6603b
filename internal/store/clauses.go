package store

import "gorm.io/gorm/clause"

// onConflictDoNothing makes a membership-edge insert idempotent without a
// round-trip existence check first.
func onConflictDoNothing() clause.OnConflict {
	return clause.OnConflict{DoNothing: true}
}

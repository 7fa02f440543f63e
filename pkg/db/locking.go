package db

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SkipLocked applies FOR UPDATE SKIP LOCKED on engines that support it.
// Concurrent actors then converge on disjoint rows instead of queuing on the
// same lock. SQLite serializes writers anyway, so the clause is omitted there.
func SkipLocked(tx *gorm.DB) *gorm.DB {
	if tx == nil || tx.Dialector == nil {
		return tx
	}
	switch tx.Dialector.Name() {
	case "postgres", "mysql":
		return tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	default:
		return tx
	}
}

package identifier

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

const (
	// PrefixHospital and PrefixBank seed human-readable request identifiers.
	PrefixHospital = "hops-"
	PrefixBank     = "bank-"

	suffixBytes = 3
	maxRetries  = 8
)

// Allocator mints transaction and request identifiers. Uniqueness of
// transaction IDs is verified against the transaction log inside the
// caller's transaction.
type Allocator struct{}

func New() *Allocator {
	return &Allocator{}
}

// TransactionID returns "<entityID>-<6 hex chars>", retrying on the
// rare suffix collision.
func (a *Allocator) TransactionID(ctx context.Context, tx *gorm.DB, entityID string) (string, error) {
	entityID = strings.TrimSpace(entityID)
	if entityID == "" {
		return "", fmt.Errorf("entity id is required")
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		suffix, err := randomSuffix()
		if err != nil {
			return "", err
		}
		candidate := entityID + "-" + suffix

		var exists int
		err = tx.WithContext(ctx).Raw(
			`SELECT 1 FROM transaction_logs WHERE transaction_id = ? LIMIT 1`,
			candidate,
		).Scan(&exists).Error
		if err != nil {
			return "", err
		}
		if exists == 0 {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("transaction id space exhausted for entity %s", entityID)
}

// RequestID returns the next "<prefix>NNNN" identifier based on how many
// distinct requests already carry the prefix. Two writers counting in
// parallel can mint the same identifier; the log tolerates that because
// request IDs group rows rather than key them. See DESIGN.md.
func (a *Allocator) RequestID(ctx context.Context, tx *gorm.DB, prefix string) (string, error) {
	var count int64
	err := tx.WithContext(ctx).Raw(
		`SELECT COUNT(DISTINCT request_id) FROM transaction_logs WHERE request_id LIKE ?`,
		prefix+"%",
	).Scan(&count).Error
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%04d", prefix, count+1), nil
}

func randomSuffix() (string, error) {
	buf := make([]byte, suffixBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random suffix: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

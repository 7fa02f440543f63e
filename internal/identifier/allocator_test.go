package identifier

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	logdomain "github.com/smallbiznis/bloodbridge/internal/translog/domain"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&logdomain.TransactionLog{}))
	return db
}

func TestTransactionIDFormat(t *testing.T) {
	db := newTestDB(t)
	allocator := New()

	id, err := allocator.TransactionID(context.Background(), db, "bank-001")
	require.NoError(t, err)

	require.True(t, strings.HasPrefix(id, "bank-001-"))
	suffix := strings.TrimPrefix(id, "bank-001-")
	assert.Len(t, suffix, 6)
	for _, r := range suffix {
		assert.Contains(t, "0123456789abcdef", string(r))
	}
}

func TestTransactionIDRequiresEntity(t *testing.T) {
	db := newTestDB(t)
	allocator := New()

	_, err := allocator.TransactionID(context.Background(), db, "  ")
	assert.Error(t, err)
}

func TestTransactionIDUnique(t *testing.T) {
	db := newTestDB(t)
	allocator := New()
	ctx := context.Background()

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		id, err := allocator.TransactionID(ctx, db, "hops-001")
		require.NoError(t, err)
		require.False(t, seen[id], "duplicate transaction id %s", id)
		seen[id] = true

		row := logdomain.TransactionLog{
			TransactionID:       id,
			RequestID:           "hops-0001",
			RequesterEntityType: logdomain.EntityHospital,
			RequesterEntityID:   "hops-001",
			Status:              logdomain.StatusOpen,
			RequestedAt:         time.Now().UTC(),
			RequestTo:           logdomain.AudienceBloodBank,
		}
		require.NoError(t, db.Create(&row).Error)
	}
}

func TestRequestIDSequence(t *testing.T) {
	db := newTestDB(t)
	allocator := New()
	ctx := context.Background()

	id, err := allocator.RequestID(ctx, db, PrefixHospital)
	require.NoError(t, err)
	assert.Equal(t, "hops-0001", id)

	// Rows of one request share its request_id; the counter is over
	// distinct requests, not rows.
	for i, reqID := range []string{"hops-0001", "hops-0001", "hops-0002"} {
		row := logdomain.TransactionLog{
			TransactionID:       fmt.Sprintf("hops-001-%06d", i),
			RequestID:           reqID,
			RequesterEntityType: logdomain.EntityHospital,
			RequesterEntityID:   "hops-001",
			Status:              logdomain.StatusOpen,
			RequestedAt:         time.Now().UTC(),
			RequestTo:           logdomain.AudienceBloodBank,
		}
		require.NoError(t, db.Create(&row).Error)
	}

	id, err = allocator.RequestID(ctx, db, PrefixHospital)
	require.NoError(t, err)
	assert.Equal(t, "hops-0003", id)

	id, err = allocator.RequestID(ctx, db, PrefixBank)
	require.NoError(t, err)
	assert.Equal(t, "bank-0001", id)
}

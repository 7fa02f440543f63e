package repository

import (
	"context"
	"strings"
	"time"

	"github.com/smallbiznis/bloodbridge/internal/translog/domain"
	pkgdb "github.com/smallbiznis/bloodbridge/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertRow(ctx context.Context, db *gorm.DB, row *domain.TransactionLog) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO transaction_logs (
			transaction_id, request_id, requester_entity_type, requester_entity_id,
			fulfilled_by_entity_type, fulfilled_by_entity_id, blood_type, component,
			level, units_requested, units_fulfilled, status, requested_at,
			completed_at, notes, request_to
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.TransactionID,
		row.RequestID,
		row.RequesterEntityType,
		row.RequesterEntityID,
		row.FulfilledByEntityType,
		row.FulfilledByEntityID,
		row.BloodType,
		row.Component,
		row.Level,
		row.UnitsRequested,
		row.UnitsFulfilled,
		row.Status,
		row.RequestedAt,
		row.CompletedAt,
		row.Notes,
		row.RequestTo,
	).Error
}

func (r *repo) RequestExists(ctx context.Context, db *gorm.DB, requestID string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM transaction_logs WHERE request_id = ?`,
		requestID,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// LockCurrentOpenRow claims the oldest OPEN row of the request. SKIP
// LOCKED makes concurrent claimers fall through to nil instead of
// queueing on the row lock.
func (r *repo) LockCurrentOpenRow(ctx context.Context, tx *gorm.DB, requestID string, audience string) (*domain.TransactionLog, error) {
	stmt := tx.WithContext(ctx).
		Model(&domain.TransactionLog{}).
		Where("request_id = ? AND status = ?", requestID, domain.StatusOpen)
	if audience != "" {
		stmt = stmt.Where("request_to = ?", audience)
	}
	stmt = pkgdb.SkipLocked(stmt).
		Order("requested_at ASC, transaction_id ASC").
		Limit(1)

	var row domain.TransactionLog
	if err := stmt.Find(&row).Error; err != nil {
		return nil, err
	}
	if strings.TrimSpace(row.TransactionID) == "" {
		return nil, nil
	}
	return &row, nil
}

func (r *repo) MarkFulfilled(ctx context.Context, tx *gorm.DB, transactionID, actorType, actorID string, units int64, completedAt time.Time) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE transaction_logs
		 SET status = ?, fulfilled_by_entity_type = ?, fulfilled_by_entity_id = ?,
		     units_fulfilled = ?, completed_at = ?
		 WHERE transaction_id = ?`,
		domain.StatusFulfilled,
		actorType,
		actorID,
		units,
		completedAt,
		transactionID,
	).Error
}

func (r *repo) MarkRejectedClosure(ctx context.Context, tx *gorm.DB, transactionID string, completedAt time.Time) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE transaction_logs
		 SET status = ?, completed_at = ?
		 WHERE transaction_id = ?`,
		domain.StatusRejected,
		completedAt,
		transactionID,
	).Error
}

func (r *repo) HasActorDecided(ctx context.Context, tx *gorm.DB, requestID, actorType, actorID string) (bool, error) {
	var count int64
	err := tx.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM transaction_logs
		 WHERE request_id = ?
		   AND fulfilled_by_entity_type = ?
		   AND fulfilled_by_entity_id = ?
		   AND status IN (?, ?)`,
		requestID,
		actorType,
		actorID,
		domain.StatusRejected,
		domain.StatusFulfilled,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) CountDistinctRejectingBanks(ctx context.Context, tx *gorm.DB, requestID string) (int64, error) {
	var count int64
	err := tx.WithContext(ctx).Raw(
		`SELECT COUNT(DISTINCT fulfilled_by_entity_id) FROM transaction_logs
		 WHERE request_id = ?
		   AND status = ?
		   AND fulfilled_by_entity_type = ?`,
		requestID,
		domain.StatusRejected,
		domain.EntityBloodBank,
	).Scan(&count).Error
	return count, err
}

// viewColumns selects one representative row per request. OPEN rows win
// over settled ones so a partially filled request still reads as open;
// otherwise the most recently completed row represents the request.
const viewColumns = `
	SELECT t.transaction_id, t.request_id, t.requester_entity_type, t.requester_entity_id,
	       o.name AS requester_name,
	       t.fulfilled_by_entity_type, t.fulfilled_by_entity_id,
	       t.blood_type, t.component, t.level, t.units_requested, t.units_fulfilled,
	       t.total_fulfilled, t.status, t.requested_at, t.completed_at, t.notes, t.request_to
	FROM (
		SELECT *,
		       ROW_NUMBER() OVER (
		           PARTITION BY request_id
		           ORDER BY CASE WHEN status = 'OPEN' THEN 0 ELSE 1 END ASC,
		                    COALESCE(completed_at, requested_at) DESC,
		                    transaction_id DESC
		       ) AS rn,
		       SUM(CASE WHEN status = 'FULFILLED' THEN COALESCE(units_fulfilled, 0) ELSE 0 END)
		           OVER (PARTITION BY request_id) AS total_fulfilled
		FROM transaction_logs
	) t
	LEFT JOIN organizations o ON o.org_id = t.requester_entity_id
	WHERE t.rn = 1`

func (r *repo) ListLatest(ctx context.Context, db *gorm.DB, filter domain.ListRequestFilter) ([]*domain.RequestView, error) {
	query := viewColumns
	args := []any{}

	if requester := strings.TrimSpace(filter.RequesterEntityID); requester != "" {
		query += ` AND t.requester_entity_id = ?`
		args = append(args, requester)
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		query += ` AND t.status = ?`
		args = append(args, strings.ToUpper(status))
	}
	if audience := strings.TrimSpace(filter.RequestTo); audience != "" {
		query += ` AND t.request_to = ?`
		args = append(args, audience)
	}
	if bloodType := strings.TrimSpace(filter.BloodType); bloodType != "" {
		query += ` AND t.blood_type = ?`
		args = append(args, bloodType)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		query += ` AND (t.request_id LIKE ? OR o.name LIKE ?)`
		pattern := "%" + search + "%"
		args = append(args, pattern, pattern)
	}
	query += ` ORDER BY t.requested_at DESC, t.transaction_id DESC`

	var views []*domain.RequestView
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&views).Error; err != nil {
		return nil, err
	}
	return views, nil
}

// ListOpenForBank returns the bank-facing queue: open bank-audience
// requests the bank neither raised nor already decided on, oldest first.
func (r *repo) ListOpenForBank(ctx context.Context, db *gorm.DB, bankOrgID string) ([]*domain.RequestView, error) {
	query := viewColumns + `
	  AND t.status = ?
	  AND t.request_to = ?
	  AND t.requester_entity_id <> ?
	  AND NOT EXISTS (
	      SELECT 1 FROM transaction_logs d
	      WHERE d.request_id = t.request_id
	        AND d.fulfilled_by_entity_type = ?
	        AND d.fulfilled_by_entity_id = ?
	        AND d.status IN (?, ?)
	  )
	  ORDER BY t.requested_at ASC, t.transaction_id ASC`

	var views []*domain.RequestView
	err := db.WithContext(ctx).Raw(query,
		domain.StatusOpen,
		domain.AudienceBloodBank,
		bankOrgID,
		domain.EntityBloodBank,
		bankOrgID,
		domain.StatusRejected,
		domain.StatusFulfilled,
	).Scan(&views).Error
	if err != nil {
		return nil, err
	}
	return views, nil
}

func (r *repo) ListFulfilledBy(ctx context.Context, db *gorm.DB, actorType, actorID string) ([]*domain.RequestView, error) {
	query := `
	SELECT t.transaction_id, t.request_id, t.requester_entity_type, t.requester_entity_id,
	       o.name AS requester_name,
	       t.fulfilled_by_entity_type, t.fulfilled_by_entity_id,
	       t.blood_type, t.component, t.level, t.units_requested, t.units_fulfilled,
	       COALESCE(t.units_fulfilled, 0) AS total_fulfilled,
	       t.status, t.requested_at, t.completed_at, t.notes, t.request_to
	FROM transaction_logs t
	LEFT JOIN organizations o ON o.org_id = t.requester_entity_id
	WHERE t.status = ?
	  AND t.fulfilled_by_entity_type = ?
	  AND t.fulfilled_by_entity_id = ?
	ORDER BY t.completed_at DESC, t.transaction_id DESC`

	var views []*domain.RequestView
	err := db.WithContext(ctx).Raw(query,
		domain.StatusFulfilled,
		actorType,
		actorID,
	).Scan(&views).Error
	if err != nil {
		return nil, err
	}
	return views, nil
}

// ListOpenForDonor applies the visibility rules: blood drives (level 2)
// show to level 2 and 3 donors with no blood-type restriction; donor
// emergencies (level 1) show to level 1 and 3 donors with a matching
// blood type.
func (r *repo) ListOpenForDonor(ctx context.Context, db *gorm.DB, donorID string) ([]*domain.RequestView, error) {
	query := viewColumns + `
	  AND t.status = ?
	  AND t.request_to = ?
	  AND EXISTS (
	      SELECT 1 FROM donors d
	      WHERE d.donor_id = ?
	        AND (
	            (t.level = ? AND d.level IN (?, ?))
	         OR (t.level = ? AND d.level IN (?, ?) AND t.blood_type = d.blood_type)
	        )
	  )
	  AND NOT EXISTS (
	      SELECT 1 FROM transaction_logs r
	      WHERE r.request_id = t.request_id
	        AND r.fulfilled_by_entity_type = ?
	        AND r.fulfilled_by_entity_id = ?
	        AND r.status IN (?, ?)
	  )
	  ORDER BY t.requested_at ASC, t.transaction_id ASC`

	var views []*domain.RequestView
	err := db.WithContext(ctx).Raw(query,
		domain.StatusOpen,
		domain.AudienceDonor,
		donorID,
		domain.LevelDrive,
		domain.LevelDrive,
		domain.LevelBoth,
		domain.LevelEmergency,
		domain.LevelEmergency,
		domain.LevelBoth,
		domain.EntityDonor,
		donorID,
		domain.StatusRejected,
		domain.StatusFulfilled,
	).Scan(&views).Error
	if err != nil {
		return nil, err
	}
	return views, nil
}

package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bloodbridge/pkg/db/pagination"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrInvalidAction    = errors.New("invalid_action")
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
)

const ActorTypeSystem = "system"

// AuditLog records one actor-visible action against the exchange.
type AuditLog struct {
	ID           snowflake.ID      `gorm:"column:id;primaryKey" json:"id"`
	ActorType    string            `gorm:"column:actor_type" json:"actor_type"`
	ActorID      *string           `gorm:"column:actor_id" json:"actor_id,omitempty"`
	Action       string            `gorm:"column:action" json:"action"`
	ResourceType string            `gorm:"column:resource_type" json:"resource_type"`
	ResourceID   *string           `gorm:"column:resource_id" json:"resource_id,omitempty"`
	Metadata     datatypes.JSONMap `gorm:"column:metadata" json:"metadata,omitempty"`
	IPAddress    *string           `gorm:"column:ip_address" json:"ip_address,omitempty"`
	UserAgent    *string           `gorm:"column:user_agent" json:"user_agent,omitempty"`
	CreatedAt    time.Time         `gorm:"column:created_at" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}

// Entry is the write-side view of an audit record. Context supplies the
// request ID, IP address and user agent.
type Entry struct {
	Action       string
	ResourceType string
	ResourceID   string
	ActorType    string
	ActorID      string
	Metadata     map[string]any
}

type AuditCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	Action       string
	ResourceType string
	ResourceID   string
	ActorType    string
	StartAt      *time.Time
	EndAt        *time.Time
	Cursor       *AuditCursor
	Limit        int
}

type ListAuditLogRequest struct {
	pagination.Pagination
	Action       string
	ResourceType string
	ResourceID   string
	ActorType    string
	StartAt      *time.Time
	EndAt        *time.Time
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*AuditLog, error)
}

type Service interface {
	// Record never fails the caller's operation; write errors are
	// logged and swallowed.
	Record(ctx context.Context, entry Entry)
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/smallbiznis/bloodbridge/internal/audit/domain"
	auditrepo "github.com/smallbiznis/bloodbridge/internal/audit/repository"
	auditservice "github.com/smallbiznis/bloodbridge/internal/audit/service"
	"github.com/smallbiznis/bloodbridge/internal/clock"
	"github.com/smallbiznis/bloodbridge/internal/inventory/domain"
	"github.com/smallbiznis/bloodbridge/internal/inventory/repository"
	"github.com/smallbiznis/bloodbridge/internal/observability/metrics"
	orgdomain "github.com/smallbiznis/bloodbridge/internal/organization/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (domain.Service, *gorm.DB, *clock.FakeClock) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&orgdomain.Organization{},
		&domain.InventoryRow{},
		&auditdomain.AuditLog{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	auditSvc := auditservice.NewService(auditservice.Params{
		DB:    db,
		Log:   log,
		GenID: node,
		Clock: clk,
		Repo:  auditrepo.Provide(),
	})
	m, err := metrics.New(noopmetric.NewMeterProvider())
	require.NoError(t, err)

	svc := New(Params{
		DB:      db,
		Node:    node,
		Clock:   clk,
		Log:     log,
		Repo:    repository.Provide(),
		Audit:   auditSvc,
		Metrics: m,
	})
	return svc, db, clk
}

func TestAdjustSetAndAdd(t *testing.T) {
	svc, _, clk := newTestService(t)
	ctx := context.Background()

	result, err := svc.Adjust(ctx, domain.AdjustRequest{
		OrgID:     "bank-001",
		BloodType: "o-",
		Component: "RBC",
		Action:    "set",
		Units:     10,
	})
	require.NoError(t, err)
	assert.Equal(t, "O-", result.BloodType)
	assert.Equal(t, "RBC", result.Component)
	assert.Equal(t, int64(10), result.Units)

	clk.Advance(time.Minute)
	result, err = svc.Adjust(ctx, domain.AdjustRequest{
		OrgID:     "bank-001",
		BloodType: "O-",
		Component: "rbc",
		Action:    "add",
		Units:     5,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(15), result.Units)
}

func TestAdjustRemoveClampsAtZero(t *testing.T) {
	svc, _, clk := newTestService(t)
	ctx := context.Background()

	_, err := svc.Adjust(ctx, domain.AdjustRequest{
		OrgID:     "bank-001",
		BloodType: "A+",
		Component: "plasma",
		Action:    "set",
		Units:     3,
	})
	require.NoError(t, err)

	clk.Advance(time.Minute)
	result, err := svc.Adjust(ctx, domain.AdjustRequest{
		OrgID:     "bank-001",
		BloodType: "A+",
		Component: "plasma",
		Action:    "remove",
		Units:     10,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.Units)
}

func TestAdjustDeleteZeroesStock(t *testing.T) {
	svc, _, clk := newTestService(t)
	ctx := context.Background()

	_, err := svc.Adjust(ctx, domain.AdjustRequest{
		OrgID:     "bank-001",
		BloodType: "B+",
		Component: "platelets",
		Action:    "set",
		Units:     7,
	})
	require.NoError(t, err)

	clk.Advance(time.Minute)
	result, err := svc.Adjust(ctx, domain.AdjustRequest{
		OrgID:     "bank-001",
		BloodType: "B+",
		Component: "platelets",
		Action:    "delete",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.Units)
}

func TestAdjustValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Adjust(ctx, domain.AdjustRequest{OrgID: "bank-001", BloodType: "Z+", Component: "rbc", Units: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidBloodType)

	_, err = svc.Adjust(ctx, domain.AdjustRequest{OrgID: "bank-001", BloodType: "A+", Component: "marrow", Units: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidComponent)

	_, err = svc.Adjust(ctx, domain.AdjustRequest{OrgID: "bank-001", BloodType: "A+", Component: "rbc", Units: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidUnits)

	_, err = svc.Adjust(ctx, domain.AdjustRequest{OrgID: "bank-001", BloodType: "A+", Component: "rbc", Action: "increment", Units: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidAction)

	_, err = svc.Adjust(ctx, domain.AdjustRequest{OrgID: " ", BloodType: "A+", Component: "rbc", Units: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidOrg)
}

func TestApplyDeltaClampsAtZero(t *testing.T) {
	svc, db, clk := newTestService(t)
	ctx := context.Background()

	_, err := svc.Adjust(ctx, domain.AdjustRequest{
		OrgID:     "bank-001",
		BloodType: "O+",
		Component: "whole",
		Action:    "set",
		Units:     2,
	})
	require.NoError(t, err)

	clk.Advance(time.Minute)
	err = db.Transaction(func(tx *gorm.DB) error {
		balance, err := svc.ApplyDelta(ctx, tx, "bank-001", "O+", "Whole", -5)
		require.NoError(t, err)
		assert.Equal(t, int64(0), balance)
		return nil
	})
	require.NoError(t, err)

	units, err := svc.CurrentUnits(ctx, db, "bank-001", "O+", "Whole")
	require.NoError(t, err)
	assert.Equal(t, int64(0), units)
}

func TestListCurrentReturnsLatestVersionOnly(t *testing.T) {
	svc, _, clk := newTestService(t)
	ctx := context.Background()

	for _, units := range []int64{5, 8, 2} {
		_, err := svc.Adjust(ctx, domain.AdjustRequest{
			OrgID:     "bank-001",
			BloodType: "AB-",
			Component: "rbc",
			Action:    "set",
			Units:     units,
		})
		require.NoError(t, err)
		clk.Advance(time.Minute)
	}

	stocks, err := svc.ListCurrent(ctx, domain.ListFilter{OrgID: "bank-001"})
	require.NoError(t, err)
	require.Len(t, stocks, 1)
	assert.Equal(t, int64(2), stocks[0].Units)
}

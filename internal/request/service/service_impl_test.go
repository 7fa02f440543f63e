package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/bloodbridge/internal/actor"
	auditdomain "github.com/smallbiznis/bloodbridge/internal/audit/domain"
	auditrepo "github.com/smallbiznis/bloodbridge/internal/audit/repository"
	auditservice "github.com/smallbiznis/bloodbridge/internal/audit/service"
	"github.com/smallbiznis/bloodbridge/internal/clock"
	donordomain "github.com/smallbiznis/bloodbridge/internal/donor/domain"
	donorrepo "github.com/smallbiznis/bloodbridge/internal/donor/repository"
	"github.com/smallbiznis/bloodbridge/internal/identifier"
	invdomain "github.com/smallbiznis/bloodbridge/internal/inventory/domain"
	invrepo "github.com/smallbiznis/bloodbridge/internal/inventory/repository"
	invservice "github.com/smallbiznis/bloodbridge/internal/inventory/service"
	"github.com/smallbiznis/bloodbridge/internal/observability/metrics"
	orgdomain "github.com/smallbiznis/bloodbridge/internal/organization/domain"
	orgrepo "github.com/smallbiznis/bloodbridge/internal/organization/repository"
	"github.com/smallbiznis/bloodbridge/internal/request/domain"
	logdomain "github.com/smallbiznis/bloodbridge/internal/translog/domain"
	logrepo "github.com/smallbiznis/bloodbridge/internal/translog/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type testEnv struct {
	db        *gorm.DB
	clk       *clock.FakeClock
	svc       domain.Service
	inventory invdomain.Service
	logs      logdomain.Repository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&orgdomain.Organization{},
		&donordomain.Donor{},
		&logdomain.TransactionLog{},
		&invdomain.InventoryRow{},
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

	invSvc := invservice.New(invservice.Params{
		DB:      db,
		Node:    node,
		Clock:   clk,
		Log:     log,
		Repo:    invrepo.Provide(),
		Audit:   auditSvc,
		Metrics: m,
	})

	logs := logrepo.Provide()
	svc := New(Params{
		DB:        db,
		Log:       log,
		Clock:     clk,
		Allocator: identifier.New(),
		Logs:      logs,
		Inventory: invSvc,
		Orgs:      orgrepo.Provide(),
		Donors:    donorrepo.Provide(),
		Audit:     auditSvc,
		Metrics:   m,
	})

	env := &testEnv{db: db, clk: clk, svc: svc, inventory: invSvc, logs: logs}
	env.seed(t)
	return env
}

func (e *testEnv) seed(t *testing.T) {
	t.Helper()
	now := e.clk.Now()
	orgs := []orgdomain.Organization{
		{OrgID: "hops-001", OrgType: orgdomain.OrgTypeHospital, Name: "St. Mary General", CreatedAt: now},
		{OrgID: "bank-001", OrgType: orgdomain.OrgTypeBloodBank, Name: "Central Blood Bank", CreatedAt: now},
		{OrgID: "bank-002", OrgType: orgdomain.OrgTypeBloodBank, Name: "Prairie Blood Services", CreatedAt: now},
	}
	require.NoError(t, e.db.Create(&orgs).Error)

	donors := []donordomain.Donor{
		{DonorID: "donor-001", FirstName: "Alice", LastName: "Nguyen", BloodType: "O-", Level: 3, CreatedAt: now},
		{DonorID: "donor-002", FirstName: "Marcus", LastName: "Webb", BloodType: "O-", Level: 1, CreatedAt: now},
	}
	require.NoError(t, e.db.Create(&donors).Error)
}

func (e *testEnv) stock(t *testing.T, orgID, bloodType, component string, units int64) {
	t.Helper()
	_, err := e.inventory.Adjust(context.Background(), invdomain.AdjustRequest{
		OrgID:     orgID,
		BloodType: bloodType,
		Component: component,
		Action:    invdomain.ActionSet,
		Units:     units,
	})
	require.NoError(t, err)
}

func (e *testEnv) units(t *testing.T, orgID, bloodType, component string) int64 {
	t.Helper()
	units, err := e.inventory.CurrentUnits(context.Background(), e.db, orgID, bloodType, component)
	require.NoError(t, err)
	return units
}

func hospitalCtx() context.Context {
	return actor.WithActor(context.Background(), actor.Actor{Role: actor.RoleHospital, OrgID: "hops-001"})
}

func bankCtx(orgID string) context.Context {
	return actor.WithActor(context.Background(), actor.Actor{Role: actor.RoleBloodBank, OrgID: orgID})
}

func donorCtx(donorID string) context.Context {
	return actor.WithActor(context.Background(), actor.Actor{Role: actor.RoleDonor, DonorID: donorID})
}

func (e *testEnv) openEmergency(t *testing.T, ctx context.Context, units int64, audience string) *domain.OpenResult {
	t.Helper()
	result, err := e.svc.OpenEmergency(ctx, domain.OpenEmergencyRequest{
		BloodType: "O-",
		Component: "rbc",
		Units:     units,
		RequestTo: audience,
	})
	require.NoError(t, err)
	return result
}

func TestOpenEmergency(t *testing.T) {
	env := newTestEnv(t)

	result := env.openEmergency(t, hospitalCtx(), 5, "")
	assert.Equal(t, "hops-0001", result.RequestID)
	assert.True(t, strings.HasPrefix(result.TransactionID, "hops-001-"))

	var row logdomain.TransactionLog
	require.NoError(t, env.db.First(&row, "transaction_id = ?", result.TransactionID).Error)
	assert.Equal(t, logdomain.StatusOpen, row.Status)
	assert.Equal(t, logdomain.AudienceBloodBank, row.RequestTo)
	assert.Equal(t, logdomain.LevelEmergency, row.Level)
	require.NotNil(t, row.UnitsRequested)
	assert.Equal(t, int64(5), *row.UnitsRequested)

	// A bank-raised request takes the bank prefix.
	result, err := env.svc.OpenEmergency(bankCtx("bank-001"), domain.OpenEmergencyRequest{
		BloodType: "A+",
		Component: "plasma",
		Units:     2,
	})
	require.NoError(t, err)
	assert.Equal(t, "bank-0001", result.RequestID)
}

func TestOpenEmergencyHospitalAudience(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.svc.OpenEmergency(bankCtx("bank-001"), domain.OpenEmergencyRequest{
		BloodType: "O-",
		Component: "rbc",
		Units:     2,
		RequestTo: logdomain.AudienceHospital,
	})
	require.NoError(t, err)

	var row logdomain.TransactionLog
	require.NoError(t, env.db.First(&row, "transaction_id = ?", result.TransactionID).Error)
	assert.Equal(t, logdomain.AudienceHospital, row.RequestTo)
	assert.Equal(t, logdomain.StatusOpen, row.Status)
}

func TestOpenEmergencyValidation(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.OpenEmergency(hospitalCtx(), domain.OpenEmergencyRequest{BloodType: "Z-", Component: "rbc", Units: 1})
	assert.ErrorIs(t, err, invdomain.ErrInvalidBloodType)

	_, err = env.svc.OpenEmergency(hospitalCtx(), domain.OpenEmergencyRequest{BloodType: "O-", Component: "rbc", Units: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidUnits)

	_, err = env.svc.OpenEmergency(hospitalCtx(), domain.OpenEmergencyRequest{BloodType: "O-", Component: "rbc", Units: 1, RequestTo: "Everyone"})
	assert.ErrorIs(t, err, domain.ErrInvalidAudience)

	_, err = env.svc.OpenEmergency(donorCtx("donor-001"), domain.OpenEmergencyRequest{BloodType: "O-", Component: "rbc", Units: 1})
	assert.ErrorIs(t, err, domain.ErrForbiddenRole)

	_, err = env.svc.OpenEmergency(context.Background(), domain.OpenEmergencyRequest{BloodType: "O-", Component: "rbc", Units: 1})
	assert.ErrorIs(t, err, domain.ErrMissingActor)
}

func TestBankAcceptFullFill(t *testing.T) {
	env := newTestEnv(t)
	env.stock(t, "bank-001", "O-", "rbc", 10)

	result := env.openEmergency(t, hospitalCtx(), 5, "")

	action, err := env.svc.BankAccept(bankCtx("bank-001"), domain.BankAcceptRequest{RequestID: result.RequestID})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeFulfilled, action.Outcome)
	assert.Equal(t, int64(5), action.UnitsFulfilled)

	assert.Equal(t, int64(5), env.units(t, "bank-001", "O-", "rbc"))

	var row logdomain.TransactionLog
	require.NoError(t, env.db.First(&row, "transaction_id = ?", result.TransactionID).Error)
	assert.Equal(t, logdomain.StatusFulfilled, row.Status)
	require.NotNil(t, row.FulfilledByEntityID)
	assert.Equal(t, "bank-001", *row.FulfilledByEntityID)
	require.NotNil(t, row.UnitsFulfilled)
	assert.Equal(t, int64(5), *row.UnitsFulfilled)
	require.NotNil(t, row.CompletedAt)
}

func TestBankAcceptPartialChain(t *testing.T) {
	env := newTestEnv(t)
	env.stock(t, "bank-001", "O-", "rbc", 3)
	env.stock(t, "bank-002", "O-", "rbc", 2)

	opened := env.openEmergency(t, hospitalCtx(), 5, "")
	openedAt := env.clk.Now()

	env.clk.Advance(time.Hour)
	first, err := env.svc.BankAccept(bankCtx("bank-001"), domain.BankAcceptRequest{RequestID: opened.RequestID})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomePartiallyFulfilled, first.Outcome)
	assert.Equal(t, int64(3), first.UnitsFulfilled)
	assert.Equal(t, int64(2), first.RemainingUnits)
	assert.Equal(t, int64(0), env.units(t, "bank-001", "O-", "rbc"))

	// The remainder row keeps the original requested_at and is the only
	// claimable row left.
	remainder, err := env.logs.LockCurrentOpenRow(context.Background(), env.db, opened.RequestID, logdomain.AudienceBloodBank)
	require.NoError(t, err)
	require.NotNil(t, remainder)
	assert.NotEqual(t, opened.TransactionID, remainder.TransactionID)
	assert.True(t, remainder.RequestedAt.Equal(openedAt))
	require.NotNil(t, remainder.UnitsRequested)
	assert.Equal(t, int64(2), *remainder.UnitsRequested)

	env.clk.Advance(time.Hour)
	second, err := env.svc.BankAccept(bankCtx("bank-002"), domain.BankAcceptRequest{RequestID: opened.RequestID})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeFulfilled, second.Outcome)
	assert.Equal(t, int64(2), second.UnitsFulfilled)
	assert.Equal(t, int64(0), env.units(t, "bank-002", "O-", "rbc"))

	views, err := env.logs.ListLatest(context.Background(), env.db, logdomain.ListRequestFilter{})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, logdomain.StatusFulfilled, views[0].Status)
	assert.Equal(t, int64(5), views[0].TotalFulfilled)
}

func TestBankAcceptRequestedFillCap(t *testing.T) {
	env := newTestEnv(t)
	env.stock(t, "bank-001", "O-", "rbc", 10)

	opened := env.openEmergency(t, hospitalCtx(), 5, "")

	fill := int64(2)
	action, err := env.svc.BankAccept(bankCtx("bank-001"), domain.BankAcceptRequest{RequestID: opened.RequestID, Units: &fill})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomePartiallyFulfilled, action.Outcome)
	assert.Equal(t, int64(2), action.UnitsFulfilled)
	assert.Equal(t, int64(3), action.RemainingUnits)
	assert.Equal(t, int64(8), env.units(t, "bank-001", "O-", "rbc"))
}

func TestBankAcceptEmptyShelfIsNoOp(t *testing.T) {
	env := newTestEnv(t)

	opened := env.openEmergency(t, hospitalCtx(), 5, "")

	action, err := env.svc.BankAccept(bankCtx("bank-001"), domain.BankAcceptRequest{RequestID: opened.RequestID})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeNoOp, action.Outcome)
	assert.Equal(t, opened.RequestID, action.RequestID)

	// Nothing was recorded, so the row is still claimable and the same
	// bank can come back once it has stock.
	open, err := env.logs.LockCurrentOpenRow(context.Background(), env.db, opened.RequestID, logdomain.AudienceBloodBank)
	require.NoError(t, err)
	require.NotNil(t, open)

	env.stock(t, "bank-001", "O-", "rbc", 10)
	retry, err := env.svc.BankAccept(bankCtx("bank-001"), domain.BankAcceptRequest{RequestID: opened.RequestID})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeFulfilled, retry.Outcome)
	assert.Equal(t, int64(5), retry.UnitsFulfilled)
}

func TestBankAcceptIdempotent(t *testing.T) {
	env := newTestEnv(t)
	env.stock(t, "bank-001", "O-", "rbc", 3)

	opened := env.openEmergency(t, hospitalCtx(), 5, "")

	first, err := env.svc.BankAccept(bankCtx("bank-001"), domain.BankAcceptRequest{RequestID: opened.RequestID})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomePartiallyFulfilled, first.Outcome)

	// The same bank cannot act twice even though the remainder is open.
	second, err := env.svc.BankAccept(bankCtx("bank-001"), domain.BankAcceptRequest{RequestID: opened.RequestID})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeNoOp, second.Outcome)
	assert.Equal(t, int64(0), env.units(t, "bank-001", "O-", "rbc"))
}

func TestBankAcceptErrors(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.BankAccept(bankCtx("bank-001"), domain.BankAcceptRequest{RequestID: "hops-9999"})
	assert.ErrorIs(t, err, domain.ErrRequestNotFound)

	_, err = env.svc.BankAccept(hospitalCtx(), domain.BankAcceptRequest{RequestID: "hops-0001"})
	assert.ErrorIs(t, err, domain.ErrForbiddenRole)

	bad := int64(0)
	_, err = env.svc.BankAccept(bankCtx("bank-001"), domain.BankAcceptRequest{RequestID: "hops-0001", Units: &bad})
	assert.ErrorIs(t, err, domain.ErrInvalidUnits)
}

func TestBankRejectAndGlobalClosure(t *testing.T) {
	env := newTestEnv(t)

	opened := env.openEmergency(t, hospitalCtx(), 5, "")

	first, err := env.svc.BankReject(bankCtx("bank-001"), domain.BankRejectRequest{RequestID: opened.RequestID, Note: "no stock"})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeRejected, first.Outcome)

	// One of two banks rejected: the request is still open.
	open, err := env.logs.LockCurrentOpenRow(context.Background(), env.db, opened.RequestID, logdomain.AudienceBloodBank)
	require.NoError(t, err)
	require.NotNil(t, open)

	again, err := env.svc.BankReject(bankCtx("bank-001"), domain.BankRejectRequest{RequestID: opened.RequestID})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeNoOp, again.Outcome)

	second, err := env.svc.BankReject(bankCtx("bank-002"), domain.BankRejectRequest{RequestID: opened.RequestID})
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeClosed, second.Outcome)

	open, err = env.logs.LockCurrentOpenRow(context.Background(), env.db, opened.RequestID, logdomain.AudienceBloodBank)
	require.NoError(t, err)
	assert.Nil(t, open)

	views, err := env.logs.ListLatest(context.Background(), env.db, logdomain.ListRequestFilter{})
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, logdomain.StatusRejected, views[0].Status)
}

func TestDonorAcceptExclusive(t *testing.T) {
	env := newTestEnv(t)

	opened := env.openEmergency(t, hospitalCtx(), 1, logdomain.AudienceDonor)

	action, err := env.svc.DonorAccept(donorCtx("donor-001"), opened.RequestID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeFulfilled, action.Outcome)
	assert.Equal(t, int64(1), action.UnitsFulfilled)

	// The row is settled; a second donor gets a conflict.
	_, err = env.svc.DonorAccept(donorCtx("donor-002"), opened.RequestID)
	assert.ErrorIs(t, err, domain.ErrConflict)

	// So does the winner retrying.
	_, err = env.svc.DonorAccept(donorCtx("donor-001"), opened.RequestID)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestDonorAcceptErrors(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.DonorAccept(donorCtx("donor-001"), "hops-9999")
	assert.ErrorIs(t, err, domain.ErrRequestNotFound)

	_, err = env.svc.DonorAccept(donorCtx("donor-unknown"), "hops-9999")
	assert.ErrorIs(t, err, domain.ErrUnknownDonor)

	_, err = env.svc.DonorAccept(bankCtx("bank-001"), "hops-0001")
	assert.ErrorIs(t, err, domain.ErrForbiddenRole)
}

func TestDonorReject(t *testing.T) {
	env := newTestEnv(t)

	opened := env.openEmergency(t, hospitalCtx(), 1, logdomain.AudienceDonor)

	action, err := env.svc.DonorReject(donorCtx("donor-001"), opened.RequestID, "travelling")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeRejected, action.Outcome)

	again, err := env.svc.DonorReject(donorCtx("donor-001"), opened.RequestID, "")
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeNoOp, again.Outcome)

	// Donor rejections never close the request.
	open, err := env.logs.LockCurrentOpenRow(context.Background(), env.db, opened.RequestID, logdomain.AudienceDonor)
	require.NoError(t, err)
	require.NotNil(t, open)

	// Another donor can still accept.
	accepted, err := env.svc.DonorAccept(donorCtx("donor-002"), opened.RequestID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeFulfilled, accepted.Outcome)
}

func TestOpenBloodDrive(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.svc.OpenBloodDrive(hospitalCtx(), domain.OpenBloodDriveRequest{
		Location:  "Springfield Community Center",
		DriveDate: time.Date(2026, 2, 14, 15, 30, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "hops-0001", result.RequestID)

	var row logdomain.TransactionLog
	require.NoError(t, env.db.First(&row, "transaction_id = ?", result.TransactionID).Error)
	assert.Equal(t, logdomain.StatusOpen, row.Status)
	assert.Equal(t, logdomain.AudienceDonor, row.RequestTo)
	assert.Equal(t, logdomain.LevelDrive, row.Level)
	assert.Nil(t, row.BloodType)
	assert.Nil(t, row.Component)
	assert.Nil(t, row.UnitsRequested)
	require.NotNil(t, row.Notes)
	assert.Equal(t, "Springfield Community Center", *row.Notes)
	// The drive date is stored at midnight UTC.
	assert.Equal(t, time.Date(2026, 2, 14, 0, 0, 0, 0, time.UTC), row.RequestedAt.UTC())
}

func TestOpenBloodDriveValidation(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.OpenBloodDrive(hospitalCtx(), domain.OpenBloodDriveRequest{DriveDate: time.Now()})
	assert.ErrorIs(t, err, domain.ErrMissingLocation)

	_, err = env.svc.OpenBloodDrive(hospitalCtx(), domain.OpenBloodDriveRequest{Location: "Town Hall"})
	assert.ErrorIs(t, err, domain.ErrInvalidDriveDate)

	_, err = env.svc.OpenBloodDrive(donorCtx("donor-001"), domain.OpenBloodDriveRequest{Location: "Town Hall", DriveDate: time.Now()})
	assert.ErrorIs(t, err, domain.ErrForbiddenRole)
}

package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"carepackage/internal/clock"
	"carepackage/internal/database"
	"carepackage/internal/lifecycle"
	"carepackage/internal/model"
	"carepackage/internal/repository"
	"carepackage/internal/service"
	"carepackage/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var now = time.Date(2024, time.March, 10, 9, 30, 0, 0, time.UTC)

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) Publish(event string, _ map[string]interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) Events() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

type failingAudits struct {
	repository.AuditRepository
}

func (failingAudits) Log(context.Context, *model.AuditLog) error {
	return errors.New("audit store unavailable")
}

type harness struct {
	deps      service.Deps
	referrals service.ReferralService
	elements  service.ElementService
	notifier  *recordingNotifier

	homeCare    *model.ElementType
	residential *model.ElementType
	admin       *model.User
	broker      *model.User
	approver    *model.User
	lowApprover *model.User
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=1"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	db := newTestDB(t)

	h := &harness{notifier: &recordingNotifier{}}
	h.deps = service.Deps{
		Referrals: repository.NewReferralRepository(db),
		Elements:  repository.NewElementRepository(db),
		Lookups:   repository.NewLookupRepository(db),
		Users:     repository.NewUserRepository(db),
		Audits:    repository.NewAuditRepository(db),
		Tx:        repository.NewTransactionManager(db),
		Clock:     clock.Fixed{At: now},
		Notifier:  h.notifier,
		Log:       logger.Nop(),
	}
	h.referrals = service.NewReferralService(h.deps)
	h.elements = service.NewElementService(h.deps)

	h.homeCare = &model.ElementType{Name: "Home care", CostType: model.CostTypeWeekly, PaymentOperation: model.PaymentAdd}
	h.residential = &model.ElementType{Name: "Residential", CostType: model.CostTypeWeekly, PaymentOperation: model.PaymentAdd, IsResidential: true}
	require.NoError(t, h.deps.Lookups.CreateElementType(ctx, h.homeCare))
	require.NoError(t, h.deps.Lookups.CreateElementType(ctx, h.residential))

	h.admin = h.user(t, "admin@x.org", model.RoleAdmin, nil)
	h.broker = h.user(t, "broker@x.org", model.RoleBroker, nil)
	limit := decimal.NewFromInt(10000)
	h.approver = h.user(t, "approver@x.org", model.RoleApprover, &limit)
	low := decimal.NewFromInt(1000)
	h.lowApprover = h.user(t, "low@x.org", model.RoleApprover, &low)
	return h
}

func (h *harness) user(t *testing.T, email, role string, limit *decimal.Decimal) *model.User {
	t.Helper()
	u := &model.User{Name: email, Email: email, Password: "x", Role: role}
	if limit != nil {
		u.ApprovalLimit = decimal.NewNullDecimal(*limit)
	}
	require.NoError(t, h.deps.Users.Create(context.Background(), u))
	return u
}

func actorOf(u *model.User) lifecycle.Actor {
	return lifecycle.Actor{ID: u.ID, Email: u.Email}
}

// inProgress creates a referral for the client and has the broker start it.
func (h *harness) inProgress(t *testing.T, socialCareID string) *service.ReferralResponse {
	t.Helper()
	ctx := context.Background()
	ref, err := h.referrals.CreateReferral(ctx, service.CreateReferralRequest{SocialCareID: socialCareID, ResidentName: "Jo Bloggs"})
	require.NoError(t, err)
	_, err = h.referrals.AssignBroker(ctx, actorOf(h.admin), ref.ID, service.AssignBrokerRequest{BrokerEmail: h.broker.Email})
	require.NoError(t, err)
	ref, err = h.referrals.Start(ctx, actorOf(h.broker), ref.ID)
	require.NoError(t, err)
	return ref
}

func (h *harness) addElement(t *testing.T, referralID uint, start string, cost int64) *service.ReferralResponse {
	t.Helper()
	ref, err := h.elements.Create(context.Background(), actorOf(h.broker), referralID, service.ElementRequest{
		ElementTypeID: h.homeCare.ID,
		StartDate:     start,
		Cost:          decimal.NewFromInt(cost),
	})
	require.NoError(t, err)
	return ref
}

func (h *harness) submit(t *testing.T, referralID uint) {
	t.Helper()
	_, err := h.referrals.AssignApprover(context.Background(), actorOf(h.broker), referralID, service.AssignApproverRequest{ApproverEmail: h.approver.Email})
	require.NoError(t, err)
}

// approvedPackage runs a package with one weekly element through approval.
func (h *harness) approvedPackage(t *testing.T, socialCareID, start string) *service.ReferralResponse {
	t.Helper()
	ref := h.inProgress(t, socialCareID)
	h.addElement(t, ref.ID, start, 100)
	h.submit(t, ref.ID)
	ref, err := h.referrals.Approve(context.Background(), actorOf(h.approver), ref.ID)
	require.NoError(t, err)
	return ref
}

func (h *harness) auditActions(t *testing.T, socialCareID string) []string {
	t.Helper()
	logs, _, err := h.deps.Audits.List(context.Background(), repository.AuditFilter{SocialCareID: socialCareID, Page: 1, Limit: 100})
	require.NoError(t, err)
	actions := make([]string, 0, len(logs))
	for _, l := range logs {
		actions = append(actions, l.Action)
	}
	return actions
}

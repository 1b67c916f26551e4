package lifecycle

import (
	"testing"

	"carepackage/internal/model"
	"carepackage/pkg/apperror"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssignBroker(t *testing.T) {
	ref := referral(model.ReferralUnassigned)
	ref.AssignedBrokerEmail = nil
	broker := &model.User{Email: "a@x.org", Role: model.RoleBroker}

	_, err := AssignBroker(ref, nil, now)
	assertKind(t, err, apperror.ErrNotFound)

	ev, err := AssignBroker(ref, broker, now)
	require.NoError(t, err)
	assert.Equal(t, model.ReferralAssigned, ref.Status)
	assert.Equal(t, "a@x.org", *ref.AssignedBrokerEmail)
	assert.Equal(t, model.EventReferralBrokerAssignment, ev.Kind)

	_, err = AssignBroker(ref, broker, now)
	assertKind(t, err, apperror.ErrInvalidState)
}

func TestReassignBroker(t *testing.T) {
	ref := referral(model.ReferralAssigned)

	ev, err := ReassignBroker(ref, &model.User{Email: "c@x.org"}, now)
	require.NoError(t, err)
	assert.Equal(t, "c@x.org", *ref.AssignedBrokerEmail)
	assert.Equal(t, model.ReferralAssigned, ref.Status)
	assert.Equal(t, "a@x.org", ev.Metadata["previous_broker"])

	ref.Status = model.ReferralInProgress
	_, err = ReassignBroker(ref, &model.User{Email: "d@x.org"}, now)
	assertKind(t, err, apperror.ErrInvalidState)
	assert.Equal(t, "c@x.org", *ref.AssignedBrokerEmail)
}

func TestStart(t *testing.T) {
	ref := referral(model.ReferralAssigned)

	ev, err := Start(ref, brokerA, now)
	require.NoError(t, err)

	assert.Equal(t, uint(1234), ref.ID)
	assert.Equal(t, model.ReferralInProgress, ref.Status)
	require.NotNil(t, ref.StartedAt)
	assert.Equal(t, now, *ref.StartedAt)
	assert.Equal(t, model.EventReferralStarted, ev.Kind)
}

func TestStart_WrongBroker(t *testing.T) {
	ref := referral(model.ReferralAssigned)

	_, err := Start(ref, brokerB, now)

	assertKind(t, err, apperror.ErrForbidden)
	assert.EqualError(t, err, "Referral is not assigned to b@x.org")
	assert.Equal(t, model.ReferralAssigned, ref.Status)
	assert.Nil(t, ref.StartedAt)
}

func TestStart_WrongStatus(t *testing.T) {
	ref := referral(model.ReferralUnassigned)
	_, err := Start(ref, brokerA, now)
	assertKind(t, err, apperror.ErrInvalidState)
}

func TestAssignApprover(t *testing.T) {
	pending := element(10, model.ElementInProgress, day(1), nil)
	carried := element(11, model.ElementApproved, day(-30), nil)
	ref := referral(model.ReferralInProgress, pending, carried)
	cost := decimal.NewFromInt(10400)

	ev, err := AssignApprover(ref, brokerA, approver(10400), cost, now)
	require.NoError(t, err)

	assert.Equal(t, model.ReferralAwaitingApproval, ref.Status)
	assert.Equal(t, "approver@x.org", *ref.AssignedApproverEmail)
	assert.Equal(t, "a@x.org", *ref.AssignedBrokerEmail, "broker assignment is kept")
	assert.Equal(t, model.ElementAwaitingApproval, pending.InternalStatus)
	assert.Equal(t, model.ElementApproved, carried.InternalStatus)
	assert.Equal(t, model.EventBudgetApproverAssigned, ev.Kind)
	assert.Equal(t, "10400.00", ev.Metadata["estimated_yearly_cost"])
}

func TestAssignApprover_ErrorOrder(t *testing.T) {
	cost := decimal.NewFromInt(10400)

	tests := []struct {
		name     string
		status   model.ReferralStatus
		actor    Actor
		approver *model.User
		want     error
	}{
		{"missing approver wins", model.ReferralAssigned, brokerB, nil, apperror.ErrNotFound},
		{"state before broker", model.ReferralAssigned, brokerB, approver(1), apperror.ErrInvalidState},
		{"broker before limit", model.ReferralInProgress, brokerB, approver(1), apperror.ErrForbidden},
		{"limit too low", model.ReferralInProgress, brokerA, approver(10399), apperror.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			el := element(10, model.ElementInProgress, day(1), nil)
			ref := referral(tt.status, el)

			_, err := AssignApprover(ref, tt.actor, tt.approver, cost, now)
			assertKind(t, err, tt.want)
			assert.Equal(t, tt.status, ref.Status)
			assert.Nil(t, ref.AssignedApproverEmail)
			assert.Equal(t, model.ElementInProgress, el.InternalStatus)
		})
	}
}

func TestEndReferral(t *testing.T) {
	a := element(10, model.ElementApproved, day(-30), nil)
	b := element(11, model.ElementApproved, day(-30), dayPtr(20))
	ended := element(12, model.ElementApproved, day(-60), dayPtr(-10))
	ref := referral(model.ReferralApproved, a, b, ended)

	events, err := EndReferral(ref, day(14), str("moved away"), today, now)
	require.NoError(t, err)

	assert.Equal(t, day(14), *a.EndDate)
	assert.Equal(t, day(14), *b.EndDate)
	assert.Equal(t, day(-10), *ended.EndDate, "already ended elements are left alone")
	assert.Equal(t, model.ReferralApproved, ref.Status)
	assert.Equal(t, now, ref.UpdatedAt)
	assert.Equal(t, []string{model.EventElementEnded, model.EventElementEnded, model.EventCarePackageEnded}, eventKinds(events))
}

func TestEndReferral_AllOrNothing(t *testing.T) {
	a := element(10, model.ElementApproved, day(-30), nil)
	b := element(11, model.ElementApproved, day(-30), dayPtr(5))
	ref := referral(model.ReferralApproved, a, b)

	_, err := EndReferral(ref, day(14), nil, today, now)
	assertKind(t, err, apperror.ErrValidation)
	assert.Nil(t, a.EndDate, "no element is ended when one fails")
	assert.Equal(t, day(5), *b.EndDate)
}

func TestEndReferral_IncludesElementNotYetStarted(t *testing.T) {
	running := element(10, model.ElementApproved, day(-30), nil)
	upcoming := element(11, model.ElementApproved, day(20), nil)
	ref := referral(model.ReferralApproved, running, upcoming)

	events, err := EndReferral(ref, day(0), nil, today, now)
	require.NoError(t, err)

	assert.Equal(t, day(0), *running.EndDate)
	assert.Equal(t, day(0), *upcoming.EndDate)
	assert.Equal(t, model.ElementStatusEnded, upcoming.Status(day(20), nil))
	assert.Equal(t, []string{model.EventElementEnded, model.EventElementEnded, model.EventCarePackageEnded}, eventKinds(events))
}

func TestEndReferral_RequiresApproved(t *testing.T) {
	ref := referral(model.ReferralInProgress, element(10, model.ElementApproved, day(-30), nil))
	_, err := EndReferral(ref, day(14), nil, today, now)
	assertKind(t, err, apperror.ErrInvalidState)
}

func TestCancelReferral(t *testing.T) {
	a := element(10, model.ElementApproved, day(-30), nil)
	b := element(11, model.ElementApproved, day(5), nil)
	ref := referral(model.ReferralApproved, a, b)

	events, err := CancelReferral(ref, str("client declined"), today, now)
	require.NoError(t, err)

	assert.Equal(t, model.ElementCancelled, a.InternalStatus)
	assert.Equal(t, model.ElementCancelled, b.InternalStatus)
	assert.Equal(t, model.ReferralCancelled, ref.Status)
	assert.Equal(t, "client declined", *ref.Comment)
	assert.Len(t, events, 3)
}

func TestSuspendReferral(t *testing.T) {
	a := element(10, model.ElementApproved, day(-30), nil)
	b := element(11, model.ElementApproved, day(-20), nil)
	ref := referral(model.ReferralApproved, a, b)

	created, events, err := SuspendReferral(ref, day(0), dayPtr(7), nil, today, now)
	require.NoError(t, err)

	require.Len(t, created, 2)
	assert.Len(t, ref.ReferralElements, 4)
	graph := ref.Graph()
	assert.Equal(t, model.ElementStatusSuspended, graph.StatusOf(a, today))
	assert.Equal(t, model.ElementStatusSuspended, graph.StatusOf(b, today))
	assert.Equal(t, model.EventCarePackageSuspended, events[len(events)-1].Kind)
	assert.Equal(t, "2024-03-17", events[len(events)-1].Metadata["end_date"])
}

func TestSuspendReferral_Validation(t *testing.T) {
	a := element(10, model.ElementApproved, day(-30), nil)
	ref := referral(model.ReferralApproved, a)

	_, _, err := SuspendReferral(ref, day(5), dayPtr(4), nil, today, now)
	assertKind(t, err, apperror.ErrValidation)
	assert.Len(t, ref.ReferralElements, 1)
}

func TestSuspendReferral_IncludesElementNotYetStarted(t *testing.T) {
	running := element(10, model.ElementApproved, day(-30), nil)
	upcoming := element(11, model.ElementApproved, day(20), nil)
	ref := referral(model.ReferralApproved, running, upcoming)

	created, events, err := SuspendReferral(ref, day(0), dayPtr(40), nil, today, now)
	require.NoError(t, err)

	require.Len(t, created, 2)
	assert.Equal(t, uint(10), *created[0].SuspendedElementID)
	assert.Equal(t, uint(11), *created[1].SuspendedElementID)
	graph := ref.Graph()
	assert.Equal(t, model.ElementStatusSuspended, graph.StatusOf(running, today))
	assert.Equal(t, model.ElementStatusSuspended, graph.StatusOf(upcoming, day(25)))
	assert.Equal(t, model.EventCarePackageSuspended, events[len(events)-1].Kind)
}

func TestArchive(t *testing.T) {
	ref := referral(model.ReferralInProgress)

	ev, err := Archive(ref, "duplicate referral", now)
	require.NoError(t, err)
	assert.Equal(t, model.ReferralArchived, ref.Status)
	assert.Equal(t, "duplicate referral", *ref.Comment)
	assert.Equal(t, model.EventReferralArchived, ev.Kind)

	_, err = Archive(ref, "again", now)
	assertKind(t, err, apperror.ErrInvalidState)
}

func TestConfirmCareCharges(t *testing.T) {
	ref := referral(model.ReferralApproved)
	ref.CareChargeStatus = model.CareChargeNew

	ev, err := ConfirmCareCharges(ref, now)
	require.NoError(t, err)
	assert.Equal(t, now, *ref.CareChargesConfirmedAt)
	assert.Equal(t, "New", ev.Metadata["care_charge_status"])

	_, err = ConfirmCareCharges(referral(model.ReferralInProgress), now)
	assertKind(t, err, apperror.ErrInvalidState)
}

func TestRequestAmendment(t *testing.T) {
	el := element(10, model.ElementAwaitingApproval, day(1), nil)
	ref := referral(model.ReferralAwaitingApproval, el)
	cost := decimal.NewFromInt(5200)

	ev, err := RequestAmendment(ref, approver(5200), cost, "please lower the cost", now)
	require.NoError(t, err)

	assert.Equal(t, model.ReferralInProgress, ref.Status)
	assert.Equal(t, model.ElementInProgress, el.InternalStatus)
	require.Len(t, ref.Amendments, 1)
	assert.Equal(t, model.RequestInProgress, ref.Amendments[0].Status)
	assert.Equal(t, now, ref.Amendments[0].RequestedAt)
	assert.Equal(t, model.EventAmendmentRequested, ev.Kind)
}

func TestRequestAmendment_Errors(t *testing.T) {
	cost := decimal.NewFromInt(5200)

	_, err := RequestAmendment(referral(model.ReferralAwaitingApproval), nil, cost, "x", now)
	assertKind(t, err, apperror.ErrNotFound)

	_, err = RequestAmendment(referral(model.ReferralApproved), approver(5200), cost, "x", now)
	assertKind(t, err, apperror.ErrInvalidState)

	_, err = RequestAmendment(referral(model.ReferralAwaitingApproval), approver(10), cost, "x", now)
	assertKind(t, err, apperror.ErrForbidden)

	ref := referral(model.ReferralAwaitingApproval)
	_, err = RequestAmendment(ref, approver(5200), cost, "  ", now)
	assertKind(t, err, apperror.ErrValidation)
	assert.Empty(t, ref.Amendments)
	assert.Equal(t, model.ReferralAwaitingApproval, ref.Status)
}

func TestResolveAmendment(t *testing.T) {
	ref := referral(model.ReferralInProgress)
	ref.Amendments = []model.ReferralAmendment{{ID: 3, Comment: "fix", Status: model.RequestInProgress}}

	_, err := ResolveAmendment(ref, brokerA, 4, now)
	assertKind(t, err, apperror.ErrNotFound)

	_, err = ResolveAmendment(ref, brokerA, 3, now)
	require.NoError(t, err)
	assert.Equal(t, model.RequestResolved, ref.Amendments[0].Status)

	_, err = ResolveAmendment(ref, brokerA, 3, now)
	assertKind(t, err, apperror.ErrInvalidState)
}

func TestFollowUps(t *testing.T) {
	ref := referral(model.ReferralApproved)
	reviewer := Actor{Email: "reviewer@x.org"}

	ev, err := RequestFollowUp(ref, reviewer, "six week review", day(42), now)
	require.NoError(t, err)
	require.Len(t, ref.FollowUps, 1)
	fu := ref.FollowUps[0]
	assert.Equal(t, model.RequestInProgress, fu.Status)
	assert.Equal(t, now, fu.RequestedAt)
	assert.Equal(t, "reviewer@x.org", fu.RequestedByEmail)
	assert.Equal(t, "2024-04-21", ev.Metadata["date"])

	ref.FollowUps[0].ID = 8
	_, err = ResolveFollowUp(ref, 8, now)
	require.NoError(t, err)
	assert.Equal(t, model.RequestResolved, ref.FollowUps[0].Status)

	_, err = RequestFollowUp(referral(model.ReferralInProgress), reviewer, "x", day(1), now)
	assertKind(t, err, apperror.ErrInvalidState)
}

package lifecycle

import (
	"testing"
	"time"

	"carepackage/internal/model"
	"carepackage/pkg/apperror"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func draft(start int, cost int64) ElementDraft {
	return ElementDraft{
		Fields: model.ElementFields{
			ElementTypeID: weeklyCare.ID,
			Details:       "Morning visits",
			StartDate:     day(start),
			Cost:          decimal.NewFromInt(cost),
		},
		ElementType: weeklyCare,
		Provider:    &model.Provider{ID: 7, Name: "Homecare Ltd"},
	}
}

func TestCreateElement(t *testing.T) {
	ref := referral(model.ReferralInProgress)

	el, ev, err := CreateElement(ref, brokerA, draft(1, 150), now)
	require.NoError(t, err)

	assert.Equal(t, model.ElementInProgress, el.InternalStatus)
	assert.Equal(t, now, el.CreatedAt)
	require.NotNil(t, el.ProviderID)
	assert.Equal(t, uint(7), *el.ProviderID)
	assert.Len(t, ref.ReferralElements, 1)
	assert.Same(t, el, ref.ReferralElements[0].Element)
	assert.Equal(t, model.EventElementCreated, ev.Kind)
	assert.Equal(t, uint(1234), ev.Metadata["referral_id"])
}

func TestCreateElement_Preconditions(t *testing.T) {
	t.Run("wrong status", func(t *testing.T) {
		ref := referral(model.ReferralAssigned)
		_, _, err := CreateElement(ref, brokerA, draft(1, 150), now)
		assertKind(t, err, apperror.ErrInvalidState)
		assert.Empty(t, ref.ReferralElements)
	})
	t.Run("wrong broker", func(t *testing.T) {
		ref := referral(model.ReferralInProgress)
		_, _, err := CreateElement(ref, brokerB, draft(1, 150), now)
		assertKind(t, err, apperror.ErrForbidden)
		assert.Empty(t, ref.ReferralElements)
	})
	t.Run("end before start", func(t *testing.T) {
		ref := referral(model.ReferralInProgress)
		d := draft(5, 150)
		d.Fields.EndDate = dayPtr(4)
		_, _, err := CreateElement(ref, brokerA, d, now)
		assertKind(t, err, apperror.ErrValidation)
	})
	t.Run("negative cost", func(t *testing.T) {
		ref := referral(model.ReferralInProgress)
		_, _, err := CreateElement(ref, brokerA, draft(1, -1), now)
		assertKind(t, err, apperror.ErrValidation)
	})
}

func TestEditElement_InPlace(t *testing.T) {
	el := element(10, model.ElementInProgress, day(1), nil)
	ref := referral(model.ReferralInProgress, el)

	got, ev, err := EditElement(ref, brokerA, 10, draft(3, 300), now)
	require.NoError(t, err)

	assert.Same(t, el, got)
	assert.Equal(t, day(3), el.StartDate)
	assert.True(t, decimal.NewFromInt(300).Equal(el.Cost))
	assert.Equal(t, model.EventElementUpdated, ev.Kind)
}

func TestEditElement_ApprovedCreatesSuccessor(t *testing.T) {
	parent := element(10, model.ElementApproved, day(-30), nil)
	ref := referral(model.ReferralInProgress, parent)
	ref.ReferralElements[0].PendingCancellation = true

	successor, _, err := EditElement(ref, brokerA, 10, draft(7, 300), now)
	require.NoError(t, err)

	require.NotNil(t, successor.ParentElementID)
	assert.Equal(t, uint(10), *successor.ParentElementID)
	assert.Equal(t, model.ElementInProgress, successor.InternalStatus)
	assert.Same(t, successor, ref.ReferralElements[0].Element)
	assert.False(t, ref.ReferralElements[0].PendingCancellation)

	assert.Equal(t, day(-30), parent.StartDate, "parent is untouched")
	assert.True(t, decimal.NewFromInt(100).Equal(parent.Cost))
}

func TestEditElement_Errors(t *testing.T) {
	ref := referral(model.ReferralInProgress, element(10, model.ElementCancelled, day(-30), nil))

	_, _, err := EditElement(ref, brokerA, 99, draft(1, 1), now)
	assertKind(t, err, apperror.ErrNotFound)

	_, _, err = EditElement(ref, brokerA, 10, draft(1, 1), now)
	assertKind(t, err, apperror.ErrInvalidState)
}

func TestDeleteElement(t *testing.T) {
	keep := element(10, model.ElementInProgress, day(1), nil)
	drop := element(11, model.ElementInProgress, day(1), nil)
	ref := referral(model.ReferralInProgress, keep, drop)

	removed, ev, err := DeleteElement(ref, brokerA, 11, now)
	require.NoError(t, err)

	assert.Same(t, drop, removed)
	require.Len(t, ref.ReferralElements, 1)
	assert.Same(t, keep, ref.ReferralElements[0].Element)
	assert.Equal(t, model.EventElementDeleted, ev.Kind)

	_, _, err = DeleteElement(ref, brokerA, 11, now)
	assertKind(t, err, apperror.ErrNotFound)

	_, _, err = DeleteElement(ref, brokerB, 10, now)
	assertKind(t, err, apperror.ErrForbidden)
	assert.Len(t, ref.ReferralElements, 1)
}

func TestEndElement(t *testing.T) {
	tests := []struct {
		name    string
		status  model.ElementInternalStatus
		end     *int
		request int
		want    error
	}{
		{name: "open ended", status: model.ElementApproved, request: 10},
		{name: "bring future end forward to today", status: model.ElementApproved, end: intPtr(5), request: 0},
		{name: "same end date", status: model.ElementApproved, end: intPtr(5), request: 5},
		{name: "push end date later", status: model.ElementApproved, end: intPtr(5), request: 6, want: apperror.ErrValidation},
		{name: "earlier than a past end date", status: model.ElementApproved, end: intPtr(-2), request: -5, want: apperror.ErrValidation},
		{name: "not approved", status: model.ElementInProgress, request: 10, want: apperror.ErrInvalidState},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var end *time.Time
			if tt.end != nil {
				end = dayPtr(*tt.end)
			}
			el := element(10, tt.status, day(-30), end)
			ref := referral(model.ReferralApproved, el)

			ev, err := EndElement(ref, 10, day(tt.request), str("moving"), today, now)
			if tt.want != nil {
				assertKind(t, err, tt.want)
				assert.Equal(t, end, el.EndDate, "element must be untouched")
				return
			}
			require.NoError(t, err)
			require.NotNil(t, el.EndDate)
			assert.Equal(t, day(tt.request), *el.EndDate)
			assert.Equal(t, now, el.UpdatedAt)
			assert.Equal(t, "moving", *el.Comment)
			assert.Equal(t, model.EventElementEnded, ev.Kind)
		})
	}
}

func intPtr(i int) *int {
	return &i
}

func TestSuspendElement(t *testing.T) {
	el := element(10, model.ElementApproved, day(-30), nil)
	ref := referral(model.ReferralApproved, el)

	s, ev, err := SuspendElement(ref, 10, day(-1), dayPtr(5), str("hospital"), now)
	require.NoError(t, err)

	assert.True(t, s.IsSuspension)
	require.NotNil(t, s.SuspendedElementID)
	assert.Equal(t, uint(10), *s.SuspendedElementID)
	assert.True(t, s.Cost.IsZero())
	assert.Equal(t, model.ElementApproved, s.InternalStatus)
	assert.Len(t, ref.ReferralElements, 2)
	assert.Equal(t, "2024-03-15", ev.Metadata["end_date"])

	assert.Equal(t, model.ElementStatusSuspended, ref.Graph().StatusOf(el, today))
}

func TestSuspendElement_OpenEndedOnUnapprovedPackage(t *testing.T) {
	el := element(10, model.ElementApproved, day(-30), nil)
	ref := referral(model.ReferralInProgress, el)

	s, ev, err := SuspendElement(ref, 10, day(2), nil, nil, now)
	require.NoError(t, err)

	assert.Nil(t, s.EndDate)
	assert.Equal(t, model.ElementInProgress, s.InternalStatus)
	_, hasEnd := ev.Metadata["end_date"]
	assert.False(t, hasEnd)
}

func TestSuspendElement_Errors(t *testing.T) {
	el := element(10, model.ElementApproved, day(-30), dayPtr(30))
	pending := element(11, model.ElementInProgress, day(-30), nil)
	ref := referral(model.ReferralApproved, el, pending)

	_, _, err := SuspendElement(ref, 11, day(1), nil, nil, now)
	assertKind(t, err, apperror.ErrInvalidState)

	_, _, err = SuspendElement(ref, 10, day(5), dayPtr(4), nil, now)
	assertKind(t, err, apperror.ErrValidation)

	_, _, err = SuspendElement(ref, 10, day(31), nil, nil, now)
	assertKind(t, err, apperror.ErrValidation)

	assert.Len(t, ref.ReferralElements, 2)
}

func TestCancelElement(t *testing.T) {
	el := element(10, model.ElementApproved, day(-30), nil)
	ref := referral(model.ReferralApproved, el)

	ev, err := CancelElement(ref, 10, str("no longer needed"), today, now)
	require.NoError(t, err)
	assert.Equal(t, model.ElementCancelled, el.InternalStatus)
	assert.Equal(t, "no longer needed", *el.Comment)
	assert.Equal(t, model.EventElementCancelled, ev.Kind)

	_, err = CancelElement(ref, 10, nil, today, now)
	assertKind(t, err, apperror.ErrInvalidState)
}

func TestCancelElement_AlreadyEnded(t *testing.T) {
	el := element(10, model.ElementApproved, day(-30), dayPtr(-1))
	ref := referral(model.ReferralApproved, el)

	_, err := CancelElement(ref, 10, nil, today, now)
	assertKind(t, err, apperror.ErrInvalidState)
	assert.Equal(t, model.ElementApproved, el.InternalStatus)
}

func TestResetElement_SuccessorRevertsToParent(t *testing.T) {
	parent := element(10, model.ElementApproved, day(-30), nil)
	ref := referral(model.ReferralInProgress, parent)
	successor, _, err := EditElement(ref, brokerA, 10, draft(7, 300), now)
	require.NoError(t, err)
	successor.ID = 20
	ref.ReferralElements[0].ElementID = 20

	graph := model.NewElementGraph(parent, successor)
	discarded, ev, err := ResetElement(ref, brokerA, 20, graph, now)
	require.NoError(t, err)

	assert.Same(t, successor, discarded)
	assert.Same(t, parent, ref.ReferralElements[0].Element)
	assert.Equal(t, uint(10), ref.ReferralElements[0].ElementID)
	assert.Equal(t, model.EventElementReset, ev.Kind)
}

func TestResetElement_ClearsStagedChanges(t *testing.T) {
	el := element(10, model.ElementApproved, day(-30), nil)
	ref := referral(model.ReferralInProgress, el)
	ref.ReferralElements[0].PendingEndDate = dayPtr(3)
	ref.ReferralElements[0].PendingComment = str("moving")

	discarded, _, err := ResetElement(ref, brokerA, 10, ref.Graph(), now)
	require.NoError(t, err)

	assert.Nil(t, discarded)
	assert.False(t, ref.ReferralElements[0].HasPendingChange())
	assert.Nil(t, ref.ReferralElements[0].PendingComment)
}

func TestResetElement_Errors(t *testing.T) {
	clean := element(10, model.ElementApproved, day(-30), nil)
	cancelled := element(11, model.ElementCancelled, day(-30), nil)
	orphan := element(12, model.ElementInProgress, day(1), nil)
	missing := uint(99)
	orphan.ParentElementID = &missing
	ref := referral(model.ReferralInProgress, clean, cancelled, orphan)

	_, _, err := ResetElement(ref, brokerA, 10, ref.Graph(), now)
	assertKind(t, err, apperror.ErrInvalidState)

	_, _, err = ResetElement(ref, brokerA, 11, ref.Graph(), now)
	assertKind(t, err, apperror.ErrInvalidState)

	_, _, err = ResetElement(ref, brokerA, 12, ref.Graph(), now)
	assertKind(t, err, apperror.ErrNotFound)
}

func TestStageElementEndAndCancellation(t *testing.T) {
	a := element(10, model.ElementApproved, day(-30), nil)
	b := element(11, model.ElementApproved, day(-30), nil)
	ref := referral(model.ReferralInProgress, a, b)

	ev, err := StageElementEnd(ref, brokerA, 10, day(14), str("moving"), today, now)
	require.NoError(t, err)
	assert.Equal(t, model.EventElementEndRequested, ev.Kind)
	assert.Equal(t, day(14), *ref.ReferralElements[0].PendingEndDate)
	assert.Nil(t, a.EndDate, "end is only staged")

	ev, err = StageElementCancellation(ref, brokerA, 11, nil, today, now)
	require.NoError(t, err)
	assert.Equal(t, model.EventElementCancellationRequested, ev.Kind)
	assert.True(t, ref.ReferralElements[1].PendingCancellation)
	assert.Equal(t, model.ElementApproved, b.InternalStatus)

	_, err = StageElementCancellation(ref, brokerB, 11, nil, today, now)
	assertKind(t, err, apperror.ErrForbidden)
}

func TestLinkElement(t *testing.T) {
	prior := element(10, model.ElementApproved, day(-60), nil)
	ref := referral(model.ReferralInProgress)

	ev, err := LinkElement(ref, brokerA, prior, "SC-1", now)
	require.NoError(t, err)
	assert.Equal(t, model.EventElementLinked, ev.Kind)
	require.Len(t, ref.ReferralElements, 1)
	assert.Equal(t, uint(10), ref.ReferralElements[0].ElementID)

	_, err = LinkElement(ref, brokerA, prior, "SC-1", now)
	assertKind(t, err, apperror.ErrValidation)

	other := element(11, model.ElementApproved, day(-60), nil)
	_, err = LinkElement(ref, brokerA, other, "SC-2", now)
	assertKind(t, err, apperror.ErrValidation)

	draftEl := element(12, model.ElementInProgress, day(-60), nil)
	_, err = LinkElement(ref, brokerA, draftEl, "SC-1", now)
	assertKind(t, err, apperror.ErrInvalidState)

	assert.Len(t, ref.ReferralElements, 1)
}

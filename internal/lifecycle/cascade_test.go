package lifecycle

import (
	"testing"

	"carepackage/internal/model"
	"carepackage/pkg/apperror"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func approvalInput(ref *model.Referral, limit int64) ApprovalInput {
	return ApprovalInput{
		Approver: approver(limit),
		Cost:     ref.EstimatedYearlyCost(today),
		Graph:    ref.Graph(),
		Now:      now,
		Today:    today,
	}
}

func TestApprove_RequiresAwaitingApproval(t *testing.T) {
	for _, status := range []model.ReferralStatus{
		model.ReferralUnassigned,
		model.ReferralAssigned,
		model.ReferralInProgress,
		model.ReferralApproved,
		model.ReferralEnded,
		model.ReferralCancelled,
		model.ReferralArchived,
		model.ReferralInReview,
		model.ReferralOnHold,
	} {
		t.Run(string(status), func(t *testing.T) {
			el := element(10, model.ElementAwaitingApproval, day(1), nil)
			ref := referral(status, el)

			_, err := Approve(ref, approvalInput(ref, 1_000_000))
			assertKind(t, err, apperror.ErrInvalidState)
			assert.Equal(t, status, ref.Status)
			assert.Equal(t, model.ElementAwaitingApproval, el.InternalStatus)
		})
	}
}

func TestApprove_LimitBoundary(t *testing.T) {
	// one weekly element of 100 => 5200 a year
	tests := []struct {
		name    string
		limit   *int64
		wantErr error
	}{
		{"equal to cost", int64Ptr(5200), nil},
		{"above cost", int64Ptr(5201), nil},
		{"below cost", int64Ptr(5199), apperror.ErrForbidden},
		{"no limit", nil, apperror.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref := referral(model.ReferralAwaitingApproval, element(10, model.ElementAwaitingApproval, day(1), nil))
			in := approvalInput(ref, 0)
			in.Approver.ApprovalLimit = decimal.NullDecimal{}
			if tt.limit != nil {
				in.Approver.ApprovalLimit = decimal.NewNullDecimal(decimal.NewFromInt(*tt.limit))
			}
			require.True(t, decimal.NewFromInt(5200).Equal(in.Cost))

			_, err := Approve(ref, in)
			if tt.wantErr != nil {
				assertKind(t, err, tt.wantErr)
				assert.Equal(t, model.ReferralAwaitingApproval, ref.Status)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, model.ReferralApproved, ref.Status)
		})
	}
}

func int64Ptr(i int64) *int64 {
	return &i
}

func TestApprove_MissingApprover(t *testing.T) {
	ref := referral(model.ReferralAwaitingApproval)
	in := approvalInput(ref, 0)
	in.Approver = nil

	_, err := Approve(ref, in)
	assertKind(t, err, apperror.ErrNotFound)
}

func TestApprove_TwoElements(t *testing.T) {
	pending := element(10, model.ElementAwaitingApproval, day(1), nil)
	draftEl := element(11, model.ElementInProgress, day(1), nil)
	ref := referral(model.ReferralAwaitingApproval, pending, draftEl)
	in := approvalInput(ref, 0)
	in.Approver.ApprovalLimit = decimal.NewNullDecimal(in.Cost.Add(decimal.NewFromInt(100)))

	result, err := Approve(ref, in)
	require.NoError(t, err)

	assert.Equal(t, model.ReferralApproved, ref.Status)
	assert.Equal(t, model.ElementApproved, pending.InternalStatus)
	assert.Equal(t, now, ref.UpdatedAt)
	assert.Equal(t, model.CareChargeNew, ref.CareChargeStatus)
	assert.Equal(t, []string{model.EventCarePackageApproved}, eventKinds(result.Events))
}

func TestApprove_EndsSupersededParent(t *testing.T) {
	parent := element(10, model.ElementApproved, day(-200), dayPtr(100))
	successor := element(20, model.ElementAwaitingApproval, day(0), nil)
	parentID := parent.ID
	successor.ParentElementID = &parentID
	ref := referral(model.ReferralAwaitingApproval, successor)

	in := approvalInput(ref, 100_000)
	in.Graph.Add(parent)

	result, err := Approve(ref, in)
	require.NoError(t, err)

	require.NotNil(t, parent.EndDate)
	assert.Equal(t, successor.StartDate.AddDate(0, 0, -1), *parent.EndDate)
	assert.Equal(t, []*model.Element{parent}, result.Parents)
}

func TestApprove_MissingParentAbortsCascade(t *testing.T) {
	successor := element(20, model.ElementAwaitingApproval, day(0), nil)
	missing := uint(10)
	successor.ParentElementID = &missing
	ref := referral(model.ReferralAwaitingApproval, successor)

	_, err := Approve(ref, approvalInput(ref, 100_000))
	assertKind(t, err, apperror.ErrNotFound)
	assert.Equal(t, model.ElementAwaitingApproval, successor.InternalStatus)
	assert.Equal(t, model.ReferralAwaitingApproval, ref.Status)
}

func TestApprove_StructuralErrorsBeforeLimit(t *testing.T) {
	t.Run("missing parent", func(t *testing.T) {
		successor := element(20, model.ElementAwaitingApproval, day(0), nil)
		missing := uint(10)
		successor.ParentElementID = &missing
		ref := referral(model.ReferralAwaitingApproval, successor)

		_, err := Approve(ref, approvalInput(ref, 1))
		assertKind(t, err, apperror.ErrNotFound)
	})

	t.Run("invalid pending change", func(t *testing.T) {
		pending := element(10, model.ElementAwaitingApproval, day(1), nil)
		ended := element(11, model.ElementApproved, day(-60), dayPtr(-5))
		ref := referral(model.ReferralAwaitingApproval, pending, ended)
		ref.ReferralElements[1].PendingCancellation = true

		_, err := Approve(ref, approvalInput(ref, 1))
		assertKind(t, err, apperror.ErrInvalidState)
		assert.Equal(t, model.ElementAwaitingApproval, pending.InternalStatus)
	})

	t.Run("over limit once structure is valid", func(t *testing.T) {
		el := element(10, model.ElementAwaitingApproval, day(1), nil)
		ref := referral(model.ReferralAwaitingApproval, el)

		_, err := Approve(ref, approvalInput(ref, 1))
		assertKind(t, err, apperror.ErrForbidden)
		assert.Equal(t, model.ElementAwaitingApproval, el.InternalStatus)
	})
}

func TestApprove_SupersedesSiblings(t *testing.T) {
	ref := referral(model.ReferralAwaitingApproval, element(10, model.ElementAwaitingApproval, day(1), nil))
	approved := &model.Referral{ID: 1, SocialCareID: "SC-1", Status: model.ReferralApproved}
	ended := &model.Referral{ID: 2, SocialCareID: "SC-1", Status: model.ReferralEnded}
	archived := &model.Referral{ID: 3, SocialCareID: "SC-1", Status: model.ReferralArchived}

	in := approvalInput(ref, 100_000)
	in.Siblings = []*model.Referral{approved, ended, archived, ref}

	result, err := Approve(ref, in)
	require.NoError(t, err)

	assert.Equal(t, model.ReferralEnded, approved.Status)
	assert.Equal(t, now, approved.UpdatedAt)
	assert.Equal(t, model.ReferralEnded, ended.Status)
	assert.Equal(t, model.ReferralArchived, archived.Status)
	assert.Equal(t, model.ReferralApproved, ref.Status)
	assert.Equal(t, []*model.Referral{approved}, result.Superseded)
	assert.Equal(t, []string{model.EventCarePackageEnded, model.EventCarePackageApproved}, eventKinds(result.Events))
}

func TestApprove_IsResidential(t *testing.T) {
	home := element(10, model.ElementAwaitingApproval, day(1), nil)
	care := element(11, model.ElementAwaitingApproval, day(1), nil)
	care.ElementType = residential
	ref := referral(model.ReferralAwaitingApproval, home, care)

	_, err := Approve(ref, approvalInput(ref, 100_000))
	require.NoError(t, err)
	assert.True(t, ref.IsResidential)

	ref2 := referral(model.ReferralAwaitingApproval, element(10, model.ElementAwaitingApproval, day(1), nil))
	ref2.IsResidential = true
	_, err = Approve(ref2, approvalInput(ref2, 100_000))
	require.NoError(t, err)
	assert.False(t, ref2.IsResidential)
}

func TestApprove_PendingCancellation(t *testing.T) {
	el := element(10, model.ElementApproved, day(-30), nil)
	ref := referral(model.ReferralAwaitingApproval, el)
	ref.ReferralElements[0].PendingCancellation = true
	ref.ReferralElements[0].PendingComment = str("client moved")

	result, err := Approve(ref, approvalInput(ref, 100_000))
	require.NoError(t, err)

	assert.Equal(t, model.CareChargeCancellation, ref.CareChargeStatus)
	assert.Equal(t, model.ElementCancelled, el.InternalStatus)
	assert.Equal(t, "client moved", *el.Comment)
	assert.False(t, ref.ReferralElements[0].PendingCancellation)
	assert.Nil(t, ref.ReferralElements[0].PendingComment)
	assert.Equal(t, []string{model.EventElementCancelled, model.EventCarePackageApproved}, eventKinds(result.Events))
}

func TestApprove_PendingEnd(t *testing.T) {
	el := element(10, model.ElementApproved, day(-30), nil)
	ref := referral(model.ReferralAwaitingApproval, el)
	ref.ReferralElements[0].PendingEndDate = dayPtr(14)

	result, err := Approve(ref, approvalInput(ref, 100_000))
	require.NoError(t, err)

	assert.Equal(t, model.CareChargeTermination, ref.CareChargeStatus)
	require.NotNil(t, el.EndDate)
	assert.Equal(t, day(14), *el.EndDate)
	assert.Nil(t, ref.ReferralElements[0].PendingEndDate)
	assert.Equal(t, model.EventElementEnded, result.Events[0].Kind)
}

func TestApprove_CancellationBeatsEnd(t *testing.T) {
	el := element(10, model.ElementApproved, day(-30), nil)
	ref := referral(model.ReferralAwaitingApproval, el)
	ref.ReferralElements[0].PendingCancellation = true
	ref.ReferralElements[0].PendingEndDate = dayPtr(14)

	_, err := Approve(ref, approvalInput(ref, 100_000))
	require.NoError(t, err)

	assert.Equal(t, model.CareChargeCancellation, ref.CareChargeStatus)
	assert.Equal(t, model.ElementCancelled, el.InternalStatus)
	assert.Nil(t, el.EndDate)
	assert.False(t, ref.ReferralElements[0].HasPendingChange())
}

func TestApprove_InvalidPendingChangeAbortsCascade(t *testing.T) {
	pending := element(10, model.ElementAwaitingApproval, day(1), nil)
	ended := element(11, model.ElementApproved, day(-60), dayPtr(-5))
	ref := referral(model.ReferralAwaitingApproval, pending, ended)
	ref.ReferralElements[1].PendingCancellation = true
	sibling := &model.Referral{ID: 1, SocialCareID: "SC-1", Status: model.ReferralApproved}

	in := approvalInput(ref, 100_000)
	in.Siblings = []*model.Referral{sibling}

	_, err := Approve(ref, in)
	assertKind(t, err, apperror.ErrInvalidState)

	assert.Equal(t, model.ReferralAwaitingApproval, ref.Status)
	assert.Equal(t, model.ElementAwaitingApproval, pending.InternalStatus)
	assert.Equal(t, model.ElementApproved, ended.InternalStatus)
	assert.True(t, ref.ReferralElements[1].PendingCancellation)
	assert.Equal(t, model.ReferralApproved, sibling.Status)
}

func TestApprove_ExistingCareCharges(t *testing.T) {
	confirmed := now.AddDate(0, 0, -90)
	ref := referral(model.ReferralAwaitingApproval, element(10, model.ElementAwaitingApproval, day(1), nil))
	prior := &model.Referral{ID: 1, SocialCareID: "SC-1", Status: model.ReferralApproved, CareChargesConfirmedAt: &confirmed}

	in := approvalInput(ref, 100_000)
	in.Siblings = []*model.Referral{prior}

	_, err := Approve(ref, in)
	require.NoError(t, err)

	assert.Equal(t, model.CareChargeExisting, ref.CareChargeStatus)
	require.NotNil(t, ref.CareChargesConfirmedAt)
	assert.Equal(t, confirmed, *ref.CareChargesConfirmedAt)
}

func TestApprove_StaleConfirmationIsNew(t *testing.T) {
	confirmed := now.AddDate(0, -7, 0)
	ref := referral(model.ReferralAwaitingApproval, element(10, model.ElementAwaitingApproval, day(1), nil))
	prior := &model.Referral{ID: 1, SocialCareID: "SC-1", Status: model.ReferralEnded, CareChargesConfirmedAt: &confirmed}

	in := approvalInput(ref, 100_000)
	in.Siblings = []*model.Referral{prior}

	_, err := Approve(ref, in)
	require.NoError(t, err)
	assert.Equal(t, model.CareChargeNew, ref.CareChargeStatus)
	assert.Nil(t, ref.CareChargesConfirmedAt)
}

func TestApprove_Suspension(t *testing.T) {
	el := element(10, model.ElementApproved, day(-30), nil)
	suspension := element(11, model.ElementAwaitingApproval, day(-1), dayPtr(10))
	suspension.IsSuspension = true
	target := el.ID
	suspension.SuspendedElementID = &target
	suspension.Cost = decimal.Zero
	ref := referral(model.ReferralAwaitingApproval, el, suspension)

	_, err := Approve(ref, approvalInput(ref, 100_000))
	require.NoError(t, err)

	assert.Equal(t, model.ElementApproved, suspension.InternalStatus)
	assert.Equal(t, model.CareChargeSuspension, ref.CareChargeStatus)
}

func TestClassifyCareCharges_Precedence(t *testing.T) {
	recent := now.AddDate(0, -1, 0)

	tests := []struct {
		name     string
		setup    func(ref *model.Referral)
		siblings []*model.Referral
		want     model.CareChargeStatus
	}{
		{
			name: "existing beats cancellation",
			setup: func(ref *model.Referral) {
				ref.ReferralElements[0].PendingCancellation = true
			},
			siblings: []*model.Referral{{ID: 1, CareChargesConfirmedAt: &recent}},
			want:     model.CareChargeExisting,
		},
		{
			name: "cancellation needs every link",
			setup: func(ref *model.Referral) {
				ref.ReferralElements = append(ref.ReferralElements, model.ReferralElement{
					ElementID: 11, Element: element(11, model.ElementApproved, day(-30), nil),
				})
				ref.ReferralElements[0].PendingCancellation = true
			},
			want: model.CareChargeNew,
		},
		{
			name: "termination when every link ends",
			setup: func(ref *model.Referral) {
				ref.ReferralElements[0].PendingEndDate = dayPtr(3)
			},
			want: model.CareChargeTermination,
		},
		{
			name:  "new by default",
			setup: func(ref *model.Referral) {},
			want:  model.CareChargeNew,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref := referral(model.ReferralAwaitingApproval, element(10, model.ElementApproved, day(-30), nil))
			tt.setup(ref)

			got, _ := classifyCareCharges(ref, tt.siblings, ref.Graph(), now, today)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifyCareCharges_EmptyPackageIsNew(t *testing.T) {
	ref := referral(model.ReferralAwaitingApproval)
	got, at := classifyCareCharges(ref, nil, ref.Graph(), now, today)
	assert.Equal(t, model.CareChargeNew, got)
	assert.Nil(t, at)
}

func TestApprove_UsesOwnGraphWhenNoneGiven(t *testing.T) {
	ref := referral(model.ReferralAwaitingApproval, element(10, model.ElementAwaitingApproval, day(1), nil))
	in := approvalInput(ref, 100_000)
	in.Graph = nil

	_, err := Approve(ref, in)
	require.NoError(t, err)
	assert.Equal(t, model.ReferralApproved, ref.Status)
}

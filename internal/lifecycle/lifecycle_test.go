package lifecycle

import (
	"errors"
	"testing"
	"time"

	"carepackage/internal/model"
	"carepackage/pkg/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	now   = time.Date(2024, time.March, 10, 9, 30, 0, 0, time.UTC)
	today = time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC)

	brokerA = Actor{ID: uuid.New(), Email: "a@x.org"}
	brokerB = Actor{ID: uuid.New(), Email: "b@x.org"}

	weeklyCare  = &model.ElementType{ID: 1, Name: "Home care", CostType: model.CostTypeWeekly, PaymentOperation: model.PaymentAdd}
	residential = &model.ElementType{ID: 2, Name: "Residential", CostType: model.CostTypeWeekly, PaymentOperation: model.PaymentAdd, IsResidential: true}
)

func day(offset int) time.Time {
	return today.AddDate(0, 0, offset)
}

func dayPtr(offset int) *time.Time {
	d := day(offset)
	return &d
}

func str(s string) *string {
	return &s
}

func approver(limit int64) *model.User {
	return &model.User{
		ID:            uuid.New(),
		Email:         "approver@x.org",
		Role:          model.RoleApprover,
		ApprovalLimit: decimal.NewNullDecimal(decimal.NewFromInt(limit)),
	}
}

func element(id uint, status model.ElementInternalStatus, start time.Time, end *time.Time) *model.Element {
	return &model.Element{
		ID: id,
		ElementFields: model.ElementFields{
			ElementTypeID: weeklyCare.ID,
			StartDate:     start,
			EndDate:       end,
			Cost:          decimal.NewFromInt(100),
		},
		ElementType:    weeklyCare,
		InternalStatus: status,
	}
}

func referral(status model.ReferralStatus, elements ...*model.Element) *model.Referral {
	ref := &model.Referral{
		ID:                  1234,
		SocialCareID:        "SC-1",
		Status:              status,
		AssignedBrokerEmail: str(brokerA.Email),
	}
	for _, el := range elements {
		ref.ReferralElements = append(ref.ReferralElements, model.ReferralElement{ReferralID: ref.ID, ElementID: el.ID, Element: el})
	}
	return ref
}

func assertKind(t *testing.T, err error, kind error) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, errors.Is(err, kind), "got %v", err)
}

func eventKinds(events []Event) []string {
	kinds := make([]string, 0, len(events))
	for _, ev := range events {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}

func TestCheckApprovalLimit(t *testing.T) {
	cost := decimal.NewFromInt(5200)

	tests := []struct {
		name     string
		approver *model.User
		want     error
	}{
		{"missing approver", nil, apperror.ErrNotFound},
		{"no limit", &model.User{Email: "x@x.org"}, apperror.ErrForbidden},
		{"limit below cost", approver(5199), apperror.ErrForbidden},
		{"limit equal to cost", approver(5200), nil},
		{"limit above cost", approver(10000), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckApprovalLimit(tt.approver, cost)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assertKind(t, err, tt.want)
		})
	}
}

func TestCheckApprovalLimit_Message(t *testing.T) {
	err := CheckApprovalLimit(approver(1), decimal.NewFromInt(2))
	assert.EqualError(t, err, "approver does not have high enough approval limit")
}

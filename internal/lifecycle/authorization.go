package lifecycle

import (
	"carepackage/internal/model"
	"carepackage/pkg/apperror"

	"github.com/shopspring/decimal"
)

// CheckApprovalLimit passes when the approver has a limit of at least
// estimatedYearlyCost. A missing approver is NotFound; a missing or lower
// limit is Forbidden.
func CheckApprovalLimit(approver *model.User, estimatedYearlyCost decimal.Decimal) error {
	if approver == nil {
		return apperror.NotFound("approver not found")
	}
	if !approver.ApprovalLimit.Valid || approver.ApprovalLimit.Decimal.LessThan(estimatedYearlyCost) {
		return apperror.Forbidden("approver does not have high enough approval limit")
	}
	return nil
}

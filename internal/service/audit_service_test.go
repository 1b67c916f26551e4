package service_test

import (
	"context"
	"encoding/json"
	"testing"

	"carepackage/internal/model"
	"carepackage/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditService_GetAuditLogs(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.approvedPackage(t, "SC-1", "2024-03-11")
	h.inProgress(t, "SC-2")

	svc := service.NewAuditService(h.deps.Audits)
	logs, total, err := svc.GetAuditLogs(ctx, service.AuditLogQuery{SocialCareID: "SC-1", Action: model.EventCarePackageApproved})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, logs, 1)

	entry := logs[0]
	assert.Equal(t, "SC-1", entry.EntityID)
	assert.Equal(t, "Jo Bloggs", entry.EntityName)
	assert.Equal(t, h.approver.ID.String(), entry.UserID)
	assert.Equal(t, h.approver.Email, entry.UserName)

	var details map[string]interface{}
	require.NoError(t, json.Unmarshal(entry.Details, &details))
	assert.Equal(t, "5200.00", details["estimated_yearly_cost"])
	assert.Equal(t, string(model.CareChargeNew), details["care_charge_status"])

	_, total, err = svc.GetAuditLogs(ctx, service.AuditLogQuery{})
	require.NoError(t, err)
	assert.EqualValues(t, 7, total)
}

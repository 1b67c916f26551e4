package service

import (
	"context"
	"encoding/json"
	"time"

	"carepackage/internal/repository"
)

type AuditLogResponse struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	UserName   string          `json:"user_name"`
	Action     string          `json:"action"`
	EntityID   string          `json:"entity_id"`
	EntityName string          `json:"entity_name"`
	Details    json.RawMessage `json:"details,omitempty"`
	CreatedAt  string          `json:"created_at"`
}

type AuditLogQuery struct {
	SocialCareID string
	Action       string
	Page         int
	Limit        int
}

type AuditService interface {
	GetAuditLogs(ctx context.Context, query AuditLogQuery) ([]AuditLogResponse, int64, error)
}

type auditService struct {
	repo repository.AuditRepository
}

// NewAuditService creates a new AuditService instance
func NewAuditService(repo repository.AuditRepository) AuditService {
	return &auditService{repo: repo}
}

// GetAuditLogs returns the newest entries first, optionally narrowed to one
// client or one event kind.
func (s *auditService) GetAuditLogs(ctx context.Context, query AuditLogQuery) ([]AuditLogResponse, int64, error) {
	page, limit := normalizePage(query.Page, query.Limit)
	logs, total, err := s.repo.List(ctx, repository.AuditFilter{
		SocialCareID: query.SocialCareID,
		Action:       query.Action,
		Page:         page,
		Limit:        limit,
	})
	if err != nil {
		return nil, 0, err
	}

	res := make([]AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		userName := "System"
		userID := ""
		if l.User != nil {
			userName = l.User.Name
		}
		if l.UserID != nil {
			userID = l.UserID.String()
		}

		entry := AuditLogResponse{
			ID:         l.ID.String(),
			UserID:     userID,
			UserName:   userName,
			Action:     l.Action,
			EntityID:   l.EntityID,
			EntityName: l.EntityName,
			CreatedAt:  l.CreatedAt.Format(time.RFC3339),
		}
		if len(l.Details) > 0 {
			entry.Details = json.RawMessage(l.Details)
		}
		res = append(res, entry)
	}

	return res, total, nil
}

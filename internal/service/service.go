package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"carepackage/internal/clock"
	"carepackage/internal/lifecycle"
	"carepackage/internal/model"
	"carepackage/internal/repository"
	"carepackage/pkg/apperror"
	"carepackage/pkg/logger"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const dateLayout = "2006-01-02"

// Notifier receives committed lifecycle events. The websocket hub implements it.
type Notifier interface {
	Publish(event string, data map[string]interface{})
}

// Deps bundles the collaborators shared by the care package services.
type Deps struct {
	Referrals repository.ReferralRepository
	Elements  repository.ElementRepository
	Lookups   repository.LookupRepository
	Users     repository.UserRepository
	Audits    repository.AuditRepository
	Tx        repository.TransactionManager
	Clock     clock.Clock
	Notifier  Notifier
	Log       *logger.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = clock.System{}
	}
	if d.Log == nil {
		d.Log = logger.Nop()
	}
	return d
}

// commit saves the referral aggregate, runs extra writes and records events
// in one transaction. Events are published only after the commit succeeds.
func (d Deps) commit(ctx context.Context, actor lifecycle.Actor, ref *model.Referral, events []lifecycle.Event, extra func(txCtx context.Context) error) error {
	err := d.Tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := d.Referrals.Save(txCtx, ref); err != nil {
			return err
		}
		if extra != nil {
			if err := extra(txCtx); err != nil {
				return err
			}
		}
		for _, ev := range events {
			if err := d.record(txCtx, actor, ref, ev); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		d.Log.Error("failed to persist care package change", "referral_id", ref.ID, "actor_email", actor.Email, "error", err)
		return err
	}

	for _, ev := range events {
		d.Log.Info("care package event", "event", ev.Kind, "referral_id", ref.ID, "actor_email", actor.Email)
		if d.Notifier != nil {
			data := make(map[string]interface{}, len(ev.Metadata)+1)
			for k, v := range ev.Metadata {
				data[k] = v
			}
			data["social_care_id"] = ref.SocialCareID
			d.Notifier.Publish(ev.Kind, data)
		}
	}
	return nil
}

// record writes one audit row for ev.
func (d Deps) record(ctx context.Context, actor lifecycle.Actor, ref *model.Referral, ev lifecycle.Event) error {
	details, err := json.Marshal(ev.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode %s details: %w", ev.Kind, err)
	}

	entry := &model.AuditLog{
		Action:     ev.Kind,
		EntityID:   ref.SocialCareID,
		EntityName: ref.ResidentName,
		Details:    datatypes.JSON(details),
		CreatedAt:  d.Clock.Now(),
	}
	if actor.ID != uuid.Nil {
		id := actor.ID
		entry.UserID = &id
	}
	if err := d.Audits.Log(ctx, entry); err != nil {
		return fmt.Errorf("failed to record %s: %w", ev.Kind, err)
	}
	return nil
}

// findUser resolves a user by email. A missing user is returned as nil so the
// lifecycle layer reports it in its own precedence order.
func (d Deps) findUser(ctx context.Context, email string) (*model.User, error) {
	if strings.TrimSpace(email) == "" {
		return nil, nil
	}
	user, err := d.Users.GetByEmail(ctx, email)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, nil
	}
	return user, err
}

func parseDate(field, value string) (time.Time, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, apperror.Validation("%s must be a date in YYYY-MM-DD format", field)
	}
	return t, nil
}

func parseOptionalDate(field string, value *string) (*time.Time, error) {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil, nil
	}
	t, err := parseDate(field, *value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func formatDatePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(dateLayout)
	return &s
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}

func normalizePage(page, limit int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	return page, limit
}

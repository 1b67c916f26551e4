// Package lifecycle holds the care package state machines. Every operation
// works on an already-loaded aggregate, checks all of its preconditions
// before touching anything, and reports what happened as Events. Nothing here
// performs I/O; callers persist the aggregate and record the events.
package lifecycle

import (
	"time"

	"carepackage/internal/model"
	"carepackage/pkg/apperror"

	"github.com/google/uuid"
)

// Actor is the authenticated user invoking an operation.
type Actor struct {
	ID    uuid.UUID
	Email string
}

// Event is an auditable fact produced by an operation.
type Event struct {
	Kind     string
	Metadata map[string]interface{}
}

func newEvent(kind string, ref *model.Referral, kv ...interface{}) Event {
	meta := map[string]interface{}{"referral_id": ref.ID}
	for i := 0; i+1 < len(kv); i += 2 {
		if key, ok := kv[i].(string); ok {
			meta[key] = kv[i+1]
		}
	}
	return Event{Kind: kind, Metadata: meta}
}

func requireStatus(ref *model.Referral, want model.ReferralStatus) error {
	if ref.Status != want {
		return apperror.InvalidState("referral %d is %s, expected %s", ref.ID, ref.Status, want)
	}
	return nil
}

func requireBroker(ref *model.Referral, actor Actor) error {
	if !ref.IsAssignedBroker(actor.Email) {
		return apperror.Forbidden("Referral is not assigned to %s", actor.Email)
	}
	return nil
}

// requireEditable is the shared precondition of broker edits: the package is
// being worked on and the actor is its broker.
func requireEditable(ref *model.Referral, actor Actor) error {
	if err := requireStatus(ref, model.ReferralInProgress); err != nil {
		return err
	}
	return requireBroker(ref, actor)
}

func findElement(ref *model.Referral, elementID uint) (*model.ReferralElement, error) {
	re := ref.FindReferralElement(elementID)
	if re == nil || re.Element == nil {
		return nil, apperror.NotFound("element %d not found in referral %d", elementID, ref.ID)
	}
	return re, nil
}

func formatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

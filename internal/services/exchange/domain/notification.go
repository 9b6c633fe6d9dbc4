package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/skillswaphq/skillswap/internal/platform/id"
	"github.com/skillswaphq/skillswap/internal/services/exchange/storage"
)

// NotificationKind identifies one notification payload schema.
type NotificationKind string

const (
	// KindInvitationAccepted notifies a sender their invitation was accepted.
	KindInvitationAccepted NotificationKind = "invitation_accepted"
	// KindInvitationDeclined notifies a sender their invitation was declined.
	KindInvitationDeclined NotificationKind = "invitation_declined"
)

// InvitationAcceptedPayload is the typed payload for KindInvitationAccepted.
// ThreadID lets the UI deep-link directly into the provisioned conversation.
type InvitationAcceptedPayload struct {
	InvitationID  string `json:"invitation_id"`
	ThreadID      string `json:"thread_id"`
	Skill         string `json:"skill"`
	CounterpartID string `json:"counterpart_id"`
}

// InvitationDeclinedPayload is the typed payload for KindInvitationDeclined.
type InvitationDeclinedPayload struct {
	InvitationID  string `json:"invitation_id"`
	Skill         string `json:"skill"`
	CounterpartID string `json:"counterpart_id"`
}

// Notification captures one user-targeted notification item.
type Notification struct {
	ID              string
	RecipientUserID string
	Kind            NotificationKind
	PayloadJSON     string
	DedupeKey       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ReadAt          *time.Time
}

// TransitionDedupeKey derives the idempotency key for one invitation
// transition, so a partial-failure replay converges on the first appended
// notification instead of producing a second one.
func TransitionDedupeKey(invitationID string, kind NotificationKind) string {
	return "invitation:" + strings.TrimSpace(invitationID) + ":" + string(kind)
}

// Dispatcher appends notification records. It never updates existing ones;
// delivery to a device or session is a separate consumer-side concern.
type Dispatcher struct {
	store storage.Store
	clock func() time.Time
	newID func() (string, error)
}

// NewDispatcher constructs a dispatcher over the given store.
func NewDispatcher(store storage.Store, clock func() time.Time, newID func() (string, error)) *Dispatcher {
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = id.NewID
	}
	return &Dispatcher{store: store, clock: clock, newID: newID}
}

// Dispatch appends exactly one notification for the recipient and dedupe key.
// When a record with the same key already exists, the existing record is
// returned unchanged.
func (d *Dispatcher) Dispatch(ctx context.Context, recipientUserID string, kind NotificationKind, payload any, dedupeKey string) (Notification, error) {
	if d == nil || d.store == nil {
		return Notification{}, ErrStoreNotConfigured
	}
	recipientUserID = strings.TrimSpace(recipientUserID)
	if recipientUserID == "" {
		return Notification{}, ErrRecipientRequired
	}
	if kind == "" {
		return Notification{}, fmt.Errorf("notification kind is required")
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return Notification{}, fmt.Errorf("marshal notification payload: %w", err)
	}

	dedupeKey = strings.TrimSpace(dedupeKey)
	if dedupeKey != "" {
		existing, lookupErr := d.store.GetNotificationByRecipientAndDedupeKey(ctx, recipientUserID, dedupeKey)
		if lookupErr == nil {
			return notificationFromRecord(existing), nil
		}
		if !errors.Is(lookupErr, storage.ErrNotFound) {
			return Notification{}, fmt.Errorf("lookup notification by dedupe key: %w", lookupErr)
		}
	}

	notificationID, err := d.newID()
	if err != nil {
		return Notification{}, fmt.Errorf("generate notification id: %w", err)
	}
	now := d.clock().UTC()
	record := storage.NotificationRecord{
		ID:              notificationID,
		RecipientUserID: recipientUserID,
		Kind:            string(kind),
		PayloadJSON:     string(payloadJSON),
		DedupeKey:       dedupeKey,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	appendErr := d.store.AppendNotification(ctx, record)
	if appendErr == nil {
		return notificationFromRecord(record), nil
	}
	if dedupeKey != "" && errors.Is(appendErr, storage.ErrConflict) {
		existing, lookupErr := d.store.GetNotificationByRecipientAndDedupeKey(ctx, recipientUserID, dedupeKey)
		if lookupErr == nil {
			return notificationFromRecord(existing), nil
		}
		if errors.Is(lookupErr, storage.ErrNotFound) {
			return Notification{}, appendErr
		}
		return Notification{}, fmt.Errorf("lookup notification after conflict: %w", lookupErr)
	}
	return Notification{}, fmt.Errorf("append notification: %w", appendErr)
}

func notificationFromRecord(record storage.NotificationRecord) Notification {
	return Notification{
		ID:              record.ID,
		RecipientUserID: record.RecipientUserID,
		Kind:            NotificationKind(record.Kind),
		PayloadJSON:     record.PayloadJSON,
		DedupeKey:       record.DedupeKey,
		CreatedAt:       record.CreatedAt,
		UpdatedAt:       record.UpdatedAt,
		ReadAt:          record.ReadAt,
	}
}

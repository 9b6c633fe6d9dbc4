// Package storage defines the persistence boundary for the exchange service.
//
// The engine assumes per-record atomicity only: each operation below is a
// single conditional write or create-if-absent against one record, never a
// cross-table transaction.
package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates a requested record is missing.
	ErrNotFound = errors.New("record not found")
	// ErrConflict indicates a requested write conflicts with uniqueness constraints.
	ErrConflict = errors.New("record conflict")
)

// InvitationStatus identifies one invitation lifecycle state.
type InvitationStatus string

const (
	// InvitationStatusPending means the invitation awaits the recipient's decision.
	InvitationStatusPending InvitationStatus = "pending"
	// InvitationStatusAccepted means the recipient accepted; terminal.
	InvitationStatusAccepted InvitationStatus = "accepted"
	// InvitationStatusDeclined means the recipient declined; terminal.
	InvitationStatusDeclined InvitationStatus = "declined"
)

// ThreadStatus identifies one chat thread state.
type ThreadStatus string

const (
	// ThreadStatusActive is the default state for provisioned threads.
	ThreadStatusActive ThreadStatus = "active"
)

// InvitationRecord stores one skill-exchange invitation row.
type InvitationRecord struct {
	ID          string
	SenderID    string
	RecipientID string
	Skill       string
	Message     string
	Status      InvitationStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ThreadKey is the order-independent natural key for a chat thread.
// UserLo sorts lexically before UserHi regardless of which side initiated.
type ThreadKey struct {
	UserLo string
	UserHi string
	Skill  string
}

// ThreadRecord stores one chat thread row.
type ThreadRecord struct {
	ID        string
	UserLo    string
	UserHi    string
	Skill     string
	Status    ThreadStatus
	CreatedAt time.Time
}

// Key returns the natural key for this thread row.
func (r ThreadRecord) Key() ThreadKey {
	return ThreadKey{UserLo: r.UserLo, UserHi: r.UserHi, Skill: r.Skill}
}

// NotificationRecord stores one user notification inbox row.
type NotificationRecord struct {
	ID              string
	RecipientUserID string
	Kind            string
	PayloadJSON     string
	DedupeKey       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ReadAt          *time.Time
}

// NotificationPage is a paged recipient inbox view.
type NotificationPage struct {
	Notifications []NotificationRecord
	NextPageToken string
}

// Store is the persistence gateway consumed by the lifecycle engine.
type Store interface {
	CreateInvitation(ctx context.Context, record InvitationRecord) error
	GetInvitation(ctx context.Context, id string) (InvitationRecord, error)
	// UpdateInvitationStatus flips one invitation's status only when the
	// current status matches expectedStatus. It reports whether the write
	// happened; false with a nil error means another caller resolved the
	// invitation first.
	UpdateInvitationStatus(ctx context.Context, id string, newStatus InvitationStatus, expectedStatus InvitationStatus, updatedAt time.Time) (bool, error)
	ListInvitationsBySender(ctx context.Context, senderID string) ([]InvitationRecord, error)
	ListInvitationsByRecipient(ctx context.Context, recipientID string) ([]InvitationRecord, error)

	FindThreadByKey(ctx context.Context, key ThreadKey) (ThreadRecord, error)
	// CreateThread inserts one thread row; ErrConflict when the natural key
	// already has a thread.
	CreateThread(ctx context.Context, record ThreadRecord) error
	ListThreadsByUser(ctx context.Context, userID string) ([]ThreadRecord, error)

	// AppendNotification inserts one notification row; ErrConflict when the
	// recipient already has a row with the same non-empty dedupe key.
	AppendNotification(ctx context.Context, record NotificationRecord) error
	GetNotificationByRecipientAndDedupeKey(ctx context.Context, recipientUserID string, dedupeKey string) (NotificationRecord, error)
	ListNotificationsByRecipient(ctx context.Context, recipientUserID string, pageSize int, pageToken string) (NotificationPage, error)
	CountUnreadNotificationsByRecipient(ctx context.Context, recipientUserID string) (int, error)
	MarkNotificationRead(ctx context.Context, recipientUserID string, notificationID string, readAt time.Time) (NotificationRecord, error)
}

package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/skillswaphq/skillswap/internal/platform/id"
	"github.com/skillswaphq/skillswap/internal/services/exchange/storage"
)

var (
	// ErrStoreNotConfigured indicates the service is missing persistence wiring.
	ErrStoreNotConfigured = errors.New("exchange store is not configured")
	// ErrInvitationNotFound indicates the invitation id does not exist.
	ErrInvitationNotFound = errors.New("invitation not found")
	// ErrInvitationIDRequired indicates a missing invitation id.
	ErrInvitationIDRequired = errors.New("invitation id is required")
	// ErrActorRequired indicates a missing acting user id.
	ErrActorRequired = errors.New("acting user id is required")
	// ErrNotRecipient indicates the acting user is not the invitation recipient.
	ErrNotRecipient = errors.New("acting user is not the invitation recipient")
	// ErrInvalidDecision indicates an unknown respond decision.
	ErrInvalidDecision = errors.New("decision must be accept or decline")
	// ErrNotResolved indicates a replay was requested for a still-pending invitation.
	ErrNotResolved = errors.New("invitation is not resolved yet")
)

// Decision is the recipient's answer to a pending invitation.
type Decision string

const (
	// DecisionAccept resolves the invitation to Accepted.
	DecisionAccept Decision = "accept"
	// DecisionDecline resolves the invitation to Declined.
	DecisionDecline Decision = "decline"
)

// PartialFailureStage names the side effect that failed after the status write.
type PartialFailureStage string

const (
	// StageThread means thread provisioning failed.
	StageThread PartialFailureStage = "thread"
	// StageNotification means notification dispatch failed.
	StageNotification PartialFailureStage = "notification"
)

// PartialFailureError reports that the status transition committed but a
// dependent side effect did not. The status is the source of truth; callers
// retry the remaining side effects via ResumeResolved, never the status write.
type PartialFailureError struct {
	InvitationID string
	Stage        PartialFailureStage
	ThreadID     string
	Err          error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("invitation %s resolved but %s side effect failed: %v", e.InvitationID, e.Stage, e.Err)
}

func (e *PartialFailureError) Unwrap() error {
	return e.Err
}

// Outcome is the result of one respond (or replay) call.
type Outcome struct {
	Invitation     Invitation
	ThreadID       string
	NotificationID string
	// AlreadyResolved marks the benign no-op taken when the invitation was
	// resolved before this call, by a concurrent caller or a stale UI.
	AlreadyResolved bool
}

// RespondInput identifies one recipient decision on one invitation.
type RespondInput struct {
	InvitationID string
	Decision     Decision
	ActingUserID string
}

// Service owns the invitation state machine and orchestrates the side
// effects that accompany each transition. It holds no state across calls;
// every observable effect lives in the store.
type Service struct {
	store       storage.Store
	provisioner *ThreadProvisioner
	dispatcher  *Dispatcher
	clock       func() time.Time
	newID       func() (string, error)
}

// NewService constructs the exchange lifecycle engine.
func NewService(store storage.Store, clock func() time.Time, newID func() (string, error)) *Service {
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = id.NewID
	}
	return &Service{
		store:       store,
		provisioner: NewThreadProvisioner(store, clock, newID),
		dispatcher:  NewDispatcher(store, clock, newID),
		clock:       clock,
		newID:       newID,
	}
}

// CreateInvitation creates one pending invitation from sender to recipient.
func (s *Service) CreateInvitation(ctx context.Context, input CreateInvitationInput) (Invitation, error) {
	if s == nil || s.store == nil {
		return Invitation{}, ErrStoreNotConfigured
	}
	normalized, err := NormalizeCreateInvitationInput(input)
	if err != nil {
		return Invitation{}, err
	}

	invitationID, err := s.newID()
	if err != nil {
		return Invitation{}, fmt.Errorf("generate invitation id: %w", err)
	}
	now := s.nowUTC()
	invitation := Invitation{
		ID:          invitationID,
		SenderID:    normalized.SenderID,
		RecipientID: normalized.RecipientID,
		Skill:       normalized.Skill,
		Message:     normalized.Message,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateInvitation(ctx, invitationToRecord(invitation)); err != nil {
		return Invitation{}, fmt.Errorf("create invitation: %w", err)
	}
	return invitation, nil
}

// Respond applies the recipient's decision to one pending invitation.
//
// The conditional only-if-Pending status write is the single serialization
// point: of two concurrent calls exactly one flips the status, and the loser
// comes back with an AlreadyResolved outcome instead of re-running side
// effects. On accept the thread is provisioned (or reused) before the sender
// is notified; failures after the status write surface as
// *PartialFailureError so only steps 2-3 are replayed.
func (s *Service) Respond(ctx context.Context, input RespondInput) (Outcome, error) {
	if s == nil || s.store == nil {
		return Outcome{}, ErrStoreNotConfigured
	}
	invitationID := strings.TrimSpace(input.InvitationID)
	if invitationID == "" {
		return Outcome{}, ErrInvitationIDRequired
	}
	actingUserID := strings.TrimSpace(input.ActingUserID)
	if actingUserID == "" {
		return Outcome{}, ErrActorRequired
	}
	if input.Decision != DecisionAccept && input.Decision != DecisionDecline {
		return Outcome{}, ErrInvalidDecision
	}

	invitation, err := s.getInvitation(ctx, invitationID)
	if err != nil {
		return Outcome{}, err
	}
	if invitation.RecipientID != actingUserID {
		return Outcome{}, ErrNotRecipient
	}
	if invitation.Status != StatusPending {
		return s.alreadyResolvedOutcome(ctx, invitation)
	}

	newStatus := StatusAccepted
	if input.Decision == DecisionDecline {
		newStatus = StatusDeclined
	}
	now := s.nowUTC()
	wrote, err := s.store.UpdateInvitationStatus(
		ctx,
		invitation.ID,
		storage.InvitationStatus(StatusLabel(newStatus)),
		storage.InvitationStatusPending,
		now,
	)
	if err != nil {
		return Outcome{}, fmt.Errorf("update invitation status: %w", err)
	}
	if !wrote {
		// Lost the race; re-read and report the winner's state.
		current, readErr := s.getInvitation(ctx, invitationID)
		if readErr != nil {
			return Outcome{}, readErr
		}
		return s.alreadyResolvedOutcome(ctx, current)
	}
	invitation.Status = newStatus
	invitation.UpdatedAt = now

	return s.applySideEffects(ctx, invitation)
}

// ResumeResolved replays the side effects for an invitation that already
// reached a terminal status, recovering from a partial failure. The status
// write is never repeated; both side effects are idempotent, so replays
// converge on the original thread and notification.
func (s *Service) ResumeResolved(ctx context.Context, invitationID string, actingUserID string) (Outcome, error) {
	if s == nil || s.store == nil {
		return Outcome{}, ErrStoreNotConfigured
	}
	invitationID = strings.TrimSpace(invitationID)
	if invitationID == "" {
		return Outcome{}, ErrInvitationIDRequired
	}
	actingUserID = strings.TrimSpace(actingUserID)
	if actingUserID == "" {
		return Outcome{}, ErrActorRequired
	}

	invitation, err := s.getInvitation(ctx, invitationID)
	if err != nil {
		return Outcome{}, err
	}
	if invitation.RecipientID != actingUserID {
		return Outcome{}, ErrNotRecipient
	}
	if !invitation.Status.Terminal() {
		return Outcome{}, ErrNotResolved
	}
	return s.applySideEffects(ctx, invitation)
}

// applySideEffects runs thread provisioning (accept only) and notification
// dispatch for a resolved invitation. Ordering is fixed: the thread must
// exist before the notification referencing it is appended.
func (s *Service) applySideEffects(ctx context.Context, invitation Invitation) (Outcome, error) {
	outcome := Outcome{Invitation: invitation}

	switch invitation.Status {
	case StatusAccepted:
		thread, err := s.provisioner.GetOrCreate(ctx, invitation.SenderID, invitation.RecipientID, invitation.Skill)
		if err != nil {
			return outcome, &PartialFailureError{
				InvitationID: invitation.ID,
				Stage:        StageThread,
				Err:          err,
			}
		}
		outcome.ThreadID = thread.ID

		payload := InvitationAcceptedPayload{
			InvitationID:  invitation.ID,
			ThreadID:      thread.ID,
			Skill:         invitation.Skill,
			CounterpartID: invitation.RecipientID,
		}
		notification, err := s.dispatcher.Dispatch(
			ctx,
			invitation.SenderID,
			KindInvitationAccepted,
			payload,
			TransitionDedupeKey(invitation.ID, KindInvitationAccepted),
		)
		if err != nil {
			return outcome, &PartialFailureError{
				InvitationID: invitation.ID,
				Stage:        StageNotification,
				ThreadID:     thread.ID,
				Err:          err,
			}
		}
		outcome.NotificationID = notification.ID
		return outcome, nil

	case StatusDeclined:
		payload := InvitationDeclinedPayload{
			InvitationID:  invitation.ID,
			Skill:         invitation.Skill,
			CounterpartID: invitation.RecipientID,
		}
		notification, err := s.dispatcher.Dispatch(
			ctx,
			invitation.SenderID,
			KindInvitationDeclined,
			payload,
			TransitionDedupeKey(invitation.ID, KindInvitationDeclined),
		)
		if err != nil {
			return outcome, &PartialFailureError{
				InvitationID: invitation.ID,
				Stage:        StageNotification,
				Err:          err,
			}
		}
		outcome.NotificationID = notification.ID
		return outcome, nil

	default:
		return outcome, ErrNotResolved
	}
}

// alreadyResolvedOutcome reports the benign no-op for a non-pending
// invitation. For an accepted invitation the existing thread id is included
// so the caller can land in the same conversation as the race winner.
func (s *Service) alreadyResolvedOutcome(ctx context.Context, invitation Invitation) (Outcome, error) {
	outcome := Outcome{Invitation: invitation, AlreadyResolved: true}
	if invitation.Status != StatusAccepted {
		return outcome, nil
	}
	key, err := NewThreadKey(invitation.SenderID, invitation.RecipientID, invitation.Skill)
	if err != nil {
		return outcome, nil
	}
	thread, err := s.store.FindThreadByKey(ctx, key)
	if err == nil {
		outcome.ThreadID = thread.ID
	}
	// A missing thread here means the winner hit a partial failure; the
	// outcome still reports the resolved status.
	return outcome, nil
}

// GetInvitation loads one invitation by id.
func (s *Service) GetInvitation(ctx context.Context, invitationID string) (Invitation, error) {
	if s == nil || s.store == nil {
		return Invitation{}, ErrStoreNotConfigured
	}
	invitationID = strings.TrimSpace(invitationID)
	if invitationID == "" {
		return Invitation{}, ErrInvitationIDRequired
	}
	return s.getInvitation(ctx, invitationID)
}

// ListSentInvitations lists invitations the user created, newest first.
func (s *Service) ListSentInvitations(ctx context.Context, userID string) ([]Invitation, error) {
	if s == nil || s.store == nil {
		return nil, ErrStoreNotConfigured
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrActorRequired
	}
	records, err := s.store.ListInvitationsBySender(ctx, userID)
	if err != nil {
		return nil, err
	}
	return invitationsFromRecords(records), nil
}

// ListReceivedInvitations lists invitations addressed to the user, newest first.
func (s *Service) ListReceivedInvitations(ctx context.Context, userID string) ([]Invitation, error) {
	if s == nil || s.store == nil {
		return nil, ErrStoreNotConfigured
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrActorRequired
	}
	records, err := s.store.ListInvitationsByRecipient(ctx, userID)
	if err != nil {
		return nil, err
	}
	return invitationsFromRecords(records), nil
}

// ListThreads lists threads the user participates in, newest first.
func (s *Service) ListThreads(ctx context.Context, userID string) ([]Thread, error) {
	if s == nil || s.store == nil {
		return nil, ErrStoreNotConfigured
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrActorRequired
	}
	records, err := s.store.ListThreadsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	threads := make([]Thread, 0, len(records))
	for _, record := range records {
		threads = append(threads, threadFromRecord(record))
	}
	return threads, nil
}

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// InboxPage is a paged recipient inbox view.
type InboxPage struct {
	Notifications []Notification
	NextPageToken string
}

// ListInboxInput configures recipient inbox listing.
type ListInboxInput struct {
	RecipientUserID string
	PageSize        int
	PageToken       string
}

// ListInbox lists recipient inbox notifications newest first.
func (s *Service) ListInbox(ctx context.Context, input ListInboxInput) (InboxPage, error) {
	if s == nil || s.store == nil {
		return InboxPage{}, ErrStoreNotConfigured
	}
	recipientUserID := strings.TrimSpace(input.RecipientUserID)
	if recipientUserID == "" {
		return InboxPage{}, ErrRecipientRequired
	}
	pageSize := input.PageSize
	switch {
	case pageSize <= 0:
		pageSize = defaultPageSize
	case pageSize > maxPageSize:
		pageSize = maxPageSize
	}
	page, err := s.store.ListNotificationsByRecipient(ctx, recipientUserID, pageSize, strings.TrimSpace(input.PageToken))
	if err != nil {
		return InboxPage{}, err
	}
	notifications := make([]Notification, 0, len(page.Notifications))
	for _, record := range page.Notifications {
		notifications = append(notifications, notificationFromRecord(record))
	}
	return InboxPage{Notifications: notifications, NextPageToken: page.NextPageToken}, nil
}

// CountUnread returns the unread inbox count for one recipient.
func (s *Service) CountUnread(ctx context.Context, recipientUserID string) (int, error) {
	if s == nil || s.store == nil {
		return 0, ErrStoreNotConfigured
	}
	recipientUserID = strings.TrimSpace(recipientUserID)
	if recipientUserID == "" {
		return 0, ErrRecipientRequired
	}
	return s.store.CountUnreadNotificationsByRecipient(ctx, recipientUserID)
}

// MarkRead marks one recipient notification as read.
func (s *Service) MarkRead(ctx context.Context, recipientUserID string, notificationID string) (Notification, error) {
	if s == nil || s.store == nil {
		return Notification{}, ErrStoreNotConfigured
	}
	recipientUserID = strings.TrimSpace(recipientUserID)
	if recipientUserID == "" {
		return Notification{}, ErrRecipientRequired
	}
	notificationID = strings.TrimSpace(notificationID)
	if notificationID == "" {
		return Notification{}, fmt.Errorf("notification id is required")
	}
	record, err := s.store.MarkNotificationRead(ctx, recipientUserID, notificationID, s.nowUTC())
	if err != nil {
		return Notification{}, err
	}
	return notificationFromRecord(record), nil
}

func (s *Service) getInvitation(ctx context.Context, invitationID string) (Invitation, error) {
	record, err := s.store.GetInvitation(ctx, invitationID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Invitation{}, ErrInvitationNotFound
		}
		return Invitation{}, fmt.Errorf("get invitation: %w", err)
	}
	return invitationFromRecord(record), nil
}

func (s *Service) nowUTC() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock().UTC()
}

func invitationToRecord(invitation Invitation) storage.InvitationRecord {
	return storage.InvitationRecord{
		ID:          invitation.ID,
		SenderID:    invitation.SenderID,
		RecipientID: invitation.RecipientID,
		Skill:       invitation.Skill,
		Message:     invitation.Message,
		Status:      storage.InvitationStatus(StatusLabel(invitation.Status)),
		CreatedAt:   invitation.CreatedAt,
		UpdatedAt:   invitation.UpdatedAt,
	}
}

func invitationFromRecord(record storage.InvitationRecord) Invitation {
	return Invitation{
		ID:          record.ID,
		SenderID:    record.SenderID,
		RecipientID: record.RecipientID,
		Skill:       record.Skill,
		Message:     record.Message,
		Status:      StatusFromLabel(string(record.Status)),
		CreatedAt:   record.CreatedAt,
		UpdatedAt:   record.UpdatedAt,
	}
}

func invitationsFromRecords(records []storage.InvitationRecord) []Invitation {
	invitations := make([]Invitation, 0, len(records))
	for _, record := range records {
		invitations = append(invitations, invitationFromRecord(record))
	}
	return invitations
}

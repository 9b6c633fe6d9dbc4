package domain

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestCreateInvitationPersistsPending(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	store := newFakeStore()
	svc := NewService(store, fixedClock(now), sequentialIDGenerator("inv-1"))

	invitation, err := mustCreatePending(svc, "u1", "u2", "Guitar")
	if err != nil {
		t.Fatalf("create invitation: %v", err)
	}
	if invitation.ID != "inv-1" {
		t.Fatalf("invitation id = %q, want %q", invitation.ID, "inv-1")
	}
	if invitation.Status != StatusPending {
		t.Fatalf("status = %v, want pending", invitation.Status)
	}
	if !invitation.CreatedAt.Equal(now) || !invitation.UpdatedAt.Equal(now) {
		t.Fatalf("timestamps = %v/%v, want %v", invitation.CreatedAt, invitation.UpdatedAt, now)
	}

	stored, err := svc.GetInvitation(context.Background(), "inv-1")
	if err != nil {
		t.Fatalf("get invitation: %v", err)
	}
	if stored.Status != StatusPending {
		t.Fatalf("stored status = %v, want pending", stored.Status)
	}
}

func TestCreateInvitationRejectsSelf(t *testing.T) {
	t.Parallel()

	svc := NewService(newFakeStore(), nil, sequentialIDGenerator("inv-1"))
	if _, err := mustCreatePending(svc, "u1", "u1", "Guitar"); !errors.Is(err, ErrSelfInvitation) {
		t.Fatalf("error = %v, want %v", err, ErrSelfInvitation)
	}
}

func TestRespondAcceptHappyPath(t *testing.T) {
	t.Parallel()

	created := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	resolved := created.Add(5 * time.Minute)
	store := newFakeStore()
	svc := NewService(store, fixedClock(created), sequentialIDGenerator("inv-1", "thread-1", "notif-1"))

	if _, err := mustCreatePending(svc, "u1", "u2", "Guitar"); err != nil {
		t.Fatalf("create invitation: %v", err)
	}
	svc.clock = fixedClock(resolved)
	svc.provisioner.clock = fixedClock(resolved)
	svc.dispatcher.clock = fixedClock(resolved)

	outcome, err := svc.Respond(context.Background(), RespondInput{
		InvitationID: "inv-1",
		Decision:     DecisionAccept,
		ActingUserID: "u2",
	})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if outcome.AlreadyResolved {
		t.Fatal("expected fresh transition, not already-resolved")
	}
	if outcome.Invitation.Status != StatusAccepted {
		t.Fatalf("status = %v, want accepted", outcome.Invitation.Status)
	}
	if outcome.ThreadID != "thread-1" {
		t.Fatalf("thread id = %q, want %q", outcome.ThreadID, "thread-1")
	}
	if outcome.NotificationID != "notif-1" {
		t.Fatalf("notification id = %q, want %q", outcome.NotificationID, "notif-1")
	}

	// The notification is addressed to the sender and deep-links the thread.
	record, err := store.GetNotificationByRecipientAndDedupeKey(context.Background(), "u1", TransitionDedupeKey("inv-1", KindInvitationAccepted))
	if err != nil {
		t.Fatalf("lookup notification: %v", err)
	}
	if record.Kind != string(KindInvitationAccepted) {
		t.Fatalf("kind = %q, want %q", record.Kind, KindInvitationAccepted)
	}
	var payload InvitationAcceptedPayload
	if err := json.Unmarshal([]byte(record.PayloadJSON), &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.ThreadID != "thread-1" || payload.InvitationID != "inv-1" || payload.Skill != "Guitar" {
		t.Fatalf("unexpected payload %+v", payload)
	}
	if payload.CounterpartID != "u2" {
		t.Fatalf("counterpart = %q, want %q", payload.CounterpartID, "u2")
	}

	// Side-effect ordering: the thread cannot predate the status write.
	threads, err := svc.ListThreads(context.Background(), "u1")
	if err != nil {
		t.Fatalf("list threads: %v", err)
	}
	if len(threads) != 1 {
		t.Fatalf("thread count = %d, want 1", len(threads))
	}
	if threads[0].CreatedAt.Before(outcome.Invitation.UpdatedAt) {
		t.Fatalf("thread created %v before status write %v", threads[0].CreatedAt, outcome.Invitation.UpdatedAt)
	}
}

func TestRespondDeclineSkipsProvisioning(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := NewService(store, nil, sequentialIDGenerator("inv-1", "notif-1"))

	if _, err := mustCreatePending(svc, "u1", "u2", "Guitar"); err != nil {
		t.Fatalf("create invitation: %v", err)
	}

	outcome, err := svc.Respond(context.Background(), RespondInput{
		InvitationID: "inv-1",
		Decision:     DecisionDecline,
		ActingUserID: "u2",
	})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	if outcome.Invitation.Status != StatusDeclined {
		t.Fatalf("status = %v, want declined", outcome.Invitation.Status)
	}
	if outcome.ThreadID != "" {
		t.Fatalf("expected no thread, got %q", outcome.ThreadID)
	}
	if store.threadCount() != 0 {
		t.Fatalf("thread count = %d, want 0", store.threadCount())
	}
	if store.notificationCount() != 1 {
		t.Fatalf("notification count = %d, want 1", store.notificationCount())
	}

	record, err := store.GetNotificationByRecipientAndDedupeKey(context.Background(), "u1", TransitionDedupeKey("inv-1", KindInvitationDeclined))
	if err != nil {
		t.Fatalf("lookup notification: %v", err)
	}
	if record.Kind != string(KindInvitationDeclined) {
		t.Fatalf("kind = %q, want %q", record.Kind, KindInvitationDeclined)
	}
}

func TestRespondValidation(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := NewService(store, nil, sequentialIDGenerator("inv-1"))
	if _, err := mustCreatePending(svc, "u1", "u2", "Guitar"); err != nil {
		t.Fatalf("create invitation: %v", err)
	}

	tests := []struct {
		name    string
		input   RespondInput
		wantErr error
	}{
		{
			name:    "unknown invitation",
			input:   RespondInput{InvitationID: "inv-404", Decision: DecisionAccept, ActingUserID: "u2"},
			wantErr: ErrInvitationNotFound,
		},
		{
			name:    "third party actor",
			input:   RespondInput{InvitationID: "inv-1", Decision: DecisionAccept, ActingUserID: "u3"},
			wantErr: ErrNotRecipient,
		},
		{
			name:    "sender cannot respond",
			input:   RespondInput{InvitationID: "inv-1", Decision: DecisionAccept, ActingUserID: "u1"},
			wantErr: ErrNotRecipient,
		},
		{
			name:    "invalid decision",
			input:   RespondInput{InvitationID: "inv-1", Decision: "maybe", ActingUserID: "u2"},
			wantErr: ErrInvalidDecision,
		},
		{
			name:    "missing invitation id",
			input:   RespondInput{Decision: DecisionAccept, ActingUserID: "u2"},
			wantErr: ErrInvitationIDRequired,
		},
		{
			name:    "missing actor",
			input:   RespondInput{InvitationID: "inv-1", Decision: DecisionAccept},
			wantErr: ErrActorRequired,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Respond(context.Background(), tc.input); !errors.Is(err, tc.wantErr) {
				t.Fatalf("error = %v, want %v", err, tc.wantErr)
			}
		})
	}

	// Validation failures perform no mutation and no side effect.
	invitation, err := svc.GetInvitation(context.Background(), "inv-1")
	if err != nil {
		t.Fatalf("get invitation: %v", err)
	}
	if invitation.Status != StatusPending {
		t.Fatalf("status = %v, want pending", invitation.Status)
	}
	if store.threadCount() != 0 || store.notificationCount() != 0 {
		t.Fatalf("side effects after validation failures: %d threads, %d notifications", store.threadCount(), store.notificationCount())
	}
}

func TestRespondSecondCallIsBenignNoOp(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := NewService(store, nil, sequentialIDGenerator("inv-1", "thread-1", "notif-1"))
	if _, err := mustCreatePending(svc, "u1", "u2", "Guitar"); err != nil {
		t.Fatalf("create invitation: %v", err)
	}

	first, err := svc.Respond(context.Background(), RespondInput{InvitationID: "inv-1", Decision: DecisionAccept, ActingUserID: "u2"})
	if err != nil {
		t.Fatalf("first respond: %v", err)
	}

	second, err := svc.Respond(context.Background(), RespondInput{InvitationID: "inv-1", Decision: DecisionDecline, ActingUserID: "u2"})
	if err != nil {
		t.Fatalf("second respond: %v", err)
	}
	if !second.AlreadyResolved {
		t.Fatal("expected already-resolved outcome")
	}
	if second.Invitation.Status != StatusAccepted {
		t.Fatalf("status = %v, want accepted (terminal states are immutable)", second.Invitation.Status)
	}
	if second.ThreadID != first.ThreadID {
		t.Fatalf("thread id = %q, want winner's %q", second.ThreadID, first.ThreadID)
	}
	if store.threadCount() != 1 || store.notificationCount() != 1 {
		t.Fatalf("records after no-op: %d threads, %d notifications", store.threadCount(), store.notificationCount())
	}
}

func TestRespondConcurrentRaceSingleTransition(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := NewService(store, nil, sequentialIDGenerator("inv-1", "thread-a", "notif-a", "thread-b", "notif-b"))
	if _, err := mustCreatePending(svc, "u1", "u2", "Guitar"); err != nil {
		t.Fatalf("create invitation: %v", err)
	}

	const callers = 2
	outcomes := make([]Outcome, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i], errs[i] = svc.Respond(context.Background(), RespondInput{
				InvitationID: "inv-1",
				Decision:     DecisionAccept,
				ActingUserID: "u2",
			})
		}()
	}
	wg.Wait()

	winners := 0
	var winnerThreadID string
	for i := 0; i < callers; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		if !outcomes[i].AlreadyResolved {
			winners++
			winnerThreadID = outcomes[i].ThreadID
		}
		if outcomes[i].Invitation.Status != StatusAccepted {
			t.Fatalf("caller %d status = %v, want accepted", i, outcomes[i].Invitation.Status)
		}
	}
	if winners != 1 {
		t.Fatalf("winners = %d, want exactly 1", winners)
	}
	if winnerThreadID == "" {
		t.Fatal("winner outcome is missing the thread id")
	}
	// The loser may observe the terminal status before the winner finishes
	// provisioning, so its thread id is either empty or the winner's.
	for i := 0; i < callers; i++ {
		if outcomes[i].AlreadyResolved && outcomes[i].ThreadID != "" && outcomes[i].ThreadID != winnerThreadID {
			t.Fatalf("caller %d thread id = %q, want %q", i, outcomes[i].ThreadID, winnerThreadID)
		}
	}
	if store.threadCount() != 1 {
		t.Fatalf("thread count = %d, want 1", store.threadCount())
	}
	if store.notificationCount() != 1 {
		t.Fatalf("notification count = %d, want 1", store.notificationCount())
	}
}

func TestRespondReusesThreadForRepeatPairAndSkill(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := NewService(store, nil, sequentialIDGenerator("inv-1", "thread-1", "notif-1", "inv-2", "thread-2", "notif-2"))

	if _, err := mustCreatePending(svc, "u1", "u2", "Guitar"); err != nil {
		t.Fatalf("create first invitation: %v", err)
	}
	first, err := svc.Respond(context.Background(), RespondInput{InvitationID: "inv-1", Decision: DecisionAccept, ActingUserID: "u2"})
	if err != nil {
		t.Fatalf("accept first invitation: %v", err)
	}

	if _, err := mustCreatePending(svc, "u1", "u2", "Guitar"); err != nil {
		t.Fatalf("create second invitation: %v", err)
	}
	second, err := svc.Respond(context.Background(), RespondInput{InvitationID: "inv-2", Decision: DecisionAccept, ActingUserID: "u2"})
	if err != nil {
		t.Fatalf("accept second invitation: %v", err)
	}

	if second.ThreadID != first.ThreadID {
		t.Fatalf("thread id = %q, want reused %q", second.ThreadID, first.ThreadID)
	}
	if store.threadCount() != 1 {
		t.Fatalf("thread count = %d, want 1", store.threadCount())
	}
	// Each transition still notifies the sender once.
	if store.notificationCount() != 2 {
		t.Fatalf("notification count = %d, want 2", store.notificationCount())
	}
}

func TestRespondPartialFailureOnThreadThenResume(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := NewService(store, nil, sequentialIDGenerator("inv-1", "thread-1", "thread-2", "notif-1"))
	if _, err := mustCreatePending(svc, "u1", "u2", "Guitar"); err != nil {
		t.Fatalf("create invitation: %v", err)
	}

	storeDown := errors.New("store unreachable")
	store.failCreateThread = storeDown

	_, err := svc.Respond(context.Background(), RespondInput{InvitationID: "inv-1", Decision: DecisionAccept, ActingUserID: "u2"})
	var partial *PartialFailureError
	if !errors.As(err, &partial) {
		t.Fatalf("error = %v, want partial failure", err)
	}
	if partial.Stage != StageThread {
		t.Fatalf("stage = %q, want %q", partial.Stage, StageThread)
	}
	if !errors.Is(err, storeDown) {
		t.Fatalf("expected cause %v in chain, got %v", storeDown, err)
	}

	// The status write is the source of truth and must have survived.
	invitation, err := svc.GetInvitation(context.Background(), "inv-1")
	if err != nil {
		t.Fatalf("get invitation: %v", err)
	}
	if invitation.Status != StatusAccepted {
		t.Fatalf("status = %v, want accepted", invitation.Status)
	}

	store.failCreateThread = nil
	outcome, err := svc.ResumeResolved(context.Background(), "inv-1", "u2")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if outcome.ThreadID == "" {
		t.Fatal("expected thread id after resume")
	}
	if outcome.NotificationID == "" {
		t.Fatal("expected notification id after resume")
	}
	if store.threadCount() != 1 || store.notificationCount() != 1 {
		t.Fatalf("records after resume: %d threads, %d notifications", store.threadCount(), store.notificationCount())
	}
}

func TestRespondPartialFailureOnNotificationThenResume(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := NewService(store, nil, sequentialIDGenerator("inv-1", "thread-1", "notif-1", "notif-2"))
	if _, err := mustCreatePending(svc, "u1", "u2", "Guitar"); err != nil {
		t.Fatalf("create invitation: %v", err)
	}

	dispatchDown := errors.New("dispatch unavailable")
	store.failAppendNotification = dispatchDown

	_, err := svc.Respond(context.Background(), RespondInput{InvitationID: "inv-1", Decision: DecisionAccept, ActingUserID: "u2"})
	var partial *PartialFailureError
	if !errors.As(err, &partial) {
		t.Fatalf("error = %v, want partial failure", err)
	}
	if partial.Stage != StageNotification {
		t.Fatalf("stage = %q, want %q", partial.Stage, StageNotification)
	}
	if partial.ThreadID != "thread-1" {
		t.Fatalf("partial thread id = %q, want %q", partial.ThreadID, "thread-1")
	}

	store.failAppendNotification = nil
	outcome, err := svc.ResumeResolved(context.Background(), "inv-1", "u2")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if outcome.ThreadID != "thread-1" {
		t.Fatalf("resume thread id = %q, want original %q", outcome.ThreadID, "thread-1")
	}
	if store.notificationCount() != 1 {
		t.Fatalf("notification count = %d, want 1", store.notificationCount())
	}

	// A second replay converges on the same notification via the dedupe key.
	again, err := svc.ResumeResolved(context.Background(), "inv-1", "u2")
	if err != nil {
		t.Fatalf("second resume: %v", err)
	}
	if again.NotificationID != outcome.NotificationID {
		t.Fatalf("replay notification id = %q, want %q", again.NotificationID, outcome.NotificationID)
	}
	if store.notificationCount() != 1 {
		t.Fatalf("notification count after replay = %d, want 1", store.notificationCount())
	}
}

func TestResumeResolvedRequiresTerminalStatus(t *testing.T) {
	t.Parallel()

	svc := NewService(newFakeStore(), nil, sequentialIDGenerator("inv-1"))
	if _, err := mustCreatePending(svc, "u1", "u2", "Guitar"); err != nil {
		t.Fatalf("create invitation: %v", err)
	}
	if _, err := svc.ResumeResolved(context.Background(), "inv-1", "u2"); !errors.Is(err, ErrNotResolved) {
		t.Fatalf("error = %v, want %v", err, ErrNotResolved)
	}
	if _, err := svc.ResumeResolved(context.Background(), "inv-1", "u3"); !errors.Is(err, ErrNotRecipient) {
		t.Fatalf("error = %v, want %v", err, ErrNotRecipient)
	}
}

func TestInboxListingAndMarkRead(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	svc := NewService(store, nil, sequentialIDGenerator("inv-1", "notif-1"))
	if _, err := mustCreatePending(svc, "u1", "u2", "Guitar"); err != nil {
		t.Fatalf("create invitation: %v", err)
	}
	if _, err := svc.Respond(context.Background(), RespondInput{InvitationID: "inv-1", Decision: DecisionDecline, ActingUserID: "u2"}); err != nil {
		t.Fatalf("respond: %v", err)
	}

	page, err := svc.ListInbox(context.Background(), ListInboxInput{RecipientUserID: "u1"})
	if err != nil {
		t.Fatalf("list inbox: %v", err)
	}
	if len(page.Notifications) != 1 {
		t.Fatalf("inbox size = %d, want 1", len(page.Notifications))
	}
	if page.Notifications[0].ReadAt != nil {
		t.Fatal("expected unread notification")
	}

	unread, err := svc.CountUnread(context.Background(), "u1")
	if err != nil {
		t.Fatalf("count unread: %v", err)
	}
	if unread != 1 {
		t.Fatalf("unread = %d, want 1", unread)
	}

	marked, err := svc.MarkRead(context.Background(), "u1", page.Notifications[0].ID)
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if marked.ReadAt == nil {
		t.Fatal("expected read timestamp")
	}

	unread, err = svc.CountUnread(context.Background(), "u1")
	if err != nil {
		t.Fatalf("count unread after mark: %v", err)
	}
	if unread != 0 {
		t.Fatalf("unread after mark = %d, want 0", unread)
	}
}

func TestListInvitationsByRole(t *testing.T) {
	t.Parallel()

	svc := NewService(newFakeStore(), nil, sequentialIDGenerator("inv-1", "inv-2"))
	if _, err := mustCreatePending(svc, "u1", "u2", "Guitar"); err != nil {
		t.Fatalf("create first: %v", err)
	}
	if _, err := mustCreatePending(svc, "u2", "u1", "Piano"); err != nil {
		t.Fatalf("create second: %v", err)
	}

	sent, err := svc.ListSentInvitations(context.Background(), "u1")
	if err != nil {
		t.Fatalf("list sent: %v", err)
	}
	if len(sent) != 1 || sent[0].ID != "inv-1" {
		t.Fatalf("unexpected sent list %+v", sent)
	}

	received, err := svc.ListReceivedInvitations(context.Background(), "u1")
	if err != nil {
		t.Fatalf("list received: %v", err)
	}
	if len(received) != 1 || received[0].ID != "inv-2" {
		t.Fatalf("unexpected received list %+v", received)
	}
}

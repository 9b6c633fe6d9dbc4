package domain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/skillswaphq/skillswap/internal/services/exchange/storage"
)

func fixedClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func sequentialIDGenerator(ids ...string) func() (string, error) {
	queue := append([]string(nil), ids...)
	index := 0
	var mu sync.Mutex
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if index >= len(queue) {
			return "", errors.New("id generator exhausted")
		}
		value := queue[index]
		index++
		return value, nil
	}
}

// fakeStore is an in-memory storage.Store with the same conditional-write
// and unique-key semantics as the SQLite implementation.
type fakeStore struct {
	mu            sync.Mutex
	invitations   map[string]storage.InvitationRecord
	threads       map[storage.ThreadKey]storage.ThreadRecord
	notifications map[string]storage.NotificationRecord
	dedupeIndex   map[string]string

	failCreateThread       error
	failFindThread         error
	failAppendNotification error
	// findThreadMisses forces that many FindThreadByKey calls to miss,
	// simulating a lookup that raced ahead of another caller's insert.
	findThreadMisses int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		invitations:   make(map[string]storage.InvitationRecord),
		threads:       make(map[storage.ThreadKey]storage.ThreadRecord),
		notifications: make(map[string]storage.NotificationRecord),
		dedupeIndex:   make(map[string]string),
	}
}

func (s *fakeStore) threadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.threads)
}

func (s *fakeStore) notificationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.notifications)
}

func (s *fakeStore) CreateInvitation(_ context.Context, record storage.InvitationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.invitations[record.ID]; ok {
		return storage.ErrConflict
	}
	s.invitations[record.ID] = record
	return nil
}

func (s *fakeStore) GetInvitation(_ context.Context, id string) (storage.InvitationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.invitations[id]
	if !ok {
		return storage.InvitationRecord{}, storage.ErrNotFound
	}
	return record, nil
}

func (s *fakeStore) UpdateInvitationStatus(_ context.Context, id string, newStatus storage.InvitationStatus, expectedStatus storage.InvitationStatus, updatedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.invitations[id]
	if !ok || record.Status != expectedStatus {
		return false, nil
	}
	record.Status = newStatus
	record.UpdatedAt = updatedAt.UTC()
	s.invitations[id] = record
	return true, nil
}

func (s *fakeStore) ListInvitationsBySender(_ context.Context, senderID string) ([]storage.InvitationRecord, error) {
	return s.listInvitations(func(r storage.InvitationRecord) bool { return r.SenderID == senderID }), nil
}

func (s *fakeStore) ListInvitationsByRecipient(_ context.Context, recipientID string) ([]storage.InvitationRecord, error) {
	return s.listInvitations(func(r storage.InvitationRecord) bool { return r.RecipientID == recipientID }), nil
}

func (s *fakeStore) listInvitations(match func(storage.InvitationRecord) bool) []storage.InvitationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var results []storage.InvitationRecord
	for _, record := range s.invitations {
		if match(record) {
			results = append(results, record)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].CreatedAt.Equal(results[j].CreatedAt) {
			return results[i].ID > results[j].ID
		}
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
	return results
}

func (s *fakeStore) FindThreadByKey(_ context.Context, key storage.ThreadKey) (storage.ThreadRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFindThread != nil {
		return storage.ThreadRecord{}, s.failFindThread
	}
	if s.findThreadMisses > 0 {
		s.findThreadMisses--
		return storage.ThreadRecord{}, storage.ErrNotFound
	}
	record, ok := s.threads[key]
	if !ok {
		return storage.ThreadRecord{}, storage.ErrNotFound
	}
	return record, nil
}

func (s *fakeStore) CreateThread(_ context.Context, record storage.ThreadRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreateThread != nil {
		return s.failCreateThread
	}
	if _, ok := s.threads[record.Key()]; ok {
		return storage.ErrConflict
	}
	s.threads[record.Key()] = record
	return nil
}

func (s *fakeStore) ListThreadsByUser(_ context.Context, userID string) ([]storage.ThreadRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var results []storage.ThreadRecord
	for _, record := range s.threads {
		if record.UserLo == userID || record.UserHi == userID {
			results = append(results, record)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].CreatedAt.Equal(results[j].CreatedAt) {
			return results[i].ID > results[j].ID
		}
		return results[i].CreatedAt.After(results[j].CreatedAt)
	})
	return results, nil
}

func (s *fakeStore) AppendNotification(_ context.Context, record storage.NotificationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAppendNotification != nil {
		return s.failAppendNotification
	}
	if _, ok := s.notifications[record.ID]; ok {
		return storage.ErrConflict
	}
	if record.DedupeKey != "" {
		key := dedupeIndexKey(record.RecipientUserID, record.DedupeKey)
		if _, ok := s.dedupeIndex[key]; ok {
			return storage.ErrConflict
		}
		s.dedupeIndex[key] = record.ID
	}
	s.notifications[record.ID] = record
	return nil
}

func (s *fakeStore) GetNotificationByRecipientAndDedupeKey(_ context.Context, recipientUserID string, dedupeKey string) (storage.NotificationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	notificationID, ok := s.dedupeIndex[dedupeIndexKey(recipientUserID, dedupeKey)]
	if !ok {
		return storage.NotificationRecord{}, storage.ErrNotFound
	}
	record, ok := s.notifications[notificationID]
	if !ok {
		return storage.NotificationRecord{}, storage.ErrNotFound
	}
	return record, nil
}

func (s *fakeStore) ListNotificationsByRecipient(_ context.Context, recipientUserID string, pageSize int, pageToken string) (storage.NotificationPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	filtered := make([]storage.NotificationRecord, 0, len(s.notifications))
	for _, record := range s.notifications {
		if record.RecipientUserID == recipientUserID {
			filtered = append(filtered, record)
		}
	}
	sort.Slice(filtered, func(i, j int) bool {
		if filtered[i].CreatedAt.Equal(filtered[j].CreatedAt) {
			return filtered[i].ID > filtered[j].ID
		}
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})
	start := 0
	if pageToken != "" {
		for i, record := range filtered {
			if record.ID == pageToken {
				start = i + 1
				break
			}
		}
	}
	if start > len(filtered) {
		start = len(filtered)
	}
	end := start + pageSize
	if end > len(filtered) {
		end = len(filtered)
	}
	page := storage.NotificationPage{Notifications: filtered[start:end]}
	if end < len(filtered) && end > start {
		page.NextPageToken = filtered[end-1].ID
	}
	return page, nil
}

func (s *fakeStore) CountUnreadNotificationsByRecipient(_ context.Context, recipientUserID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, record := range s.notifications {
		if record.RecipientUserID == recipientUserID && record.ReadAt == nil {
			count++
		}
	}
	return count, nil
}

func (s *fakeStore) MarkNotificationRead(_ context.Context, recipientUserID string, notificationID string, readAt time.Time) (storage.NotificationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.notifications[notificationID]
	if !ok || record.RecipientUserID != recipientUserID {
		return storage.NotificationRecord{}, storage.ErrNotFound
	}
	at := readAt.UTC()
	record.ReadAt = &at
	record.UpdatedAt = at
	s.notifications[notificationID] = record
	return record, nil
}

func dedupeIndexKey(recipientUserID string, dedupeKey string) string {
	return strings.TrimSpace(recipientUserID) + "\x00" + strings.TrimSpace(dedupeKey)
}

var _ storage.Store = (*fakeStore)(nil)

func mustCreatePending(svc *Service, senderID, recipientID, skill string) (Invitation, error) {
	return svc.CreateInvitation(context.Background(), CreateInvitationInput{
		SenderID:    senderID,
		RecipientID: recipientID,
		Skill:       skill,
		Message:     fmt.Sprintf("let's trade %s lessons", skill),
	})
}

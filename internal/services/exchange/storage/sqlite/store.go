package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/skillswaphq/skillswap/internal/platform/storage/sqlitemigrate"
	"github.com/skillswaphq/skillswap/internal/services/exchange/storage"
	"github.com/skillswaphq/skillswap/internal/services/exchange/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed persistence for exchange state.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens an exchange SQLite store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_pragma=foreign_keys(ON)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := store.runMigrations(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) runMigrations() error {
	return sqlitemigrate.ApplyMigrations(s.sqlDB, migrations.FS)
}

// CreateInvitation inserts one invitation row.
func (s *Store) CreateInvitation(ctx context.Context, record storage.InvitationRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	normalized, err := normalizeInvitationRecord(record)
	if err != nil {
		return err
	}

	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO invitations (
	id, sender_id, recipient_id, skill, message, status, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`,
		normalized.ID,
		normalized.SenderID,
		normalized.RecipientID,
		normalized.Skill,
		normalized.Message,
		string(normalized.Status),
		toMillis(normalized.CreatedAt),
		toMillis(normalized.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("create invitation: %w", err)
	}
	return nil
}

// GetInvitation loads one invitation row by id.
func (s *Store) GetInvitation(ctx context.Context, id string) (storage.InvitationRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.InvitationRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.InvitationRecord{}, fmt.Errorf("storage is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return storage.InvitationRecord{}, fmt.Errorf("invitation id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, sender_id, recipient_id, skill, message, status, created_at, updated_at
FROM invitations
WHERE id = ?
`, id)
	record, err := scanInvitation(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.InvitationRecord{}, storage.ErrNotFound
		}
		return storage.InvitationRecord{}, fmt.Errorf("get invitation: %w", err)
	}
	return record, nil
}

// UpdateInvitationStatus performs the conditional only-if-expected status write.
// A false result with nil error means the precondition did not hold.
func (s *Store) UpdateInvitationStatus(ctx context.Context, id string, newStatus storage.InvitationStatus, expectedStatus storage.InvitationStatus, updatedAt time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s == nil || s.sqlDB == nil {
		return false, fmt.Errorf("storage is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return false, fmt.Errorf("invitation id is required")
	}
	if newStatus == "" || expectedStatus == "" {
		return false, fmt.Errorf("invitation status is required")
	}
	if updatedAt.IsZero() {
		return false, fmt.Errorf("updated_at is required")
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE invitations
SET status = ?, updated_at = ?
WHERE id = ? AND status = ?
`, string(newStatus), toMillis(updatedAt), id, string(expectedStatus))
	if err != nil {
		return false, fmt.Errorf("update invitation status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update invitation status rows affected: %w", err)
	}
	return affected == 1, nil
}

// ListInvitationsBySender lists invitations created by one sender, newest first.
func (s *Store) ListInvitationsBySender(ctx context.Context, senderID string) ([]storage.InvitationRecord, error) {
	return s.listInvitations(ctx, "sender_id", senderID)
}

// ListInvitationsByRecipient lists invitations addressed to one recipient, newest first.
func (s *Store) ListInvitationsByRecipient(ctx context.Context, recipientID string) ([]storage.InvitationRecord, error) {
	return s.listInvitations(ctx, "recipient_id", recipientID)
}

func (s *Store) listInvitations(ctx context.Context, column string, userID string) ([]storage.InvitationRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, sender_id, recipient_id, skill, message, status, created_at, updated_at
FROM invitations
WHERE `+column+` = ?
ORDER BY created_at DESC, id DESC
`, userID)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	defer rows.Close()

	var results []storage.InvitationRecord
	for rows.Next() {
		record, scanErr := scanInvitation(rows.Scan)
		if scanErr != nil {
			return nil, fmt.Errorf("scan invitation row: %w", scanErr)
		}
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invitation rows: %w", err)
	}
	return results, nil
}

// FindThreadByKey loads one thread row by its natural key.
func (s *Store) FindThreadByKey(ctx context.Context, key storage.ThreadKey) (storage.ThreadRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.ThreadRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.ThreadRecord{}, fmt.Errorf("storage is not configured")
	}
	if err := validateThreadKey(key); err != nil {
		return storage.ThreadRecord{}, err
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, user_lo, user_hi, skill, status, created_at
FROM chat_threads
WHERE user_lo = ? AND user_hi = ? AND skill = ?
`, key.UserLo, key.UserHi, key.Skill)
	record, err := scanThread(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ThreadRecord{}, storage.ErrNotFound
		}
		return storage.ThreadRecord{}, fmt.Errorf("find thread by key: %w", err)
	}
	return record, nil
}

// CreateThread inserts one thread row. The unique natural-key index turns a
// lost creation race into ErrConflict so callers can re-query the winner.
func (s *Store) CreateThread(ctx context.Context, record storage.ThreadRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	normalized, err := normalizeThreadRecord(record)
	if err != nil {
		return err
	}

	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO chat_threads (
	id, user_lo, user_hi, skill, status, created_at
) VALUES (?, ?, ?, ?, ?, ?)
`,
		normalized.ID,
		normalized.UserLo,
		normalized.UserHi,
		normalized.Skill,
		string(normalized.Status),
		toMillis(normalized.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("create thread: %w", err)
	}
	return nil
}

// ListThreadsByUser lists threads where the user is either participant, newest first.
func (s *Store) ListThreadsByUser(ctx context.Context, userID string) ([]storage.ThreadRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, user_lo, user_hi, skill, status, created_at
FROM chat_threads
WHERE user_lo = ? OR user_hi = ?
ORDER BY created_at DESC, id DESC
`, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	var results []storage.ThreadRecord
	for rows.Next() {
		record, scanErr := scanThread(rows.Scan)
		if scanErr != nil {
			return nil, fmt.Errorf("scan thread row: %w", scanErr)
		}
		results = append(results, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate thread rows: %w", err)
	}
	return results, nil
}

// AppendNotification inserts one notification row. The partial unique index
// on (recipient, dedupe_key) turns duplicate keyed appends into ErrConflict.
func (s *Store) AppendNotification(ctx context.Context, record storage.NotificationRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	normalized, err := normalizeNotificationRecord(record)
	if err != nil {
		return err
	}

	var readAt sql.NullInt64
	if normalized.ReadAt != nil {
		readAt = sql.NullInt64{Int64: toMillis(*normalized.ReadAt), Valid: true}
	}

	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO notifications (
	id, recipient_user_id, kind, payload_json, dedupe_key, created_at, updated_at, read_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`,
		normalized.ID,
		normalized.RecipientUserID,
		normalized.Kind,
		normalized.PayloadJSON,
		normalized.DedupeKey,
		toMillis(normalized.CreatedAt),
		toMillis(normalized.UpdatedAt),
		readAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("append notification: %w", err)
	}
	return nil
}

// GetNotificationByRecipientAndDedupeKey loads one recipient notification by dedupe key.
func (s *Store) GetNotificationByRecipientAndDedupeKey(ctx context.Context, recipientUserID string, dedupeKey string) (storage.NotificationRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.NotificationRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.NotificationRecord{}, fmt.Errorf("storage is not configured")
	}
	recipientUserID = strings.TrimSpace(recipientUserID)
	dedupeKey = strings.TrimSpace(dedupeKey)
	if recipientUserID == "" {
		return storage.NotificationRecord{}, fmt.Errorf("recipient user id is required")
	}
	if dedupeKey == "" {
		return storage.NotificationRecord{}, storage.ErrNotFound
	}

	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, recipient_user_id, kind, payload_json, dedupe_key, created_at, updated_at, read_at
FROM notifications
WHERE recipient_user_id = ? AND dedupe_key = ?
`, recipientUserID, dedupeKey)
	record, err := scanNotification(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.NotificationRecord{}, storage.ErrNotFound
		}
		return storage.NotificationRecord{}, fmt.Errorf("get notification by dedupe key: %w", err)
	}
	return record, nil
}

// ListNotificationsByRecipient lists one recipient inbox newest-first with cursor pagination.
func (s *Store) ListNotificationsByRecipient(ctx context.Context, recipientUserID string, pageSize int, pageToken string) (storage.NotificationPage, error) {
	if err := ctx.Err(); err != nil {
		return storage.NotificationPage{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.NotificationPage{}, fmt.Errorf("storage is not configured")
	}
	recipientUserID = strings.TrimSpace(recipientUserID)
	pageToken = strings.TrimSpace(pageToken)
	if recipientUserID == "" {
		return storage.NotificationPage{}, fmt.Errorf("recipient user id is required")
	}
	if pageSize <= 0 {
		return storage.NotificationPage{}, fmt.Errorf("page size must be greater than zero")
	}

	limit := pageSize + 1
	if pageToken == "" {
		rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, recipient_user_id, kind, payload_json, dedupe_key, created_at, updated_at, read_at
FROM notifications
WHERE recipient_user_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ?
`, recipientUserID, limit)
		if err != nil {
			return storage.NotificationPage{}, fmt.Errorf("list notifications: %w", err)
		}
		defer rows.Close()
		return collectNotificationPage(rows, pageSize)
	}

	tokenCreatedAt, err := s.notificationCreatedAtByID(ctx, recipientUserID, pageToken)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.NotificationPage{}, nil
		}
		return storage.NotificationPage{}, err
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, recipient_user_id, kind, payload_json, dedupe_key, created_at, updated_at, read_at
FROM notifications
WHERE recipient_user_id = ?
  AND (created_at < ? OR (created_at = ? AND id < ?))
ORDER BY created_at DESC, id DESC
LIMIT ?
`, recipientUserID, toMillis(tokenCreatedAt), toMillis(tokenCreatedAt), pageToken, limit)
	if err != nil {
		return storage.NotificationPage{}, fmt.Errorf("list notifications with token: %w", err)
	}
	defer rows.Close()
	return collectNotificationPage(rows, pageSize)
}

// CountUnreadNotificationsByRecipient returns unread inbox count for one recipient.
func (s *Store) CountUnreadNotificationsByRecipient(ctx context.Context, recipientUserID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}
	recipientUserID = strings.TrimSpace(recipientUserID)
	if recipientUserID == "" {
		return 0, fmt.Errorf("recipient user id is required")
	}

	var unreadCount int
	if err := s.sqlDB.QueryRowContext(ctx, `
SELECT COUNT(1)
FROM notifications
WHERE recipient_user_id = ?
  AND read_at IS NULL
`, recipientUserID).Scan(&unreadCount); err != nil {
		return 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return unreadCount, nil
}

// MarkNotificationRead marks one notification row as read for a recipient.
func (s *Store) MarkNotificationRead(ctx context.Context, recipientUserID string, notificationID string, readAt time.Time) (storage.NotificationRecord, error) {
	if err := ctx.Err(); err != nil {
		return storage.NotificationRecord{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.NotificationRecord{}, fmt.Errorf("storage is not configured")
	}
	recipientUserID = strings.TrimSpace(recipientUserID)
	notificationID = strings.TrimSpace(notificationID)
	if recipientUserID == "" {
		return storage.NotificationRecord{}, fmt.Errorf("recipient user id is required")
	}
	if notificationID == "" {
		return storage.NotificationRecord{}, fmt.Errorf("notification id is required")
	}

	now := readAt.UTC()
	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE notifications
SET read_at = ?, updated_at = ?
WHERE recipient_user_id = ? AND id = ?
`, toMillis(now), toMillis(now), recipientUserID, notificationID)
	if err != nil {
		return storage.NotificationRecord{}, fmt.Errorf("mark notification read: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return storage.NotificationRecord{}, fmt.Errorf("mark notification read rows affected: %w", err)
	}
	if affected == 0 {
		return storage.NotificationRecord{}, storage.ErrNotFound
	}
	return s.getNotificationByRecipientAndID(ctx, recipientUserID, notificationID)
}

func (s *Store) notificationCreatedAtByID(ctx context.Context, recipientUserID string, notificationID string) (time.Time, error) {
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT created_at
FROM notifications
WHERE recipient_user_id = ? AND id = ?
`, recipientUserID, notificationID)
	var createdAtMillis int64
	if err := row.Scan(&createdAtMillis); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, storage.ErrNotFound
		}
		return time.Time{}, fmt.Errorf("lookup notification cursor: %w", err)
	}
	return fromMillis(createdAtMillis), nil
}

func (s *Store) getNotificationByRecipientAndID(ctx context.Context, recipientUserID string, notificationID string) (storage.NotificationRecord, error) {
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, recipient_user_id, kind, payload_json, dedupe_key, created_at, updated_at, read_at
FROM notifications
WHERE recipient_user_id = ? AND id = ?
`, recipientUserID, notificationID)
	record, err := scanNotification(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.NotificationRecord{}, storage.ErrNotFound
		}
		return storage.NotificationRecord{}, fmt.Errorf("get notification by id: %w", err)
	}
	return record, nil
}

type scanner func(dest ...any) error

func normalizeInvitationRecord(record storage.InvitationRecord) (storage.InvitationRecord, error) {
	record.ID = strings.TrimSpace(record.ID)
	record.SenderID = strings.TrimSpace(record.SenderID)
	record.RecipientID = strings.TrimSpace(record.RecipientID)
	record.Skill = strings.TrimSpace(record.Skill)
	record.Message = strings.TrimSpace(record.Message)
	if record.ID == "" {
		return storage.InvitationRecord{}, fmt.Errorf("invitation id is required")
	}
	if record.SenderID == "" {
		return storage.InvitationRecord{}, fmt.Errorf("sender id is required")
	}
	if record.RecipientID == "" {
		return storage.InvitationRecord{}, fmt.Errorf("recipient id is required")
	}
	if record.Skill == "" {
		return storage.InvitationRecord{}, fmt.Errorf("skill is required")
	}
	if record.Status == "" {
		return storage.InvitationRecord{}, fmt.Errorf("invitation status is required")
	}
	if record.CreatedAt.IsZero() {
		return storage.InvitationRecord{}, fmt.Errorf("created_at is required")
	}
	if record.UpdatedAt.IsZero() {
		return storage.InvitationRecord{}, fmt.Errorf("updated_at is required")
	}
	record.CreatedAt = record.CreatedAt.UTC()
	record.UpdatedAt = record.UpdatedAt.UTC()
	return record, nil
}

func validateThreadKey(key storage.ThreadKey) error {
	if strings.TrimSpace(key.UserLo) == "" || strings.TrimSpace(key.UserHi) == "" {
		return fmt.Errorf("thread participants are required")
	}
	if strings.TrimSpace(key.Skill) == "" {
		return fmt.Errorf("thread skill is required")
	}
	return nil
}

func normalizeThreadRecord(record storage.ThreadRecord) (storage.ThreadRecord, error) {
	record.ID = strings.TrimSpace(record.ID)
	record.UserLo = strings.TrimSpace(record.UserLo)
	record.UserHi = strings.TrimSpace(record.UserHi)
	record.Skill = strings.TrimSpace(record.Skill)
	if record.ID == "" {
		return storage.ThreadRecord{}, fmt.Errorf("thread id is required")
	}
	if err := validateThreadKey(record.Key()); err != nil {
		return storage.ThreadRecord{}, err
	}
	if record.Status == "" {
		return storage.ThreadRecord{}, fmt.Errorf("thread status is required")
	}
	if record.CreatedAt.IsZero() {
		return storage.ThreadRecord{}, fmt.Errorf("created_at is required")
	}
	record.CreatedAt = record.CreatedAt.UTC()
	return record, nil
}

func normalizeNotificationRecord(record storage.NotificationRecord) (storage.NotificationRecord, error) {
	record.ID = strings.TrimSpace(record.ID)
	record.RecipientUserID = strings.TrimSpace(record.RecipientUserID)
	record.Kind = strings.TrimSpace(record.Kind)
	record.DedupeKey = strings.TrimSpace(record.DedupeKey)
	record.PayloadJSON = strings.TrimSpace(record.PayloadJSON)
	if record.PayloadJSON == "" {
		record.PayloadJSON = "{}"
	}
	if record.ID == "" {
		return storage.NotificationRecord{}, fmt.Errorf("notification id is required")
	}
	if record.RecipientUserID == "" {
		return storage.NotificationRecord{}, fmt.Errorf("recipient user id is required")
	}
	if record.Kind == "" {
		return storage.NotificationRecord{}, fmt.Errorf("notification kind is required")
	}
	if record.CreatedAt.IsZero() {
		return storage.NotificationRecord{}, fmt.Errorf("created_at is required")
	}
	if record.UpdatedAt.IsZero() {
		return storage.NotificationRecord{}, fmt.Errorf("updated_at is required")
	}
	record.CreatedAt = record.CreatedAt.UTC()
	record.UpdatedAt = record.UpdatedAt.UTC()
	if record.ReadAt != nil {
		readAt := record.ReadAt.UTC()
		record.ReadAt = &readAt
	}
	return record, nil
}

func scanInvitation(scan scanner) (storage.InvitationRecord, error) {
	var record storage.InvitationRecord
	var status string
	var createdAt int64
	var updatedAt int64
	if err := scan(
		&record.ID,
		&record.SenderID,
		&record.RecipientID,
		&record.Skill,
		&record.Message,
		&status,
		&createdAt,
		&updatedAt,
	); err != nil {
		return storage.InvitationRecord{}, err
	}
	record.Status = storage.InvitationStatus(status)
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	return record, nil
}

func scanThread(scan scanner) (storage.ThreadRecord, error) {
	var record storage.ThreadRecord
	var status string
	var createdAt int64
	if err := scan(
		&record.ID,
		&record.UserLo,
		&record.UserHi,
		&record.Skill,
		&status,
		&createdAt,
	); err != nil {
		return storage.ThreadRecord{}, err
	}
	record.Status = storage.ThreadStatus(status)
	record.CreatedAt = fromMillis(createdAt)
	return record, nil
}

func scanNotification(scan scanner) (storage.NotificationRecord, error) {
	var record storage.NotificationRecord
	var createdAt int64
	var updatedAt int64
	var readAt sql.NullInt64
	if err := scan(
		&record.ID,
		&record.RecipientUserID,
		&record.Kind,
		&record.PayloadJSON,
		&record.DedupeKey,
		&createdAt,
		&updatedAt,
		&readAt,
	); err != nil {
		return storage.NotificationRecord{}, err
	}
	record.CreatedAt = fromMillis(createdAt)
	record.UpdatedAt = fromMillis(updatedAt)
	if readAt.Valid {
		value := fromMillis(readAt.Int64)
		record.ReadAt = &value
	}
	return record, nil
}

func collectNotificationPage(rows *sql.Rows, pageSize int) (storage.NotificationPage, error) {
	page := storage.NotificationPage{
		Notifications: make([]storage.NotificationRecord, 0, pageSize),
	}
	for rows.Next() {
		record, err := scanNotification(rows.Scan)
		if err != nil {
			return storage.NotificationPage{}, fmt.Errorf("scan notification row: %w", err)
		}
		page.Notifications = append(page.Notifications, record)
	}
	if err := rows.Err(); err != nil {
		return storage.NotificationPage{}, fmt.Errorf("iterate notification rows: %w", err)
	}
	if len(page.Notifications) > pageSize {
		page.NextPageToken = page.Notifications[pageSize-1].ID
		page.Notifications = page.Notifications[:pageSize]
	}
	return page, nil
}

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "unique constraint failed")
}

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

// Thread is one provisioned conversation between two users about one skill.
type Thread struct {
	ID        string
	UserLo    string
	UserHi    string
	Skill     string
	Status    storage.ThreadStatus
	CreatedAt time.Time
}

// NewThreadKey builds the order-independent natural key for a participant
// pair and skill. The pair is sorted so either side resolves the same key.
func NewThreadKey(userA, userB, skill string) (storage.ThreadKey, error) {
	userA = strings.TrimSpace(userA)
	userB = strings.TrimSpace(userB)
	skill = strings.TrimSpace(skill)
	if userA == "" || userB == "" {
		return storage.ThreadKey{}, fmt.Errorf("thread participants are required")
	}
	if userA == userB {
		return storage.ThreadKey{}, ErrSelfInvitation
	}
	if skill == "" {
		return storage.ThreadKey{}, ErrSkillRequired
	}
	lo, hi := userA, userB
	if hi < lo {
		lo, hi = hi, lo
	}
	return storage.ThreadKey{UserLo: lo, UserHi: hi, Skill: skill}, nil
}

// ThreadProvisioner resolves "the" chat thread for a (pair, skill) triple,
// creating it only when absent. It is the sole writer of thread existence.
type ThreadProvisioner struct {
	store storage.Store
	clock func() time.Time
	newID func() (string, error)
}

// NewThreadProvisioner constructs a provisioner over the given store.
func NewThreadProvisioner(store storage.Store, clock func() time.Time, newID func() (string, error)) *ThreadProvisioner {
	if clock == nil {
		clock = time.Now
	}
	if newID == nil {
		newID = id.NewID
	}
	return &ThreadProvisioner{store: store, clock: clock, newID: newID}
}

// GetOrCreate returns the single thread for the pair and skill, creating it
// on first use. A creation attempt that loses a concurrent race observes the
// store conflict, re-queries, and converges on the winner's thread.
func (p *ThreadProvisioner) GetOrCreate(ctx context.Context, userA, userB, skill string) (Thread, error) {
	if p == nil || p.store == nil {
		return Thread{}, ErrStoreNotConfigured
	}
	key, err := NewThreadKey(userA, userB, skill)
	if err != nil {
		return Thread{}, err
	}

	existing, err := p.store.FindThreadByKey(ctx, key)
	if err == nil {
		return threadFromRecord(existing), nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return Thread{}, fmt.Errorf("find thread: %w", err)
	}

	threadID, err := p.newID()
	if err != nil {
		return Thread{}, fmt.Errorf("generate thread id: %w", err)
	}
	record := storage.ThreadRecord{
		ID:        threadID,
		UserLo:    key.UserLo,
		UserHi:    key.UserHi,
		Skill:     key.Skill,
		Status:    storage.ThreadStatusActive,
		CreatedAt: p.clock().UTC(),
	}
	createErr := p.store.CreateThread(ctx, record)
	if createErr == nil {
		return threadFromRecord(record), nil
	}
	if errors.Is(createErr, storage.ErrConflict) {
		winner, lookupErr := p.store.FindThreadByKey(ctx, key)
		if lookupErr == nil {
			return threadFromRecord(winner), nil
		}
		if errors.Is(lookupErr, storage.ErrNotFound) {
			return Thread{}, createErr
		}
		return Thread{}, fmt.Errorf("find thread after conflict: %w", lookupErr)
	}
	return Thread{}, fmt.Errorf("create thread: %w", createErr)
}

func threadFromRecord(record storage.ThreadRecord) Thread {
	return Thread{
		ID:        record.ID,
		UserLo:    record.UserLo,
		UserHi:    record.UserHi,
		Skill:     record.Skill,
		Status:    record.Status,
		CreatedAt: record.CreatedAt,
	}
}

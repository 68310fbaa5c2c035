// Package statestore provides durable, key-indexed storage for the record
// families the automation engine mutates: rules, cooldowns, variables,
// violation logs, and usage counters.
//
// All mutation goes through WithLock, a per-(family, key) serialized
// read-modify-write. Two events racing on the same cooldown or variable
// key are strictly ordered; events touching different keys never block
// each other. Every mutation is persisted before WithLock returns.
package statestore

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/c360/guildflow/errors"
	"github.com/c360/guildflow/pkg/retry"
)

// Family identifies a record family. Each family maps to its own bucket
// in the backing store.
type Family string

// The record families the engine persists.
const (
	FamilyRules      Family = "rules"
	FamilyCooldowns  Family = "cooldowns"
	FamilyVariables  Family = "variables"
	FamilyViolations Family = "violations"
	FamilyUsage      Family = "usage"
)

// Families lists every family, in bucket-creation order.
func Families() []Family {
	return []Family{FamilyRules, FamilyCooldowns, FamilyVariables, FamilyViolations, FamilyUsage}
}

// ErrNoChange may be returned by a WithLock callback to skip the write
// while still holding the key serialized for the duration of the read.
var ErrNoChange = stderrors.New("statestore: no change")

// Backend is the persistence layer beneath the store. Get reports the
// entry revision for compare-and-swap; Update fails with a conflict error
// when the revision moved underneath the caller.
type Backend interface {
	Get(ctx context.Context, family Family, key string) (value []byte, revision uint64, err error)
	Put(ctx context.Context, family Family, key string, value []byte) error
	Create(ctx context.Context, family Family, key string, value []byte) error
	Update(ctx context.Context, family Family, key string, value []byte, revision uint64) error
	Delete(ctx context.Context, family Family, key string) error
	Keys(ctx context.Context, family Family) ([]string, error)
	// IsNotFound and IsConflict classify backend errors.
	IsNotFound(err error) bool
	IsConflict(err error) bool
}

// Store provides atomic per-key operations over a Backend.
type Store struct {
	backend Backend
	logger  *slog.Logger
	retry   retry.Config

	mu    sync.Mutex
	locks map[string]*keyLock
}

// keyLock is a refcounted mutex so idle entries can be removed from the
// lock map instead of growing with actor×rule cardinality forever.
type keyLock struct {
	mu   sync.Mutex
	refs int
}

// New creates a store over the given backend.
func New(backend Backend) *Store {
	return &Store{
		backend: backend,
		logger:  slog.Default().With("component", "statestore"),
		retry:   retry.Contended(),
		locks:   make(map[string]*keyLock),
	}
}

func lockKey(family Family, key string) string {
	return string(family) + "/" + key
}

func (s *Store) acquire(family Family, key string) *keyLock {
	name := lockKey(family, key)
	s.mu.Lock()
	kl, ok := s.locks[name]
	if !ok {
		kl = &keyLock{}
		s.locks[name] = kl
	}
	kl.refs++
	s.mu.Unlock()

	kl.mu.Lock()
	return kl
}

func (s *Store) release(family Family, key string, kl *keyLock) {
	kl.mu.Unlock()

	name := lockKey(family, key)
	s.mu.Lock()
	kl.refs--
	if kl.refs == 0 {
		delete(s.locks, name)
	}
	s.mu.Unlock()
}

// Get retrieves a value. Returns (nil, false, nil) when the key is absent.
func (s *Store) Get(ctx context.Context, family Family, key string) ([]byte, bool, error) {
	value, _, err := s.backend.Get(ctx, family, key)
	if err != nil {
		if s.backend.IsNotFound(err) {
			return nil, false, nil
		}
		return nil, false, errors.WrapFatal(err, "Store", "Get", fmt.Sprintf("read %s/%s", family, key))
	}
	return value, true, nil
}

// Put stores a value, last writer wins. Mutating operations that depend
// on the current value must use WithLock instead.
func (s *Store) Put(ctx context.Context, family Family, key string, value []byte) error {
	if err := s.backend.Put(ctx, family, key, value); err != nil {
		return errors.WrapFatal(err, "Store", "Put", fmt.Sprintf("write %s/%s", family, key))
	}
	return nil
}

// Create stores a value only when the key is absent. An existing key
// yields an error matching errors.ErrKeyExists so append-only callers
// can pick a fresh key and try again.
func (s *Store) Create(ctx context.Context, family Family, key string, value []byte) error {
	if err := s.backend.Create(ctx, family, key, value); err != nil {
		if s.backend.IsConflict(err) {
			return fmt.Errorf("%s/%s: %w", family, key, errors.ErrKeyExists)
		}
		return errors.WrapFatal(err, "Store", "Create", fmt.Sprintf("create %s/%s", family, key))
	}
	return nil
}

// Delete removes a key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, family Family, key string) error {
	if err := s.backend.Delete(ctx, family, key); err != nil && !s.backend.IsNotFound(err) {
		return errors.WrapFatal(err, "Store", "Delete", fmt.Sprintf("delete %s/%s", family, key))
	}
	return nil
}

// Keys lists all keys in a family.
func (s *Store) Keys(ctx context.Context, family Family) ([]string, error) {
	keys, err := s.backend.Keys(ctx, family)
	if err != nil {
		return nil, errors.WrapFatal(err, "Store", "Keys", fmt.Sprintf("list %s", family))
	}
	return keys, nil
}

// WithLock runs fn as an atomic read-modify-write on (family, key). fn
// receives the current value (nil, found=false when absent) and returns
// the value to persist; returning ErrNoChange skips the write. The write
// is durable before WithLock returns.
//
// Serialization is two-layered: an in-process per-key mutex orders
// callers in this process, and the backend's revision check catches
// writers in other processes. A revision conflict re-reads and re-runs
// fn under bounded backoff, so fn must derive its output from the
// current value alone; only exhausted retries surface as fatal.
func (s *Store) WithLock(ctx context.Context, family Family, key string, fn func(current []byte, found bool) ([]byte, error)) error {
	kl := s.acquire(family, key)
	defer s.release(family, key, kl)

	err := retry.Do(ctx, s.retry, func() error {
		var (
			current  []byte
			revision uint64
			found    bool
		)

		value, rev, err := s.backend.Get(ctx, family, key)
		switch {
		case err == nil:
			current, revision, found = value, rev, true
		case s.backend.IsNotFound(err):
			// Absent key: fn decides the initial value.
		default:
			return retry.NonRetryable(errors.WrapFatal(err, "Store", "WithLock", fmt.Sprintf("read %s/%s", family, key)))
		}

		newValue, err := fn(current, found)
		if err != nil {
			return retry.NonRetryable(err)
		}

		if found {
			err = s.backend.Update(ctx, family, key, newValue, revision)
		} else {
			err = s.backend.Create(ctx, family, key, newValue)
		}
		if err != nil {
			if s.backend.IsConflict(err) {
				// External writer moved the revision; re-read and re-apply.
				s.logger.Debug("revision conflict, retrying", "family", family, "key", key)
				return err
			}
			return retry.NonRetryable(errors.WrapFatal(err, "Store", "WithLock", fmt.Sprintf("persist %s/%s", family, key)))
		}
		return nil
	})
	if err == nil {
		return nil
	}

	var nonRetryable *retry.NonRetryableError
	if stderrors.As(err, &nonRetryable) {
		err = nonRetryable.Err
	}
	if stderrors.Is(err, ErrNoChange) {
		return nil
	}
	if s.backend.IsConflict(err) {
		s.logger.Warn("external writer contention", "family", family, "key", key)
		return errors.WrapFatal(err, "Store", "WithLock", fmt.Sprintf("concurrent external writes on %s/%s", family, key))
	}
	return err
}

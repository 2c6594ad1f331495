// Package audit persists enforcement outcomes as an append-only log.
// Entries are never reordered or deleted; sequence numbers define the
// canonical order and survive restarts.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	"go.etcd.io/bbolt"

	"github.com/yairfalse/valvo/types"
)

var bucketAudit = []byte("audit")

// Log is a bbolt-backed append-only audit trail. Appends are serialized by
// a single mutex; reads run on bbolt snapshots and may proceed concurrently
// with each other.
type Log struct {
	mu       sync.Mutex
	db       *bbolt.DB
	sequence int64
}

// Open creates or opens the audit log database in dir.
func Open(dir string) (*Log, error) {
	dbPath := filepath.Join(dir, "audit.db")

	db, err := bbolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}

	log := &Log{db: db}
	if err := log.loadSequence(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return log, nil
}

// Close closes the underlying database.
func (l *Log) Close() error {
	return l.db.Close()
}

// Append adds one event to the log and stamps its sequence number.
func (l *Log) Append(ctx context.Context, event types.AuditEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	event.Sequence = l.sequence + 1

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	err = l.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(bucketAudit)
		if err != nil {
			return err
		}
		return bucket.Put(sequenceKey(event.Sequence), data)
	})
	if err != nil {
		return fmt.Errorf("failed to append audit event: %w", err)
	}

	l.sequence = event.Sequence
	return nil
}

// ReadAll returns every event in insertion order. A log that has never
// been written reads as empty, not as an error.
func (l *Log) ReadAll(ctx context.Context) ([]types.AuditEvent, error) {
	return l.read(ctx, func(types.AuditEvent) bool { return true })
}

// ByPolicy returns every event for one policy, in insertion order.
func (l *Log) ByPolicy(ctx context.Context, policyID string) ([]types.AuditEvent, error) {
	return l.read(ctx, func(e types.AuditEvent) bool { return e.PolicyID == policyID })
}

func (l *Log) read(ctx context.Context, keep func(types.AuditEvent) bool) ([]types.AuditEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var events []types.AuditEvent
	err := l.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketAudit)
		if bucket == nil {
			return nil // nothing appended yet
		}

		c := bucket.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var event types.AuditEvent
			if err := json.Unmarshal(v, &event); err != nil {
				continue // skip malformed entries
			}
			if keep(event) {
				events = append(events, event)
			}
		}
		return nil
	})
	return events, err
}

// loadSequence recovers the last assigned sequence number so appends stay
// monotonic across restarts.
func (l *Log) loadSequence() error {
	return l.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketAudit)
		if bucket == nil {
			return nil
		}
		k, v := bucket.Cursor().Last()
		if k == nil {
			return nil
		}
		var event types.AuditEvent
		if err := json.Unmarshal(v, &event); err != nil {
			return fmt.Errorf("failed to recover audit sequence: %w", err)
		}
		l.sequence = event.Sequence
		return nil
	})
}

// sequenceKey zero-pads the sequence so bbolt's byte order matches
// insertion order.
func sequenceKey(seq int64) []byte {
	return []byte(fmt.Sprintf("%020d", seq))
}

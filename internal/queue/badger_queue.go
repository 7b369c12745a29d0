// Package queue implements the two durable job-id queues on BadgerDB:
// the new-job queue (controller to workers) and the state-change queue
// (workers back to the controller). Both are at-least-once; consumers
// reconcile against the job store rather than trusting message delivery.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/chomp/internal/common"
	"github.com/ternarybob/chomp/internal/interfaces"
)

// queueMessage is the internal structure stored in Badger. The body is a
// job id; everything else is delivery bookkeeping.
type queueMessage struct {
	ID           string    `json:"id"`
	JobID        string    `json:"job_id"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
	VisibleAt    time.Time `json:"visible_at"`
	ReceiveCount int       `json:"receive_count"`
}

// BadgerQueue implements interfaces.Queue on a shared Badger database.
// Key layout:
//
//	queue:{name}:index:{visibleAt unixnano, zero-padded}:{msgID} -> empty
//	queue:{name}:msg:{msgID}                                     -> JSON
//
// The index key embeds the visibility timestamp so a prefix scan yields
// ready messages in order and stops at the first future one.
type BadgerQueue struct {
	db                *badger.DB
	queueName         string
	visibilityTimeout time.Duration
}

// NewBadgerQueue creates a queue on the given database
func NewBadgerQueue(db *badger.DB, queueName string, visibilityTimeout time.Duration) (*BadgerQueue, error) {
	if db == nil {
		return nil, errors.New("badger db is required")
	}
	if queueName == "" {
		return nil, errors.New("queue name is required")
	}
	if visibilityTimeout <= 0 {
		visibilityTimeout = time.Hour
	}

	return &BadgerQueue{
		db:                db,
		queueName:         queueName,
		visibilityTimeout: visibilityTimeout,
	}, nil
}

// Enqueue adds a job id to the queue, immediately visible
func (q *BadgerQueue) Enqueue(ctx context.Context, jobID string) error {
	if jobID == "" {
		return errors.New("job id is required")
	}

	msg := queueMessage{
		ID:         common.NewMessageID(),
		JobID:      jobID,
		EnqueuedAt: time.Now(),
		VisibleAt:  time.Now(),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal queue message: %w", err)
	}

	return q.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(q.msgKey(msg.ID), data); err != nil {
			return err
		}
		return txn.Set(q.indexKey(msg.VisibleAt, msg.ID), []byte{})
	})
}

// Pop claims and deletes up to max ready messages, returning their job
// ids with duplicates collapsed. The job record is the source of truth,
// so messages are removed inside the claiming transaction rather than
// held for a later acknowledgement.
func (q *BadgerQueue) Pop(ctx context.Context, max int) ([]string, error) {
	if max <= 0 {
		return nil, nil
	}
	if max > interfaces.MaxPopBatch {
		max = interfaces.MaxPopBatch
	}

	var jobIDs []string

	err := q.db.Update(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := []byte(fmt.Sprintf("queue:%s:index:", q.queueName))
		it := txn.NewIterator(opts)
		defer it.Close()

		now := time.Now()
		seen := make(map[string]bool)
		claimed := 0

		for it.Seek(prefix); it.ValidForPrefix(prefix) && claimed < max; it.Next() {
			indexKey := it.Item().KeyCopy(nil)

			ts, msgID, err := q.parseIndexKey(indexKey)
			if err != nil {
				continue // Skip invalid keys
			}
			if ts.After(now) {
				// Index keys sort by timestamp; nothing later is ready.
				break
			}

			msgKey := q.msgKey(msgID)
			item, err := txn.Get(msgKey)
			if err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					// Dangling index entry, clean it up.
					if err := txn.Delete(indexKey); err != nil {
						return err
					}
					continue
				}
				return err
			}

			var msg queueMessage
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &msg)
			}); err != nil {
				return err
			}

			if err := txn.Delete(indexKey); err != nil {
				return err
			}
			if err := txn.Delete(msgKey); err != nil {
				return err
			}

			claimed++
			if !seen[msg.JobID] {
				seen[msg.JobID] = true
				jobIDs = append(jobIDs, msg.JobID)
			}
		}

		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to pop from queue %s: %w", q.queueName, err)
	}

	return jobIDs, nil
}

// Len reports the number of stored messages
func (q *BadgerQueue) Len(ctx context.Context) (int, error) {
	count := 0
	err := q.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		prefix := []byte(fmt.Sprintf("queue:%s:msg:", q.queueName))
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count queue %s: %w", q.queueName, err)
	}
	return count, nil
}

// Helpers

func (q *BadgerQueue) msgKey(id string) []byte {
	return []byte(fmt.Sprintf("queue:%s:msg:%s", q.queueName, id))
}

func (q *BadgerQueue) indexKey(visibleAt time.Time, id string) []byte {
	// Zero pad to 20 digits so string ordering matches numeric ordering.
	return []byte(fmt.Sprintf("queue:%s:index:%020d:%s", q.queueName, visibleAt.UnixNano(), id))
}

func (q *BadgerQueue) parseIndexKey(key []byte) (time.Time, string, error) {
	prefixStr := fmt.Sprintf("queue:%s:index:", q.queueName)
	if len(key) <= len(prefixStr) {
		return time.Time{}, "", fmt.Errorf("invalid key length")
	}

	suffix := string(key[len(prefixStr):])
	// Suffix is "{20-digit-ts}:{id}"
	if len(suffix) < 21 {
		return time.Time{}, "", fmt.Errorf("invalid suffix length")
	}

	var ts int64
	if _, err := fmt.Sscanf(suffix[:20], "%d", &ts); err != nil {
		return time.Time{}, "", err
	}

	return time.Unix(0, ts), suffix[21:], nil
}

package orderqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Aidin1998/orderexec/internal/trading/model"
	"github.com/dgraph-io/badger/v3"
	"github.com/shopspring/decimal"
)

// JournalEntry is the persisted form of a queued request.
type JournalEntry struct {
	RequestID string              `json:"request_id"`
	Kind      model.RequestKind   `json:"kind"`
	OrderID   int                 `json:"order_id"`
	Tag       string              `json:"tag,omitempty"`
	Time      time.Time           `json:"time"`
	Symbol    string              `json:"symbol,omitempty"`
	Quantity  decimal.NullDecimal `json:"quantity"`
	Terms     *model.TermsSpec    `json:"terms,omitempty"`
}

// EntryFromRequest flattens a request for the journal.
func EntryFromRequest(req model.OrderRequest) JournalEntry {
	e := JournalEntry{
		RequestID: req.ID().String(),
		Kind:      req.Kind(),
		OrderID:   req.OrderID(),
		Tag:       req.Tag(),
		Time:      req.Time(),
	}
	switch r := req.(type) {
	case *model.SubmitOrderRequest:
		spec := model.SpecOf(r.Terms)
		e.Symbol = r.Symbol
		e.Quantity = decimal.NewNullDecimal(r.Quantity)
		e.Terms = &spec
	case *model.UpdateOrderRequest:
		e.Quantity = r.Quantity
	}
	return e
}

// BadgerJournal is a disk-backed Journal using BadgerDB. Entries are keyed by
// enqueue time so ReplayPending returns them in queue order.
type BadgerJournal struct {
	db *badger.DB
}

// NewBadgerJournal opens (or creates) a journal at the given path.
func NewBadgerJournal(path string) (*BadgerJournal, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // disable internal logging
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger db: %w", err)
	}
	return &BadgerJournal{db: db}, nil
}

// NewInMemoryBadgerJournal is used by tests and ephemeral runs.
func NewInMemoryBadgerJournal() (*BadgerJournal, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening in-memory badger db: %w", err)
	}
	return &BadgerJournal{db: db}, nil
}

const (
	entryPrefix = "req:"
	indexPrefix = "idx:"
)

// key format: req:timestamp:requestID
func entryKey(e JournalEntry, seq time.Time) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", entryPrefix, seq.UnixNano(), e.RequestID))
}

func indexKey(requestID string) []byte {
	return []byte(indexPrefix + requestID)
}

// Append stores the request if it is not already journaled.
func (j *BadgerJournal) Append(ctx context.Context, req model.OrderRequest) error {
	entry := EntryFromRequest(req)
	key := entryKey(entry, time.Now())
	val, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return j.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(indexKey(entry.RequestID))
		if err == nil {
			return fmt.Errorf("request duplicate: %s", entry.RequestID)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(key, val); err != nil {
			return err
		}
		return txn.Set(indexKey(entry.RequestID), key)
	})
}

// Acknowledge removes the processed request from storage.
func (j *BadgerJournal) Acknowledge(ctx context.Context, req model.OrderRequest) error {
	id := req.ID().String()
	return j.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(indexKey(id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("request not found: %s", id)
			}
			return err
		}
		key, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		return txn.Delete(indexKey(id))
	})
}

// ReplayPending returns all unacknowledged requests in enqueue order.
func (j *BadgerJournal) ReplayPending(ctx context.Context) ([]JournalEntry, error) {
	entries := make([]JournalEntry, 0)
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(entryPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var e JournalEntry
			err := it.Item().Value(func(v []byte) error { return json.Unmarshal(v, &e) })
			if err != nil {
				return err
			}
			entries = append(entries, e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Close closes the underlying BadgerDB.
func (j *BadgerJournal) Close() error {
	return j.db.Close()
}

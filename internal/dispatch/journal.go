package dispatch

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/solrouter/swapflow/internal/order"
)

// journalRecord is the durable shape of a submitted order awaiting a
// terminal state.
type journalRecord struct {
	ID        string    `json:"id"`
	Side      string    `json:"side"`
	TokenIn   string    `json:"token_in"`
	TokenOut  string    `json:"token_out"`
	Amount    string    `json:"amount"`
	Slippage  float64   `json:"slippage"`
	CreatedAt time.Time `json:"created_at"`
}

// Journal is a disk-backed record of in-flight submissions on BadgerDB.
// Orders are appended at submit and acknowledged once they reach a terminal
// state; anything still present at startup was cut off mid-flight and gets
// re-dispatched.
type Journal struct {
	db *badger.DB
}

// OpenJournal opens (or creates) the journal at path.
func OpenJournal(path string) (*Journal, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // badger's own logging is too chatty
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	return &Journal{db: db}, nil
}

// key format: unixnano:orderID, so iteration order is arrival order.
func journalKey(id uuid.UUID, at time.Time) []byte {
	return []byte(fmt.Sprintf("%020d:%s", at.UnixNano(), id))
}

// Append journals a freshly submitted order. Duplicate ids are rejected.
func (j *Journal) Append(ord *order.Order) error {
	rec := journalRecord{
		ID:        ord.ID.String(),
		Side:      string(ord.Side),
		TokenIn:   ord.TokenIn,
		TokenOut:  ord.TokenOut,
		Amount:    ord.Amount.String(),
		Slippage:  ord.Slippage,
		CreatedAt: ord.UpdatedAt,
	}
	val, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	key := journalKey(ord.ID, rec.CreatedAt)
	return j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, val)
	})
}

// Ack removes the order from the journal once it is terminal.
func (j *Journal) Ack(id uuid.UUID) error {
	suffix := ":" + id.String()
	return j.db.Update(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			k := it.Item().KeyCopy(nil)
			if strings.HasSuffix(string(k), suffix) {
				return txn.Delete(k)
			}
		}
		return nil // already gone, acknowledging twice is fine
	})
}

// Pending returns journaled orders in arrival order, rebuilt in the queued
// state for a full pipeline restart.
func (j *Journal) Pending() ([]*order.Order, error) {
	var out []*order.Order
	err := j.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var rec journalRecord
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &rec)
			}); err != nil {
				return err
			}
			ord, err := rec.toOrder()
			if err != nil {
				return err
			}
			out = append(out, ord)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Close closes the underlying store.
func (j *Journal) Close() error {
	return j.db.Close()
}

func (r journalRecord) toOrder() (*order.Order, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, fmt.Errorf("journal record %q: %w", r.ID, err)
	}
	amount, err := decimal.NewFromString(r.Amount)
	if err != nil {
		return nil, fmt.Errorf("journal record %s amount: %w", r.ID, err)
	}
	return &order.Order{
		ID:        id,
		Side:      order.Side(r.Side),
		TokenIn:   r.TokenIn,
		TokenOut:  r.TokenOut,
		Amount:    amount,
		Slippage:  r.Slippage,
		Status:    order.StatusQueued,
		UpdatedAt: time.Now(),
	}, nil
}

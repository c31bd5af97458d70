// Package storage - Persistence for intents evicted after exhausting
// swap retries. Operators resolve these rows by external intervention.
package storage

import (
	"database/sql"
	"errors"
	"math/big"
	"time"
)

// ErrFailedSwapNotFound is returned when no row exists for an order ID.
var ErrFailedSwapNotFound = errors.New("failed swap not found")

// FailedSwap is one evicted intent.
type FailedSwap struct {
	Timestamp    time.Time
	OrderID      uint64
	ErrorMessage string
	IntentType   uint8
	AssetToSell  string
	AmountToSell *big.Int
	AssetToBuy   string
	OrderStatus  uint8
}

// RecordFailedSwap inserts a failure row for an order ID. Insert-or-ignore:
// a row already present for the same order ID is left untouched.
func (s *Storage) RecordFailedSwap(f *FailedSwap) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := f.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	amount := ""
	if f.AmountToSell != nil {
		amount = f.AmountToSell.String()
	}

	query := `
		INSERT OR IGNORE INTO failed_swaps (
			timestamp, agi_id, error_message, intent_type,
			asset_to_sell, amount_to_sell, asset_to_buy,
			order_id, order_status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		ts.Unix(),
		f.OrderID,
		f.ErrorMessage,
		f.IntentType,
		f.AssetToSell,
		amount,
		f.AssetToBuy,
		f.OrderID,
		f.OrderStatus,
	)
	return err
}

// DeleteFailedSwap removes the row for an order ID. No-op if absent.
func (s *Storage) DeleteFailedSwap(orderID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM failed_swaps WHERE agi_id = ?`, orderID)
	return err
}

// GetFailedSwap retrieves the row for an order ID.
func (s *Storage) GetFailedSwap(orderID uint64) (*FailedSwap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT timestamp, agi_id, error_message, intent_type,
		       asset_to_sell, amount_to_sell, asset_to_buy, order_status
		FROM failed_swaps WHERE agi_id = ?
	`, orderID)

	return scanFailedSwap(row)
}

// ListFailedSwaps returns all failure rows, newest first.
func (s *Storage) ListFailedSwaps() ([]*FailedSwap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT timestamp, agi_id, error_message, intent_type,
		       asset_to_sell, amount_to_sell, asset_to_buy, order_status
		FROM failed_swaps ORDER BY timestamp DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var swaps []*FailedSwap
	for rows.Next() {
		f, err := scanFailedSwap(rows)
		if err != nil {
			return nil, err
		}
		swaps = append(swaps, f)
	}
	return swaps, rows.Err()
}

// CountFailedSwaps returns the number of failure rows.
func (s *Storage) CountFailedSwaps() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM failed_swaps`).Scan(&count)
	return count, err
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanFailedSwap(row scannable) (*FailedSwap, error) {
	var (
		ts     int64
		f      FailedSwap
		amount string
	)
	err := row.Scan(&ts, &f.OrderID, &f.ErrorMessage, &f.IntentType,
		&f.AssetToSell, &amount, &f.AssetToBuy, &f.OrderStatus)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrFailedSwapNotFound
	}
	if err != nil {
		return nil, err
	}

	f.Timestamp = time.Unix(ts, 0)
	if amount != "" {
		n, ok := new(big.Int).SetString(amount, 10)
		if !ok {
			f.AmountToSell = new(big.Int)
		} else {
			f.AmountToSell = n
		}
	}
	return &f, nil
}

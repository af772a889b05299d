// Package storage persists trading records in BadgerDB. Strategy-side
// writes go through a buffered channel to a background writer so a slow
// or failing disk never stalls a trading iteration; reads are served
// directly from the database.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v3"

	"stablecoin-mm-bot/internal/logger"
	"stablecoin-mm-bot/internal/models"
)

const (
	prefixTrade       = "trade:"
	prefixPosSnap     = "psnap:"
	prefixMarketSnap  = "msnap:"
	prefixOrderEvent  = "oevent:"
	prefixSystemEvent = "sevent:"
	prefixGridOrder   = "gorder:"
	keyGridState      = "gstate"

	writeQueueSize = 256
)

type writeOp struct {
	key   []byte
	value []byte
	ack   chan struct{} // non-nil only for flush barriers
}

// Store is the BadgerDB record store.
type Store struct {
	db     *badger.DB
	seq    *badger.Sequence
	writes chan writeOp
	closed chan struct{}
}

// Open opens (or creates) the database at path and starts the writer.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", path, err)
	}
	seq, err := db.GetSequence([]byte("event_seq"), 64)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("event sequence: %w", err)
	}

	s := &Store{
		db:     db,
		seq:    seq,
		writes: make(chan writeOp, writeQueueSize),
		closed: make(chan struct{}),
	}
	go s.writer()
	return s, nil
}

func (s *Store) writer() {
	defer close(s.closed)
	for op := range s.writes {
		if op.ack != nil {
			close(op.ack)
			continue
		}
		err := s.db.Update(func(txn *badger.Txn) error {
			return txn.Set(op.key, op.value)
		})
		if err != nil {
			logger.S().Warnf("storage write %s failed: %v", op.key, err)
		}
	}
}

// enqueue marshals and queues a write. A full queue drops the record
// rather than blocking the trading loop.
func (s *Store) enqueue(key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.S().Warnf("storage marshal %s: %v", key, err)
		return
	}
	select {
	case s.writes <- writeOp{key: []byte(key), value: data}:
	default:
		logger.S().Warnf("storage queue full, dropping write %s", key)
	}
}

// Flush blocks until every queued write has been applied.
func (s *Store) Flush() {
	ack := make(chan struct{})
	s.writes <- writeOp{ack: ack}
	<-ack
}

// Close drains the queue and closes the database.
func (s *Store) Close() error {
	close(s.writes)
	<-s.closed
	if err := s.seq.Release(); err != nil {
		logger.S().Warnf("release sequence: %v", err)
	}
	return s.db.Close()
}

func (s *Store) nextSeq() uint64 {
	n, err := s.seq.Next()
	if err != nil {
		logger.S().Warnf("event sequence: %v", err)
	}
	return n
}

// --- strategy.Recorder ---

func (s *Store) RecordTrade(t models.Trade) {
	s.enqueue(fmt.Sprintf("%s%013d:%s", prefixTrade, t.Timestamp, t.ID), t)
}

func (s *Store) RecordPositionSnapshot(p models.PositionSnapshot) {
	s.enqueue(fmt.Sprintf("%s%013d:%06d", prefixPosSnap, p.Timestamp, s.nextSeq()), p)
}

func (s *Store) RecordMarketSnapshot(m models.MarketSnapshot) {
	s.enqueue(fmt.Sprintf("%s%013d:%06d", prefixMarketSnap, m.Timestamp, s.nextSeq()), m)
}

func (s *Store) RecordOrderEvent(e models.OrderEvent) {
	s.enqueue(fmt.Sprintf("%s%013d:%06d", prefixOrderEvent, e.Timestamp, s.nextSeq()), e)
}

func (s *Store) RecordSystemEvent(e models.SystemEvent) {
	s.enqueue(fmt.Sprintf("%s%013d:%06d", prefixSystemEvent, e.Timestamp, s.nextSeq()), e)
}

func (s *Store) RecordGridOrder(r models.GridOrderRecord) {
	s.enqueue(fmt.Sprintf("%s%s:%04d", prefixGridOrder, r.GridID, r.LevelIndex), r)
}

func (s *Store) SaveGridState(g *models.GridState) {
	if g == nil {
		return
	}
	s.enqueue(keyGridState, g)
}

// --- queries ---

// Trades returns stored trades in timestamp order. limit <= 0 returns
// everything; otherwise the most recent limit trades.
func (s *Store) Trades(limit int) ([]models.Trade, error) {
	var out []models.Trade
	err := s.scan(prefixTrade, func(val []byte) error {
		var t models.Trade
		if err := json.Unmarshal(val, &t); err != nil {
			return err
		}
		out = append(out, t)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// LoadGridState returns the persisted grid, or (nil, nil) when no grid
// has been saved yet.
func (s *Store) LoadGridState() (*models.GridState, error) {
	var g models.GridState
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyGridState))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &g)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// LatestPositionSnapshot returns the most recent snapshot, or nil when
// none exist.
func (s *Store) LatestPositionSnapshot() (*models.PositionSnapshot, error) {
	var p *models.PositionSnapshot
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = []byte(prefixPosSnap)
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration needs a seek key past the prefix range.
		it.Seek([]byte(prefixPosSnap + "\xff"))
		if !it.ValidForPrefix([]byte(prefixPosSnap)) {
			return nil
		}
		return it.Item().Value(func(val []byte) error {
			p = &models.PositionSnapshot{}
			return json.Unmarshal(val, p)
		})
	})
	return p, err
}

// OrderEvents returns the most recent limit order events, newest last.
func (s *Store) OrderEvents(limit int) ([]models.OrderEvent, error) {
	var out []models.OrderEvent
	err := s.scan(prefixOrderEvent, func(val []byte) error {
		var e models.OrderEvent
		if err := json.Unmarshal(val, &e); err != nil {
			return err
		}
		out = append(out, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// SystemEvents returns the most recent limit system events, newest last.
func (s *Store) SystemEvents(limit int) ([]models.SystemEvent, error) {
	var out []models.SystemEvent
	err := s.scan(prefixSystemEvent, func(val []byte) error {
		var e models.SystemEvent
		if err := json.Unmarshal(val, &e); err != nil {
			return err
		}
		out = append(out, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// GridOrders returns the per-level records of one grid, by level index.
func (s *Store) GridOrders(gridID string) ([]models.GridOrderRecord, error) {
	var out []models.GridOrderRecord
	err := s.scan(prefixGridOrder+gridID+":", func(val []byte) error {
		var r models.GridOrderRecord
		if err := json.Unmarshal(val, &r); err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	return out, err
}

// GridPerformance sums completed cycles and booked profit for a grid.
func (s *Store) GridPerformance(gridID string) (completed int, profit float64, err error) {
	records, err := s.GridOrders(gridID)
	if err != nil {
		return 0, 0, err
	}
	for _, r := range records {
		if r.Status == models.LevelCompleted || r.SellFilledAt > 0 {
			completed++
		}
		profit += r.Profit
	}
	return completed, profit, nil
}

func (s *Store) scan(prefix string, fn func(val []byte) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
			if err := it.Item().Value(fn); err != nil {
				key := string(it.Item().Key())
				return fmt.Errorf("decode %s: %w", strings.TrimSuffix(key, ":"), err)
			}
		}
		return nil
	})
}

// Package sqlite persists the in-memory state to a single SQLite table as
// JSON blobs, one bucket per entity type. It snapshots after every successful
// transaction, and only the buckets the transaction actually touched are
// rewritten. The snapshot is taken under the store lock but written outside
// it, so a slow flush never serializes unrelated mutators.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"pharmacore/internal/infra/persistence/memory"
	"pharmacore/pkg/domain"
)

var _ domain.PersistentStore = (*Store)(nil)

// Store wraps the in-memory engine with SQLite-backed snapshots.
type Store struct {
	*memory.Store
	db      *sql.DB
	mu      sync.Mutex
	path    string
	loadErr error
}

// NewStore constructs a snapshotting SQLite-backed persistent store. When the
// persisted state cannot be decoded, the store starts empty and the decode
// failure is retained for LoadWarning so the caller can log it and seed.
func NewStore(path string, engine *domain.RulesEngine) (*Store, error) {
	if path == "" {
		path = "pharmacore.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create state table: %w", err)
	}
	s := &Store{Store: memory.NewStore(engine), db: db, path: path}
	if err := s.load(); err != nil {
		s.loadErr = err
		s.Store = memory.NewStore(engine)
	}
	return s, nil
}

var buckets = map[domain.EntityType]string{
	domain.EntityUser:                "users",
	domain.EntityPharmacy:            "pharmacies",
	domain.EntityMedicine:            "medicines",
	domain.EntityReservation:         "reservations",
	domain.EntityPrescriptionRequest: "prescription_requests",
}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT bucket, payload FROM state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	snapshot := memory.Snapshot{}
	found := false
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		found = true
		var dst any
		switch bucket {
		case "users":
			dst = &snapshot.Users
		case "pharmacies":
			dst = &snapshot.Pharmacies
		case "medicines":
			dst = &snapshot.Medicines
		case "reservations":
			dst = &snapshot.Reservations
		case "prescription_requests":
			dst = &snapshot.Prescriptions
		default:
			continue
		}
		if err := json.Unmarshal(payload, dst); err != nil {
			return fmt.Errorf("decode %s: %w", bucket, err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate state: %w", err)
	}
	if !found {
		return nil
	}
	s.ImportState(snapshot)
	return nil
}

// LoadWarning reports a startup decode failure, if any. The in-memory state
// is empty when this is non-nil.
func (s *Store) LoadWarning() error { return s.loadErr }

func (s *Store) persist(entities map[domain.EntityType]bool) (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.ExportState()
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for entity := range entities {
		bucket, ok := buckets[entity]
		if !ok {
			continue
		}
		var data []byte
		switch entity {
		case domain.EntityUser:
			data, err = json.Marshal(snapshot.Users)
		case domain.EntityPharmacy:
			data, err = json.Marshal(snapshot.Pharmacies)
		case domain.EntityMedicine:
			data, err = json.Marshal(snapshot.Medicines)
		case domain.EntityReservation:
			data, err = json.Marshal(snapshot.Reservations)
		case domain.EntityPrescriptionRequest:
			data, err = json.Marshal(snapshot.Prescriptions)
		}
		if err != nil {
			retErr = err
			return retErr
		}
		if _, err = tx.Exec(`INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, bucket, data); err != nil {
			retErr = fmt.Errorf("upsert %s: %w", bucket, err)
			return retErr
		}
	}
	return tx.Commit()
}

// RunInTransaction applies fn within a transaction, then snapshots the
// affected buckets to SQLite if the commit succeeded. A flush failure is
// returned but the committed in-memory state is kept: last known good state
// wins, the operator resolves the disk fault.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (domain.Result, error) {
	affected := make(map[domain.EntityType]bool)
	res, err := s.Store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		if err := fn(tx); err != nil {
			return err
		}
		for _, change := range tx.Changes() {
			affected[change.Entity] = true
		}
		return nil
	})
	if err != nil {
		return res, err
	}
	if len(affected) == 0 {
		return res, nil
	}
	if pErr := s.persist(affected); pErr != nil {
		return res, fmt.Errorf("snapshot flush: %w", pErr)
	}
	return res, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

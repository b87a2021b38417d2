// Package postgres mirrors the sqlite snapshot layout over a PostgreSQL
// server, for deployments that already operate one. The persistence unit is
// still a whole bucket per entity type; there is no row-level schema.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"pharmacore/internal/infra/persistence/memory"
	"pharmacore/pkg/domain"
)

var _ domain.PersistentStore = (*Store)(nil)

// Store wraps the in-memory engine with PostgreSQL-backed snapshots.
type Store struct {
	*memory.Store
	pool    *pgxpool.Pool
	mu      sync.Mutex
	loadErr error
}

// NewStore connects to the given DSN, ensures the state table exists, and
// loads the persisted snapshot. Decode failures leave the store empty and are
// reported through LoadWarning.
func NewStore(ctx context.Context, dsn string, engine *domain.RulesEngine) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS pharmacore_state (
		bucket TEXT PRIMARY KEY,
		payload JSONB NOT NULL
	)`); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}
	s := &Store{Store: memory.NewStore(engine), pool: pool}
	if err := s.load(ctx); err != nil {
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

func (s *Store) load(ctx context.Context) error {
	rows, err := s.pool.Query(ctx, `SELECT bucket, payload FROM pharmacore_state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer rows.Close()

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

// LoadWarning reports a startup decode failure, if any.
func (s *Store) LoadWarning() error { return s.loadErr }

func (s *Store) persist(ctx context.Context, entities map[domain.EntityType]bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.ExportState()
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for entity := range entities {
			bucket, ok := buckets[entity]
			if !ok {
				continue
			}
			var data []byte
			var err error
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
				return err
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO pharmacore_state(bucket,payload) VALUES($1,$2)
				 ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, bucket, data); err != nil {
				return fmt.Errorf("upsert %s: %w", bucket, err)
			}
		}
		return nil
	})
}

// RunInTransaction applies fn in-memory, then snapshots the affected buckets.
// On flush failure the committed in-memory state is kept and the error is
// surfaced for the operator.
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
	if pErr := s.persist(ctx, affected); pErr != nil {
		return res, fmt.Errorf("snapshot flush: %w", pErr)
	}
	return res, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

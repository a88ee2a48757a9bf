package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"

	domain "rouse/internal/domain/alarm"
)

// PersistedState is everything the engine needs back after a restart.
type PersistedState struct {
	// Schedules is the full schedule set.
	Schedules []*domain.Schedule
	// Status is the last published snapshot.
	Status *domain.Status
	// Revision is the sync revision counter.
	Revision uint64
}

// Repository defines persistence operations for the engine state.
type Repository interface {
	Load(ctx context.Context) (*PersistedState, error)
	Save(ctx context.Context, state *PersistedState) error
}

// ErrNotFound is returned when the database holds no previous state.
var ErrNotFound = errors.New("state not found")

// Keys in the device_state table.
const (
	keyRevision = "revision"
	keyStatus   = "status"
)

// poolSize bounds the sqlite connection pool. The engine is the only writer,
// so a small pool suffices.
const poolSize = 2

// SQLiteStore persists engine state in a local sqlite database.
type SQLiteStore struct {
	// pool hands out connections to the database file.
	pool *sqlitex.Pool
}

// Open opens (creating if needed) the database at path and migrates its schema.
func Open(ctx context.Context, path string) (*SQLiteStore, error) {
	pool, err := sqlitex.Open(path, 0, poolSize)
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}

	conn := pool.Get(ctx)
	if conn == nil {
		_ = pool.Close()

		return nil, ctx.Err()
	}

	err = migrate(conn, migrations)
	pool.Put(conn)

	if err != nil {
		_ = pool.Close()

		return nil, fmt.Errorf("migrate state database: %w", err)
	}

	return &SQLiteStore{
		pool: pool,
	}, nil
}

// Close releases the connection pool.
func (s *SQLiteStore) Close() error {
	return s.pool.Close()
}

// Load reads the persisted state. ErrNotFound means a fresh database.
func (s *SQLiteStore) Load(ctx context.Context) (*PersistedState, error) {
	conn := s.pool.Get(ctx)
	if conn == nil {
		return nil, ctx.Err()
	}
	defer s.pool.Put(conn)

	state := &PersistedState{}

	err := sqlitex.Exec(conn,
		"select id, hour, minute, repeat, weekdays, enabled, snooze_ns, ramp from schedules order by id",
		func(stmt *sqlite.Stmt) error {
			schedule, err := scanSchedule(stmt)
			if err != nil {
				return err
			}

			state.Schedules = append(state.Schedules, schedule)

			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("load schedules: %w", err)
	}

	found := false

	err = sqlitex.Exec(conn, "select key, value from device_state", func(stmt *sqlite.Stmt) error {
		found = true

		switch key, value := stmt.ColumnText(0), stmt.ColumnText(1); key {
		case keyRevision:
			revision, err := strconv.ParseUint(value, 10, 64)
			if err != nil {
				return fmt.Errorf("parse revision: %w", err)
			}

			state.Revision = revision
		case keyStatus:
			status := &domain.Status{}
			if err := json.Unmarshal([]byte(value), status); err != nil {
				return fmt.Errorf("decode status: %w", err)
			}

			state.Status = status
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load device state: %w", err)
	}

	if !found && len(state.Schedules) == 0 {
		return nil, ErrNotFound
	}

	return state, nil
}

// Save writes the full state atomically, replacing whatever was stored.
// Whole-state writes match the engine's envelope-granularity mutations.
func (s *SQLiteStore) Save(ctx context.Context, state *PersistedState) (err error) {
	conn := s.pool.Get(ctx)
	if conn == nil {
		return ctx.Err()
	}
	defer s.pool.Put(conn)

	release := sqlitex.Save(conn)
	defer release(&err)

	if err = sqlitex.Exec(conn, "delete from schedules", nil); err != nil {
		return fmt.Errorf("clear schedules: %w", err)
	}

	for _, schedule := range state.Schedules {
		if err = insertSchedule(conn, schedule); err != nil {
			return err
		}
	}

	err = sqlitex.Exec(conn,
		"insert into device_state (key, value) values (?, ?) on conflict (key) do update set value = excluded.value",
		nil, keyRevision, strconv.FormatUint(state.Revision, 10))
	if err != nil {
		return fmt.Errorf("save revision: %w", err)
	}

	if state.Status != nil {
		encoded, encodeErr := json.Marshal(state.Status)
		if encodeErr != nil {
			return fmt.Errorf("encode status: %w", encodeErr)
		}

		err = sqlitex.Exec(conn,
			"insert into device_state (key, value) values (?, ?) on conflict (key) do update set value = excluded.value",
			nil, keyStatus, string(encoded))
		if err != nil {
			return fmt.Errorf("save status: %w", err)
		}
	}

	return nil
}

// insertSchedule writes one schedule row.
func insertSchedule(conn *sqlite.Conn, schedule *domain.Schedule) error {
	weekdays, err := json.Marshal(schedule.Weekdays)
	if err != nil {
		return fmt.Errorf("encode weekdays: %w", err)
	}

	err = sqlitex.Exec(conn,
		"insert into schedules (id, hour, minute, repeat, weekdays, enabled, snooze_ns, ramp) values (?, ?, ?, ?, ?, ?, ?, ?)",
		nil,
		int64(schedule.ID),
		schedule.Hour,
		schedule.Minute,
		string(schedule.Repeat),
		string(weekdays),
		boolToInt(schedule.Enabled),
		int64(schedule.Snooze),
		schedule.Ramp,
	)
	if err != nil {
		return fmt.Errorf("insert schedule %d: %w", schedule.ID, err)
	}

	return nil
}

// scanSchedule reads one schedule row.
func scanSchedule(stmt *sqlite.Stmt) (*domain.Schedule, error) {
	schedule := &domain.Schedule{
		ID:      uint64(stmt.ColumnInt64(0)),
		Hour:    stmt.ColumnInt(1),
		Minute:  stmt.ColumnInt(2),
		Repeat:  domain.RepeatKind(stmt.ColumnText(3)),
		Enabled: stmt.ColumnInt(5) != 0,
		Snooze:  time.Duration(stmt.ColumnInt64(6)),
		Ramp:    stmt.ColumnText(7),
	}

	if raw := stmt.ColumnText(4); raw != "" && raw != "[]" {
		if err := json.Unmarshal([]byte(raw), &schedule.Weekdays); err != nil {
			return nil, fmt.Errorf("decode weekdays of schedule %d: %w", schedule.ID, err)
		}
	}

	return schedule, nil
}

// boolToInt maps a bool onto the sqlite integer encoding.
func boolToInt(v bool) int {
	if v {
		return 1
	}

	return 0
}

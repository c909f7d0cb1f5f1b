/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements every persistence contract of the workflow core using SQLite.
  The same statements port to PostgreSQL with minor dialect changes.

INTERFACES IMPLEMENTED:
  timecard.Store:    Time entries and week locks
  leave.Store:       Unavailability windows
  materials.Store:   Allocations and dispositions
  generic.JobStore:  Jobs and crews
  generic.Directory: Employees and vans
  leave.Notifier:    Notification outbox

KEY TABLES:
  time_entries:          One row per (employee, date, job | category)
  week_locks:            One row per locked (employee, week_ending)
  unavailability_windows: Call-outs and leave requests
  jobs, job_crew:        Job schedule and crew membership
  material_allocations:  Per-job material needs (written by job planning)
  material_dispositions: Reconcile outcomes
  notifications:         Manager outbox

CONDITIONAL WRITES:
  SaveEntry checks week_locks inside the same transaction as the write, so a
  submit that lands between the ledger's pre-check and the write still wins.
  ResolveWindow only updates rows still in 'pending'.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging): readers don't block and
  there is a single writer at a time.

USAGE:
  store, err := sqlite.New("./data/fieldops.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := timecard.NewLedger(store)
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/warp/field-ops/generic"
	"github.com/warp/field-ops/leave"
	"github.com/warp/field-ops/materials"
	"github.com/warp/field-ops/notify"
	"github.com/warp/field-ops/timecard"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// An in-memory database lives and dies with its connection.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS vans (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Jobs and crews (owned by the job/schedule collaborator)
	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'scheduled',
		scheduled_date TEXT NOT NULL,
		scheduled_time TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_scheduled_date
		ON jobs(scheduled_date);

	CREATE TABLE IF NOT EXISTS job_crew (
		job_id TEXT NOT NULL REFERENCES jobs(id),
		employee_id TEXT NOT NULL,
		PRIMARY KEY (job_id, employee_id)
	);

	CREATE INDEX IF NOT EXISTS idx_job_crew_employee
		ON job_crew(employee_id);

	-- Time entries: job_id is '' for non-job categories
	CREATE TABLE IF NOT EXISTS time_entries (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		work_date TEXT NOT NULL,
		job_id TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL,
		hours TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		locked INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL,
		CHECK ((category = 'job') = (job_id <> ''))
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_time_entries_key
		ON time_entries(employee_id, work_date, job_id, category);

	CREATE TABLE IF NOT EXISTS week_locks (
		employee_id TEXT NOT NULL,
		week_ending TEXT NOT NULL,
		locked_at TEXT NOT NULL,
		PRIMARY KEY (employee_id, week_ending)
	);

	-- Unavailability windows
	CREATE TABLE IF NOT EXISTS unavailability_windows (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		leave_type TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		auto_removed INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		resolved_by TEXT,
		resolved_at TEXT,
		resolve_note TEXT NOT NULL DEFAULT '',
		CHECK (end_date >= start_date)
	);

	CREATE INDEX IF NOT EXISTS idx_windows_employee
		ON unavailability_windows(employee_id, start_date);

	-- Materials
	CREATE TABLE IF NOT EXISTS material_allocations (
		job_id TEXT NOT NULL REFERENCES jobs(id),
		material_id TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		unit TEXT NOT NULL DEFAULT '',
		quantity_needed TEXT NOT NULL,
		quantity_allocated TEXT NOT NULL,
		PRIMARY KEY (job_id, material_id)
	);

	CREATE TABLE IF NOT EXISTS material_dispositions (
		id TEXT PRIMARY KEY,
		job_id TEXT NOT NULL REFERENCES jobs(id),
		material_id TEXT NOT NULL,
		base_quantity TEXT NOT NULL,
		quantity_used TEXT NOT NULL,
		quantity_leftover TEXT NOT NULL,
		destination TEXT NOT NULL,
		van_id TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		recorded_by TEXT NOT NULL DEFAULT '',
		recorded_at TEXT NOT NULL,
		UNIQUE (job_id, material_id),
		CHECK ((destination = 'van') = (van_id <> ''))
	);

	-- Manager notification outbox
	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		employee_id TEXT NOT NULL DEFAULT '',
		job_id TEXT NOT NULL DEFAULT '',
		window_id TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// withTx runs fn inside a database transaction, rolling back on error.
// Callers hold s.mu.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(sqlTx); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// =============================================================================
// DIRECTORY (generic.Directory)
// =============================================================================

// SaveEmployee creates or renames an employee.
func (s *Store) SaveEmployee(ctx context.Context, id generic.EmployeeID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO employees (id, name, created_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`, id, name, now())
	if err != nil {
		return fmt.Errorf("failed to save employee: %w", err)
	}
	return nil
}

// SaveVan creates or renames a van.
func (s *Store) SaveVan(ctx context.Context, id generic.VanID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vans (id, name, created_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`, id, name, now())
	if err != nil {
		return fmt.Errorf("failed to save van: %w", err)
	}
	return nil
}

func (s *Store) EmployeeExists(ctx context.Context, id generic.EmployeeID) (bool, error) {
	return s.exists(ctx, "SELECT COUNT(*) FROM employees WHERE id = ?", id)
}

func (s *Store) VanExists(ctx context.Context, id generic.VanID) (bool, error) {
	return s.exists(ctx, "SELECT COUNT(*) FROM vans WHERE id = ?", id)
}

func (s *Store) exists(ctx context.Context, query string, args ...any) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

// =============================================================================
// JOB STORE (generic.JobStore)
// =============================================================================

// SaveJob creates or replaces a job and its crew.
func (s *Store) SaveJob(ctx context.Context, job generic.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job.Status == "" {
		job.Status = generic.JobScheduled
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		ts := now()
		_, err := tx.ExecContext(ctx, `
			INSERT INTO jobs (id, name, status, scheduled_date, scheduled_time, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				status = excluded.status,
				scheduled_date = excluded.scheduled_date,
				scheduled_time = excluded.scheduled_time,
				updated_at = excluded.updated_at
		`, job.ID, job.Name, job.Status, job.ScheduledDate.String(), job.ScheduledTime, ts, ts)
		if err != nil {
			return fmt.Errorf("failed to save job: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM job_crew WHERE job_id = ?", job.ID); err != nil {
			return fmt.Errorf("failed to reset crew: %w", err)
		}
		for _, emp := range job.Crew {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO job_crew (job_id, employee_id) VALUES (?, ?)", job.ID, emp); err != nil {
				return fmt.Errorf("failed to save crew member %s: %w", emp, err)
			}
		}
		return nil
	})
}

func (s *Store) GetJob(ctx context.Context, id generic.JobID) (*generic.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getJob(ctx, s.db, id)
}

func (s *Store) getJob(ctx context.Context, q queryer, id generic.JobID) (*generic.Job, error) {
	var (
		job           generic.Job
		scheduledDate string
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, name, status, scheduled_date, scheduled_time
		FROM jobs WHERE id = ?
	`, id).Scan(&job.ID, &job.Name, &job.Status, &scheduledDate, &job.ScheduledTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, generic.NotFound("job", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	job.ScheduledDate = parseDate(scheduledDate)

	crew, err := s.loadCrew(ctx, q, id)
	if err != nil {
		return nil, err
	}
	job.Crew = crew
	return &job, nil
}

func (s *Store) loadCrew(ctx context.Context, q queryer, id generic.JobID) ([]generic.EmployeeID, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT employee_id FROM job_crew WHERE job_id = ? ORDER BY employee_id", id)
	if err != nil {
		return nil, fmt.Errorf("failed to load crew: %w", err)
	}
	defer rows.Close()

	crew := []generic.EmployeeID{}
	for rows.Next() {
		var emp generic.EmployeeID
		if err := rows.Scan(&emp); err != nil {
			return nil, fmt.Errorf("failed to scan crew: %w", err)
		}
		crew = append(crew, emp)
	}
	return crew, rows.Err()
}

func (s *Store) JobsForEmployee(ctx context.Context, emp generic.EmployeeID, from, to generic.TimePoint) ([]generic.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT j.id
		FROM jobs j
		JOIN job_crew c ON c.job_id = j.id
		WHERE c.employee_id = ? AND j.scheduled_date >= ? AND j.scheduled_date <= ?
		ORDER BY j.scheduled_date ASC, j.id ASC
	`, emp, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	var ids []generic.JobID
	for rows.Next() {
		var id generic.JobID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	jobs := make([]generic.Job, 0, len(ids))
	for _, id := range ids {
		job, err := s.getJob(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, nil
}

// RemoveCrewMember removes emp from the crew in its own transaction.
func (s *Store) RemoveCrewMember(ctx context.Context, id generic.JobID, emp generic.EmployeeID) (*generic.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var job *generic.Job
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.getJob(ctx, tx, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM job_crew WHERE job_id = ? AND employee_id = ?", id, emp); err != nil {
			return fmt.Errorf("failed to remove crew member: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE jobs SET updated_at = ? WHERE id = ?", now(), id); err != nil {
			return fmt.Errorf("failed to touch job: %w", err)
		}
		var err error
		job, err = s.getJob(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (s *Store) CompleteJob(ctx context.Context, id generic.JobID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE jobs SET status = ?, updated_at = ? WHERE id = ?", generic.JobComplete, now(), id)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return generic.NotFound("job", id)
	}
	return nil
}

// =============================================================================
// TIME ENTRIES (timecard.Store)
// =============================================================================

const entryColumns = `id, employee_id, work_date, job_id, category, hours, notes, locked, updated_at`

func (s *Store) FindEntry(ctx context.Context, emp generic.EmployeeID, date generic.TimePoint, target timecard.Target) (*timecard.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM time_entries
		WHERE employee_id = ? AND work_date = ? AND job_id = ? AND category = ?
	`, emp, date.String(), target.JobID, target.Category)
	if err != nil {
		return nil, fmt.Errorf("failed to find entry: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	e, err := scanEntry(rows)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// SaveEntry upserts the entry after re-checking the week lock in the same transaction.
func (s *Store) SaveEntry(ctx context.Context, e timecard.Entry, _, weekEnding generic.TimePoint) (generic.EntryID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var id generic.EntryID
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		locked, err := isWeekLocked(ctx, tx, e.EmployeeID, weekEnding)
		if err != nil {
			return err
		}
		if locked {
			return &generic.WeekLockedError{EmployeeID: e.EmployeeID, WeekEnding: weekEnding}
		}

		newID := e.ID
		if newID == "" {
			newID = generic.EntryID(uuid.NewString())
		}
		// A locked row is never updated, whatever week boundary is current.
		res, err := tx.ExecContext(ctx, `
			INSERT INTO time_entries (`+entryColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)
			ON CONFLICT(employee_id, work_date, job_id, category) DO UPDATE SET
				hours = excluded.hours,
				notes = excluded.notes,
				updated_at = excluded.updated_at
			WHERE time_entries.locked = 0
		`, newID, e.EmployeeID, e.Date.String(), e.Target.JobID, e.Target.Category,
			e.Hours.String(), e.Notes, e.UpdatedAt.UTC().Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("failed to save entry: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to save entry: %w", err)
		}
		if n == 0 {
			return &generic.WeekLockedError{EmployeeID: e.EmployeeID, WeekEnding: weekEnding}
		}

		return tx.QueryRowContext(ctx, `
			SELECT id FROM time_entries
			WHERE employee_id = ? AND work_date = ? AND job_id = ? AND category = ?
		`, e.EmployeeID, e.Date.String(), e.Target.JobID, e.Target.Category).Scan(&id)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) LoadEntries(ctx context.Context, emp generic.EmployeeID, from, to generic.TimePoint) ([]timecard.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM time_entries
		WHERE employee_id = ? AND work_date >= ? AND work_date <= ?
		ORDER BY work_date ASC, category ASC, job_id ASC
	`, emp, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var entries []timecard.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(rows *sql.Rows) (timecard.Entry, error) {
	var (
		e         timecard.Entry
		workDate  string
		hours     string
		updatedAt string
	)
	err := rows.Scan(&e.ID, &e.EmployeeID, &workDate, &e.Target.JobID, &e.Target.Category,
		&hours, &e.Notes, &e.Locked, &updatedAt)
	if err != nil {
		return e, fmt.Errorf("failed to scan entry: %w", err)
	}
	e.Date = parseDate(workDate)
	e.Hours = generic.MustParseDecimal(hours)
	e.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return e, nil
}

func (s *Store) IsWeekLocked(ctx context.Context, emp generic.EmployeeID, weekEnding generic.TimePoint) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return isWeekLocked(ctx, s.db, emp, weekEnding)
}

func isWeekLocked(ctx context.Context, q queryer, emp generic.EmployeeID, weekEnding generic.TimePoint) (bool, error) {
	var count int
	err := q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM week_locks WHERE employee_id = ? AND week_ending = ?",
		emp, weekEnding.String(),
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to read week lock: %w", err)
	}
	return count > 0, nil
}

// LockWeek records the lock and flags the week's entries in one transaction.
func (s *Store) LockWeek(ctx context.Context, emp generic.EmployeeID, weekStart, weekEnding generic.TimePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO week_locks (employee_id, week_ending, locked_at) VALUES (?, ?, ?)",
			emp, weekEnding.String(), now())
		if isUniqueConstraintError(err) {
			return &generic.WeekLockedError{EmployeeID: emp, WeekEnding: weekEnding}
		}
		if err != nil {
			return fmt.Errorf("failed to lock week: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE time_entries SET locked = 1
			WHERE employee_id = ? AND work_date >= ? AND work_date <= ?
		`, emp, weekStart.String(), weekEnding.String())
		if err != nil {
			return fmt.Errorf("failed to lock entries: %w", err)
		}
		return nil
	})
}

// =============================================================================
// LEAVE WINDOWS (leave.Store)
// =============================================================================

const windowColumns = `id, employee_id, start_date, end_date, leave_type, reason, status,
	auto_removed, created_at, resolved_by, resolved_at, resolve_note`

func (s *Store) CreateWindow(ctx context.Context, w leave.Window) (generic.WindowID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w.ID == "" {
		w.ID = generic.WindowID(uuid.NewString())
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO unavailability_windows
		(id, employee_id, start_date, end_date, leave_type, reason, status, auto_removed, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, w.ID, w.EmployeeID, w.Start.String(), w.End.String(), w.Type, w.Reason, w.Status,
		w.AutoRemoved, w.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return "", fmt.Errorf("failed to create window: %w", err)
	}
	return w.ID, nil
}

func (s *Store) GetWindow(ctx context.Context, id generic.WindowID) (*leave.Window, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	windows, err := s.queryWindows(ctx, "SELECT "+windowColumns+" FROM unavailability_windows WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(windows) == 0 {
		return nil, generic.NotFound("window", id)
	}
	return &windows[0], nil
}

func (s *Store) ListWindows(ctx context.Context, emp generic.EmployeeID) ([]leave.Window, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryWindows(ctx, `
		SELECT `+windowColumns+` FROM unavailability_windows
		WHERE employee_id = ?
		ORDER BY start_date ASC, created_at ASC
	`, emp)
}

func (s *Store) queryWindows(ctx context.Context, query string, args ...any) ([]leave.Window, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query windows: %w", err)
	}
	defer rows.Close()

	var windows []leave.Window
	for rows.Next() {
		var (
			w          leave.Window
			start, end string
			createdAt  string
			resolvedBy sql.NullString
			resolvedAt sql.NullString
		)
		err := rows.Scan(&w.ID, &w.EmployeeID, &start, &end, &w.Type, &w.Reason, &w.Status,
			&w.AutoRemoved, &createdAt, &resolvedBy, &resolvedAt, &w.ResolveNote)
		if err != nil {
			return nil, fmt.Errorf("failed to scan window: %w", err)
		}
		w.Start = parseDate(start)
		w.End = parseDate(end)
		w.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		if resolvedBy.Valid {
			by := generic.EmployeeID(resolvedBy.String)
			w.ResolvedBy = &by
		}
		if resolvedAt.Valid {
			if t, err := time.Parse(time.RFC3339, resolvedAt.String); err == nil {
				w.ResolvedAt = &t
			}
		}
		windows = append(windows, w)
	}
	return windows, rows.Err()
}

func (s *Store) MarkAutoRemoved(ctx context.Context, id generic.WindowID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE unavailability_windows SET auto_removed = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to flag window: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return generic.NotFound("window", id)
	}
	return nil
}

// ResolveWindow only touches windows still pending.
func (s *Store) ResolveWindow(ctx context.Context, id generic.WindowID, status leave.Status, by generic.EmployeeID, at time.Time, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE unavailability_windows
			SET status = ?, resolved_by = ?, resolved_at = ?, resolve_note = ?
			WHERE id = ? AND status = ?
		`, status, by, at.UTC().Format(time.RFC3339), note, id, leave.StatusPending)
		if err != nil {
			return fmt.Errorf("failed to resolve window: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}

		var count int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM unavailability_windows WHERE id = ?", id).Scan(&count); err != nil {
			return err
		}
		if count == 0 {
			return generic.NotFound("window", id)
		}
		return generic.ErrAlreadyResolved
	})
}

// =============================================================================
// MATERIALS (materials.Store)
// =============================================================================

// SaveAllocation creates or replaces a job's allocation of one material.
func (s *Store) SaveAllocation(ctx context.Context, a materials.Allocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO material_allocations
		(job_id, material_id, description, unit, quantity_needed, quantity_allocated)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_id, material_id) DO UPDATE SET
			description = excluded.description,
			unit = excluded.unit,
			quantity_needed = excluded.quantity_needed,
			quantity_allocated = excluded.quantity_allocated
	`, a.JobID, a.MaterialID, a.Description, a.Unit,
		a.QuantityNeeded.String(), a.QuantityAllocated.String())
	if err != nil {
		return fmt.Errorf("failed to save allocation: %w", err)
	}
	return nil
}

func (s *Store) Allocations(ctx context.Context, jobID generic.JobID) ([]materials.Allocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT job_id, material_id, description, unit, quantity_needed, quantity_allocated
		FROM material_allocations
		WHERE job_id = ?
		ORDER BY material_id ASC
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query allocations: %w", err)
	}
	defer rows.Close()

	var allocations []materials.Allocation
	for rows.Next() {
		var (
			a                 materials.Allocation
			needed, allocated string
		)
		if err := rows.Scan(&a.JobID, &a.MaterialID, &a.Description, &a.Unit, &needed, &allocated); err != nil {
			return nil, fmt.Errorf("failed to scan allocation: %w", err)
		}
		a.QuantityNeeded = generic.MustParseDecimal(needed)
		a.QuantityAllocated = generic.MustParseDecimal(allocated)
		allocations = append(allocations, a)
	}
	return allocations, rows.Err()
}

// RecordDispositions replaces the job's dispositions atomically.
func (s *Store) RecordDispositions(ctx context.Context, jobID generic.JobID, ds []materials.Disposition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM material_dispositions WHERE job_id = ?", jobID); err != nil {
			return fmt.Errorf("failed to clear dispositions: %w", err)
		}
		for _, d := range ds {
			if err := insertDisposition(ctx, tx, jobID, d); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertDisposition(ctx context.Context, db execer, jobID generic.JobID, d materials.Disposition) error {
	if d.ID == "" {
		d.ID = generic.DispositionID(uuid.NewString())
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO material_dispositions
		(id, job_id, material_id, base_quantity, quantity_used, quantity_leftover,
		 destination, van_id, notes, recorded_by, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, d.ID, jobID, d.MaterialID, d.BaseQuantity.String(), d.QuantityUsed.String(),
		d.QuantityLeftover.String(), d.Destination, d.VanID, d.Notes, d.RecordedBy,
		d.RecordedAt.UTC().Format(time.RFC3339))
	if isUniqueConstraintError(err) {
		return generic.Invalid("material_id", "material %s dispositioned twice", d.MaterialID)
	}
	if err != nil {
		return fmt.Errorf("failed to record disposition for %s: %w", d.MaterialID, err)
	}
	return nil
}

func (s *Store) Dispositions(ctx context.Context, jobID generic.JobID) ([]materials.Disposition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_id, material_id, base_quantity, quantity_used, quantity_leftover,
		       destination, van_id, notes, recorded_by, recorded_at
		FROM material_dispositions
		WHERE job_id = ?
		ORDER BY material_id ASC
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to query dispositions: %w", err)
	}
	defer rows.Close()

	var ds []materials.Disposition
	for rows.Next() {
		var (
			d                    materials.Disposition
			base, used, leftover string
			recordedAt           string
		)
		err := rows.Scan(&d.ID, &d.JobID, &d.MaterialID, &base, &used, &leftover,
			&d.Destination, &d.VanID, &d.Notes, &d.RecordedBy, &recordedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan disposition: %w", err)
		}
		d.BaseQuantity = generic.MustParseDecimal(base)
		d.QuantityUsed = generic.MustParseDecimal(used)
		d.QuantityLeftover = generic.MustParseDecimal(leftover)
		d.RecordedAt, _ = time.Parse(time.RFC3339, recordedAt)
		ds = append(ds, d)
	}
	return ds, rows.Err()
}

// =============================================================================
// OUTBOX (leave.Notifier)
// =============================================================================

func (s *Store) JobNeedsReassignment(ctx context.Context, job leave.AffectedJob, removed generic.EmployeeID, w leave.Window) error {
	return s.appendNotification(ctx, notify.ReassignmentRecord(job, removed, w, time.Now().UTC()))
}

func (s *Store) LeaveNeedsApproval(ctx context.Context, w leave.Window) error {
	return s.appendNotification(ctx, notify.ApprovalRecord(w, time.Now().UTC()))
}

func (s *Store) appendNotification(ctx context.Context, r notify.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, kind, employee_id, job_id, window_id, message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), r.Kind, r.EmployeeID, r.JobID, r.WindowID, r.Message,
		r.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to write notification: %w", err)
	}
	return nil
}

// Notifications returns the outbox, oldest first.
func (s *Store) Notifications(ctx context.Context) ([]notify.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, employee_id, job_id, window_id, message, created_at
		FROM notifications
		ORDER BY rowid ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var records []notify.Record
	for rows.Next() {
		var (
			r         notify.Record
			createdAt string
		)
		if err := rows.Scan(&r.ID, &r.Kind, &r.EmployeeID, &r.JobID, &r.WindowID, &r.Message, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		records = append(records, r)
	}
	return records, rows.Err()
}

// Helper functions

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func parseDate(s string) generic.TimePoint {
	tp, err := generic.ParseDate(s)
	if err != nil {
		return generic.TimePoint{}
	}
	return tp
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

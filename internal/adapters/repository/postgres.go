package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/okian/watchtower/internal/domain/model"
	"github.com/okian/watchtower/pkg/logger"
)

const (
	uniqueViolation = "23505"
	pendingIndex    = "tracker_runs_one_pending"
)

// schema is applied by Migrate. The partial unique index is what makes
// CreatePendingRun atomic across processes.
const schema = `
CREATE TABLE IF NOT EXISTS trackers (
	id                   TEXT PRIMARY KEY,
	owner_id             TEXT NOT NULL,
	visibility           TEXT NOT NULL,
	mode                 TEXT NOT NULL,
	target               JSONB NOT NULL,
	analysis             JSONB NOT NULL,
	schedule             JSONB NOT NULL,
	notification         JSONB NOT NULL,
	status               TEXT NOT NULL,
	consecutive_failures INT NOT NULL DEFAULT 0,
	created_at           TIMESTAMPTZ NOT NULL,
	updated_at           TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshots (
	id         TEXT PRIMARY KEY,
	tracker_id TEXT NOT NULL,
	taken_at   TIMESTAMPTZ NOT NULL,
	items      JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS snapshots_tracker_taken ON snapshots (tracker_id, taken_at DESC);

CREATE TABLE IF NOT EXISTS tracker_runs (
	id              TEXT PRIMARY KEY,
	tracker_id      TEXT NOT NULL,
	started_at      TIMESTAMPTZ NOT NULL,
	finished_at     TIMESTAMPTZ,
	status          TEXT NOT NULL,
	snapshot_id     TEXT NOT NULL DEFAULT '',
	change_events   JSONB NOT NULL DEFAULT '[]',
	analysis_result JSONB,
	notification    JSONB,
	error           TEXT NOT NULL DEFAULT ''
);
CREATE UNIQUE INDEX IF NOT EXISTS tracker_runs_one_pending ON tracker_runs (tracker_id) WHERE status = 'pending';
CREATE INDEX IF NOT EXISTS tracker_runs_tracker_started ON tracker_runs (tracker_id, started_at DESC);
`

const runColumns = `id, tracker_id, started_at, finished_at, status, snapshot_id, change_events, analysis_result, notification, error`

const trackerColumns = `id, owner_id, visibility, mode, target, analysis, schedule, notification, status, created_at, updated_at`

// PostgresStore is a Store backed by a pgx connection pool.
type PostgresStore struct {
	pool        *pgxpool.Pool
	log         logger.Logger
	minConns    int32
	maxConns    int32
	healthCheck time.Duration
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects to databaseURL, verifies the connection and
// applies the schema.
func NewPostgresStore(ctx context.Context, databaseURL string, opts ...PostgresOption) (*PostgresStore, error) {
	s := &PostgresStore{
		log:         logger.Get().Named("postgres"),
		minConns:    1,
		maxConns:    10,
		healthCheck: time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}

	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	poolCfg.MinConns = s.minConns
	poolCfg.MaxConns = s.maxConns
	poolCfg.HealthCheckPeriod = s.healthCheck

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s.pool = pool

	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	s.log.Info(ctx, "postgres store ready",
		logger.Int("min_conns", int(s.minConns)),
		logger.Int("max_conns", int(s.maxConns)))
	return s, nil
}

// Migrate creates tables and indexes when missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) GetTracker(ctx context.Context, id string) (model.Tracker, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+trackerColumns+` FROM trackers WHERE id = $1`, id)
	t, err := scanTracker(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Tracker{}, fmt.Errorf("tracker %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Tracker{}, fmt.Errorf("get tracker %q: %w", id, err)
	}
	return t, nil
}

func (s *PostgresStore) ListTrackers(ctx context.Context) ([]model.Tracker, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+trackerColumns+` FROM trackers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list trackers: %w", err)
	}
	defer rows.Close()

	var out []model.Tracker
	for rows.Next() {
		t, err := scanTracker(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tracker: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list trackers: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) PutTracker(ctx context.Context, t model.Tracker) error {
	target, analysis, schedule, notification, err := encodeTracker(t)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO trackers (`+trackerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			owner_id = EXCLUDED.owner_id,
			visibility = EXCLUDED.visibility,
			mode = EXCLUDED.mode,
			target = EXCLUDED.target,
			analysis = EXCLUDED.analysis,
			schedule = EXCLUDED.schedule,
			notification = EXCLUDED.notification,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
	`, t.ID, t.OwnerID, string(t.Visibility), string(t.Mode), target, analysis, schedule, notification,
		string(t.Status), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("put tracker %q: %w", t.ID, err)
	}
	return nil
}

func (s *PostgresStore) SetTrackerStatus(ctx context.Context, id string, status model.TrackerStatus) error {
	ct, err := s.pool.Exec(ctx, `UPDATE trackers SET status = $2, updated_at = now() WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("set tracker %q status: %w", id, err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("tracker %q: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) SaveSnapshot(ctx context.Context, snap model.Snapshot) error {
	items, err := json.Marshal(snap.Items)
	if err != nil {
		return fmt.Errorf("encode snapshot items: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO snapshots (id, tracker_id, taken_at, items) VALUES ($1, $2, $3, $4)`,
		snap.ID, snap.TrackerID, snap.TakenAt, items)
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", snap.ID, err)
	}
	return nil
}

func (s *PostgresStore) LatestSnapshot(ctx context.Context, trackerID string) (model.Snapshot, error) {
	var (
		snap  model.Snapshot
		items []byte
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, tracker_id, taken_at, items FROM snapshots
		WHERE tracker_id = $1 ORDER BY taken_at DESC LIMIT 1
	`, trackerID).Scan(&snap.ID, &snap.TrackerID, &snap.TakenAt, &items)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Snapshot{}, fmt.Errorf("snapshot for %q: %w", trackerID, ErrNotFound)
	}
	if err != nil {
		return model.Snapshot{}, fmt.Errorf("latest snapshot for %q: %w", trackerID, err)
	}
	if err := json.Unmarshal(items, &snap.Items); err != nil {
		return model.Snapshot{}, fmt.Errorf("decode snapshot %s: %w", snap.ID, err)
	}
	return snap, nil
}

func (s *PostgresStore) CreatePendingRun(ctx context.Context, run model.TrackerRun) error {
	if run.Status != model.RunPending {
		return fmt.Errorf("create run %s with status %s: %w", run.ID, run.Status, ErrRunNotPending)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tracker_runs (id, tracker_id, started_at, status)
		VALUES ($1, $2, $3, $4)
	`, run.ID, run.TrackerID, run.Timestamp, string(run.Status))
	return createRunError(run, err)
}

// createRunError maps a violation of the one-pending index to ErrRunPending.
func createRunError(run model.TrackerRun, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == pendingIndex {
		return fmt.Errorf("tracker %q: %w", run.TrackerID, ErrRunPending)
	}
	return fmt.Errorf("create run %s: %w", run.ID, err)
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const finalizeSQL = `
	UPDATE tracker_runs SET
		status = $2, finished_at = $3, snapshot_id = $4, change_events = $5,
		analysis_result = $6, notification = $7, error = $8
	WHERE id = $1 AND status = 'pending'
`

// finalizeWith writes the terminal state of run. It reports false when no
// pending row matched.
func finalizeWith(ctx context.Context, ex execer, run model.TrackerRun) (bool, error) {
	events, result, notification, err := encodeRun(run)
	if err != nil {
		return false, err
	}
	ct, err := ex.Exec(ctx, finalizeSQL, run.ID, string(run.Status), run.FinishedAt, run.SnapshotID,
		events, result, notification, run.Error)
	if err != nil {
		return false, fmt.Errorf("finalize run %s: %w", run.ID, err)
	}
	return ct.RowsAffected() > 0, nil
}

func (s *PostgresStore) FinalizeRun(ctx context.Context, run model.TrackerRun) error {
	if !run.Status.Terminal() {
		return fmt.Errorf("finalize run %s with status %s: %w", run.ID, run.Status, model.ErrInvalidTransition)
	}
	ok, err := finalizeWith(ctx, s.pool, run)
	if err != nil {
		return err
	}
	if !ok {
		return s.notPending(ctx, run.ID)
	}
	return nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, run model.TrackerRun, snap model.Snapshot) error {
	if run.Status != model.RunCompleted {
		return fmt.Errorf("complete run %s with status %s: %w", run.ID, run.Status, model.ErrInvalidTransition)
	}
	items, err := json.Marshal(snap.Items)
	if err != nil {
		return fmt.Errorf("encode snapshot items: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin complete run %s: %w", run.ID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`INSERT INTO snapshots (id, tracker_id, taken_at, items) VALUES ($1, $2, $3, $4)`,
		snap.ID, snap.TrackerID, snap.TakenAt, items); err != nil {
		return fmt.Errorf("save snapshot %s: %w", snap.ID, err)
	}
	ok, err := finalizeWith(ctx, tx, run)
	if err != nil {
		return err
	}
	if !ok {
		return s.notPending(ctx, run.ID)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit complete run %s: %w", run.ID, err)
	}
	return nil
}

func (s *PostgresStore) ReleaseStalePending(ctx context.Context, olderThan, now time.Time) ([]model.TrackerRun, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE tracker_runs SET status = 'failed', finished_at = $2, error = $3
		WHERE status = 'pending' AND started_at < $1
		RETURNING `+runColumns,
		olderThan, now, ErrRunAbandoned.Error())
	if err != nil {
		return nil, fmt.Errorf("release stale runs: %w", err)
	}
	defer rows.Close()

	var released []model.TrackerRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		released = append(released, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("release stale runs: %w", err)
	}
	return released, nil
}

// notPending resolves a finalize that matched no pending row.
func (s *PostgresStore) notPending(ctx context.Context, runID string) error {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return err
	}
	return fmt.Errorf("run %s: %w", runID, ErrRunNotPending)
}

func (s *PostgresStore) GetRun(ctx context.Context, id string) (model.TrackerRun, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM tracker_runs WHERE id = $1`, id)
	r, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.TrackerRun{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.TrackerRun{}, fmt.Errorf("get run %s: %w", id, err)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, trackerID string, limit int) ([]model.TrackerRun, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit %d: %w", limit, ErrInvalidLimit)
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+runColumns+` FROM tracker_runs
		WHERE tracker_id = $1 ORDER BY started_at DESC LIMIT $2
	`, trackerID, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs for %q: %w", trackerID, err)
	}
	defer rows.Close()

	out := make([]model.TrackerRun, 0, limit)
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs for %q: %w", trackerID, err)
	}
	return out, nil
}

func (s *PostgresStore) LastRun(ctx context.Context, trackerID string) (model.TrackerRun, bool, error) {
	runs, err := s.ListRuns(ctx, trackerID, 1)
	if err != nil {
		return model.TrackerRun{}, false, err
	}
	if len(runs) == 0 {
		return model.TrackerRun{}, false, nil
	}
	return runs[0], true, nil
}

func (s *PostgresStore) RecordFailure(ctx context.Context, trackerID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		UPDATE trackers SET consecutive_failures = consecutive_failures + 1
		WHERE id = $1 RETURNING consecutive_failures
	`, trackerID).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("tracker %q: %w", trackerID, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("record failure for %q: %w", trackerID, err)
	}
	return n, nil
}

func (s *PostgresStore) ResetFailures(ctx context.Context, trackerID string) error {
	if _, err := s.pool.Exec(ctx, `UPDATE trackers SET consecutive_failures = 0 WHERE id = $1`, trackerID); err != nil {
		return fmt.Errorf("reset failures for %q: %w", trackerID, err)
	}
	return nil
}

// encodeTracker encodes the JSON columns of a tracker.
func encodeTracker(t model.Tracker) (target, analysis, schedule, notification []byte, err error) {
	if target, err = json.Marshal(model.SpecOfTarget(t.Target)); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode target: %w", err)
	}
	if analysis, err = json.Marshal(model.SpecOfAnalysis(t.Analysis)); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode analysis: %w", err)
	}
	if schedule, err = json.Marshal(t.Schedule); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode schedule: %w", err)
	}
	if notification, err = json.Marshal(t.Notification); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("encode notification: %w", err)
	}
	return target, analysis, schedule, notification, nil
}

func scanTracker(row rowScanner) (model.Tracker, error) {
	var (
		t                                      model.Tracker
		visibility, mode, status               string
		targetJSON, analysisJSON, scheduleJSON []byte
		notificationJSON                       []byte
	)
	if err := row.Scan(&t.ID, &t.OwnerID, &visibility, &mode, &targetJSON, &analysisJSON,
		&scheduleJSON, &notificationJSON, &status, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return model.Tracker{}, err
	}
	t.Visibility = model.Visibility(visibility)
	t.Mode = model.Mode(mode)
	t.Status = model.TrackerStatus(status)

	var ts model.TargetSpec
	if err := json.Unmarshal(targetJSON, &ts); err != nil {
		return model.Tracker{}, fmt.Errorf("decode target: %w", err)
	}
	target, err := ts.Target()
	if err != nil {
		return model.Tracker{}, err
	}
	t.Target = target

	var as model.AnalysisSpec
	if err := json.Unmarshal(analysisJSON, &as); err != nil {
		return model.Tracker{}, fmt.Errorf("decode analysis: %w", err)
	}
	analysis, err := as.Analysis()
	if err != nil {
		return model.Tracker{}, err
	}
	t.Analysis = analysis

	if err := json.Unmarshal(scheduleJSON, &t.Schedule); err != nil {
		return model.Tracker{}, fmt.Errorf("decode schedule: %w", err)
	}
	if err := json.Unmarshal(notificationJSON, &t.Notification); err != nil {
		return model.Tracker{}, fmt.Errorf("decode notification: %w", err)
	}
	return t, nil
}

func scanRun(row rowScanner) (model.TrackerRun, error) {
	var (
		r                                  model.TrackerRun
		status                             string
		finishedAt                         *time.Time
		eventsJSON, resultJSON, notifyJSON []byte
	)
	if err := row.Scan(&r.ID, &r.TrackerID, &r.Timestamp, &finishedAt, &status, &r.SnapshotID,
		&eventsJSON, &resultJSON, &notifyJSON, &r.Error); err != nil {
		return model.TrackerRun{}, err
	}
	r.Status = model.RunStatus(status)
	if finishedAt != nil {
		r.FinishedAt = *finishedAt
	}
	if err := json.Unmarshal(eventsJSON, &r.ChangeEvents); err != nil {
		return model.TrackerRun{}, fmt.Errorf("decode change events: %w", err)
	}
	if len(resultJSON) > 0 {
		r.AnalysisResult = &model.AnalysisResult{}
		if err := json.Unmarshal(resultJSON, r.AnalysisResult); err != nil {
			return model.TrackerRun{}, fmt.Errorf("decode analysis result: %w", err)
		}
	}
	if len(notifyJSON) > 0 {
		r.Notification = &model.NotificationOutcome{}
		if err := json.Unmarshal(notifyJSON, r.Notification); err != nil {
			return model.TrackerRun{}, fmt.Errorf("decode notification outcome: %w", err)
		}
	}
	return r, nil
}

// encodeRun encodes the JSON columns of a finalized run.
func encodeRun(run model.TrackerRun) (events, result, notification []byte, err error) {
	list := run.ChangeEvents
	if list == nil {
		list = []model.ChangeEvent{}
	}
	if events, err = json.Marshal(list); err != nil {
		return nil, nil, nil, fmt.Errorf("encode change events: %w", err)
	}
	if result, err = nullableJSON(run.AnalysisResult); err != nil {
		return nil, nil, nil, fmt.Errorf("encode analysis result: %w", err)
	}
	if notification, err = nullableJSON(run.Notification); err != nil {
		return nil, nil, nil, fmt.Errorf("encode notification outcome: %w", err)
	}
	return events, result, notification, nil
}

// nullableJSON encodes v, mapping a nil pointer to SQL NULL.
func nullableJSON[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

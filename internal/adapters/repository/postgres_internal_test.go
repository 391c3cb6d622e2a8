package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/okian/watchtower/internal/domain/model"
)

// fakeRow replays column values into Scan destinations.
type fakeRow []any

func (r fakeRow) Scan(dest ...any) error {
	if len(dest) != len(r) {
		return fmt.Errorf("scan %d columns into %d destinations", len(r), len(dest))
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = r[i].(string)
		case *time.Time:
			*p = r[i].(time.Time)
		case **time.Time:
			if r[i] == nil {
				*p = nil
				continue
			}
			v := r[i].(time.Time)
			*p = &v
		case *[]byte:
			if r[i] == nil {
				*p = nil
				continue
			}
			*p = r[i].([]byte)
		default:
			return fmt.Errorf("unsupported destination %T", d)
		}
	}
	return nil
}

func sampleTracker() model.Tracker {
	return model.Tracker{
		ID:         "fed",
		OwnerID:    "alice",
		Visibility: model.VisibilityPersonal,
		Mode:       model.ModeRegular,
		Target: model.Composite{Targets: []model.Target{
			model.PolymarketMarket{MarketID: "42"},
			model.HTTPSource{URL: "https://example.com", Method: "GET", Headers: map[string]string{"X-Token": "t"}},
		}},
		Analysis: model.Computational{MinChanges: 2, MinAbsMove: 0.05},
		Schedule: model.Schedule{Kind: model.ScheduleInterval, Interval: 5 * time.Minute},
		Notification: model.Notification{
			Enabled:    true,
			Channel:    "email",
			Recipient:  "alice@example.com",
			QuietHours: &model.QuietHours{Start: "22:00", End: "07:00", Location: "UTC"},
		},
		Status:    model.TrackerActive,
		CreatedAt: t0,
		UpdatedAt: t0.Add(time.Hour),
	}
}

func TestScanTracker_RoundTrip(t *testing.T) {
	in := sampleTracker()
	target, analysis, schedule, notification, err := encodeTracker(in)
	if err != nil {
		t.Fatalf("encode tracker: %v", err)
	}

	out, err := scanTracker(fakeRow{in.ID, in.OwnerID, string(in.Visibility), string(in.Mode),
		target, analysis, schedule, notification, string(in.Status), in.CreatedAt, in.UpdatedAt})
	if err != nil {
		t.Fatalf("scan tracker: %v", err)
	}

	if out.ID != in.ID || out.OwnerID != in.OwnerID || out.Visibility != in.Visibility ||
		out.Mode != in.Mode || out.Status != in.Status {
		t.Errorf("scalar columns differ: got %+v", out)
	}
	if !out.CreatedAt.Equal(in.CreatedAt) || !out.UpdatedAt.Equal(in.UpdatedAt) {
		t.Errorf("timestamps differ: got %v / %v", out.CreatedAt, out.UpdatedAt)
	}
	if got, want := model.SpecOfTarget(out.Target), model.SpecOfTarget(in.Target); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("target differs: got %+v, want %+v", got, want)
	}
	if out.Analysis != in.Analysis {
		t.Errorf("analysis differs: got %+v", out.Analysis)
	}
	if out.Schedule != in.Schedule {
		t.Errorf("schedule differs: got %+v", out.Schedule)
	}
	if out.Notification.Recipient != in.Notification.Recipient || out.Notification.QuietHours == nil ||
		*out.Notification.QuietHours != *in.Notification.QuietHours {
		t.Errorf("notification differs: got %+v", out.Notification)
	}
}

func TestScanTracker_UnknownTarget(t *testing.T) {
	_, analysis, schedule, notification, err := encodeTracker(sampleTracker())
	if err != nil {
		t.Fatalf("encode tracker: %v", err)
	}
	_, err = scanTracker(fakeRow{"x", "alice", "personal", "regular",
		[]byte(`{"type":"carrierPigeon"}`), analysis, schedule, notification, "active", t0, t0})
	if !errors.Is(err, model.ErrUnknownTarget) {
		t.Errorf("expected ErrUnknownTarget, got %v", err)
	}
}

func TestScanRun(t *testing.T) {
	t.Run("pending row with empty columns", func(t *testing.T) {
		r, err := scanRun(fakeRow{"r1", "t", t0, nil, "pending", "", []byte(`[]`), nil, nil, ""})
		if err != nil {
			t.Fatalf("scan run: %v", err)
		}
		if r.Status != model.RunPending || !r.FinishedAt.IsZero() {
			t.Errorf("expected pending run without finish time, got %+v", r)
		}
		if r.AnalysisResult != nil || r.Notification != nil {
			t.Errorf("expected NULL JSON columns to stay nil, got %+v / %+v", r.AnalysisResult, r.Notification)
		}
		if len(r.ChangeEvents) != 0 {
			t.Errorf("expected no events, got %d", len(r.ChangeEvents))
		}
	})

	t.Run("completed row round trips through encodeRun", func(t *testing.T) {
		run := model.NewPendingRun("r2", "t", t0)
		events := []model.ChangeEvent{{
			SourceID: "feed", ExternalID: "a", Type: model.ChangeAdded, DetectedAt: t0,
			Current: &model.NormalizedItem{SourceID: "feed", ExternalID: "a", Fingerprint: "abc", Data: map[string]any{"title": "x"}},
		}}
		result := &model.AnalysisResult{TrackerID: "t", RunID: "r2", Timestamp: t0, Type: model.AnalysisComputational, Summary: "1 added", Triggered: true}
		if err := run.Complete("s1", events, result, t0.Add(time.Second)); err != nil {
			t.Fatalf("complete: %v", err)
		}
		run.Notification = &model.NotificationOutcome{Suppressed: "quiet_hours"}

		eventsJSON, resultJSON, notifyJSON, err := encodeRun(run)
		if err != nil {
			t.Fatalf("encode run: %v", err)
		}
		got, err := scanRun(fakeRow{run.ID, run.TrackerID, run.Timestamp, run.FinishedAt, string(run.Status),
			run.SnapshotID, eventsJSON, resultJSON, notifyJSON, run.Error})
		if err != nil {
			t.Fatalf("scan run: %v", err)
		}
		if got.Status != model.RunCompleted || got.SnapshotID != "s1" || !got.FinishedAt.Equal(run.FinishedAt) {
			t.Errorf("unexpected run columns: %+v", got)
		}
		if len(got.ChangeEvents) != 1 || got.ChangeEvents[0].Current == nil || got.ChangeEvents[0].Current.Fingerprint != "abc" {
			t.Errorf("change events differ: %+v", got.ChangeEvents)
		}
		if got.AnalysisResult == nil || got.AnalysisResult.Summary != "1 added" || !got.AnalysisResult.Triggered {
			t.Errorf("analysis result differs: %+v", got.AnalysisResult)
		}
		if got.Notification == nil || got.Notification.Suppressed != "quiet_hours" {
			t.Errorf("notification outcome differs: %+v", got.Notification)
		}
	})

	t.Run("corrupt events column", func(t *testing.T) {
		if _, err := scanRun(fakeRow{"r3", "t", t0, nil, "failed", "", []byte(`{`), nil, nil, "boom"}); err == nil {
			t.Error("expected decode error")
		}
	})
}

func TestEncodeRun_NilColumns(t *testing.T) {
	events, result, notification, err := encodeRun(model.NewPendingRun("r1", "t", t0))
	if err != nil {
		t.Fatalf("encode run: %v", err)
	}
	if string(events) != "[]" {
		t.Errorf("expected nil events to encode as [], got %s", events)
	}
	if result != nil || notification != nil {
		t.Errorf("expected NULL for nil pointers, got %s / %s", result, notification)
	}

	b, err := nullableJSON(&model.NotificationOutcome{Dispatched: true})
	if err != nil {
		t.Fatalf("nullableJSON: %v", err)
	}
	var back model.NotificationOutcome
	if err := json.Unmarshal(b, &back); err != nil || !back.Dispatched {
		t.Errorf("expected dispatched outcome back, got %+v (%v)", back, err)
	}
}

func TestCreateRunError(t *testing.T) {
	run := model.NewPendingRun("r1", "t", t0)

	if err := createRunError(run, nil); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
	pending := &pgconn.PgError{Code: uniqueViolation, ConstraintName: pendingIndex}
	if err := createRunError(run, pending); !errors.Is(err, ErrRunPending) {
		t.Errorf("expected ErrRunPending, got %v", err)
	}
	dupID := &pgconn.PgError{Code: uniqueViolation, ConstraintName: "tracker_runs_pkey"}
	if err := createRunError(run, dupID); errors.Is(err, ErrRunPending) || err == nil {
		t.Errorf("expected a plain create error for a duplicate id, got %v", err)
	}
}

// TestPostgresStore_Integration runs against a real database when
// WATCHTOWER_TEST_DATABASE_URL is set.
func TestPostgresStore_Integration(t *testing.T) {
	url := os.Getenv("WATCHTOWER_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("WATCHTOWER_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	store, err := NewPostgresStore(ctx, url, WithPoolLimits(1, 4))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer store.Close()

	tr := sampleTracker()
	tr.ID = "it-" + uuid.NewString()
	if err := store.PutTracker(ctx, tr); err != nil {
		t.Fatalf("put tracker: %v", err)
	}
	got, err := store.GetTracker(ctx, tr.ID)
	if err != nil || got.OwnerID != tr.OwnerID || got.Schedule != tr.Schedule {
		t.Fatalf("get tracker: %+v (%v)", got, err)
	}

	first := model.NewPendingRun(uuid.NewString(), tr.ID, t0)
	if err := store.CreatePendingRun(ctx, first); err != nil {
		t.Fatalf("create run: %v", err)
	}
	if err := store.CreatePendingRun(ctx, model.NewPendingRun(uuid.NewString(), tr.ID, t0)); !errors.Is(err, ErrRunPending) {
		t.Fatalf("expected ErrRunPending, got %v", err)
	}

	snap := model.Snapshot{ID: uuid.NewString(), TrackerID: tr.ID, TakenAt: t0,
		Items: []model.NormalizedItem{{SourceID: "feed", ExternalID: "a", Fingerprint: "f"}}}
	completed := first
	if err := completed.Complete(snap.ID, nil, nil, t0.Add(time.Second)); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := store.CompleteRun(ctx, completed, snap); err != nil {
		t.Fatalf("complete run: %v", err)
	}
	latest, err := store.LatestSnapshot(ctx, tr.ID)
	if err != nil || latest.ID != snap.ID || len(latest.Items) != 1 {
		t.Fatalf("latest snapshot: %+v (%v)", latest, err)
	}

	again := first
	if err := again.Fail(errors.New("late"), t0.Add(2*time.Second)); err != nil {
		t.Fatalf("fail: %v", err)
	}
	if err := store.FinalizeRun(ctx, again); !errors.Is(err, ErrRunNotPending) {
		t.Errorf("expected ErrRunNotPending, got %v", err)
	}
	ghost := model.TrackerRun{ID: uuid.NewString(), TrackerID: tr.ID, Status: model.RunFailed}
	if err := store.FinalizeRun(ctx, ghost); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	stale := model.NewPendingRun(uuid.NewString(), tr.ID, t0.Add(time.Minute))
	if err := store.CreatePendingRun(ctx, stale); err != nil {
		t.Fatalf("create stale run: %v", err)
	}
	now := t0.Add(time.Hour)
	released, err := store.ReleaseStalePending(ctx, t0.Add(30*time.Minute), now)
	if err != nil {
		t.Fatalf("release stale: %v", err)
	}
	found := false
	for _, r := range released {
		if r.ID == stale.ID {
			found = r.Status == model.RunFailed && r.Error == ErrRunAbandoned.Error()
		}
	}
	if !found {
		t.Errorf("expected %s released as abandoned, got %+v", stale.ID, released)
	}

	late := stale
	if err := late.Complete("never", nil, nil, now); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := store.CompleteRun(ctx, late, model.Snapshot{ID: "never-" + uuid.NewString(), TrackerID: tr.ID, TakenAt: now}); !errors.Is(err, ErrRunNotPending) {
		t.Errorf("expected ErrRunNotPending for a released run, got %v", err)
	}
	if latest, _ := store.LatestSnapshot(ctx, tr.ID); latest.ID != snap.ID {
		t.Errorf("expected the rejected completion to roll back its snapshot, got %s", latest.ID)
	}

	for want := 1; want <= 2; want++ {
		if n, err := store.RecordFailure(ctx, tr.ID); err != nil || n != want {
			t.Errorf("expected %d failures, got %d (%v)", want, n, err)
		}
	}
	if err := store.ResetFailures(ctx, tr.ID); err != nil {
		t.Errorf("reset failures: %v", err)
	}
}

package repository

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/okian/watchtower/internal/domain/model"
)

// seedFile is the on-disk layout of a tracker seed file.
type seedFile struct {
	Trackers []trackerSeed `yaml:"trackers"`
}

type trackerSeed struct {
	ID           string              `yaml:"id"`
	OwnerID      string              `yaml:"owner_id"`
	Visibility   model.Visibility    `yaml:"visibility"`
	Mode         model.Mode          `yaml:"mode"`
	Status       model.TrackerStatus `yaml:"status"`
	Target       model.TargetSpec    `yaml:"target"`
	Analysis     model.AnalysisSpec  `yaml:"analysis"`
	Schedule     model.Schedule      `yaml:"schedule"`
	Notification model.Notification  `yaml:"notification"`
}

// LoadTrackersFile reads tracker definitions from a YAML file. ${VAR}
// references are expanded from the environment.
func LoadTrackersFile(path string, now time.Time) ([]model.Tracker, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trackers file: %w", err)
	}
	return ParseTrackers([]byte(os.ExpandEnv(string(data))), now)
}

// ParseTrackers decodes a seed document. Missing visibility, mode and status
// default to personal, regular and active.
func ParseTrackers(data []byte, now time.Time) ([]model.Tracker, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: parse yaml: %w", ErrInvalidSeed, err)
	}

	seen := make(map[string]struct{}, len(f.Trackers))
	out := make([]model.Tracker, 0, len(f.Trackers))
	for i, s := range f.Trackers {
		if s.ID == "" {
			return nil, fmt.Errorf("%w: trackers[%d].id is required", ErrInvalidSeed, i)
		}
		if _, dup := seen[s.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate tracker id %q", ErrInvalidSeed, s.ID)
		}
		seen[s.ID] = struct{}{}

		target, err := s.Target.Target()
		if err != nil {
			return nil, fmt.Errorf("%w: tracker %q: %w", ErrInvalidSeed, s.ID, err)
		}
		analysis, err := s.Analysis.Analysis()
		if err != nil {
			return nil, fmt.Errorf("%w: tracker %q: %w", ErrInvalidSeed, s.ID, err)
		}

		t := model.Tracker{
			ID:           s.ID,
			OwnerID:      s.OwnerID,
			Visibility:   s.Visibility,
			Target:       target,
			Mode:         s.Mode,
			Analysis:     analysis,
			Schedule:     s.Schedule,
			Notification: s.Notification,
			Status:       s.Status,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if t.Visibility == "" {
			t.Visibility = model.VisibilityPersonal
		}
		if t.Mode == "" {
			t.Mode = model.ModeRegular
		}
		if t.Status == "" {
			t.Status = model.TrackerActive
		}
		if t.Schedule.Kind == "" {
			t.Schedule.Kind = model.ScheduleInterval
		}
		out = append(out, t)
	}
	return out, nil
}

// Seed writes trackers into the store.
func Seed(ctx context.Context, store TrackerStore, trackers []model.Tracker) error {
	for _, t := range trackers {
		if err := store.PutTracker(ctx, t); err != nil {
			return fmt.Errorf("seed tracker %q: %w", t.ID, err)
		}
	}
	return nil
}

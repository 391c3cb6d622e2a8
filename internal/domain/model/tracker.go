package model

import (
	"fmt"
	"time"
)

// Visibility of a tracker.
type Visibility string

const (
	VisibilityPersonal Visibility = "personal"
	VisibilityShared   Visibility = "shared"
)

// Mode describes how regularly a tracker is expected to produce data.
type Mode string

const (
	ModeRegular   Mode = "regular"
	ModeIrregular Mode = "irregular"
)

// TrackerStatus is the lifecycle state of a tracker.
type TrackerStatus string

const (
	TrackerActive TrackerStatus = "active"
	TrackerPaused TrackerStatus = "paused"
	TrackerError  TrackerStatus = "error"
)

// Tracker describes what to watch, how often, and how to analyze and notify.
type Tracker struct {
	ID           string
	OwnerID      string
	Visibility   Visibility
	Target       Target
	Mode         Mode
	Analysis     Analysis
	Schedule     Schedule
	Notification Notification
	Status       TrackerStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ScheduleKind selects how due-ness is evaluated.
type ScheduleKind string

const (
	ScheduleInterval ScheduleKind = "interval"
	ScheduleCron     ScheduleKind = "cron"
)

// Schedule is the data shape of a tracker schedule.
type Schedule struct {
	Kind     ScheduleKind  `json:"kind" yaml:"kind"`
	Interval time.Duration `json:"interval,omitempty" yaml:"interval,omitempty"`
	Cron     string        `json:"cron,omitempty" yaml:"cron,omitempty"`
}

// Due reports whether an interval schedule is due at now given the last run
// time. Cron schedules are evaluated by an external trigger and never
// report due here.
func (s Schedule) Due(lastRun, now time.Time) bool {
	if s.Kind != ScheduleInterval || s.Interval <= 0 {
		return false
	}
	return lastRun.IsZero() || !now.Before(lastRun.Add(s.Interval))
}

// QuietHours suppresses notifications between Start and End (HH:MM, local to
// Location). The range may wrap midnight.
type QuietHours struct {
	Start    string `json:"start" yaml:"start"`
	End      string `json:"end" yaml:"end"`
	Location string `json:"location,omitempty" yaml:"location,omitempty"`
}

// Notification configures dispatch for a tracker.
type Notification struct {
	Enabled    bool        `json:"enabled" yaml:"enabled"`
	Channel    string      `json:"channel,omitempty" yaml:"channel,omitempty"`
	Recipient  string      `json:"recipient,omitempty" yaml:"recipient,omitempty"`
	QuietHours *QuietHours `json:"quiet_hours,omitempty" yaml:"quiet_hours,omitempty"`
}

// Target is the closed set of watchable sources.
type Target interface {
	targetKind() string
}

// PolymarketMarket watches a single prediction market and its outcome prices.
type PolymarketMarket struct{ MarketID string }

// PolymarketEvent watches all markets of a prediction-market event.
type PolymarketEvent struct{ Slug string }

// SubstackFeed watches a Substack RSS feed.
type SubstackFeed struct{ URL string }

// HTTPSource watches a generic HTTP endpoint.
type HTTPSource struct {
	URL     string
	Method  string
	Headers map[string]string
}

// GoogleNewsRSSSearch watches a Google News RSS search.
type GoogleNewsRSSSearch struct{ Query string }

// Composite combines several targets into one snapshot.
type Composite struct{ Targets []Target }

func (PolymarketMarket) targetKind() string    { return "polymarketMarket" }
func (PolymarketEvent) targetKind() string     { return "polymarketEvent" }
func (SubstackFeed) targetKind() string        { return "substackFeed" }
func (HTTPSource) targetKind() string          { return "httpSource" }
func (GoogleNewsRSSSearch) targetKind() string { return "googleNewsRssSearch" }
func (Composite) targetKind() string           { return "composite" }

// TargetKind returns the wire name of a target variant.
func TargetKind(t Target) string {
	if t == nil {
		return ""
	}
	return t.targetKind()
}

// PriceBearing reports whether the target yields price series.
func PriceBearing(t Target) bool {
	switch v := t.(type) {
	case PolymarketMarket, PolymarketEvent:
		return true
	case Composite:
		for _, c := range v.Targets {
			if PriceBearing(c) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// TargetSpec is the serialized form of a Target.
type TargetSpec struct {
	Type     string            `json:"type" yaml:"type"`
	MarketID string            `json:"market_id,omitempty" yaml:"market_id,omitempty"`
	Slug     string            `json:"slug,omitempty" yaml:"slug,omitempty"`
	URL      string            `json:"url,omitempty" yaml:"url,omitempty"`
	Method   string            `json:"method,omitempty" yaml:"method,omitempty"`
	Headers  map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Query    string            `json:"query,omitempty" yaml:"query,omitempty"`
	Targets  []TargetSpec      `json:"targets,omitempty" yaml:"targets,omitempty"`
}

// Target converts the serialized form into its variant.
func (s TargetSpec) Target() (Target, error) {
	switch s.Type {
	case "polymarketMarket":
		return PolymarketMarket{MarketID: s.MarketID}, nil
	case "polymarketEvent":
		return PolymarketEvent{Slug: s.Slug}, nil
	case "substackFeed":
		return SubstackFeed{URL: s.URL}, nil
	case "httpSource":
		return HTTPSource{URL: s.URL, Method: s.Method, Headers: s.Headers}, nil
	case "googleNewsRssSearch":
		return GoogleNewsRSSSearch{Query: s.Query}, nil
	case "composite":
		children := make([]Target, 0, len(s.Targets))
		for _, cs := range s.Targets {
			c, err := cs.Target()
			if err != nil {
				return nil, err
			}
			children = append(children, c)
		}
		return Composite{Targets: children}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTarget, s.Type)
	}
}

// SpecOfTarget converts a target variant into its serialized form.
func SpecOfTarget(t Target) TargetSpec {
	switch v := t.(type) {
	case PolymarketMarket:
		return TargetSpec{Type: v.targetKind(), MarketID: v.MarketID}
	case PolymarketEvent:
		return TargetSpec{Type: v.targetKind(), Slug: v.Slug}
	case SubstackFeed:
		return TargetSpec{Type: v.targetKind(), URL: v.URL}
	case HTTPSource:
		return TargetSpec{Type: v.targetKind(), URL: v.URL, Method: v.Method, Headers: v.Headers}
	case GoogleNewsRSSSearch:
		return TargetSpec{Type: v.targetKind(), Query: v.Query}
	case Composite:
		children := make([]TargetSpec, 0, len(v.Targets))
		for _, c := range v.Targets {
			children = append(children, SpecOfTarget(c))
		}
		return TargetSpec{Type: v.targetKind(), Targets: children}
	default:
		return TargetSpec{}
	}
}

// AnalysisType names the analysis variant recorded on results.
type AnalysisType string

const (
	AnalysisComputational AnalysisType = "computational"
	AnalysisAI            AnalysisType = "ai"
)

// Analysis is the closed set of analysis strategies.
type Analysis interface {
	AnalysisType() AnalysisType
}

// Computational triggers on simple thresholds over change events and price movement.
// A zero threshold disables that rule.
type Computational struct {
	MinChanges int
	MinAbsMove float64
}

// AI delegates the decision to a language model.
type AI struct {
	Prompt string
	Model  string
}

func (Computational) AnalysisType() AnalysisType { return AnalysisComputational }
func (AI) AnalysisType() AnalysisType            { return AnalysisAI }

// AnalysisSpec is the serialized form of an Analysis.
type AnalysisSpec struct {
	Type       AnalysisType `json:"type" yaml:"type"`
	MinChanges int          `json:"min_changes,omitempty" yaml:"min_changes,omitempty"`
	MinAbsMove float64      `json:"min_abs_move,omitempty" yaml:"min_abs_move,omitempty"`
	Prompt     string       `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	Model      string       `json:"model,omitempty" yaml:"model,omitempty"`
}

// Analysis converts the serialized form into its variant.
func (s AnalysisSpec) Analysis() (Analysis, error) {
	switch s.Type {
	case AnalysisComputational:
		return Computational{MinChanges: s.MinChanges, MinAbsMove: s.MinAbsMove}, nil
	case AnalysisAI:
		return AI{Prompt: s.Prompt, Model: s.Model}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAnalysis, s.Type)
	}
}

// SpecOfAnalysis converts an analysis variant into its serialized form.
func SpecOfAnalysis(a Analysis) AnalysisSpec {
	switch v := a.(type) {
	case Computational:
		return AnalysisSpec{Type: AnalysisComputational, MinChanges: v.MinChanges, MinAbsMove: v.MinAbsMove}
	case AI:
		return AnalysisSpec{Type: AnalysisAI, Prompt: v.Prompt, Model: v.Model}
	default:
		return AnalysisSpec{}
	}
}

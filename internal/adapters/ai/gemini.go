/*
Package ai implements the ai analysis variant with the Gemini API.
*/
package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/okian/watchtower/internal/domain/analysis"
	"github.com/okian/watchtower/internal/domain/model"
	"github.com/okian/watchtower/pkg/logger"
)

const (
	defaultModel   = "gemini-2.5-flash"
	maxEventsInCtx = 50
	maxFieldChars  = 400
)

var (
	ErrMissingAPIKey = errors.New("gemini API key is required")
	ErrBadResponse   = errors.New("gemini returned an unusable response")
)

var systemInstruction = `
You monitor external sources on behalf of a user and decide whether what changed deserves their attention.

You receive the user's instruction, the list of changes detected since the previous check (added, updated, removed items with their data), and, for prediction markets, the price movement of each outcome token.

Rules:
* Base every statement on the provided data. Do not invent facts, prices or dates.
* "summary" is two to four sentences a busy reader can act on. Quote concrete numbers when they exist.
* "triggered" is true only when the changes satisfy the user's instruction. When the instruction is vague, trigger on material changes and not on cosmetic edits.
* "footnote" names the specific items or figures that drove the decision, or is empty.
`

// generator is the subset of the genai models service the analyzer calls.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// verdict is the JSON shape requested from the model.
type verdict struct {
	Summary   string `json:"summary"`
	Triggered bool   `json:"triggered"`
	Footnote  string `json:"footnote"`
}

// GeminiAnalyzer asks a Gemini model to analyze a run.
type GeminiAnalyzer struct {
	models       generator
	defaultModel string
	log          logger.Logger
}

var _ analysis.Analyzer = (*GeminiAnalyzer)(nil)

// Option configures a GeminiAnalyzer.
type Option func(*GeminiAnalyzer)

// WithDefaultModel sets the model used when the tracker does not name one.
func WithDefaultModel(name string) Option {
	return func(a *GeminiAnalyzer) {
		if name != "" {
			a.defaultModel = name
		}
	}
}

// WithLogger sets the analyzer logger.
func WithLogger(l logger.Logger) Option {
	return func(a *GeminiAnalyzer) {
		if l != nil {
			a.log = l
		}
	}
}

// withGenerator replaces the Gemini client; used by tests.
func withGenerator(g generator) Option {
	return func(a *GeminiAnalyzer) {
		a.models = g
	}
}

// NewGeminiAnalyzer creates an analyzer backed by the Gemini API.
func NewGeminiAnalyzer(ctx context.Context, apiKey string, opts ...Option) (*GeminiAnalyzer, error) {
	a := &GeminiAnalyzer{
		defaultModel: defaultModel,
		log:          logger.Get().Named("gemini"),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.models != nil {
		return a, nil
	}
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	a.models = client.Models
	return a, nil
}

// Analyze implements analysis.Analyzer for model.AI trackers.
func (a *GeminiAnalyzer) Analyze(ctx context.Context, in analysis.Input) (analysis.Outcome, error) {
	cfg, ok := in.Tracker.Analysis.(model.AI)
	if !ok {
		return analysis.Outcome{}, fmt.Errorf("%w: gemini analyzer got %T", analysis.ErrWrongAnalysis, in.Tracker.Analysis)
	}
	modelName := cfg.Model
	if modelName == "" {
		modelName = a.defaultModel
	}

	contents := []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{{Text: buildPrompt(cfg.Prompt, in)}},
	}}
	resp, err := a.models.GenerateContent(ctx, modelName, contents, &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemInstruction}}},
		ResponseMIMEType:  "application/json",
		ResponseSchema:    responseSchema(),
	})
	if err != nil {
		return analysis.Outcome{}, fmt.Errorf("gemini API call failed: %w", err)
	}
	if resp == nil {
		return analysis.Outcome{}, fmt.Errorf("%w: empty response", ErrBadResponse)
	}

	respText := resp.Text()
	var v verdict
	if err := json.Unmarshal([]byte(respText), &v); err != nil {
		a.log.Warn(ctx, "unparseable gemini response",
			logger.String("tracker_id", in.Tracker.ID),
			logger.String("model", modelName),
			logger.Int("bytes", len(respText)))
		return analysis.Outcome{}, fmt.Errorf("%w: %w", ErrBadResponse, err)
	}
	if strings.TrimSpace(v.Summary) == "" {
		return analysis.Outcome{}, fmt.Errorf("%w: missing summary", ErrBadResponse)
	}
	return analysis.Outcome{Summary: v.Summary, Triggered: v.Triggered, Footnote: v.Footnote}, nil
}

func buildPrompt(instruction string, in analysis.Input) string {
	var b strings.Builder
	if instruction == "" {
		instruction = "Tell me when something material changes."
	}
	fmt.Fprintf(&b, "Instruction:\n%s\n\n", instruction)
	fmt.Fprintf(&b, "Target: %s\n\n", model.TargetKind(in.Tracker.Target))

	fmt.Fprintf(&b, "Changes (%d):\n", len(in.Events))
	for i, e := range in.Events {
		if i == maxEventsInCtx {
			fmt.Fprintf(&b, "... %d more\n", len(in.Events)-maxEventsInCtx)
			break
		}
		fmt.Fprintf(&b, "- %s %s/%s", e.Type, e.SourceID, e.ExternalID)
		if e.Current != nil {
			fmt.Fprintf(&b, " now=%s", compact(e.Current.Data))
		}
		if e.Previous != nil && e.Type == model.ChangeUpdated {
			fmt.Fprintf(&b, " before=%s", compact(e.Previous.Data))
		}
		b.WriteString("\n")
	}

	if len(in.Movements) > 0 {
		b.WriteString("\nPrice movement:\n")
		for _, m := range in.Movements {
			fmt.Fprintf(&b, "- token %s: %.4f -> %.4f (abs %.4f, %+.2f%%)\n",
				m.TokenID, m.StartPrice, m.EndPrice, m.AbsChange, m.PercentChange*100)
		}
	}
	if in.Comparison != nil {
		fmt.Fprintf(&b, "\nComparison: %s\n", in.Comparison.Rationale)
	}
	return b.String()
}

func compact(data map[string]any) string {
	raw, err := json.Marshal(data)
	if err != nil {
		return "{}"
	}
	s := string(raw)
	if len(s) > maxFieldChars {
		s = s[:maxFieldChars] + "..."
	}
	return s
}

func responseSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"summary":   {Type: genai.TypeString, Description: "Two to four sentences describing what changed."},
			"triggered": {Type: genai.TypeBoolean, Description: "Whether the changes satisfy the user's instruction."},
			"footnote":  {Type: genai.TypeString, Description: "Items or figures that drove the decision."},
		},
		Required: []string{"summary", "triggered", "footnote"},
	}
}

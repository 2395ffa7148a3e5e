// Package report turns retrieved incident context into written analysis:
// answers to ad-hoc questions and structured fault-analysis reports rendered
// as markdown.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/brunobiangulo/faultgraph/llm"
	"github.com/brunobiangulo/faultgraph/retrieval"
	"github.com/brunobiangulo/faultgraph/store"
)

// Analysis types selectable per report.
const (
	RootCauseAnalysis  = "root_cause_analysis"
	PreventiveMeasures = "preventive_measures"
	Comprehensive      = "comprehensive"
)

// Config holds report generation configuration.
type Config struct {
	OutputDir   string  // Directory for saved markdown reports.
	Temperature float64 // Sampling temperature for generation.
	MaxTokens   int     // Completion budget per generation call.
}

// DefaultConfig returns generation settings for fault-analysis reports.
func DefaultConfig() Config {
	return Config{
		OutputDir:   "reports",
		Temperature: 0.3,
		MaxTokens:   2048,
	}
}

// Answer is the output of an ad-hoc question over the knowledge graph.
type Answer struct {
	Text         string          `json:"text"`
	Question     string          `json:"question"`
	ModelUsed    string          `json:"model_used"`
	TotalTokens  int             `json:"total_tokens"`
	SourceCodes  []string        `json:"source_codes"`
	Trace        retrieval.Trace `json:"trace"`
	ElapsedMs    int64           `json:"elapsed_ms"`
	EntitiesUsed int             `json:"entities_used"`
}

// Report is one generated analysis document.
type Report struct {
	ID           string `json:"id"`
	AccidentCode string `json:"accident_code"`
	AnalysisType string `json:"analysis_type"`
	Content      string `json:"content"`
	Path         string `json:"path,omitempty"`
	ModelUsed    string `json:"model_used"`
	TotalTokens  int    `json:"total_tokens"`
	GeneratedAt  string `json:"generated_at"`
}

// Generator produces answers and reports from retrieved context.
type Generator struct {
	chat llm.Provider
	cfg  Config
}

// New creates a report generator. Zero-value config fields fall back to
// DefaultConfig values.
func New(chat llm.Provider, cfg Config) *Generator {
	def := DefaultConfig()
	if cfg.OutputDir == "" {
		cfg.OutputDir = def.OutputDir
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = def.Temperature
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	return &Generator{chat: chat, cfg: cfg}
}

// Answer generates a grounded answer to a free-form question from retrieved
// context.
func (g *Generator) Answer(ctx context.Context, question string, res *retrieval.Result) (*Answer, error) {
	start := time.Now()

	contextStr := BuildContext(res)
	resp, err := g.chat.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: answerSystemPrompt},
			{Role: "user", Content: buildAnswerPrompt(question, contextStr)},
		},
		Temperature: 0,
		MaxTokens:   g.cfg.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("generating answer: %w", err)
	}

	codes := make([]string, 0, len(res.Records))
	for _, r := range res.Records {
		codes = append(codes, r.AccidentCode)
	}

	slog.Info("report: answer generated",
		"question_len", len(question), "tokens", resp.TotalTokens,
		"elapsed", time.Since(start).Round(time.Millisecond))

	return &Answer{
		Text:         resp.Content,
		Question:     question,
		ModelUsed:    resp.Model,
		TotalTokens:  resp.TotalTokens,
		SourceCodes:  codes,
		Trace:        res.Trace,
		ElapsedMs:    time.Since(start).Milliseconds(),
		EntitiesUsed: len(res.Entities),
	}, nil
}

// Generate produces one analysis report for an incident record, grounded in
// the record itself plus its retrieved graph neighbourhood. analysisType is
// one of RootCauseAnalysis, PreventiveMeasures, or Comprehensive.
func (g *Generator) Generate(ctx context.Context, record store.Record, res *retrieval.Result, analysisType string) (*Report, error) {
	tmpl, ok := analysisTemplates[analysisType]
	if !ok {
		return nil, fmt.Errorf("unknown analysis type: %s", analysisType)
	}

	prompt := buildReportPrompt(tmpl, record, res)
	resp, err := g.chat.Chat(ctx, llm.ChatRequest{
		Messages: []llm.Message{
			{Role: "system", Content: reportSystemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("generating %s report: %w", analysisType, err)
	}

	report := &Report{
		ID:           uuid.NewString(),
		AccidentCode: record.AccidentCode,
		AnalysisType: analysisType,
		Content:      resp.Content,
		ModelUsed:    resp.Model,
		TotalTokens:  resp.TotalTokens,
		GeneratedAt:  time.Now().UTC().Format(time.RFC3339),
	}

	slog.Info("report: generated",
		"accident_code", record.AccidentCode, "analysis_type", analysisType,
		"tokens", resp.TotalTokens)
	return report, nil
}

// Save writes the report as a markdown file under the configured output
// directory and records the path on the report.
func (g *Generator) Save(report *Report) error {
	if err := os.MkdirAll(g.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}

	name := fmt.Sprintf("%s_%s_%s.md", report.AccidentCode, report.AnalysisType, report.ID[:8])
	path := filepath.Join(g.cfg.OutputDir, name)

	var b strings.Builder
	fmt.Fprintf(&b, "# Fault Analysis Report: %s\n\n", report.AccidentCode)
	fmt.Fprintf(&b, "- Analysis type: %s\n", report.AnalysisType)
	fmt.Fprintf(&b, "- Generated: %s\n", report.GeneratedAt)
	fmt.Fprintf(&b, "- Report ID: %s\n\n", report.ID)
	b.WriteString("---\n\n")
	b.WriteString(report.Content)
	b.WriteString("\n")

	if err := os.WriteFile(path, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	report.Path = path
	return nil
}

// BuildContext renders retrieved graph and record context as the text block
// handed to generation: entities first (highest priority first), then
// relationships, then the backing records.
func BuildContext(res *retrieval.Result) string {
	var b strings.Builder

	if len(res.Entities) > 0 {
		b.WriteString("## Related Entities\n")
		for _, e := range res.Entities {
			fmt.Fprintf(&b, "- %s (%s, priority %d): %s\n",
				e.Name, e.EntityType, e.Tier, firstSentence(e.Description))
		}
		b.WriteString("\n")
	}

	if len(res.Relations) > 0 {
		b.WriteString("## Related Relationships\n")
		for _, r := range res.Relations {
			fmt.Fprintf(&b, "- %s -> %s (weight %.2f): %s\n",
				r.SourceName, r.TargetName, r.Weight, firstSentence(r.Description))
		}
		b.WriteString("\n")
	}

	for i, r := range res.Records {
		fmt.Fprintf(&b, "## Source Record %d: %s\n%s\n\n", i+1, r.AccidentCode, r.Content)
	}

	return strings.TrimRight(b.String(), "\n")
}

// firstSentence truncates merged descriptions to their leading fragment so
// prompt context stays within budget.
func firstSentence(desc string) string {
	if i := strings.Index(desc, " | "); i > 0 {
		desc = desc[:i]
	}
	const maxLen = 200
	if len(desc) > maxLen {
		desc = desc[:maxLen] + "..."
	}
	return desc
}

package report

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/brunobiangulo/faultgraph/llm"
	"github.com/brunobiangulo/faultgraph/retrieval"
	"github.com/brunobiangulo/faultgraph/store"
)

// echoProvider returns a fixed completion and records the last request.
type echoProvider struct {
	content string
	lastReq llm.ChatRequest
}

func (p *echoProvider) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	p.lastReq = req
	return &llm.ChatResponse{
		Content:     p.content,
		Model:       "test-model",
		TotalTokens: 42,
	}, nil
}

func (p *echoProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, nil
}

func sampleResult() *retrieval.Result {
	return &retrieval.Result{
		Entities: []store.NodeResult{
			{Node: store.Node{Name: "mill", EntityType: "device", Tier: 1,
				Description: "main mill | backup description"}, Score: 0.9},
		},
		Relations: []store.EdgeResult{
			{Edge: store.Edge{SourceName: "mill", TargetName: "overheat",
				Weight: 0.95, Description: "mill tripped on overheat"}, Score: 0.8},
		},
		Records: []store.RecordResult{
			{Record: store.Record{AccidentCode: "ACC-001",
				Content: "full incident text"}, Score: 0.5},
		},
	}
}

func TestBuildContext(t *testing.T) {
	ctx := BuildContext(sampleResult())

	for _, want := range []string{
		"## Related Entities",
		"- mill (device, priority 1): main mill",
		"## Related Relationships",
		"- mill -> overheat (weight 0.95)",
		"## Source Record 1: ACC-001",
		"full incident text",
	} {
		if !strings.Contains(ctx, want) {
			t.Errorf("context missing %q:\n%s", want, ctx)
		}
	}
	// Merged description tails are truncated at the separator.
	if strings.Contains(ctx, "backup description") {
		t.Error("context should keep only the leading description fragment")
	}
}

func TestBuildContextEmpty(t *testing.T) {
	if got := BuildContext(&retrieval.Result{}); got != "" {
		t.Errorf("empty result context = %q, want empty", got)
	}
}

func TestAnswer(t *testing.T) {
	provider := &echoProvider{content: "the mill tripped on bearing overheat"}
	g := New(provider, Config{})

	answer, err := g.Answer(context.Background(), "why did the mill trip?", sampleResult())
	if err != nil {
		t.Fatalf("Answer: %v", err)
	}

	if answer.Text != "the mill tripped on bearing overheat" {
		t.Errorf("Text = %q", answer.Text)
	}
	if answer.ModelUsed != "test-model" || answer.TotalTokens != 42 {
		t.Errorf("model/tokens = %s/%d", answer.ModelUsed, answer.TotalTokens)
	}
	if len(answer.SourceCodes) != 1 || answer.SourceCodes[0] != "ACC-001" {
		t.Errorf("SourceCodes = %v", answer.SourceCodes)
	}

	// The prompt carries the retrieved context and the question.
	prompt := provider.lastReq.Messages[len(provider.lastReq.Messages)-1].Content
	if !strings.Contains(prompt, "full incident text") || !strings.Contains(prompt, "why did the mill trip?") {
		t.Errorf("prompt missing context or question:\n%s", prompt)
	}
}

func TestGenerate(t *testing.T) {
	provider := &echoProvider{content: "## Incident summary\n..."}
	g := New(provider, Config{})

	record := store.Record{AccidentCode: "ACC-001", Content: "full incident text"}
	rep, err := g.Generate(context.Background(), record, sampleResult(), RootCauseAnalysis)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if rep.AccidentCode != "ACC-001" || rep.AnalysisType != RootCauseAnalysis {
		t.Errorf("report = %+v", rep)
	}
	if rep.ID == "" || rep.GeneratedAt == "" {
		t.Errorf("report missing id or timestamp: %+v", rep)
	}

	prompt := provider.lastReq.Messages[len(provider.lastReq.Messages)-1].Content
	if !strings.Contains(prompt, "Root Cause Analysis") {
		t.Errorf("prompt missing analysis title:\n%s", prompt)
	}
	if !strings.Contains(prompt, "full incident text") {
		t.Errorf("prompt missing the incident record:\n%s", prompt)
	}
}

func TestGenerateUnknownAnalysisType(t *testing.T) {
	g := New(&echoProvider{}, Config{})
	_, err := g.Generate(context.Background(), store.Record{}, &retrieval.Result{}, "horoscope")
	if err == nil {
		t.Fatal("expected error for unknown analysis type")
	}
}

func TestSave(t *testing.T) {
	provider := &echoProvider{content: "analysis body"}
	g := New(provider, Config{OutputDir: t.TempDir()})

	record := store.Record{AccidentCode: "ACC-001", Content: "text"}
	rep, err := g.Generate(context.Background(), record, &retrieval.Result{}, Comprehensive)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if err := g.Save(rep); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if rep.Path == "" {
		t.Fatal("Save did not record the path")
	}

	data, err := os.ReadFile(rep.Path)
	if err != nil {
		t.Fatalf("reading saved report: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "# Fault Analysis Report: ACC-001") {
		t.Errorf("saved report missing header:\n%s", content)
	}
	if !strings.Contains(content, "analysis body") {
		t.Errorf("saved report missing body:\n%s", content)
	}
}

func TestFirstSentence(t *testing.T) {
	if got := firstSentence("lead | tail | more"); got != "lead" {
		t.Errorf("firstSentence = %q, want %q", got, "lead")
	}
	long := strings.Repeat("x", 300)
	if got := firstSentence(long); len(got) != 203 {
		t.Errorf("firstSentence long input length = %d, want 203", len(got))
	}
}

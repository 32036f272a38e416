package batch

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/segmentio/parquet-go"

	"github.com/raaihank/text-anonymizer/internal/config"
	"github.com/raaihank/text-anonymizer/internal/entity"
	"github.com/raaihank/text-anonymizer/internal/logger"
	"github.com/raaihank/text-anonymizer/internal/pattern"
)

type fakeSemantic struct{}

func (fakeSemantic) Detect(_ context.Context, text, _ string) *entity.Set {
	set := entity.NewSet()
	for _, name := range []string{"John Doe", "Acme Corp"} {
		if strings.Contains(text, name) {
			set.Put(entity.Record{Text: name, Method: entity.MethodSemantic, Type: "PERSON", Languages: []string{"en"}})
		}
	}
	return set
}

func (fakeSemantic) Languages() []string { return []string{"en"} }

func newTestPipeline(t *testing.T, strategy string, workers int) *Pipeline {
	t.Helper()
	patterns, err := pattern.New(config.PatternConfig{Detectors: []string{"all"}}, logger.NewNop())
	if err != nil {
		t.Fatalf("Failed to create pattern detector: %v", err)
	}
	p, err := NewPipeline(patterns, fakeSemantic{}, Config{Strategy: strategy, Language: "auto", WorkerCount: workers}, logger.NewNop())
	if err != nil {
		t.Fatalf("Failed to create pipeline: %v", err)
	}
	return p
}

func TestNewPipelineValidation(t *testing.T) {
	patterns, _ := pattern.New(config.PatternConfig{Detectors: []string{"all"}}, logger.NewNop())

	if _, err := NewPipeline(patterns, fakeSemantic{}, Config{Strategy: "shuffle", Language: "auto"}, logger.NewNop()); err == nil {
		t.Error("Expected error for unknown strategy")
	}
	if _, err := NewPipeline(patterns, fakeSemantic{}, Config{Strategy: "masking", Language: "xx"}, logger.NewNop()); err == nil {
		t.Error("Expected error for unsupported language")
	}
	restricted := Config{Strategy: "hashing", Language: "auto", AllowedStrategies: []string{"masking", "consistent_tokens"}}
	if _, err := NewPipeline(patterns, fakeSemantic{}, restricted, logger.NewNop()); err == nil {
		t.Error("Expected error for a strategy outside the allowed list")
	}
}

func TestRun(t *testing.T) {
	p := newTestPipeline(t, "consistent_tokens", 3)

	records := []*Record{
		{ID: "1", Text: "John Doe wrote to a@b.pt"},
		{ID: "2", Text: ""},
		{ID: "3", Text: "John Doe again"},
		{ID: "4", Text: "nothing here"},
	}

	results, summary, err := p.Run(context.Background(), records)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}
	for i, want := range []string{"1", "3", "4"} {
		if results[i].ID != want {
			t.Errorf("Expected input order, result %d has id %s", i, results[i].ID)
		}
	}
	if summary.TotalRecords != 4 || summary.Processed != 3 || summary.Skipped != 1 {
		t.Errorf("Unexpected summary: %+v", summary)
	}
	if summary.Entities != 3 || summary.EntityTypes["PERSON"] != 2 || summary.EntityTypes[pattern.RuleEmail] != 1 {
		t.Errorf("Unexpected entity counts: %+v", summary)
	}

	// Each record is its own session, so tokens are not shared between records
	first := replacementFor(t, results[0], "John Doe")
	second := replacementFor(t, results[1], "John Doe")
	if first == second {
		t.Errorf("Expected per-record tokens, both got %s", first)
	}
}

func replacementFor(t *testing.T, res *Result, text string) string {
	t.Helper()
	for _, e := range res.Explanations {
		if e.Entity == text {
			return e.Replacement
		}
	}
	t.Fatalf("Record %s has no explanation for %q: %+v", res.ID, text, res.Explanations)
	return ""
}

func TestRunCancelled(t *testing.T) {
	p := newTestPipeline(t, "masking", 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, err := p.Run(ctx, []*Record{{ID: "1", Text: "a@b.pt"}}); err == nil {
		t.Error("Expected error for cancelled context")
	}
}

func TestEvaluate(t *testing.T) {
	p := newTestPipeline(t, "consistent_tokens", 2)

	records := []*Record{
		{ID: "1", Text: "John Doe wrote to a@b.pt", Entities: []string{"John Doe", "a@b.pt"}},
		{ID: "2", Text: "Acme Corp hired Mary", Entities: []string{"Acme Corp", "Mary"}},
	}

	eval, err := p.Evaluate(context.Background(), records)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if eval.Records != 2 || eval.Expected != 4 || eval.Detected != 3 || eval.Correct != 3 {
		t.Fatalf("Unexpected counts: %+v", eval)
	}
	if eval.Precision != 1 {
		t.Errorf("Expected precision 1, got %f", eval.Precision)
	}
	if eval.Recall != 0.75 {
		t.Errorf("Expected recall 0.75, got %f", eval.Recall)
	}
	if math.Abs(eval.F1-6.0/7.0) > 1e-9 {
		t.Errorf("Expected F1 6/7, got %f", eval.F1)
	}
}

func TestEvaluationScoreEmpty(t *testing.T) {
	e := &Evaluation{}
	e.score()
	if e.Precision != 0 || e.Recall != 0 || e.F1 != 0 {
		t.Errorf("Expected zero scores, got %+v", e)
	}
}

func TestReadCSV(t *testing.T) {
	input := "id,text,entities\n" +
		"a1,\"John Doe, a@b.pt\",John Doe|a@b.pt\n" +
		",second row,\n"

	records, err := ReadCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadCSV failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if records[0].ID != "a1" || records[0].Text != "John Doe, a@b.pt" {
		t.Errorf("Unexpected first record: %+v", records[0])
	}
	if len(records[0].Entities) != 2 || records[0].Entities[1] != "a@b.pt" {
		t.Errorf("Expected split entities, got %v", records[0].Entities)
	}
	if records[1].ID != "2" || len(records[1].Entities) != 0 {
		t.Errorf("Expected row number id and no entities, got %+v", records[1])
	}

	t.Run("MissingTextColumn", func(t *testing.T) {
		if _, err := ReadCSV(strings.NewReader("id,body\n1,x\n")); err == nil {
			t.Error("Expected error for missing text column")
		}
	})
}

func TestReadJSON(t *testing.T) {
	input := `{"id":"x","text":"hello","entities":["hello"]}
{"text":"world"}
`
	records, err := ReadJSON(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if len(records) != 2 || records[0].ID != "x" || records[1].ID != "2" {
		t.Errorf("Unexpected records: %+v %+v", records[0], records[1])
	}

	if _, err := ReadJSON(strings.NewReader("{not json")); err == nil {
		t.Error("Expected decode error")
	}
}

func TestParquetPipeline(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "input.parquet")
	output := filepath.Join(dir, "output.parquet")

	var buf bytes.Buffer
	writer := parquet.NewWriter(&buf, parquet.SchemaOf(new(Record)))
	for _, rec := range []*Record{
		{ID: "1", Text: "Mail a@b.pt", Entities: []string{"a@b.pt"}},
		{ID: "2", Text: "Call 123-456-7890"},
	} {
		if err := writer.Write(rec); err != nil {
			t.Fatalf("Failed to write input row: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Failed to close input writer: %v", err)
	}
	if err := os.WriteFile(input, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("Failed to write input file: %v", err)
	}

	p := newTestPipeline(t, "masking", 2)
	summary, err := p.ProcessFile(context.Background(), input, output)
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}
	if summary.Processed != 2 || summary.Entities != 2 {
		t.Errorf("Unexpected summary: %+v", summary)
	}

	file, err := os.Open(output)
	if err != nil {
		t.Fatalf("Failed to open output: %v", err)
	}
	defer file.Close()

	reader := parquet.NewReader(file)
	defer reader.Close()

	var got Result
	if err := reader.Read(&got); err != nil {
		t.Fatalf("Failed to read output row: %v", err)
	}
	if got.ID != "1" || got.Anonymized != "Mail a****t" || got.Strategy != "masking" {
		t.Errorf("Unexpected first result: %+v", got)
	}
	if len(got.Explanations) != 1 || got.Explanations[0].Type != pattern.RuleEmail {
		t.Errorf("Unexpected explanations: %+v", got.Explanations)
	}
}

func TestWriteFileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	results := []*Result{{ID: "1", Anonymized: "x", Explanations: []Explanation{}}}

	if err := WriteFile(path, results); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read output: %v", err)
	}
	if !strings.HasPrefix(string(data), `{"id":"1"`) {
		t.Errorf("Unexpected output: %s", data)
	}

	if err := WriteFile(filepath.Join(t.TempDir(), "out.csv"), results); err == nil {
		t.Error("Expected error for unsupported output format")
	}
}

func TestDetectFileFormat(t *testing.T) {
	tests := map[string]FileFormat{
		"data.csv":     FormatCSV,
		"DATA.CSV":     FormatCSV,
		"data.parquet": FormatParquet,
		"data.jsonl":   FormatJSON,
		"data.json":    FormatJSON,
		"data.txt":     "",
		"no-extension": "",
	}
	for name, want := range tests {
		if got := DetectFileFormat(name); got != want {
			t.Errorf("DetectFileFormat(%q) = %q, want %q", name, got, want)
		}
	}
}

package batch

import (
	"path/filepath"
	"strings"
	"time"
)

// Record is one input document. Entities lists the surface texts a
// labelled dataset expects to be detected and is only used by Evaluate.
type Record struct {
	ID       string   `parquet:"id" json:"id"`
	Text     string   `parquet:"text" json:"text"`
	Entities []string `parquet:"entities" json:"entities,omitempty"`
}

// Explanation is the flat, serialisable form of one substitution
type Explanation struct {
	Entity      string `parquet:"entity" json:"entity"`
	Method      string `parquet:"method" json:"method"`
	Type        string `parquet:"type" json:"type"`
	Replacement string `parquet:"replacement" json:"replacement"`
}

// Result is the anonymized form of one Record
type Result struct {
	ID           string        `parquet:"id" json:"id"`
	Strategy     string        `parquet:"strategy" json:"strategy"`
	Language     string        `parquet:"language" json:"language"`
	Anonymized   string        `parquet:"anonymized" json:"anonymized"`
	Explanations []Explanation `parquet:"explanations" json:"explanations"`
}

// Config contains batch pipeline configuration
type Config struct {
	Strategy          string
	Language          string
	AllowedStrategies []string // nil allows every strategy
	WorkerCount       int
	MaxTextLength     int // 0 disables the check
	ProgressReport    int
}

// Summary reports the outcome of one batch run
type Summary struct {
	TotalRecords int64            `json:"total_records"`
	Processed    int64            `json:"processed"`
	Skipped      int64            `json:"skipped"`
	Entities     int64            `json:"entities"`
	EntityTypes  map[string]int64 `json:"entity_types"`
	Duration     time.Duration    `json:"duration"`
}

// Evaluation compares detected entities with the expected ones
type Evaluation struct {
	Records   int     `json:"records"`
	Expected  int     `json:"expected"`
	Detected  int     `json:"detected"`
	Correct   int     `json:"correct"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// FileFormat represents supported file formats
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSON    FileFormat = "json"
)

// DetectFileFormat detects file format from extension, returning "" when unknown
func DetectFileFormat(filename string) FileFormat {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return FormatCSV
	case ".parquet":
		return FormatParquet
	case ".json", ".jsonl", ".ndjson":
		return FormatJSON
	default:
		return ""
	}
}

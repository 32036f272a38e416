package batch

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/segmentio/parquet-go"
)

// entitySeparator joins expected entities inside a single CSV cell
const entitySeparator = "|"

// ReadFile loads records from a CSV, JSON Lines or Parquet file
func ReadFile(path string) ([]*Record, error) {
	format := DetectFileFormat(path)
	if format == "" {
		return nil, fmt.Errorf("unsupported file format: %s", path)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s file: %w", format, err)
	}
	defer file.Close()

	switch format {
	case FormatCSV:
		return ReadCSV(file)
	case FormatJSON:
		return ReadJSON(file)
	default:
		return ReadParquet(file)
	}
}

// ReadCSV reads records from CSV with a header row. The text column is
// required; id and entities are optional. Missing ids are replaced by the
// 1-based row number.
func ReadCSV(r io.Reader) ([]*Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	textCol, ok := columns["text"]
	if !ok {
		return nil, errors.New("CSV header has no text column")
	}
	idCol, hasID := columns["id"]
	entitiesCol, hasEntities := columns["entities"]

	var records []*Record
	for row := 1; ; row++ {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row %d: %w", row, err)
		}

		rec := &Record{ID: strconv.Itoa(row), Text: cell(fields, textCol)}
		if hasID {
			if id := strings.TrimSpace(cell(fields, idCol)); id != "" {
				rec.ID = id
			}
		}
		if hasEntities {
			rec.Entities = splitEntities(cell(fields, entitiesCol))
		}
		records = append(records, rec)
	}

	return records, nil
}

func cell(fields []string, i int) string {
	if i < len(fields) {
		return fields[i]
	}
	return ""
}

func splitEntities(value string) []string {
	var entities []string
	for _, e := range strings.Split(value, entitySeparator) {
		if e = strings.TrimSpace(e); e != "" {
			entities = append(entities, e)
		}
	}
	return entities
}

// ReadJSON reads one JSON object per line
func ReadJSON(r io.Reader) ([]*Record, error) {
	decoder := json.NewDecoder(r)

	var records []*Record
	for row := 1; ; row++ {
		var rec Record
		err := decoder.Decode(&rec)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode JSON record %d: %w", row, err)
		}
		if rec.ID == "" {
			rec.ID = strconv.Itoa(row)
		}
		records = append(records, &rec)
	}

	return records, nil
}

// ReadParquet reads records from a Parquet file
func ReadParquet(r io.ReaderAt) ([]*Record, error) {
	reader := parquet.NewReader(r)
	defer reader.Close()

	var records []*Record
	for row := 1; ; row++ {
		var rec Record
		err := reader.Read(&rec)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read Parquet record %d: %w", row, err)
		}
		if rec.ID == "" {
			rec.ID = strconv.Itoa(row)
		}
		records = append(records, &rec)
	}

	return records, nil
}

// WriteFile stores results as JSON Lines or Parquet, chosen by extension
func WriteFile(path string, results []*Result) (err error) {
	format := DetectFileFormat(path)
	if format != FormatJSON && format != FormatParquet {
		return fmt.Errorf("unsupported output format: %s", path)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("failed to close output file: %w", cerr)
		}
	}()

	if format == FormatParquet {
		return WriteParquet(file, results)
	}
	return WriteJSON(file, results)
}

// WriteJSON writes one JSON object per line
func WriteJSON(w io.Writer, results []*Result) error {
	encoder := json.NewEncoder(w)
	for _, res := range results {
		if err := encoder.Encode(res); err != nil {
			return fmt.Errorf("failed to encode result %s: %w", res.ID, err)
		}
	}
	return nil
}

// WriteParquet writes results with a schema derived from Result
func WriteParquet(w io.Writer, results []*Result) error {
	writer := parquet.NewWriter(w, parquet.SchemaOf(new(Result)))
	for _, res := range results {
		if err := writer.Write(res); err != nil {
			return fmt.Errorf("failed to write Parquet result %s: %w", res.ID, err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to flush Parquet output: %w", err)
	}
	return nil
}

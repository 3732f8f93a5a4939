package tools

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/dana-ai/dana/pkg/models"
)

// defaultPreviewRows is how many data rows the profile includes when the
// caller does not ask for a specific count.
const defaultPreviewRows = 5

// ReadDatasetArgs are the arguments of the read_dataset tool.
type ReadDatasetArgs struct {
	FilePath    string `json:"file_path,omitempty" jsonschema:"description=Path to the dataset file. Defaults to the uploaded dataset."`
	SheetName   string `json:"sheet_name,omitempty" jsonschema:"description=Worksheet name for Excel files. Defaults to the first sheet."`
	PreviewRows int    `json:"preview_rows,omitempty" jsonschema:"description=Number of preview rows to include (default 5)."`
}

// columnProfile describes one column of the dataset.
type columnProfile struct {
	Column       string   `json:"column"`
	Dtype        string   `json:"dtype"`
	NonNullCount int      `json:"non_null_count"`
	NullCount    int      `json:"null_count"`
	UniqueCount  int      `json:"unique_count"`
	Min          any      `json:"min,omitempty"`
	Max          any      `json:"max,omitempty"`
	Mean         any      `json:"mean,omitempty"`
	SampleValues []string `json:"sample_values"`
}

// datasetStatistics summarize the whole table.
type datasetStatistics struct {
	TotalRows         int     `json:"total_rows"`
	TotalColumns      int     `json:"total_columns"`
	MissingCells      int     `json:"missing_cells"`
	MissingPercentage float64 `json:"missing_percentage"`
}

// ReadDatasetTool profiles the session's dataset: schema with inferred
// dtypes, table statistics, and a row preview. Idempotent.
type ReadDatasetTool struct {
	schema json.RawMessage
}

// NewReadDatasetTool creates the tool and reflects its schema.
func NewReadDatasetTool() *ReadDatasetTool {
	return &ReadDatasetTool{schema: generateSchema(&ReadDatasetArgs{})}
}

func (t *ReadDatasetTool) Name() string { return "read_dataset" }

func (t *ReadDatasetTool) Description() string {
	return "Read the uploaded dataset and return its schema (column names, inferred dtypes, null counts, ranges), summary statistics, and a preview of the first rows. Call this before writing analysis code."
}

func (t *ReadDatasetTool) Schema() json.RawMessage { return t.schema }

func (t *ReadDatasetTool) Execute(ctx context.Context, env *ExecEnv, args json.RawMessage) (*Result, error) {
	var in ReadDatasetArgs
	if len(args) > 0 {
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, models.WrapError(models.KindInvalidInput, err, "decode read_dataset arguments")
		}
	}

	path := in.FilePath
	if path == "" {
		path = env.Dataset.Path
	}
	previewRows := in.PreviewRows
	if previewRows <= 0 {
		previewRows = defaultPreviewRows
	}

	header, rows, err := loadTable(path, in.SheetName)
	if err != nil {
		return nil, err
	}

	schema := profileColumns(header, rows)
	stats := computeStatistics(header, rows)
	preview := buildPreview(header, rows, previewRows)

	env.Publisher.DataExplored(schema, stats, preview)

	payload, err := json.Marshal(map[string]any{
		"file":       filepath.Base(path),
		"schema":     schema,
		"statistics": stats,
		"preview":    preview,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal dataset profile: %w", err)
	}
	return &Result{Content: string(payload), Status: StatusSuccess}, nil
}

// loadTable reads the file into a header row plus data rows.
func loadTable(path, sheetName string) ([]string, [][]string, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".csv":
		return loadCSV(path)
	case ".xlsx":
		return loadExcel(path, sheetName)
	default:
		return nil, nil, models.NewError(models.KindUnsupportedFormat,
			"unsupported dataset format %q: expected .csv or .xlsx", ext)
	}
}

func loadCSV(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, models.WrapError(models.KindInvalidInput, err, "open dataset %s", filepath.Base(path))
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var records [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, models.WrapError(models.KindInvalidInput, err, "parse CSV %s", filepath.Base(path))
		}
		records = append(records, record)
	}
	if len(records) == 0 {
		return nil, nil, models.NewError(models.KindInvalidInput, "dataset %s is empty", filepath.Base(path))
	}
	return records[0], records[1:], nil
}

func loadExcel(path, sheetName string) ([]string, [][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, models.WrapError(models.KindInvalidInput, err, "open workbook %s", filepath.Base(path))
	}
	defer f.Close()

	if sheetName == "" {
		sheetName = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, nil, models.WrapError(models.KindInvalidInput, err, "read sheet %q", sheetName)
	}
	if len(rows) == 0 {
		return nil, nil, models.NewError(models.KindInvalidInput, "sheet %q is empty", sheetName)
	}
	return rows[0], rows[1:], nil
}

// cell returns row[i] or "" when the row is ragged.
func cell(row []string, i int) string {
	if i < len(row) {
		return strings.TrimSpace(row[i])
	}
	return ""
}

func profileColumns(header []string, rows [][]string) []columnProfile {
	profiles := make([]columnProfile, len(header))
	for i, name := range header {
		values := make([]string, 0, len(rows))
		nulls := 0
		unique := make(map[string]struct{})
		for _, row := range rows {
			v := cell(row, i)
			if v == "" {
				nulls++
				continue
			}
			values = append(values, v)
			unique[v] = struct{}{}
		}

		p := columnProfile{
			Column:       name,
			Dtype:        inferDtype(values),
			NonNullCount: len(values),
			NullCount:    nulls,
			UniqueCount:  len(unique),
			SampleValues: sampleValues(values, 3),
		}
		fillAggregates(&p, values)
		profiles[i] = p
	}
	return profiles
}

// inferDtype sniffs the whole column: every non-null value must parse for
// a type to win; ties break toward the narrower type.
func inferDtype(values []string) string {
	if len(values) == 0 {
		return "string"
	}
	isInt, isFloat, isBool, isTime := true, true, true, true
	for _, v := range values {
		if isInt {
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				isInt = false
			}
		}
		if isFloat {
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				isFloat = false
			}
		}
		if isBool {
			if !isBoolLiteral(v) {
				isBool = false
			}
		}
		if isTime {
			if _, ok := parseDatetime(v); !ok {
				isTime = false
			}
		}
		if !isInt && !isFloat && !isBool && !isTime {
			return "string"
		}
	}
	switch {
	case isBool:
		return "bool"
	case isInt:
		return "int64"
	case isFloat:
		return "float64"
	case isTime:
		return "datetime"
	default:
		return "string"
	}
}

func isBoolLiteral(v string) bool {
	switch strings.ToLower(v) {
	case "true", "false":
		return true
	}
	return false
}

var datetimeLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"01/02/2006",
}

func parseDatetime(v string) (time.Time, bool) {
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// fillAggregates sets min/max/mean for numeric columns and min/max for
// datetime columns.
func fillAggregates(p *columnProfile, values []string) {
	if len(values) == 0 {
		return
	}
	switch p.Dtype {
	case "int64", "float64":
		min, max, sum := 0.0, 0.0, 0.0
		for i, v := range values {
			f, _ := strconv.ParseFloat(v, 64)
			if i == 0 || f < min {
				min = f
			}
			if i == 0 || f > max {
				max = f
			}
			sum += f
		}
		p.Min = min
		p.Max = max
		p.Mean = sum / float64(len(values))
	case "datetime":
		var min, max time.Time
		for i, v := range values {
			t, _ := parseDatetime(v)
			if i == 0 || t.Before(min) {
				min = t
			}
			if i == 0 || t.After(max) {
				max = t
			}
		}
		p.Min = min.Format("2006-01-02 15:04:05")
		p.Max = max.Format("2006-01-02 15:04:05")
	}
}

func sampleValues(values []string, n int) []string {
	out := make([]string, 0, n)
	seen := make(map[string]struct{}, n)
	for _, v := range values {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
		if len(out) == n {
			break
		}
	}
	return out
}

func computeStatistics(header []string, rows [][]string) datasetStatistics {
	missing := 0
	for _, row := range rows {
		for i := range header {
			if cell(row, i) == "" {
				missing++
			}
		}
	}
	total := len(rows) * len(header)
	pct := 0.0
	if total > 0 {
		pct = float64(missing) / float64(total) * 100
	}
	return datasetStatistics{
		TotalRows:         len(rows),
		TotalColumns:      len(header),
		MissingCells:      missing,
		MissingPercentage: round2(pct),
	}
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

func buildPreview(header []string, rows [][]string, n int) []map[string]string {
	if n > len(rows) {
		n = len(rows)
	}
	preview := make([]map[string]string, n)
	for i := 0; i < n; i++ {
		entry := make(map[string]string, len(header))
		for j, name := range header {
			entry[name] = cell(rows[i], j)
		}
		preview[i] = entry
	}
	return preview
}

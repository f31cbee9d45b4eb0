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

// ReadRecords loads every record of a csv, parquet or JSON-lines file. CSV and
// JSON inputs locate the text and label by column name; parquet files use the
// text and label columns of Record. A missing label reads as 0.
func ReadRecords(path string, cfg *Config) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	switch DetectFileFormat(path) {
	case FormatParquet:
		return readParquet(file)
	case FormatJSON:
		return readJSON(file, cfg)
	default:
		return readCSV(file, cfg)
	}
}

// WriteRecords writes records in the format implied by the path's extension
func WriteRecords(path string, records []Record) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	switch DetectFileFormat(path) {
	case FormatParquet:
		err = writeParquet(file, records)
	case FormatJSON:
		err = writeJSON(file, records)
	default:
		err = writeCSV(file, records)
	}
	if err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func readCSV(r io.Reader, cfg *Config) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	textIdx, labelIdx := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case cfg.TextColumn:
			textIdx = i
		case cfg.LabelColumn:
			labelIdx = i
		}
	}
	if textIdx < 0 {
		return nil, fmt.Errorf("CSV header has no %q column", cfg.TextColumn)
	}

	var records []Record
	for row := 2; ; row++ {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row %d: %w", row, err)
		}
		if textIdx >= len(fields) {
			return nil, fmt.Errorf("CSV row %d has %d fields, text column is %d", row, len(fields), textIdx+1)
		}

		record := Record{Text: fields[textIdx]}
		if labelIdx >= 0 && labelIdx < len(fields) {
			record.Label = parseLabel(fields[labelIdx])
		}
		records = append(records, record)
	}
	return records, nil
}

func writeCSV(w io.Writer, records []Record) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"text", "label"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, record := range records {
		if err := writer.Write([]string{record.Text, strconv.Itoa(record.Label)}); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func readJSON(r io.Reader, cfg *Config) ([]Record, error) {
	decoder := json.NewDecoder(r)

	var records []Record
	for line := 1; ; line++ {
		var raw map[string]interface{}
		err := decoder.Decode(&raw)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode JSON record %d: %w", line, err)
		}

		text, ok := raw[cfg.TextColumn].(string)
		if !ok {
			return nil, fmt.Errorf("JSON record %d has no string %q field", line, cfg.TextColumn)
		}

		record := Record{Text: text}
		switch v := raw[cfg.LabelColumn].(type) {
		case float64:
			if v == 1 {
				record.Label = 1
			}
		case bool:
			if v {
				record.Label = 1
			}
		case string:
			record.Label = parseLabel(v)
		}
		records = append(records, record)
	}
	return records, nil
}

func writeJSON(w io.Writer, records []Record) error {
	encoder := json.NewEncoder(w)
	for _, record := range records {
		if err := encoder.Encode(record); err != nil {
			return fmt.Errorf("failed to write JSON record: %w", err)
		}
	}
	return nil
}

func readParquet(file *os.File) ([]Record, error) {
	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat parquet file: %w", err)
	}
	// NewReader panics on malformed input, so open the footer first
	pf, err := parquet.OpenFile(file, stat.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}

	reader := parquet.NewReader(pf)
	defer reader.Close()

	var records []Record
	for {
		var record Record
		err := reader.Read(&record)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read parquet record: %w", err)
		}
		records = append(records, record)
	}
	return records, nil
}

func writeParquet(w io.Writer, records []Record) error {
	writer := parquet.NewGenericWriter[Record](w)
	if _, err := writer.Write(records); err != nil {
		return fmt.Errorf("failed to write parquet records: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return nil
}

// parseLabel maps "1" and "true" to 1, everything else to 0
func parseLabel(s string) int {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "1" || s == "true" {
		return 1
	}
	return 0
}

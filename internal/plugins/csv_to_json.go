package plugins

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"toolhub/services/conversion-api/internal/domain/tool"
)

// csvToJSON converts delimited text into a JSON array of row objects keyed by
// the header line. It runs entirely in-process.
type csvToJSON struct {
	desc tool.Descriptor
}

// NewCSVToJSON builds the CSV to JSON conversion plugin.
func NewCSVToJSON() (tool.Plugin, error) {
	return &csvToJSON{
		desc: tool.Descriptor{
			Name:              "csv-to-json",
			DisplayName:       "CSV to JSON",
			Category:          "data",
			Version:           "1.0.0",
			AllowedExtensions: []string{"csv", "tsv"},
			MaxInputBytes:     20 * 1024 * 1024,
			SupportsBulk:      true,
			MaxBatchFiles:     10,
		},
	}, nil
}

func (p *csvToJSON) Metadata() tool.Descriptor { return p.desc }

func (p *csvToJSON) Validate(ctx context.Context, in tool.Input) error {
	if err := tool.ValidateCommon(p.desc, in); err != nil {
		return err
	}

	reader := p.newReader(in)
	header, err := reader.Read()
	if err != nil {
		return tool.Rejectf("%s has no parseable header row", in.Filename)
	}
	for _, col := range header {
		if strings.TrimSpace(col) == "" {
			return tool.Rejectf("%s has an empty column name in its header", in.Filename)
		}
	}
	return nil
}

func (p *csvToJSON) Process(ctx context.Context, in tool.Input) (*tool.Output, error) {
	reader := p.newReader(in)

	header, err := reader.Read()
	if err != nil {
		return nil, tool.Rejectf("%s has no parseable header row", in.Filename)
	}

	rows := make([]map[string]string, 0)
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err != nil {
			if isEOF(err) {
				break
			}
			return nil, tool.Rejectf("%s: malformed row at line %d", in.Filename, line)
		}
		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(record) {
				row[strings.TrimSpace(col)] = record[i]
			}
		}
		rows = append(rows, row)
	}

	payload, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode rows: %w", err)
	}

	base := strings.TrimSuffix(in.Filename, filepath.Ext(in.Filename))
	return &tool.Output{
		Name: base + ".json",
		MIME: "application/json",
		Data: payload,
	}, nil
}

func (p *csvToJSON) Cleanup(paths ...string) {}

func (p *csvToJSON) ValidateBatch(ctx context.Context, inputs []tool.Input) error {
	return tool.ValidateBatchSize(p.desc, len(inputs))
}

func (p *csvToJSON) newReader(in tool.Input) *csv.Reader {
	reader := csv.NewReader(bytes.NewReader(in.Data))
	if strings.EqualFold(filepath.Ext(in.Filename), ".tsv") {
		reader.Comma = '\t'
	}
	reader.FieldsPerRecord = -1
	return reader
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF)
}

package barchart

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tagomatech/ETL/internal/contracts"
)

// The endpoint answers with headerless CSV; futures rows lead with the symbol.
var (
	futuresColumns = []string{"symbol", "date", "open", "high", "low", "close", "volume", "openInterest"}
	plainColumns   = []string{"date", "open", "high", "low", "close", "volume"}
)

// parsePayload turns a queryeod response into raw rows
// Numbers stay as strings; the normalizer coerces them.
func parsePayload(body []byte, symbol string) ([]contracts.RawRow, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return []contracts.RawRow{}, nil
	}

	switch trimmed[0] {
	case '[', '{':
		return parseJSON(trimmed)
	}

	columns := plainColumns
	if strings.HasPrefix(string(trimmed), symbol) {
		columns = futuresColumns
	}
	return parseCSV(trimmed, columns)
}

func parseCSV(body []byte, columns []string) ([]contracts.RawRow, error) {
	r := csv.NewReader(bytes.NewReader(body))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	rows := make([]contracts.RawRow, 0, bytes.Count(body, []byte{'\n'})+1)
	for line := 1; ; line++ {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnrecognisedPayload, err)
		}
		if len(rec) != len(columns) {
			return nil, fmt.Errorf("%w: line %d has %d fields, want %d",
				ErrUnrecognisedPayload, line, len(rec), len(columns))
		}

		row := make(contracts.RawRow, len(columns))
		for i, col := range columns {
			row[col] = rec[i]
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// parseJSON accepts either a bare array of records or {"data": [...]}
func parseJSON(body []byte) ([]contracts.RawRow, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	if body[0] == '[' {
		var rows []contracts.RawRow
		if err := dec.Decode(&rows); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnrecognisedPayload, err)
		}
		return rows, nil
	}

	var wrapped struct {
		Data []contracts.RawRow `json:"data"`
	}
	if err := dec.Decode(&wrapped); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnrecognisedPayload, err)
	}
	if wrapped.Data == nil {
		return []contracts.RawRow{}, nil
	}
	return wrapped.Data, nil
}

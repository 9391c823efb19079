// Package ingest loads reconciliation records from JSON, CSV, and XLSX
// sources. Tabular sources go through a YAML column mapping; JSON sources
// carry records in the native shape.
package ingest

import (
	"encoding/csv"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/complykit/reconcore/internal/model"
)

// ErrEmptySource is raised when a tabular source has no header row.
var ErrEmptySource = eris.New("ingest: source has no header row")

// LoadJSON reads records from a JSON array file and stamps each with the
// given scope and kind.
func LoadJSON(path, scopeID string, kind model.RecordKind) ([]model.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read %s", path)
	}

	var records []model.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, eris.Wrapf(err, "ingest: parse %s", path)
	}

	for i := range records {
		records[i].ScopeID = scopeID
		records[i].Kind = kind
		if records[i].RecordID == "" {
			return nil, eris.Errorf("ingest: %s: record %d has no record_id", path, i)
		}
	}
	return records, nil
}

// LoadCSV reads records from a CSV file using the column mapping. The first
// row is the header.
func LoadCSV(path, scopeID string, kind model.RecordKind, m *Mapping) ([]model.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read csv %s", path)
	}
	if len(rows) == 0 {
		return nil, ErrEmptySource
	}
	return rowsToRecords(scopeID, kind, rows[0], rows[1:], m)
}

// rowsToRecords converts header-addressed rows into records.
func rowsToRecords(scopeID string, kind model.RecordKind, header []string, rows [][]string, m *Mapping) ([]model.Record, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	colIdx := map[string]int{}
	for i, name := range header {
		colIdx[name] = i
	}
	lookup := func(row []string, col string) (string, bool) {
		i, ok := colIdx[col]
		if !ok || i >= len(row) {
			return "", false
		}
		return row[i], true
	}
	requireCol := func(col string) error {
		if _, ok := colIdx[col]; !ok {
			return eris.Errorf("ingest: column %q not present in header", col)
		}
		return nil
	}

	if err := requireCol(m.RecordID); err != nil {
		return nil, err
	}
	for _, col := range m.Identity {
		if err := requireCol(col); err != nil {
			return nil, err
		}
	}

	records := make([]model.Record, 0, len(rows))
	for n, row := range rows {
		rec := model.Record{
			ScopeID:  scopeID,
			Kind:     kind,
			Identity: map[string]string{},
		}

		id, _ := lookup(row, m.RecordID)
		if id == "" {
			return nil, eris.Errorf("ingest: row %d: empty record id", n+1)
		}
		rec.RecordID = id

		for field, col := range m.Identity {
			v, _ := lookup(row, col)
			rec.Identity[field] = v
		}
		for _, bind := range []struct {
			col  string
			dest **decimal.Decimal
		}{
			{m.Quantity, &rec.Quantity},
			{m.UnitCost, &rec.UnitCost},
			{m.TotalCost, &rec.TotalCost},
		} {
			if bind.col == "" {
				continue
			}
			raw, ok := lookup(row, bind.col)
			if !ok || raw == "" {
				continue
			}
			d, err := decimal.NewFromString(raw)
			if err != nil {
				return nil, eris.Wrapf(err, "ingest: row %d: column %q", n+1, bind.col)
			}
			*bind.dest = &d
		}
		if len(m.Attributes) > 0 {
			rec.Attributes = map[string]string{}
			for attr, col := range m.Attributes {
				if v, ok := lookup(row, col); ok && v != "" {
					rec.Attributes[attr] = v
				}
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/complykit/reconcore/internal/model"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func testMapping() *Mapping {
	return &Mapping{
		RecordID:   "id",
		Identity:   map[string]string{"project": "Project"},
		Quantity:   "Qty",
		UnitCost:   "Rate",
		TotalCost:  "Total",
		Attributes: map[string]string{"date": "Date"},
	}
}

func TestLoadMapping(t *testing.T) {
	path := writeFile(t, "map.yaml", `
mapping:
  record_id: id
  identity:
    project: Project
  total_cost: Total
  attributes:
    date: Date
`)

	m, err := LoadMapping(path)
	require.NoError(t, err)
	assert.Equal(t, "id", m.RecordID)
	assert.Equal(t, "Project", m.Identity["project"])
	assert.Equal(t, "Total", m.TotalCost)
	assert.Equal(t, "Date", m.Attributes["date"])
}

func TestLoadMapping_Invalid(t *testing.T) {
	path := writeFile(t, "map.yaml", `
mapping:
  record_id: id
  identity:
    project: Project
`)

	_, err := LoadMapping(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "total_cost")
}

func TestLoadCSV(t *testing.T) {
	path := writeFile(t, "actuals.csv", `id,Project,Qty,Rate,Total,Date
a1,alpha,2,50.00,100.00,2026-01-15
a2,beta,,,30.00,
`)

	records, err := LoadCSV(path, "scope-1", model.RecordKindActual, testMapping())
	require.NoError(t, err)
	require.Len(t, records, 2)

	r := records[0]
	assert.Equal(t, "a1", r.RecordID)
	assert.Equal(t, "scope-1", r.ScopeID)
	assert.Equal(t, model.RecordKindActual, r.Kind)
	assert.Equal(t, "alpha", r.Identity["project"])
	require.NotNil(t, r.Quantity)
	assert.Equal(t, "2", r.Quantity.String())
	require.NotNil(t, r.TotalCost)
	assert.Equal(t, "100", r.TotalCost.String())
	assert.Equal(t, "2026-01-15", r.Attributes["date"])

	// Blank numeric cells stay nil; blank attributes are omitted.
	assert.Nil(t, records[1].Quantity)
	assert.Nil(t, records[1].UnitCost)
	assert.Empty(t, records[1].Attributes)
}

func TestLoadCSV_MissingColumn(t *testing.T) {
	path := writeFile(t, "bad.csv", `id,Total
a1,100.00
`)

	_, err := LoadCSV(path, "scope-1", model.RecordKindActual, testMapping())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"Project"`)
}

func TestLoadCSV_BadDecimal(t *testing.T) {
	path := writeFile(t, "bad.csv", `id,Project,Qty,Rate,Total,Date
a1,alpha,,,not-a-number,
`)

	_, err := LoadCSV(path, "scope-1", model.RecordKindActual, testMapping())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 1")
}

func TestLoadCSV_EmptyRecordID(t *testing.T) {
	path := writeFile(t, "bad.csv", `id,Project,Qty,Rate,Total,Date
,alpha,,,10.00,
`)

	_, err := LoadCSV(path, "scope-1", model.RecordKindActual, testMapping())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty record id")
}

func TestLoadJSON(t *testing.T) {
	path := writeFile(t, "estimates.json", `[
  {"record_id":"e1","identity":{"project":"alpha"},"total_cost":"100.00"},
  {"record_id":"e2","identity":{"project":"beta"},"quantity":"3","unit_cost":"10.00"}
]`)

	records, err := LoadJSON(path, "scope-1", model.RecordKindEstimate)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, model.RecordKindEstimate, records[0].Kind)
	assert.Equal(t, "scope-1", records[1].ScopeID)
	require.NotNil(t, records[0].TotalCost)
	assert.Equal(t, "100", records[0].TotalCost.String())
}

func TestLoadJSON_MissingRecordID(t *testing.T) {
	path := writeFile(t, "bad.json", `[{"identity":{"project":"alpha"}}]`)

	_, err := LoadJSON(path, "scope-1", model.RecordKindEstimate)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record_id")
}

func TestLoadXLSX(t *testing.T) {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Actuals")
	require.NoError(t, err)

	for _, row := range [][]string{
		{"id", "Project", "Qty", "Rate", "Total", "Date"},
		{"a1", "alpha", "", "", "108.00", "2026-02-01"},
	} {
		r := sheet.AddRow()
		for _, v := range row {
			r.AddCell().SetString(v)
		}
	}

	path := filepath.Join(t.TempDir(), "actuals.xlsx")
	require.NoError(t, f.Save(path))

	records, err := LoadXLSX(path, "scope-1", model.RecordKindActual, testMapping(), XLSXOptions{SheetName: "Actuals"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "a1", records[0].RecordID)
	require.NotNil(t, records[0].TotalCost)
	assert.Equal(t, "108", records[0].TotalCost.String())
}

func TestLoadXLSX_SheetNotFound(t *testing.T) {
	f := xlsx.NewFile()
	_, err := f.AddSheet("Data")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "x.xlsx")
	require.NoError(t, f.Save(path))

	_, err = LoadXLSX(path, "scope-1", model.RecordKindActual, testMapping(), XLSXOptions{SheetName: "Missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"Missing"`)
}

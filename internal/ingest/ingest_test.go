package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/prospect-enricher/internal/model"
	"github.com/sells-group/prospect-enricher/internal/store"
)

func createTestXLSX(t *testing.T, sheets map[string][][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	for name, rows := range sheets {
		sheet, err := f.AddSheet(name)
		require.NoError(t, err)
		for _, rowData := range rows {
			row := sheet.AddRow()
			for _, cellData := range rowData {
				cell := row.AddCell()
				cell.SetString(cellData)
			}
		}
	}
	path := filepath.Join(t.TempDir(), "test.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestReadFileXLSX(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Sheet1": {
			{"Title", "Agency", "NAICS Code"},
			{"Janitorial Services", "GSA", "561720"},
			{"Help Desk Support", "VA", "541511"},
		},
	})

	header, rows, err := ReadFile(path, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Title", "Agency", "NAICS Code"}, header)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"Janitorial Services", "GSA", "561720"}, rows[0])
}

func TestReadFileXLSXNamedSheet(t *testing.T) {
	path := createTestXLSX(t, map[string][][]string{
		"Cover":     {{"ignore"}},
		"Prospects": {{"Title"}, {"Real Row"}},
	})

	header, rows, err := ReadFile(path, Options{SheetName: "Prospects"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Title"}, header)
	require.Len(t, rows, 1)

	_, _, err = ReadFile(path, Options{SheetName: "Nope"})
	assert.Error(t, err)
}

func TestReadFileCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prospects.csv")
	csv := "Title,Set Aside,Estimated Value\nIT Support,Total Small Business,\"$1,200,000\"\n"
	require.NoError(t, os.WriteFile(path, []byte(csv), 0644))

	header, rows, err := ReadFile(path, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Title", "Set Aside", "Estimated Value"}, header)
	require.Len(t, rows, 1)
	assert.Equal(t, "$1,200,000", rows[0][2])
}

func TestReadFileUnsupportedExtension(t *testing.T) {
	_, _, err := ReadFile("prospects.json", Options{})
	assert.Error(t, err)
}

func TestMapRows(t *testing.T) {
	t.Parallel()

	header := []string{"Notice ID", "Title", "Synopsis", "Department", "NAICS", "Set-Aside", "Award Amount", "Posted Date"}
	rows := [][]string{
		{"n-1", "Grounds Maintenance", "Mowing and landscaping", "USDA", "561730", "SBA", "$250,000", "2026-01-15"},
		{"n-2", "", "no title, skipped", "", "", "", "", ""},
		{"n-3", "Security Guards", "", "DHS", "", "", "", ""},
	}

	prospects := MapRows(header, rows)
	require.Len(t, prospects, 2)

	p := prospects[0]
	assert.Equal(t, "n-1", p.ID)
	assert.Equal(t, "Grounds Maintenance", p.Title)
	assert.Equal(t, "Mowing and landscaping", p.Description)
	assert.Equal(t, "USDA", p.Agency)
	assert.Equal(t, "561730", p.NaicsCode)
	assert.Equal(t, model.NaicsSourceOriginal, p.NaicsSource)
	assert.Equal(t, "SBA", p.SetAside)
	assert.Equal(t, "$250,000", p.EstimatedValueText)
	// Unrecognized column lands in the provenance map.
	assert.Equal(t, "2026-01-15", p.ExtraString("posted_date"))

	assert.Equal(t, "n-3", prospects[1].ID)
	assert.Empty(t, prospects[1].NaicsCode)
}

func TestImport(t *testing.T) {
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "import.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	prospects := []*model.Prospect{
		{Title: "Grounds Maintenance", Agency: "USDA"},
		{Title: "Security Guards", Agency: "DHS"},
		{Title: "Help Desk Support", Agency: "VA"},
	}

	created, err := Import(context.Background(), st, prospects, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, created)

	n, err := st.CountProspects(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

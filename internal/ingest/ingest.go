// Package ingest loads prospect records from XLSX and CSV exports into
// the store. Column headers are matched loosely so feeds from different
// procurement systems map without per-source templates; unrecognized
// columns land in the provenance map.
package ingest

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/prospect-enricher/internal/model"
	"github.com/sells-group/prospect-enricher/internal/store"
)

// Options configures file reading.
type Options struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
	// Concurrency bounds parallel store writes during Import.
	Concurrency int
}

// headerAliases maps normalized column names to prospect fields.
var headerAliases = map[string]string{
	"id":              "id",
	"notice id":       "id",
	"solicitation id": "id",
	"title":           "title",
	"name":            "title",
	"description":     "description",
	"synopsis":        "description",
	"agency":          "agency",
	"department":      "agency",
	"office":          "agency",
	"contract type":   "contract_type",
	"type":            "contract_type",
	"naics":           "naics_code",
	"naics code":      "naics_code",
	"estimated value": "estimated_value_text",
	"value":           "estimated_value_text",
	"award amount":    "estimated_value_text",
	"set aside":       "set_aside",
	"set-aside":       "set_aside",
	"set aside code":  "set_aside",
}

// ReadFile reads an .xlsx or .csv file into a header row plus data rows.
func ReadFile(path string, opts Options) ([]string, [][]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return readXLSX(path, opts)
	case ".csv":
		return readCSV(path)
	default:
		return nil, nil, eris.Errorf("ingest: unsupported file type %q", filepath.Ext(path))
	}
}

func readXLSX(path string, opts Options) ([]string, [][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, nil, eris.Wrap(err, "ingest: open xlsx")
	}

	sheet, err := pickSheet(f, opts)
	if err != nil {
		return nil, nil, err
	}
	if len(sheet.Rows) == 0 {
		return nil, nil, eris.New("ingest: empty sheet")
	}

	header := rowToStrings(sheet.Rows[0])
	rows := make([][]string, 0, len(sheet.Rows)-1)
	for _, row := range sheet.Rows[1:] {
		rows = append(rows, rowToStrings(row))
	}
	return header, rows, nil
}

func readCSV(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, eris.Wrap(err, "ingest: open csv")
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, eris.Wrap(err, "ingest: read csv")
	}
	if len(records) == 0 {
		return nil, nil, eris.New("ingest: empty file")
	}
	return records[0], records[1:], nil
}

func pickSheet(f *xlsx.File, opts Options) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("ingest: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}
	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("ingest: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}

// MapRows converts raw rows into prospects using the header to locate
// fields. Rows without a title are skipped; a source-provided NAICS code
// is tagged as original.
func MapRows(header []string, rows [][]string) []*model.Prospect {
	fields := make([]string, len(header))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if mapped, ok := headerAliases[key]; ok {
			fields[i] = mapped
		} else if key != "" {
			fields[i] = "extra:" + strings.ReplaceAll(key, " ", "_")
		}
	}

	var prospects []*model.Prospect
	for _, row := range rows {
		p := &model.Prospect{}
		for i, cell := range row {
			if i >= len(fields) || fields[i] == "" {
				continue
			}
			val := strings.TrimSpace(cell)
			if val == "" {
				continue
			}
			switch fields[i] {
			case "id":
				p.ID = val
			case "title":
				p.Title = val
			case "description":
				p.Description = val
			case "agency":
				p.Agency = val
			case "contract_type":
				p.ContractType = val
			case "naics_code":
				p.NaicsCode = val
				p.NaicsSource = model.NaicsSourceOriginal
			case "estimated_value_text":
				p.EstimatedValueText = val
			case "set_aside":
				p.SetAside = val
			default:
				p.SetExtra(strings.TrimPrefix(fields[i], "extra:"), val)
			}
		}
		if p.Title == "" {
			continue
		}
		prospects = append(prospects, p)
	}
	return prospects
}

// Import writes prospects to the store with bounded concurrency and
// returns how many were created. Individual row failures are logged and
// skipped, not fatal.
func Import(ctx context.Context, st store.Store, prospects []*model.Prospect, concurrency int) (int, error) {
	if concurrency <= 0 {
		concurrency = 5
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	created := make(chan struct{}, len(prospects))
	for _, p := range prospects {
		g.Go(func() error {
			if err := st.CreateProspect(ctx, p); err != nil {
				zap.L().Warn("import row failed",
					zap.String("title", p.Title),
					zap.Error(err),
				)
				return nil
			}
			created <- struct{}{}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return len(created), err
	}
	return len(created), nil
}

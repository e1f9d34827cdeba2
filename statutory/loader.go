package statutory

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/warp/liquidador/settlement"
)

// TableFile is the on-disk YAML format:
//
//	version: co-1999-2015
//	description: Colombian CPI and SMLMV
//	rows:
//	  - year: 1999
//	    cpi_percent: "16.70"
//	    minimum_wage_monthly: "236460"
//	    five_times_minimum_wage: "1182300"   # optional, validated when present
type TableFile struct {
	Version     string    `yaml:"version" json:"version"`
	Description string    `yaml:"description" json:"description"`
	Rows        []RowFile `yaml:"rows" json:"rows"`
}

// RowFile holds values as strings so quoted and unquoted YAML numbers both
// parse to exact decimals.
type RowFile struct {
	Year                 int    `yaml:"year" json:"year"`
	CPIPercent           string `yaml:"cpi_percent" json:"cpi_percent"`
	MinimumWageMonthly   string `yaml:"minimum_wage_monthly" json:"minimum_wage_monthly"`
	FiveTimesMinimumWage string `yaml:"five_times_minimum_wage,omitempty" json:"five_times_minimum_wage,omitempty"`
}

// LoadYAML parses and validates a table.
func LoadYAML(r io.Reader) (*Table, error) {
	var f TableFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse statutory table: %w", err)
	}
	return f.Table()
}

// LoadFile reads a YAML table from disk.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read statutory table: %w", err)
	}
	return LoadYAML(bytes.NewReader(data))
}

// Table converts the file representation into a validated Table.
func (f TableFile) Table() (*Table, error) {
	if f.Version == "" {
		return nil, fmt.Errorf("statutory table: version is required")
	}
	rows := make([]settlement.StatutoryIndexRow, 0, len(f.Rows))
	for _, rf := range f.Rows {
		row, err := rf.Row()
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return NewTable(f.Version, f.Description, rows)
}

// Row parses one row. A missing five_times_minimum_wage is derived.
func (rf RowFile) Row() (settlement.StatutoryIndexRow, error) {
	cpi, err := decimal.NewFromString(rf.CPIPercent)
	if err != nil {
		return settlement.StatutoryIndexRow{}, fmt.Errorf("statutory row %d: cpi_percent: %w", rf.Year, err)
	}
	wage, err := decimal.NewFromString(rf.MinimumWageMonthly)
	if err != nil {
		return settlement.StatutoryIndexRow{}, fmt.Errorf("statutory row %d: minimum_wage_monthly: %w", rf.Year, err)
	}

	row := settlement.NewIndexRow(rf.Year, cpi, wage)
	if rf.FiveTimesMinimumWage != "" {
		five, err := decimal.NewFromString(rf.FiveTimesMinimumWage)
		if err != nil {
			return settlement.StatutoryIndexRow{}, fmt.Errorf("statutory row %d: five_times_minimum_wage: %w", rf.Year, err)
		}
		row.FiveTimesMinimumWage = five
	}
	return row, nil
}

// ToFile converts a table back to its file representation.
func ToFile(t *Table) TableFile {
	f := TableFile{Version: t.Version(), Description: t.Description()}
	for _, r := range t.Rows() {
		f.Rows = append(f.Rows, RowFile{
			Year:                 r.Year,
			CPIPercent:           r.CPIPercent.String(),
			MinimumWageMonthly:   r.MinimumWageMonthly.String(),
			FiveTimesMinimumWage: r.FiveTimesMinimumWage.String(),
		})
	}
	return f
}

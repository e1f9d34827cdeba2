package statutory_test

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/liquidador/settlement"
	"github.com/warp/liquidador/statutory"
)

func row(year int, cpi, wage string) settlement.StatutoryIndexRow {
	return settlement.NewIndexRow(year, decimal.RequireFromString(cpi), decimal.RequireFromString(wage))
}

// =============================================================================
// REFERENCE TABLE
// =============================================================================

func TestReference_Covers1999To2015(t *testing.T) {
	ref := statutory.Reference()

	assert.Equal(t, statutory.ReferenceVersion, ref.Version())
	assert.Equal(t, 1999, ref.FirstYear())
	assert.Equal(t, 2015, ref.LastYear())
	assert.Equal(t, 17, ref.Len())
	assert.True(t, ref.Covers(1999, 2015))
	assert.False(t, ref.Covers(1999, 2016))

	r1999, ok := ref.Row(1999)
	require.True(t, ok)
	assert.True(t, decimal.RequireFromString("16.70").Equal(r1999.CPIPercent))
	assert.True(t, decimal.RequireFromString("1182300").Equal(r1999.FiveTimesMinimumWage))

	for _, r := range ref.Rows() {
		assert.True(t, r.Consistent(), "row %d", r.Year)
	}
}

func TestReference_MissingYearFailsCompute(t *testing.T) {
	// GIVEN: The reference table (1999-2015) and an observation for 2020
	// THEN: Compute fails with MissingIndexDataError naming 2020

	_, err := settlement.Compute(
		[]settlement.PaymentObservation{{
			Year:                 2020,
			MesadaPaidByEmployer: decimal.NewFromInt(1000000),
			NumberOfInstallments: 14,
		}},
		statutory.Reference(), settlement.Escolastica{}, settlement.DefaultOptions(),
	)

	var missing *settlement.MissingIndexDataError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, 2020, missing.Year)
}

// =============================================================================
// TABLE VALIDATION
// =============================================================================

func TestNewTable_RejectsInconsistentFiveTimes(t *testing.T) {
	bad := row(2000, "9.23", "260100")
	bad.FiveTimesMinimumWage = decimal.NewFromInt(1300000)

	_, err := statutory.NewTable("v", "", []settlement.StatutoryIndexRow{bad})
	require.ErrorIs(t, err, settlement.ErrInconsistentIndexRow)

	var rowErr *settlement.IndexRowError
	require.ErrorAs(t, err, &rowErr)
	assert.Equal(t, 2000, rowErr.Year)
}

func TestNewTable_RejectsGapsAndDuplicates(t *testing.T) {
	_, err := statutory.NewTable("v", "", []settlement.StatutoryIndexRow{
		row(1999, "16.70", "236460"),
		row(2001, "8.75", "286000"),
	})
	assert.ErrorIs(t, err, settlement.ErrIndexGap)

	_, err = statutory.NewTable("v", "", []settlement.StatutoryIndexRow{
		row(1999, "16.70", "236460"),
		row(1999, "16.70", "236460"),
	})
	assert.ErrorIs(t, err, settlement.ErrIndexGap)

	_, err = statutory.NewTable("v", "", nil)
	assert.ErrorIs(t, err, statutory.ErrEmptyTable)
}

func TestNewTable_SortsRows(t *testing.T) {
	table, err := statutory.NewTable("v", "", []settlement.StatutoryIndexRow{
		row(2000, "9.23", "260100"),
		row(1999, "16.70", "236460"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1999, table.FirstYear())
	assert.Equal(t, 2000, table.LastYear())
}

// =============================================================================
// APPEND-ONLY EXTENSION
// =============================================================================

func TestExtend_ProducesNewVersion(t *testing.T) {
	ref := statutory.Reference()
	next, err := ref.Extend("co-1999-2016", row(2016, "6.77", "689455"))
	require.NoError(t, err)

	assert.Equal(t, "co-1999-2016", next.Version())
	assert.Equal(t, 2016, next.LastYear())
	assert.Equal(t, 2015, ref.LastYear(), "original table untouched")

	_, ok := ref.Row(2016)
	assert.False(t, ok)
}

func TestExtend_RejectsOverlapAndGaps(t *testing.T) {
	ref := statutory.Reference()

	_, err := ref.Extend("x", row(2015, "3.66", "644350"))
	assert.ErrorIs(t, err, settlement.ErrIndexGap)

	_, err = ref.Extend("x", row(2017, "5.75", "737717"))
	assert.ErrorIs(t, err, settlement.ErrIndexGap)
}

// =============================================================================
// REGISTRY
// =============================================================================

func TestRegistry_VersionsAreAppendOnly(t *testing.T) {
	reg := statutory.DefaultRegistry()
	next, err := statutory.Reference().Extend("co-1999-2016", row(2016, "6.77", "689455"))
	require.NoError(t, err)

	require.NoError(t, reg.Add(next))
	assert.ErrorIs(t, reg.Add(next), statutory.ErrVersionExists)

	assert.Equal(t, []string{statutory.ReferenceVersion, "co-1999-2016"}, reg.Versions())
	assert.Equal(t, "co-1999-2016", reg.Latest().Version())

	latest, err := reg.Get("")
	require.NoError(t, err)
	assert.Equal(t, "co-1999-2016", latest.Version())

	_, err = reg.Get("nope")
	assert.ErrorIs(t, err, statutory.ErrVersionNotFound)
}

// =============================================================================
// YAML LOADER
// =============================================================================

func TestLoadYAML_DerivesFiveTimesWhenOmitted(t *testing.T) {
	doc := `
version: test
rows:
  - year: 2000
    cpi_percent: 9.23
    minimum_wage_monthly: 260100
  - year: 2001
    cpi_percent: "8.75"
    minimum_wage_monthly: "286000"
    five_times_minimum_wage: "1430000"
`
	table, err := statutory.LoadYAML(strings.NewReader(doc))
	require.NoError(t, err)

	r, ok := table.Row(2000)
	require.True(t, ok)
	assert.True(t, decimal.NewFromInt(1300500).Equal(r.FiveTimesMinimumWage))
	assert.True(t, decimal.RequireFromString("9.23").Equal(r.CPIPercent))
}

func TestLoadYAML_Errors(t *testing.T) {
	_, err := statutory.LoadYAML(strings.NewReader("rows: []\n"))
	assert.Error(t, err, "version required")

	_, err = statutory.LoadYAML(strings.NewReader(`
version: test
rows:
  - {year: 2000, cpi_percent: "abc", minimum_wage_monthly: "1"}
`))
	assert.Error(t, err)

	_, err = statutory.LoadYAML(strings.NewReader(`
version: test
rows:
  - {year: 2000, cpi_percent: "1", minimum_wage_monthly: "100", five_times_minimum_wage: "400"}
`))
	assert.ErrorIs(t, err, settlement.ErrInconsistentIndexRow)

	_, err = statutory.LoadYAML(strings.NewReader("version: test\nunknown: 1\n"))
	assert.Error(t, err, "unknown fields rejected")
}

func TestToFile_RoundTripsThroughTable(t *testing.T) {
	f := statutory.ToFile(statutory.Reference())
	table, err := f.Table()
	require.NoError(t, err)
	assert.Equal(t, statutory.Reference().Len(), table.Len())
}

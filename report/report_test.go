package report_test

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/liquidador/report"
	"github.com/warp/liquidador/settlement"
	"github.com/warp/liquidador/statutory"
)

func settle(t *testing.T) settlement.Settlement {
	t.Helper()
	obs := []settlement.PaymentObservation{
		{Year: 1999, MesadaPaidByEmployer: decimal.NewFromInt(100000), NumberOfInstallments: 14},
		{Year: 2000, MesadaPaidByEmployer: decimal.NewFromInt(115000), NumberOfInstallments: 14},
		{Year: 2001, MesadaPaidByEmployer: decimal.NewFromInt(120000), NumberOfInstallments: 14},
	}
	s, err := settlement.NewEngine(settlement.Escolastica{}, statutory.Reference(), settlement.DefaultOptions()).Settle(obs)
	require.NoError(t, err)
	return *s
}

func TestMoney_RoundsAtRenderTime(t *testing.T) {
	assert.Equal(t, "152088", report.Money(decimal.RequireFromString("152087.5")))
	assert.Equal(t, "152087", report.Money(decimal.RequireFromString("152087.49")))
	assert.Equal(t, "230000", report.Money(decimal.NewFromInt(230000)))
	assert.Equal(t, "15.00", report.Percent(decimal.NewFromInt(15)))
}

func TestWriteCSV(t *testing.T) {
	s := settle(t)

	var buf bytes.Buffer
	require.NoError(t, report.WriteCSV(&buf, s))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1+3+1, "header, three years, total")

	assert.Equal(t, report.Columns, records[0])
	assert.Equal(t, "1999", records[1][0])
	assert.Equal(t, "115000", records[1][7], "adjusted mesada")
	assert.Equal(t, "floor_15", records[1][6])
	assert.Equal(t, "152088", records[3][7], "152087.5 half-up")

	total := records[4]
	assert.Equal(t, "TOTAL", total[0])
	assert.Equal(t, report.Money(s.TotalOwed), total[11])
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, report.WriteText(&buf, settle(t)))

	out := buf.String()
	assert.Contains(t, out, "Method: escolastica")
	assert.Contains(t, out, "Years:  1999-2001")
	assert.Contains(t, out, "Adjusted mesada")
	assert.Contains(t, out, "TOTAL")
	assert.Equal(t, 1+2+1+3+1, strings.Count(out, "\n"))
}

func TestWriteText_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, report.WriteText(&buf, settlement.Summarize(settlement.MethodEscolastica, nil)))
	assert.Contains(t, buf.String(), "Years:  none")
}

func TestWritePDF(t *testing.T) {
	var buf bytes.Buffer
	err := report.WritePDF(&buf, settle(t), report.Header{
		CaseID:        "case-1",
		PensionerName: "María Restrepo",
		IndexVersion:  statutory.ReferenceVersion,
		GeneratedAt:   time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
}

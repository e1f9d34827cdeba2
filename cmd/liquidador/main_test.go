package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const caseYAML = `
id: cli-1
pensioner_name: Rosa Elena Cárdenas
pensioner_document: CC 41000000
method: escolastica
observations:
  - {year: 1999, mesada_paid_by_employer: "200000", number_of_installments: 14}
  - {year: 2000, mesada_paid_by_employer: "200000", number_of_installments: 14}
`

func setupCLI(t *testing.T) (*cobra.Command, *bytes.Buffer) {
	t.Helper()
	logger = zap.NewNop()
	methodName, format, output, indexFile = "", "text", "", ""
	t.Cleanup(func() {
		methodName, format, output, indexFile = "", "text", "", ""
	})

	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	return cmd, &out
}

func writeCase(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestCompute_Text(t *testing.T) {
	cmd, out := setupCLI(t)
	path := writeCase(t, "case.yaml", caseYAML)

	require.NoError(t, runCompute(cmd, []string{path}))

	text := out.String()
	assert.Contains(t, text, "Rosa Elena Cárdenas")
	assert.Contains(t, text, "Method: escolastica")
	assert.Contains(t, text, "Years:  1999-2000")
	assert.Contains(t, text, "230000")
}

func TestCompute_JSONCaseCSVReport(t *testing.T) {
	cmd, out := setupCLI(t)
	path := writeCase(t, "case.json", `{"pensioner_name": "x", "method": "escolastica",
	  "observations": [{"year": 1999, "mesada_paid_by_employer": 200000, "number_of_installments": 14}]}`)
	format = "csv"

	require.NoError(t, runCompute(cmd, []string{path}))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "1999,"))
}

func TestCompute_MethodOverride(t *testing.T) {
	cmd, _ := setupCLI(t)
	path := writeCase(t, "case.yaml", caseYAML)
	methodName = "precedente_4555"

	// Social security is absent from the file
	err := runCompute(cmd, []string{path})
	assert.ErrorContains(t, err, "precedente_4555")

	methodName = "linear"
	assert.Error(t, runCompute(cmd, []string{path}))
}

func TestCompute_PDFToFile(t *testing.T) {
	cmd, out := setupCLI(t)
	path := writeCase(t, "case.yaml", caseYAML)
	format = "pdf"

	assert.Error(t, runCompute(cmd, []string{path}), "pdf needs an output file")

	output = filepath.Join(t.TempDir(), "liquidacion.pdf")
	require.NoError(t, runCompute(cmd, []string{path}))
	assert.Empty(t, out.String())

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF-")))
}

func TestCompute_Errors(t *testing.T) {
	cmd, _ := setupCLI(t)

	assert.Error(t, runCompute(cmd, []string{filepath.Join(t.TempDir(), "missing.yaml")}))

	path := writeCase(t, "late.yaml", `
pensioner_name: x
method: escolastica
observations:
  - {year: 2016, mesada_paid_by_employer: "1", number_of_installments: 14}
`)
	assert.ErrorContains(t, runCompute(cmd, []string{path}), "2016")

	format = "xml"
	assert.Error(t, runCompute(cmd, []string{writeCase(t, "ok.yaml", caseYAML)}))
}

func TestCompute_IndexFileExtendsCoverage(t *testing.T) {
	cmd, out := setupCLI(t)
	indexFile = writeCase(t, "index.yaml", `
version: co-2016
rows:
  - {year: 2016, cpi_percent: "6.77", minimum_wage_monthly: "689455"}
`)
	path := writeCase(t, "late.yaml", `
pensioner_name: x
method: escolastica
observations:
  - {year: 2016, mesada_paid_by_employer: "1000000", number_of_installments: 14}
`)

	require.NoError(t, runCompute(cmd, []string{path}))
	assert.Contains(t, out.String(), "1150000")
}

func TestMethods(t *testing.T) {
	cmd, out := setupCLI(t)

	require.NoError(t, runMethods(cmd, nil))
	for _, name := range []string{"escolastica", "precedente_4555", "unidad_prestacional"} {
		assert.Contains(t, out.String(), name)
	}
}

func TestIndex(t *testing.T) {
	cmd, out := setupCLI(t)

	require.NoError(t, runIndex(cmd, nil))
	text := out.String()
	assert.Contains(t, text, "co-1999-2015 (1999-2015)")
	assert.Contains(t, text, "1182300")
	assert.Equal(t, 1+1+17, strings.Count(text, "\n"))
}

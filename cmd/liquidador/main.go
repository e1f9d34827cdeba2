// Command liquidador computes pension readjustment settlements from case
// files without running the server.
//
//	liquidador compute case.yaml --format pdf -o liquidacion.pdf
//	liquidador methods
//	liquidador index --index-file index-2016.yaml
package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/liquidador/factory"
	"github.com/warp/liquidador/logging"
	"github.com/warp/liquidador/report"
	"github.com/warp/liquidador/settlement"
	"github.com/warp/liquidador/statutory"
)

var (
	verbose   bool
	indexFile string

	methodName string
	format     string
	output     string

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "liquidador",
	Short: "Colombian pension readjustment settlements",
	Long: `liquidador recomputes what an employer should have paid a pensioner each
year under a legal readjustment method and totals the amount owed.

Money is exact decimal arithmetic; reports round to whole pesos at render
time only.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := "warn"
		if verbose {
			level = "debug"
		}
		var err error
		logger, err = logging.New(level, "console")
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var computeCmd = &cobra.Command{
	Use:   "compute [case-file]",
	Short: "Compute the settlement table for a case file",
	Long: `Reads a case (YAML, or JSON when the file ends in .json), computes its
settlement against the statutory table and writes a report.

Formats:
  - text: aligned table with totals (default)
  - csv:  one row per year plus a TOTAL row
  - json: the full settlement, money as decimal strings
  - pdf:  printable landscape report (requires -o)`,
	Args: cobra.ExactArgs(1),
	RunE: runCompute,
}

var methodsCmd = &cobra.Command{
	Use:   "methods",
	Short: "List the legal readjustment methods",
	RunE:  runMethods,
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Print the statutory table in use",
	RunE:  runIndex,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&indexFile, "index-file", "", "Statutory table YAML registered over the embedded reference")

	computeCmd.Flags().StringVarP(&methodName, "method", "m", "", "Override the case's legal method")
	computeCmd.Flags().StringVarP(&format, "format", "f", "text", "Report format: text, csv, json or pdf")
	computeCmd.Flags().StringVarP(&output, "output", "o", "", "Write the report to a file instead of stdout")

	rootCmd.AddCommand(computeCmd)
	rootCmd.AddCommand(methodsCmd)
	rootCmd.AddCommand(indexCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// =============================================================================
// COMMANDS
// =============================================================================

func runCompute(cmd *cobra.Command, args []string) error {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read case: %w", err)
	}

	cases := factory.NewCaseFactory()
	var c *settlement.Case
	if strings.EqualFold(filepath.Ext(path), ".json") {
		c, err = cases.ParseCase(data)
	} else {
		c, err = cases.ParseCaseYAML(data)
	}
	if err != nil {
		return err
	}
	if methodName != "" {
		m, err := settlement.LookupMethod(methodName)
		if err != nil {
			return err
		}
		c.Method = m.Name()
	}

	registry, err := loadRegistry()
	if err != nil {
		return err
	}
	table, err := registry.Get(c.IndexVersion)
	if err != nil {
		return fmt.Errorf("index version %q: %w", c.IndexVersion, err)
	}

	s, err := c.Settle(table)
	if err != nil {
		return err
	}
	logger.Debug("settlement computed",
		zap.String("case_id", string(c.ID)),
		zap.String("method", string(s.Method)),
		zap.String("index_version", table.Version()),
		zap.Int("years", len(s.Rows)),
	)

	var buf bytes.Buffer
	switch format {
	case "text":
		fmt.Fprintf(&buf, "Pensioner: %s %s\n", c.PensionerName, c.PensionerDocument)
		fmt.Fprintf(&buf, "Index:  %s\n", table.Version())
		err = report.WriteText(&buf, *s)
	case "csv":
		err = report.WriteCSV(&buf, *s)
	case "json":
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		err = enc.Encode(s)
	case "pdf":
		if output == "" {
			return fmt.Errorf("pdf format requires --output")
		}
		err = report.WritePDF(&buf, *s, report.Header{
			CaseID:            string(c.ID),
			PensionerName:     c.PensionerName,
			PensionerDocument: c.PensionerDocument,
			IndexVersion:      table.Version(),
		})
	default:
		return fmt.Errorf("unknown format %q", format)
	}
	if err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	return writeOutput(cmd.OutOrStdout(), buf.Bytes())
}

func runMethods(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "METHOD\tSOCIAL SECURITY\tDESCRIPTION")
	for _, m := range settlement.Methods() {
		ss := "no"
		if m.RequiresSocialSecurity() {
			ss = "required"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", m.Name(), ss, m.Description())
	}
	return w.Flush()
}

func runIndex(cmd *cobra.Command, args []string) error {
	registry, err := loadRegistry()
	if err != nil {
		return err
	}
	table := registry.Latest()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Version: %s (%d-%d)\n", table.Version(), table.FirstYear(), table.LastYear())
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "YEAR\tCPI %\tSMLMV\t5x SMLMV\t")
	for _, r := range table.Rows() {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t\n", r.Year, report.Percent(r.CPIPercent),
			report.Money(r.MinimumWageMonthly), report.Money(r.FiveTimesMinimumWage))
	}
	return w.Flush()
}

// =============================================================================
// HELPERS
// =============================================================================

// loadRegistry returns the embedded reference table plus --index-file.
func loadRegistry() (*statutory.Registry, error) {
	registry := statutory.DefaultRegistry()
	if indexFile == "" {
		return registry, nil
	}
	table, err := statutory.LoadFile(indexFile)
	if err != nil {
		return nil, err
	}
	if err := registry.Add(table); err != nil {
		return nil, err
	}
	logger.Debug("statutory table loaded",
		zap.String("path", indexFile),
		zap.String("version", table.Version()),
	)
	return registry, nil
}

func writeOutput(stdout io.Writer, data []byte) error {
	if output == "" {
		_, err := stdout.Write(data)
		return err
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	logger.Info("report written", zap.String("path", output))
	return nil
}

package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/sheetbase/internal/core"
)

var importCmd = &cobra.Command{
	Use:   "import <file.xlsx>",
	Short: "Import a workbook, replacing every table it contains",
	Long: `Import reads each data sheet of the workbook (with its optional
properties sheet) and replaces the table of the same name. Sheets fail
independently; the command exits non-zero if any sheet failed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		res, err := s.service.ImportWorkbook(cmd.Context(), f, actingUser)
		if err != nil {
			return fmt.Errorf("import %s: %s", args[0], core.FormatUserError(err))
		}
		out := cmd.OutOrStdout()
		if err := render(out, outputFormat, res, func(w io.Writer) { printImportResult(w, res) }); err != nil {
			return err
		}
		for _, sh := range res.Sheets {
			if sh.Status != core.SheetSuccess {
				return fmt.Errorf("%s: %s", sh.TableName, sh.Message)
			}
		}
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <file.xlsx>",
	Short: "Export every table to a workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		f, err := os.Create(args[0])
		if err != nil {
			return err
		}
		if err := s.service.ExportWorkbook(cmd.Context(), f, actingUser); err != nil {
			f.Close()
			os.Remove(args[0])
			return fmt.Errorf("export: %s", core.FormatUserError(err))
		}
		if err := f.Close(); err != nil {
			return err
		}

		tables, err := s.service.ListTables(cmd.Context())
		if err != nil {
			return err
		}
		summary := struct {
			File   string `json:"file" yaml:"file"`
			Tables int    `json:"tables" yaml:"tables"`
		}{args[0], len(tables)}
		return render(cmd.OutOrStdout(), outputFormat, summary, func(w io.Writer) {
			okColor.Fprint(w, "✓ ")
			fmt.Fprintf(w, "exported %d tables to %s\n", summary.Tables, summary.File)
		})
	},
}

var csvOut string

var exportCSVCmd = &cobra.Command{
	Use:   "export-csv <table>",
	Short: "Export one table as CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		table, err := s.service.GetTableByName(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("table %q: %s", args[0], core.FormatUserError(err))
		}

		if csvOut == "" || csvOut == "-" {
			return s.service.ExportTableCSV(cmd.Context(), table.ID, cmd.OutOrStdout())
		}
		f, err := os.Create(csvOut)
		if err != nil {
			return err
		}
		if err := s.service.ExportTableCSV(cmd.Context(), table.ID, f); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	},
}

var importCSVCmd = &cobra.Command{
	Use:   "import-csv <table> <file.csv>",
	Short: "Append CSV rows to an existing table",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[1])
		if err != nil {
			return err
		}
		defer f.Close()

		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		table, err := s.service.GetTableByName(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("table %q: %s", args[0], core.FormatUserError(err))
		}
		res, err := s.service.ImportTableCSV(cmd.Context(), table.ID, f, actingUser)
		if err != nil {
			return fmt.Errorf("import %s: %s", args[1], core.FormatUserError(err))
		}
		if err := render(cmd.OutOrStdout(), outputFormat, res, func(w io.Writer) { printBatchResult(w, table.Name, res) }); err != nil {
			return err
		}
		if res.FailCount > 0 {
			return fmt.Errorf("%d rows failed", res.FailCount)
		}
		return nil
	},
}

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List tables",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		tables, err := s.service.ListTables(cmd.Context())
		if err != nil {
			return err
		}
		if tables == nil {
			tables = []core.TableSchema{}
		}
		return render(cmd.OutOrStdout(), outputFormat, tables, func(w io.Writer) { printTables(w, tables) })
	},
}

var checkCmd = &cobra.Command{
	Use:   "check <table> <column> [prefix]",
	Short: "Check whether a column can become auto-increment",
	Long: `Check verifies that every value of the column is a prefix followed
by digits, that values are unique and that one prefix is shared. Without a
prefix argument the prefix is detected from the data. Nothing is changed.`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		var prefix string
		if len(args) == 3 {
			prefix = args[2]
		}

		s, err := openSession(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		table, err := s.service.GetTableByName(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("table %q: %s", args[0], core.FormatUserError(err))
		}
		res, err := s.service.CheckAutoIncrement(cmd.Context(), table.ID, args[1], prefix)
		if err != nil {
			return fmt.Errorf("%s.%s: %v", args[0], args[1], err)
		}
		return render(cmd.OutOrStdout(), outputFormat, res, func(w io.Writer) { printCheck(w, table.Name, args[1], res) })
	},
}

func init() {
	exportCSVCmd.Flags().StringVarP(&csvOut, "file", "f", "", "write to this file instead of stdout")

	rootCmd.AddCommand(importCmd, exportCmd, exportCSVCmd, importCSVCmd, tablesCmd, checkCmd)
}

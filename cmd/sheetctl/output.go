package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/sheetbase/internal/core"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	failColor = color.New(color.FgRed, color.Bold)
	keyColor  = color.New(color.FgCyan)
	dimColor  = color.New(color.Faint)
)

// render writes v in the selected format; text uses the given printer.
func render(w io.Writer, format string, v any, text func(io.Writer)) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		text(w)
		return nil
	}
}

func printImportResult(w io.Writer, res core.ImportResult) {
	keyColor.Fprintf(w, "import %s", res.ImportID)
	dimColor.Fprintf(w, " (%s)\n", res.Duration.Round(time.Millisecond))
	for _, sh := range res.Sheets {
		printSheet(w, sh.TableName, sh.Status == core.SheetSuccess, sh.Message, sh.SuccessCount, sh.FailCount, sh.Errors)
	}
}

func printBatchResult(w io.Writer, table string, res core.BatchResult) {
	printSheet(w, table, res.FailCount == 0, "", res.SuccessCount, res.FailCount, res.Errors)
}

func printSheet(w io.Writer, name string, ok bool, msg string, inserted, failed int, errs []string) {
	if ok {
		okColor.Fprint(w, "  ✓ ")
	} else {
		failColor.Fprint(w, "  ✗ ")
	}
	fmt.Fprintf(w, "%-30s inserted %d, failed %d", name, inserted, failed)
	if msg != "" {
		dimColor.Fprintf(w, "  %s", msg)
	}
	fmt.Fprintln(w)
	for _, e := range errs {
		dimColor.Fprintf(w, "      %s\n", e)
	}
}

func printTables(w io.Writer, tables []core.TableSchema) {
	if len(tables) == 0 {
		dimColor.Fprintln(w, "no tables")
		return
	}
	for _, t := range tables {
		keyColor.Fprintf(w, "%4d  ", t.ID)
		fmt.Fprintf(w, "%-30s %d columns", t.Name, len(t.Columns))
		for _, c := range t.AutoIncrementColumns() {
			dimColor.Fprintf(w, "  %s=%s<n>", c.Name, c.Prefix)
		}
		fmt.Fprintln(w)
	}
}

func printCheck(w io.Writer, table, column string, res core.ConsistencyResult) {
	okColor.Fprint(w, "✓ ")
	fmt.Fprintf(w, "%s.%s can become auto-increment: prefix %q, next value %s%d\n",
		table, column, res.Prefix, res.Prefix, res.MaxValue+1)
}

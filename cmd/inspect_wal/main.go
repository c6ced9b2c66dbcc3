// Dump the log records of one table space.
// Usage: go run ./cmd/inspect_wal --base-dir pasture-data --tablespace default [-v] [--from LSN]
// or point it at a log directory directly: go run ./cmd/inspect_wal pasture-data/txlog/default
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"PastureDB/config"
	"PastureDB/storage_engine/wal_manager"
	"PastureDB/types"

	"github.com/davecgh/go-spew/spew"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

type options struct {
	baseDir    string
	tableSpace string
	from       uint64
	verbose    bool
}

func main() {
	var opts options
	cmd := &cobra.Command{
		Use:          "inspect_wal [log directory]",
		Short:        "Print the write-ahead log of a table space",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := filepath.Join(opts.baseDir, "txlog", opts.tableSpace)
			if len(args) == 1 {
				dir = args[0]
			}
			return inspect(cmd.OutOrStdout(), dir, opts)
		},
	}
	cmd.Flags().StringVar(&opts.baseDir, "base-dir", config.DefaultBaseDir, "node data directory")
	cmd.Flags().StringVar(&opts.tableSpace, "tablespace", types.DefaultTableSpace, "table space name")
	cmd.Flags().Uint64Var(&opts.from, "from", 0, "skip records below this LSN")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "dump every decoded entry")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func inspect(out io.Writer, dir string, opts options) error {
	segments, err := wal_manager.SegmentFiles(dir)
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return fmt.Errorf("no log segments in %s", dir)
	}

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.SetTitle("%s", dir)
	t.AppendHeader(table.Row{"segment", "lsn", "op", "table", "index", "key", "value", "payload", "time"})

	var records, bad int
	for _, segment := range segments {
		name := filepath.Base(segment)
		for rec, err := range wal_manager.ReadSegmentFile(segment) {
			if err != nil {
				t.AppendRow(table.Row{name, "", "unreadable", err.Error()})
				bad++
				break
			}
			if rec.LSN < opts.from {
				continue
			}
			records++
			entry, err := types.DecodeLogEntry(rec.LSN, rec.Data)
			if err != nil {
				t.AppendRow(table.Row{name, rec.LSN, "undecodable", err.Error()})
				bad++
				continue
			}
			t.AppendRow(table.Row{
				name, entry.LSN, entry.Type, entry.Table, entry.Index,
				len(entry.Key), len(entry.Value), len(entry.Payload),
				time.UnixMilli(entry.Timestamp).UTC().Format(time.RFC3339),
			})
			if opts.verbose {
				spew.Fdump(out, entry)
			}
		}
	}
	t.AppendFooter(table.Row{fmt.Sprintf("%d segments", len(segments)), fmt.Sprintf("%d records", records), fmt.Sprintf("%d bad", bad)})
	t.Render()
	return nil
}

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/spf13/cobra"

	"github.com/hugr-lab/warehouse-go/filter"
)

func newScanCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Run a shared scan against DuckDB",
		Long:  "Pushes every --filter as one consumer, runs the scan and prints the rows as tab separated values.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := f.options(cmd)
			if err != nil {
				return err
			}
			if opts.Dialect != filter.DialectDuckDB {
				return fmt.Errorf("scan runs on DuckDB: use --dialect duckdb")
			}

			s, err := f.open(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			batches, err := s.reader.ReadAll(cmd.Context())
			if err != nil {
				return fmt.Errorf("scan: %w", err)
			}
			defer func() {
				for _, b := range batches {
					b.Release()
				}
			}()

			return printRows(cmd.OutOrStdout(), s.reader.ReadSchema(), batches)
		},
	}
}

func printRows(w io.Writer, schema *arrow.Schema, batches []arrow.RecordBatch) error {
	names := make([]string, schema.NumFields())
	for i, fld := range schema.Fields() {
		names[i] = fld.Name
	}
	if _, err := fmt.Fprintln(w, strings.Join(names, "\t")); err != nil {
		return err
	}

	row := make([]string, len(names))
	for _, b := range batches {
		for r := 0; r < int(b.NumRows()); r++ {
			for c := range row {
				row[c] = b.Column(c).ValueStr(r)
			}
			if _, err := fmt.Fprintln(w, strings.Join(row, "\t")); err != nil {
				return err
			}
		}
	}
	return nil
}

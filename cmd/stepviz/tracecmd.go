package main

import (
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/stepviz/internal/trace"
)

func newTraceCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect recorded runs",
		Long: `trace reads the runs recorded by "stepviz run --trace DIR --sqlite".
Runs are named by id; any unambiguous prefix works.`,
	}
	cmd.PersistentFlags().String("dir", "", "trace directory (default trace.dir)")

	var op string
	var summary bool
	show := &cobra.Command{
		Use:   "show RUN",
		Short: "Print the records of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.Run(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			records, err := store.Records(cmd.Context(), run.ID, op)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if summary {
				counts := trace.Summary(records)
				for _, k := range slices.Sorted(maps.Keys(counts)) {
					fmt.Fprintf(out, "%-12s %d\n", k, counts[k])
				}
				return nil
			}
			for _, rec := range records {
				fmt.Fprintln(out, rec)
			}
			return nil
		},
	}
	show.Flags().StringVar(&op, "op", "", "only records of this op")
	show.Flags().BoolVar(&summary, "summary", false, "count records per op")

	var file string
	query := &cobra.Command{
		Use:   "query [RUN] PATH",
		Short: "Evaluate a gjson path over the records of a run",
		Long: `query applies PATH to the records of RUN as one JSON array, for example

  stepviz trace query 3f2a '#(op=="set")#.value'

With --file the records are read from a JSON-lines trace file instead.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var records []string
			switch {
			case file != "" && len(args) == 1:
				var err error
				if records, err = trace.ReadFile(file); err != nil {
					return err
				}
			case file == "" && len(args) == 2:
				store, err := a.openStore()
				if err != nil {
					return err
				}
				defer store.Close()
				run, err := store.Run(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if records, err = store.Records(cmd.Context(), run.ID, ""); err != nil {
					return err
				}
			default:
				return errors.New("query needs RUN and PATH, or --file and PATH")
			}
			res, err := trace.Query(records, args[len(args)-1])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), res.Raw)
			return err
		},
	}
	query.Flags().StringVarP(&file, "file", "f", "", "JSON-lines trace file")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List recorded runs, newest first",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				store, err := a.openStore()
				if err != nil {
					return err
				}
				defer store.Close()

				runs, err := store.Runs(cmd.Context())
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "RUN\tSTATUS\tSTARTED\tOPS\tSOURCE")
				for _, r := range runs {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
						shortID(r.ID), r.Status, r.Started.Format(time.DateTime), r.Ops, firstLine(r.Source))
				}
				return tw.Flush()
			},
		},
		show,
		query,
		&cobra.Command{
			Use:   "rm RUN",
			Short: "Delete a recorded run",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := a.openStore()
				if err != nil {
					return err
				}
				defer store.Close()

				run, err := store.Run(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return store.DeleteRun(cmd.Context(), run.ID)
			},
		},
	)
	return cmd
}

// openStore opens the store of the configured trace directory.
func (a *app) openStore() (*trace.Store, error) {
	if a.cfg.Trace.Dir == "" {
		return nil, errors.New("no trace directory: set trace.dir or pass --dir")
	}
	return trace.OpenStore(filepath.Join(a.cfg.Trace.Dir, trace.DBName))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func firstLine(src string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(src), "\n")
	if len(line) > 40 {
		line = line[:37] + "..."
	}
	return line
}

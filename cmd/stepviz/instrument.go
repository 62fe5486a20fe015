package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/stepviz/internal/instrument"
	"github.com/dshills/stepviz/internal/logging"
)

func newInstrumentCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "instrument FILE",
		Short: "Print the instrumented form of a snippet",
		Long: `instrument rewrites FILE the way it is run and prints the result.
With --json the declarations, scopes and parameter bindings found are
printed too. Use - to read standard input.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := readSource(cmd, args[0])
			if err != nil {
				return err
			}
			in := instrument.New(instrument.WithLogger(logging.Component(a.logger, "instrument")))
			res, err := in.SetCode(src)

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if encErr := enc.Encode(res); encErr != nil {
					return encErr
				}
				return err
			}
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(out, res.Code)
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	return cmd
}

// readSource reads path, or standard input for "-".
func readSource(cmd *cobra.Command, path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

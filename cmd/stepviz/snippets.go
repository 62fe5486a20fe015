package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dshills/stepviz/internal/snippet"
)

func newSnippetsCmd(a *app) *cobra.Command {
	var lang, level string
	cmd := &cobra.Command{
		Use:   "snippets",
		Short: "List the snippet library",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			lib, err := a.library()
			if err != nil {
				return err
			}
			list := lib.ForLang(lang)
			if level != "" {
				list = lib.AtLevel(lang, level)
			}
			if len(list) == 0 {
				return fmt.Errorf("no snippets for language %q", lang)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tLEVEL\tDESCRIPTION")
			for _, s := range list {
				fmt.Fprintf(tw, "%d\t%s\t%s\n", s.ID, s.Level, s.Desc)
			}
			return tw.Flush()
		},
	}
	cmd.PersistentFlags().String("snippets-file", "", "YAML snippet library instead of the built-in one")
	cmd.Flags().StringVar(&lang, "lang", snippet.DefaultLang, "snippet language")
	cmd.Flags().StringVar(&level, "level", "", "only snippets of this level")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show ID",
			Short: "Print the code of a snippet",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("snippet id %q: %w", args[0], err)
				}
				lib, err := a.library()
				if err != nil {
					return err
				}
				s, err := lib.Get(id)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "// %s (%s)\n%s\n", s.Desc, s.Level, s.Code)
				return err
			},
		},
		&cobra.Command{
			Use:   "export",
			Short: "Print the library as YAML",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				lib, err := a.library()
				if err != nil {
					return err
				}
				return lib.Encode(cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "import FILE...",
			Short: "Build a YAML library from snippet source files",
			Long: `import reads JavaScript files whose leading //DESC: and //LEVEL: lines
describe them and prints a library. A name such as loop.ro.js puts the
snippet in language "ro".`,
			Args: cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				lib := snippet.NewLibrary()
				for _, path := range args {
					src, err := readSource(cmd, path)
					if err != nil {
						return err
					}
					lib.Add(snippet.FromSource(path, src))
				}
				return lib.Encode(cmd.OutOrStdout())
			},
		},
	)
	return cmd
}

// library returns the configured snippet library.
func (a *app) library() (*snippet.Library, error) {
	if a.cfg.Snippets.Path == "" {
		return snippet.Builtin(), nil
	}
	return snippet.LoadFile(a.cfg.Snippets.Path)
}

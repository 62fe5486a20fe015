package main

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dshills/stepviz/internal/config"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}

	var format string
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := encodeConfig(a.cfg, format)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	show.Flags().StringVar(&format, "format", "toml", "output format: toml or yaml")

	path := &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p := a.cfg.Source
			if p == "" {
				p = config.DefaultPath() + " (not present)"
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), p)
			return err
		},
	}

	cmd.AddCommand(show, path)
	return cmd
}

// encodeConfig renders cfg with the same keys the loaders read.
func encodeConfig(cfg *config.Config, format string) ([]byte, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	switch format {
	case "yaml":
		return data, nil
	case "toml":
		var tree map[string]any
		if err := yaml.Unmarshal(data, &tree); err != nil {
			return nil, err
		}
		return toml.Marshal(tree)
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

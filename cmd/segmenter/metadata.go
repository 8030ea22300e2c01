package main

import (
	"github.com/spf13/cobra"

	"github.com/maauso/acs-segmenter/internal/annotation"
)

func newMetadataCommand(ctx *commandContext) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "metadata",
		Short: "Print the application metadata",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			unit, err := annotation.ParseTimeUnit(cfg.TimeUnit)
			if err != nil {
				return err
			}
			md := annotation.NewAppMetadata(cfg.AppIRI, unit)

			f, err := parseFormat(format)
			if err != nil {
				return err
			}
			if f == formatYAML {
				return writeYAML(cmd.OutOrStdout(), md)
			}
			return writeJSON(cmd.OutOrStdout(), md, true)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", formatJSON, "Output format: json or yaml")
	return cmd
}

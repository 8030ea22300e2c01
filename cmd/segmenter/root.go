package main

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/maauso/acs-segmenter/internal/bootstrap"
	"github.com/maauso/acs-segmenter/internal/config"
)

// commandContext loads configuration once per invocation and builds the
// dependencies commands share.
type commandContext struct {
	cfg *config.Config
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	return cfg, nil
}

// dependencies builds the service graph with a logger writing to w.
func (c *commandContext) dependencies(w io.Writer) (*bootstrap.Dependencies, *slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	logger := cfg.NewLoggerTo(w)
	deps, err := bootstrap.NewDependencies(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return deps, logger, nil
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "segmenter",
		Short:         "Speech/non-speech segmentation of audio documents",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newOnceCommand(ctx))
	rootCmd.AddCommand(newMetadataCommand(ctx))

	return rootCmd
}

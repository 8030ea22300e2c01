package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"

	"github.com/maauso/acs-segmenter/internal/annotation"
	"github.com/maauso/acs-segmenter/internal/job"
)

// errSegmentationFailed is returned when no file of the container could be segmented.
var errSegmentationFailed = errors.New("segmentation failed")

type onceOptions struct {
	format  string
	pretty  bool
	output  string
	saveTSV bool
}

func newOnceCommand(ctx *commandContext) *cobra.Command {
	opts := &onceOptions{}

	cmd := &cobra.Command{
		Use:   "once <container.json>",
		Short: "Segment the audio documents of a container file and print the result",
		Long: "Reads a document container (\"-\" for stdin), segments every audio document " +
			"with the configured classifier and writes the container with one new view per file. " +
			"A file that could not be segmented gets an error view.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOnce(cmd, ctx, args[0], opts)
		},
	}
	cmd.Flags().StringVarP(&opts.format, "format", "f", "", "Output format: json, yaml or table (default table on a terminal, json otherwise)")
	cmd.Flags().BoolVar(&opts.pretty, "pretty", false, "Indent JSON output")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Write the result to FILE instead of stdout")
	cmd.Flags().BoolVar(&opts.saveTSV, "save-tsv", false, "Keep the classifier's raw TSV output in the results directory")
	return cmd
}

func runOnce(cmd *cobra.Command, cc *commandContext, input string, opts *onceOptions) error {
	var out io.Writer = cmd.OutOrStdout()
	if opts.output != "" {
		f, err := os.Create(opts.output)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		out = f
	}

	format := opts.format
	if format == "" {
		format = defaultFormat(out)
	}
	format, err := parseFormat(format)
	if err != nil {
		return err
	}

	container, err := readContainer(cmd.InOrStdin(), input)
	if err != nil {
		return err
	}

	if opts.saveTSV {
		cfg, err := cc.ensureConfig()
		if err != nil {
			return err
		}
		cfg.ACSSaveTSV = true
	}

	// Logs go to stderr so stdout carries only the result.
	deps, logger, err := cc.dependencies(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer deps.Close()

	res, err := deps.Service.Process(cmd.Context(), job.SegmentInput{Documents: container.Documents})
	if err != nil {
		return err
	}
	for _, f := range res.Files {
		if f.Status == job.FileStatusFailed {
			logger.Warn("file not segmented",
				slog.String("document_id", f.DocumentID),
				slog.String("error", f.Error),
			)
		}
	}
	if res.Status != job.StatusCompleted {
		return fmt.Errorf("%w: %s", errSegmentationFailed, res.Error)
	}
	if res.TSVPath != "" {
		logger.Info("classifier output saved", slog.String("path", res.TSVPath))
	}

	container.AddViews(res.Container.Views...)

	switch format {
	case formatYAML:
		return writeYAML(out, container)
	case formatTable:
		_, err := fmt.Fprintln(out, renderContainer(container, res.Files))
		return err
	default:
		return writeJSON(out, container, opts.pretty)
	}
}

func readContainer(stdin io.Reader, path string) (*annotation.Container, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path) // #nosec G304 - user-supplied input file
	}
	if err != nil {
		return nil, fmt.Errorf("read container: %w", err)
	}

	var c annotation.Container
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("decode container: %w", err)
	}
	if err := validator.New().Struct(&c); err != nil {
		return nil, fmt.Errorf("invalid container: %w", err)
	}
	return &c, nil
}

// renderContainer lists the TimeFrames of every view produced for files and
// the error of every file that failed.
func renderContainer(c *annotation.Container, files []job.File) string {
	produced := make(map[string]struct{}, len(files))
	failed := make(map[string]struct{}, len(files))
	ratios := make(map[string]float64, len(files))
	for _, f := range files {
		switch f.Status {
		case job.FileStatusCompleted:
			produced[f.DocumentID] = struct{}{}
			ratios[f.DocumentID] = f.SpeechRatio
		case job.FileStatusFailed:
			failed[f.DocumentID] = struct{}{}
		}
	}

	var rows [][]string
	for _, v := range c.Views {
		if e := v.Metadata.Error; e != nil {
			if _, ok := failed[e.Document]; ok {
				rows = append(rows, []string{e.Document, v.ID, "", "error: " + e.Message, "", "", ""})
			}
			continue
		}
		contain, ok := v.Metadata.Contains[annotation.TypeTimeFrame]
		if !ok {
			continue
		}
		if _, ok := produced[contain.Document]; !ok {
			continue
		}
		for _, r := range v.Annotations {
			rows = append(rows, []string{
				contain.Document,
				v.ID,
				r.ID,
				string(r.Properties.FrameType),
				formatTime(r.Properties.Start),
				formatTime(r.Properties.End),
				string(contain.Unit),
			})
		}
		rows = append(rows, []string{contain.Document, v.ID, "", "speech ratio", strconv.FormatFloat(ratios[contain.Document], 'f', 3, 64), "", ""})
	}

	return renderTable(
		[]string{"Document", "View", "ID", "Frame type", "Start", "End", "Unit"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft},
	)
}

func formatTime(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

package classifier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ErrNoModel is returned when the model root holds no pretrained model.
var ErrNoModel = errors.New("classifier: no pretrained model found")

// ACSConfig configures the external acoustic classification tool.
type ACSConfig struct {
	// Python is the interpreter used to run Script. Defaults to "python".
	Python string
	// Script is the path to the tool's run.py.
	Script string
	// ModelRoot holds one directory per pretrained model; the last one in
	// lexical order is used.
	ModelRoot string
	// WorkDir is where input files are staged. Defaults to os.TempDir().
	WorkDir string
	// FrameDuration is the frame size used to index the tool's timestamps.
	FrameDuration time.Duration
}

// ACSClassifier runs the external tool on one staged file at a time.
type ACSClassifier struct {
	cfg    ACSConfig
	prober DurationProber
}

// Verify interface implementation at compile time.
var _ Classifier = (*ACSClassifier)(nil)

// NewACSClassifier creates an ACSClassifier.
func NewACSClassifier(cfg ACSConfig, prober DurationProber) *ACSClassifier {
	if cfg.Python == "" {
		cfg.Python = "python"
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	return &ACSClassifier{cfg: cfg, prober: prober}
}

// Classify implements Classifier.
func (c *ACSClassifier) Classify(ctx context.Context, path string) (*Result, error) {
	if c.cfg.FrameDuration <= 0 {
		return nil, ErrInvalidFrameDuration
	}

	model, err := latestModel(c.cfg.ModelRoot)
	if err != nil {
		return nil, err
	}

	stageDir, err := c.stage(path)
	if err != nil {
		return nil, fmt.Errorf("stage input: %w", err)
	}
	defer func() { _ = os.RemoveAll(stageDir) }()

	cmd := exec.CommandContext(ctx, c.cfg.Python, c.cfg.Script, "-s", model, stageDir)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("run classifier: %w, stderr: %s", err, stderr.String())
	}

	raw := bytes.Clone(stdout.Bytes())
	rows, err := ParseTSV(&stdout)
	if err != nil {
		return nil, err
	}
	row, ok := findRow(rows, path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoOutput, path)
	}

	duration, err := c.prober.Duration(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("get audio duration: %w", err)
	}
	total := framesFor(duration, c.cfg.FrameDuration)

	return &Result{
		Path:          path,
		Spans:         spansFromTimes(row.Spans, c.cfg.FrameDuration, total),
		TotalFrames:   total,
		FrameDuration: c.cfg.FrameDuration,
		TSV:           raw,
	}, nil
}

// stage places the input file alone in a fresh directory, since the tool
// processes whole directories.
func (c *ACSClassifier) stage(path string) (string, error) {
	if err := os.MkdirAll(c.cfg.WorkDir, 0750); err != nil {
		return "", fmt.Errorf("create work directory: %w", err)
	}
	dir, err := os.MkdirTemp(c.cfg.WorkDir, "acs_*")
	if err != nil {
		return "", fmt.Errorf("create staging directory: %w", err)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		_ = os.RemoveAll(dir)
		return "", err
	}
	dst := filepath.Join(dir, filepath.Base(path))
	if err := os.Symlink(abs, dst); err == nil {
		return dir, nil
	}
	if err := copyFile(abs, dst); err != nil {
		_ = os.RemoveAll(dir)
		return "", err
	}
	return dir, nil
}

// latestModel returns the last model directory under root in lexical order.
func latestModel(root string) (string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", fmt.Errorf("read model root: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", fmt.Errorf("%w in %s", ErrNoModel, root)
	}
	sort.Strings(names)
	return filepath.Join(root, names[len(names)-1]), nil
}

// findRow matches a TSV row to the input by file name without extension.
func findRow(rows []Row, path string) (Row, bool) {
	want := stem(path)
	for _, r := range rows {
		if stem(r.Path) == want {
			return r, true
		}
	}
	return Row{}, false
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func copyFile(src, dst string) error {
	in, err := os.Open(src) // #nosec G304 - path is provided by trusted caller
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst) // #nosec G304 - destination is inside our staging directory
	if err != nil {
		return fmt.Errorf("create staged copy: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy file: %w", err)
	}
	return out.Close()
}

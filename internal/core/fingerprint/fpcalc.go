package fingerprint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// ErrFpcalcNotFound is returned when the fpcalc binary cannot be found
var ErrFpcalcNotFound = errors.New("fpcalc binary not found")

const defaultFpcalcTimeout = 30 * time.Second

// Fingerprint is the output of fpcalc -json.
type Fingerprint struct {
	Duration    float64 `json:"duration"`
	Fingerprint string  `json:"fingerprint"`
}

// Fpcalc runs the chromaprint command line tool.
type Fpcalc struct {
	Path    string
	Timeout time.Duration
}

// Calculate fingerprints the audio file at path. A non-zero exit status or
// any output on stderr is a failure.
func (f Fpcalc) Calculate(ctx context.Context, path string) (*Fingerprint, error) {
	bin := f.Path
	if bin == "" {
		bin = "fpcalc"
	}
	bin, err := exec.LookPath(bin)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFpcalcNotFound, err)
	}
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = defaultFpcalcTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, "-json", path)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	runErr := cmd.Run()
	if msg := strings.TrimSpace(stderr.String()); msg != "" {
		return nil, fmt.Errorf("fpcalc %s: %s", path, msg)
	}
	if runErr != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("fpcalc %s: %w", path, ctx.Err())
		}
		return nil, fmt.Errorf("fpcalc %s: %w", path, runErr)
	}

	var fp Fingerprint
	if err := json.Unmarshal(stdout.Bytes(), &fp); err != nil {
		return nil, fmt.Errorf("fpcalc %s: invalid output: %w", path, err)
	}
	if fp.Fingerprint == "" {
		return nil, fmt.Errorf("fpcalc %s: empty fingerprint", path)
	}
	return &fp, nil
}

package fingerprint

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	path := filepath.Join(t.TempDir(), "fpcalc")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestFpcalcParsesJSON(t *testing.T) {
	bin := writeScript(t, `echo '{"duration": 198.4, "fingerprint": "AQADtEmS"}'`)

	fp, err := Fpcalc{Path: bin}.Calculate(context.Background(), "/music/foo.flac")
	require.NoError(t, err)
	assert.InDelta(t, 198.4, fp.Duration, 1e-9)
	assert.Equal(t, "AQADtEmS", fp.Fingerprint)
}

func TestFpcalcStderrIsFailure(t *testing.T) {
	bin := writeScript(t, `echo '{"duration": 198, "fingerprint": "AQADtEmS"}'; echo "ERROR: Could not decode audio" >&2`)

	_, err := Fpcalc{Path: bin}.Calculate(context.Background(), "/music/foo.flac")
	assert.ErrorContains(t, err, "Could not decode audio")
}

func TestFpcalcNonZeroExit(t *testing.T) {
	bin := writeScript(t, `exit 2`)

	_, err := Fpcalc{Path: bin}.Calculate(context.Background(), "/music/foo.flac")
	assert.Error(t, err)
}

func TestFpcalcMissingBinary(t *testing.T) {
	_, err := Fpcalc{Path: filepath.Join(t.TempDir(), "no-such-fpcalc")}.Calculate(context.Background(), "x")
	assert.ErrorIs(t, err, ErrFpcalcNotFound)
}

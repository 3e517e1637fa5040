package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, stdin string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestRun_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hello.js")
	require.NoError(t, os.WriteFile(path, []byte("console.log('Hello', 'World'); console.warn('careful')"), 0o644))

	stdout, _, err := execute(t, "", "run", path)
	require.NoError(t, err)
	assert.Equal(t, "Hello World\ncareful\n", stdout)
}

func TestRun_Stdin(t *testing.T) {
	stdout, _, err := execute(t, "console.log(6 * 7)", "run")
	require.NoError(t, err)
	assert.Equal(t, "42\n", stdout)
}

func TestRun_ProgramFailure(t *testing.T) {
	stdout, stderr, err := execute(t, "console.log('lost'); throw new Error('boom')", "run", "-")
	assert.ErrorIs(t, err, errProgramFailed)
	assert.Empty(t, stdout)
	assert.Equal(t, "runtime_failure: boom\n", stderr)
}

func TestRun_UnsupportedLanguage(t *testing.T) {
	_, stderr, err := execute(t, "puts 1", "run", "--lang", "ruby")
	assert.ErrorIs(t, err, errProgramFailed)
	assert.Contains(t, stderr, "unsupported_language")
}

func TestRun_Timeout(t *testing.T) {
	_, stderr, err := execute(t, "for (;;) {}", "run", "--timeout", "50ms")
	assert.ErrorIs(t, err, errProgramFailed)
	assert.Contains(t, stderr, "timed out")
}

func TestRun_MissingFile(t *testing.T) {
	_, _, err := execute(t, "", "run", filepath.Join(t.TempDir(), "nope.js"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, errProgramFailed)
}

func TestRun_BadLogLevel(t *testing.T) {
	_, _, err := execute(t, "1", "run", "--log-level", "loud")
	assert.Error(t, err)
}

func TestLanguages(t *testing.T) {
	stdout, _, err := execute(t, "", "languages")
	require.NoError(t, err)
	assert.Equal(t, "javascript\ntypescript\n", stdout)
}

package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type runResponse struct {
	Status string    `json:"status"`
	Data   RunResult `json:"data"`
	Error  *CLIError `json:"error"`
}

func decodeRun(t *testing.T, out string) runResponse {
	t.Helper()
	var resp runResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp
}

func TestRun_Passing(t *testing.T) {
	out, _, err := execute(t, "--color", "never", "run", "testdata/pass.yaml")
	require.NoError(t, err)

	assert.Contains(t, out, "2 passing")
	assert.Contains(t, out, "1 pending")
	assert.NotContains(t, out, "failing")
}

func TestRun_Failing(t *testing.T) {
	out, _, err := execute(t, "--color", "never", "run", "testdata/fail.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "1 failing", err.Error())

	assert.Contains(t, out, "2 passing")
	assert.Contains(t, out, "1) math subtracts:")
	assert.Contains(t, out, "expected 1 to equal 2")
}

func TestRun_JSONWithOutputAndDatabase(t *testing.T) {
	dir := t.TempDir()
	report := filepath.Join(dir, "report.html")
	db := filepath.Join(dir, "runs.db")

	out, _, err := execute(t, "--format", "json", "run", "testdata/pass.yaml", "--db", db, "-o", report)
	require.NoError(t, err)

	resp := decodeRun(t, out)
	assert.Equal(t, "ok", resp.Status)
	assert.Nil(t, resp.Error)
	assert.Len(t, resp.Data.RunID, 36)
	assert.Equal(t, "Smoke", resp.Data.Title)
	assert.Equal(t, 2, resp.Data.Passes)
	assert.Equal(t, 1, resp.Data.Pending)
	assert.Equal(t, 3, resp.Data.Tests)
	assert.Equal(t, report, resp.Data.Output)

	html, err := os.ReadFile(report)
	require.NoError(t, err)
	assert.Contains(t, string(html), `<title>Smoke</title>`)
	assert.Contains(t, string(html), `id="mocha-report"`)
	assert.Contains(t, string(html), "subtracts")
}

func TestRun_FailingJSONCarriesError(t *testing.T) {
	out, _, err := execute(t, "--format", "json", "run", "testdata/fail.yaml")
	require.Error(t, err)

	resp := decodeRun(t, out)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeRunFailed, resp.Error.Code)
	assert.Equal(t, 1, resp.Data.Failures)
}

func TestRun_GrepBreaksExpectation(t *testing.T) {
	out, _, err := execute(t, "--format", "json", "run", "testdata/pass.yaml", "--grep", "adds")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "passes: got 1, want 2")

	resp := decodeRun(t, out)
	assert.Equal(t, "/?grep=adds", resp.Data.Location)
	assert.Equal(t, ErrCodeExpectation, resp.Error.Code)
}

func TestRun_LintersGroupedInReport(t *testing.T) {
	report := filepath.Join(t.TempDir(), "report.html")
	_, _, err := execute(t, "run", "testdata/fail.yaml", "-o", report)
	require.Error(t, err)

	html, err := os.ReadFile(report)
	require.NoError(t, err)
	assert.Contains(t, string(html), "lib/a.js")
	assert.NotContains(t, string(html), "JSHint - lib/a.js", "linter suites are regrouped")
}

func TestRun_ConfigFileTitleAndOutput(t *testing.T) {
	dir := t.TempDir()
	report := filepath.Join(dir, "out.html")
	cfgPath := filepath.Join(dir, "runview.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("title: Configured\noutput: "+report+"\n"), 0o644))

	out, _, err := execute(t, "--format", "json", "--config", cfgPath, "run", "testdata/pass.yaml")
	require.NoError(t, err)

	resp := decodeRun(t, out)
	assert.Equal(t, "Configured", resp.Data.Title)
	assert.FileExists(t, report)
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"invalid script", []string{"run", "testdata/invalid.yaml"}},
		{"missing script", []string{"run", "testdata/missing.yaml"}},
		{"bad config", []string{"--config", "testdata/bad_config.yaml", "run", "testdata/pass.yaml"}},
		{"bad url", []string{"run", "testdata/pass.yaml", "--url", "%zz"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}

func TestRunResult_Text(t *testing.T) {
	r := RunResult{RunID: "abc", Output: "report.html"}
	assert.Equal(t, "Report written to report.html\nRun recorded as abc\n", r.Text())
}

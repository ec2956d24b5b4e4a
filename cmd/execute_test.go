package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myovent/simbatch/batch"
	"github.com/myovent/simbatch/batch/ledger"
	"github.com/myovent/simbatch/internal/testutil"
)

func writeManifest(t *testing.T, dir, exe string, n int, handler string) *batch.Manifest {
	t.Helper()
	m := &batch.Manifest{File: filepath.Join(dir, "batch.json"), Executable: exe, ConcurrencyLimit: 2}
	for i := 1; i <= n; i++ {
		s := strconv.Itoa(i)
		m.Jobs = append(m.Jobs, batch.Job{
			Sequence:          i,
			ModelPath:         filepath.Join(dir, "in", s, "model.json"),
			OptionsPath:       filepath.Join(dir, "options.json"),
			ProtocolPath:      filepath.Join(dir, "protocol.json"),
			ResultsPath:       filepath.Join(dir, "out", s, "sim_output.txt"),
			OutputHandlerPath: handler,
		})
	}
	require.NoError(t, batch.WriteManifest(m, m.File))
	return m
}

func TestExecuteManifest_FailureIsolatedAndReported(t *testing.T) {
	// GIVEN a three-job manifest whose second job fails
	dir := t.TempDir()
	exe := testutil.FakeSimulator(t, dir, 2)
	m := writeManifest(t, dir, exe, 3, "")
	var out bytes.Buffer

	// WHEN it is executed with a ledger and a metrics file
	opts := runOptions{
		LedgerPath:  filepath.Join(dir, "state", "ledger.db"),
		MetricsFile: filepath.Join(dir, "metrics.prom"),
	}
	err := executeManifest(context.Background(), m, opts, &out)

	// THEN the batch reports one failure and the other jobs produced results
	var bf *batchFailedError
	require.True(t, errors.As(err, &bf), "expected batchFailedError, got %v", err)
	assert.Equal(t, 1, bf.Failed)
	assert.Equal(t, 3, bf.Total)
	assert.FileExists(t, m.Jobs[0].ResultsPath)
	assert.FileExists(t, m.Jobs[2].ResultsPath)
	assert.Contains(t, out.String(), "3 jobs: 2 succeeded, 1 failed")

	// AND the run is in the ledger
	store, err := ledger.Open(opts.LedgerPath)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	runs, err := store.Runs(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, m.File, runs[0].Manifest)
	assert.Equal(t, 2, runs[0].Concurrency)
	assert.Equal(t, 1, runs[0].Failed)

	// AND the metrics textfile carries the job counters
	prom, err := os.ReadFile(opts.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "simbatch_jobs_started_total 3")
}

func TestExecuteManifest_AllSucceed_RunsHandlers(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("handler is a POSIX shell script")
	}
	// GIVEN a manifest whose jobs name an output handler
	dir := t.TempDir()
	exe := testutil.FakeSimulator(t, dir)
	handlerFile := testutil.WriteFile(t, dir, "handler.json", `{}`)
	seen := filepath.Join(dir, "handled.txt")
	handlerExe := testutil.WriteFile(t, dir, "handle.sh", "#!/bin/sh\necho \"$2\" >> "+seen+"\n")
	require.NoError(t, os.Chmod(handlerExe, 0o755))
	m := writeManifest(t, dir, exe, 2, handlerFile)

	// WHEN it is executed with a handler program and an overriding limit
	err := executeManifest(context.Background(), m, runOptions{Concurrency: 1, HandlerExe: handlerExe}, &bytes.Buffer{})

	// THEN every results file was handed to the handler
	require.NoError(t, err)
	data, err := os.ReadFile(seen)
	require.NoError(t, err)
	assert.Equal(t, m.Jobs[0].ResultsPath+"\n"+m.Jobs[1].ResultsPath+"\n", string(data))
}

func TestExecuteManifest_NoHandlerExe_WarnsAboutSkippedHandlers(t *testing.T) {
	// GIVEN jobs that declare output handlers but no handler program
	dir := t.TempDir()
	exe := testutil.FakeSimulator(t, dir)
	handlerFile := testutil.WriteFile(t, dir, "handler.json", `{}`)
	m := writeManifest(t, dir, exe, 2, handlerFile)
	hook := logtest.NewGlobal()
	prev := logrus.GetLevel()
	logrus.SetLevel(logrus.InfoLevel)
	t.Cleanup(func() {
		logrus.SetLevel(prev)
		hook.Reset()
	})

	// WHEN the batch is executed
	require.NoError(t, executeManifest(context.Background(), m, runOptions{}, &bytes.Buffer{}))

	// THEN a warning names the skipped declarations
	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && strings.Contains(e.Message, "Skipped 2 output handler declarations") {
			warned = true
		}
	}
	assert.True(t, warned, "no warning about skipped output handlers")
}

func TestExecuteManifest_InvalidManifest(t *testing.T) {
	err := executeManifest(context.Background(), &batch.Manifest{Executable: "/bin/sim"}, runOptions{}, &bytes.Buffer{})
	assert.Error(t, err)
	var bf *batchFailedError
	assert.False(t, errors.As(err, &bf))
}

func TestRunCharacterization_GenerateOnly(t *testing.T) {
	// GIVEN a setup with one freeform characterization
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "model.json", testutil.ModelJSON)
	testutil.WriteFile(t, dir, "options.json", `{}`)
	setup := testutil.WriteFile(t, dir, "setup.json", `{
		"executable": "/opt/sim",
		"model": {"relative_to": "this_file", "model_files": ["model.json"], "options_file": "options.json"},
		"characterization": [{"type": "freeform", "relative_to": "this_file", "sim_folder": "sims",
			"time_step_s": 0.1, "sim_duration_s": 1, "no_of_conditions": 2}]
	}`)

	// WHEN it is prepared without dispatch
	err := runCharacterization(context.Background(), setup, true, runOptions{}, &bytes.Buffer{})

	// THEN the manifest and inputs exist and nothing ran
	require.NoError(t, err)
	m, err := batch.LoadManifest(filepath.Join(dir, "sims", "batch.json"))
	require.NoError(t, err)
	assert.Len(t, m.Jobs, 2)
	assert.FileExists(t, m.Jobs[1].ProtocolPath)
	assert.NoFileExists(t, m.Jobs[0].ResultsPath)
}

func TestRunCharacterization_RunsBatches(t *testing.T) {
	dir := t.TempDir()
	exe := testutil.FakeSimulator(t, dir, 1)
	testutil.WriteFile(t, dir, "model.json", testutil.ModelJSON)
	testutil.WriteFile(t, dir, "options.json", `{}`)
	setup := testutil.WriteFile(t, dir, "setup.json", `{
		"executable": "`+exe+`",
		"model": {"relative_to": "this_file", "model_files": ["model.json"], "options_file": "options.json"},
		"characterization": [
			{"type": "freeform", "relative_to": "this_file", "sim_folder": "a",
			 "time_step_s": 0.1, "sim_duration_s": 1, "no_of_conditions": 2},
			{"type": "isovolumic", "relative_to": "this_file", "sim_folder": "b",
			 "time_step_s": 0.1, "sim_duration_s": 1, "ventricular_slack_volume_factors": [1, 2]}
		]
	}`)

	err := runCharacterization(context.Background(), setup, false, runOptions{}, &bytes.Buffer{})

	// job 1 of each batch fails; the second batch still ran
	var bf *batchFailedError
	require.True(t, errors.As(err, &bf))
	assert.FileExists(t, filepath.Join(dir, "a", "sim_output", "2", "sim_output.txt"))
	assert.FileExists(t, filepath.Join(dir, "b", "sim_output", "2", "sim_output.txt"))
}

func TestRunCharacterization_SharedSimFolder_EachBatchSeesItsInputs(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("simulator is a POSIX shell script")
	}
	// GIVEN two characterizations in one sim_folder and a simulator that
	// fails unless its model and protocol files exist
	dir := t.TempDir()
	exe := testutil.WriteFile(t, dir, "sim.sh", "#!/bin/sh\n[ -f \"$1\" ] && [ -f \"$3\" ] || exit 2\necho ok > \"$4\"\n")
	require.NoError(t, os.Chmod(exe, 0o755))
	testutil.WriteFile(t, dir, "model.json", testutil.ModelJSON)
	testutil.WriteFile(t, dir, "options.json", `{}`)
	setup := testutil.WriteFile(t, dir, "setup.json", `{
		"executable": "`+exe+`",
		"model": {"relative_to": "this_file", "model_files": ["model.json"], "options_file": "options.json"},
		"characterization": [
			{"type": "freeform", "relative_to": "this_file", "sim_folder": "sims",
			 "time_step_s": 0.1, "sim_duration_s": 1, "no_of_conditions": 3},
			{"type": "isovolumic", "relative_to": "this_file", "sim_folder": "sims",
			 "time_step_s": 0.1, "sim_duration_s": 1, "ventricular_slack_volume_factors": [2]}
		]
	}`)
	ledgerPath := filepath.Join(dir, "ledger.db")

	// WHEN both batches run
	err := runCharacterization(context.Background(), setup, false, runOptions{LedgerPath: ledgerPath}, &bytes.Buffer{})

	// THEN every job of both batches found its inputs
	require.NoError(t, err)
	store, err := ledger.Open(ledgerPath)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	runs, err := store.Runs(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 2)
	total := 0
	for _, r := range runs {
		assert.Zero(t, r.Failed)
		total += r.Succeeded
	}
	assert.Equal(t, 4, total)
}

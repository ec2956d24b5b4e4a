package cmd

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myovent/simbatch/batch"
	"github.com/myovent/simbatch/internal/testutil"
)

func TestRootCmd_RegistersSubcommandsAndFlags(t *testing.T) {
	for _, name := range []string{"run", "sweep", "characterize"} {
		c, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, c.Name())
		for _, flag := range []string{"concurrency", "handler-exe", "ledger", "metrics-file"} {
			assert.NotNil(t, c.Flags().Lookup(flag), "%s --%s", name, flag)
		}
	}
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("log"))
	assert.Nil(t, runCmd.Flags().Lookup("generate-only"))
}

func TestSweepCmd_GenerateOnly(t *testing.T) {
	// GIVEN a sweep file over one model
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "base.json", testutil.ModelJSON)
	testutil.WriteFile(t, dir, "options.json", `{}`)
	testutil.WriteFile(t, dir, "protocol.json", `{}`)
	plan := testutil.WriteFile(t, dir, "sweep.json", `{
		"base_model": "base.json", "options_file": "options.json", "protocol_file": "protocol.json",
		"output_dir": "out", "executable": "/opt/sim", "relative_to": "this_file",
		"adjustments": [{"path": "MyoVent.heart_rate.beats", "multipliers": [1, 2, 3], "output_type": "int"}]
	}`)

	// WHEN the sweep command runs with --generate-only
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"sweep", plan, "--generate-only", "--log", "error"})
	t.Cleanup(func() {
		generateOnly = false
		logLevel = "info"
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
	})
	require.NoError(t, rootCmd.Execute())

	// THEN the manifest lists one job per multiplier and nothing was run
	m, err := batch.LoadManifest(filepath.Join(dir, "out", "batch.json"))
	require.NoError(t, err)
	assert.Len(t, m.Jobs, 3)
	assert.Empty(t, out.String())
}

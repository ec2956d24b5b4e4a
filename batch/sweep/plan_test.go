package sweep

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myovent/simbatch/batch"
	"github.com/myovent/simbatch/internal/testutil"
)

func TestPlanBuild_WritesVariantsAndManifest(t *testing.T) {
	// GIVEN a YAML sweep plan next to its base model, resolved relative to itself
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "models/base.json", testutil.ModelJSON)
	testutil.WriteFile(t, dir, "options.json", `{"options": {}}`)
	testutil.WriteFile(t, dir, "protocol.json", `{"protocol": {"time_step_s": 0.001}}`)
	planPath := testutil.WriteFile(t, dir, "sweep.yaml", `
base_model: models/base.json
options_file: options.json
protocol_file: protocol.json
output_dir: generated
executable: bin/sim
concurrency_limit: 2
relative_to: this_file
adjustments:
  - path: MyoVent.circulation.compartments.slack_volume[0]
    multipliers: [0.5, 1.0, 1.5, 2.0]
  - variable: m_kinetics
    isotype: 1
    scheme: 1
    transition: 1
    parameter_number: 1
    multipliers: [2.0]
`)

	plan, err := LoadPlan(planPath)
	require.NoError(t, err)

	// WHEN it is built
	m, err := plan.Build()
	require.NoError(t, err)

	// THEN the manifest is on disk and lists one job per variant
	assert.Equal(t, filepath.Join(dir, "generated", "batch.json"), m.File)
	loaded, err := batch.LoadManifest(m.File)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "bin", "sim"), loaded.Executable)
	assert.Equal(t, 2, loaded.ConcurrencyLimit)
	require.Len(t, loaded.Jobs, 4)
	assert.Equal(t, m.Jobs, loaded.Jobs)
	assert.Equal(t, filepath.Join(dir, "options.json"), loaded.Jobs[3].OptionsPath)
	assert.Equal(t, filepath.Join(dir, "generated", "sim_input", "4", "model.json"), loaded.Jobs[3].ModelPath)
}

func TestPlanBuild_OutputDirBesideThePlan_IsRefused(t *testing.T) {
	// GIVEN a plan whose output dir is its own directory
	dir := t.TempDir()
	basePath := testutil.WriteFile(t, dir, "base.json", testutil.ModelJSON)
	testutil.WriteFile(t, dir, "options.json", `{}`)
	testutil.WriteFile(t, dir, "protocol.json", `{}`)
	planPath := testutil.WriteFile(t, dir, "sweep.json", `{
		"base_model": "base.json", "options_file": "options.json", "protocol_file": "protocol.json",
		"output_dir": ".", "executable": "/opt/sim", "relative_to": "this_file",
		"adjustments": [{"path": "MyoVent.heart_rate.beats", "multipliers": [1, 2]}]
	}`)
	plan, err := LoadPlan(planPath)
	require.NoError(t, err)

	// WHEN it is built
	_, err = plan.Build()

	// THEN the build is refused and the inputs are still there
	assert.Error(t, err)
	assert.FileExists(t, planPath)
	assert.FileExists(t, basePath)
	_, statErr := os.Stat(filepath.Join(dir, "sim_input"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestLoadPlan_Rejections(t *testing.T) {
	tests := map[string]string{
		"unknown key": `{"base_model": "b", "options_file": "o", "protocol_file": "p", "output_dir": "d",
			"executable": "e", "max_threads": 2, "adjustments": [{"path": "a", "multipliers": [1]}]}`,
		"missing executable": `{"base_model": "b", "options_file": "o", "protocol_file": "p", "output_dir": "d",
			"adjustments": [{"path": "a", "multipliers": [1]}]}`,
		"no multipliers": `{"base_model": "b", "options_file": "o", "protocol_file": "p", "output_dir": "d",
			"executable": "e", "adjustments": [{"path": "a", "value": 3}]}`,
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := testutil.WriteFile(t, t.TempDir(), "sweep.json", content)
			_, err := LoadPlan(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadPlan_NoMultipliers_IsConfigError(t *testing.T) {
	path := testutil.WriteFile(t, t.TempDir(), "sweep.json", `{"base_model": "b", "options_file": "o",
		"protocol_file": "p", "output_dir": "d", "executable": "e", "adjustments": []}`)
	_, err := LoadPlan(path)
	var ce *ConfigError
	assert.True(t, errors.As(err, &ce), "expected ConfigError, got %v", err)
}

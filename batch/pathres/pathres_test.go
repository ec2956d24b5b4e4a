package pathres

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestPolicyFor_SelectsByRelativeToField(t *testing.T) {
	assert.Equal(t, Absolute, PolicyFor(nil))
	assert.Equal(t, RelativeToDocument, PolicyFor(strPtr("this_file")))
	assert.Equal(t, RelativeToExplicitBase, PolicyFor(strPtr("/data/models")))
	assert.Equal(t, RelativeToExplicitBase, PolicyFor(strPtr("")))
}

func TestResolver_ThreeWayBranch(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	r := New("/batches/demo/batch.json")

	tests := []struct {
		name       string
		raw        string
		relativeTo *string
		want       string
	}{
		{"absent uses working directory", "sim/model.json", nil, filepath.Join(wd, "sim", "model.json")},
		{"absent keeps absolute path", "/opt/sim/../bin/sim", nil, "/opt/bin/sim"},
		{"this_file joins document dir", "../models/m.json", strPtr("this_file"), "/batches/models/m.json"},
		{"explicit base", "m.json", strPtr("/data"), "/data/m.json"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := r.Resolve(tc.raw, tc.relativeTo)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestResolve_RejectsEmptyPathAndUnknownDocument(t *testing.T) {
	_, err := Resolve("", Absolute, "", "")
	assert.Error(t, err)

	_, err = Resolve("m.json", RelativeToDocument, "", "")
	assert.Error(t, err)
}

func TestResolver_Base(t *testing.T) {
	base, err := New("/a/b/setup.json").Base(strPtr(ThisFile))
	require.NoError(t, err)
	assert.Equal(t, "/a/b", base)
}

func TestWithin(t *testing.T) {
	tests := []struct {
		dir, path string
		want      bool
	}{
		{"/a/b", "/a/b", true},
		{"/a/b", "/a/b/c/model.json", true},
		{"/a/b", "/a/bc/model.json", false},
		{"/a/b", "/a", false},
		{"/a/b/c", "/a/b/setup.json", false},
		{"/", "/etc/passwd", true},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, Within(tc.dir, tc.path), "%s in %s", tc.path, tc.dir)
	}
}

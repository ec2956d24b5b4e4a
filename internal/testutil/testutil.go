// Package testutil provides shared test infrastructure for simbatch.
// It consolidates fixture writers, a stand-in simulation executable and
// assertion helpers used by the batch/ sub-packages and cmd tests.
package testutil

import (
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"
)

// ModelJSON is a trimmed model document with the structures sweeps and
// characterizations edit.
const ModelJSON = `{
    "MyoVent": {
        "circulation": {
            "compartments": {
                "slack_volume": [0.06, 0.3, 2.0],
                "resistance": [5, 200, 10]
            },
            "ventricle": {
                "myocardium": {
                    "contraction": {
                        "model": {
                            "muscle": {
                                "half_sarcomere": {
                                    "thick_structure": {"m_n": 6},
                                    "m_kinetics": [
                                        {
                                            "scheme": [
                                                {
                                                    "extension": 5.0,
                                                    "transition": [
                                                        {"rate_parameters": [1.0, 2.0]},
                                                        {"rate_parameters": [10.0, 0.5]}
                                                    ]
                                                }
                                            ]
                                        }
                                    ],
                                    "c_kinetics": []
                                }
                            }
                        }
                    }
                }
            }
        },
        "heart_rate": {"t_RR": 1.0, "beats": 3}
    }
}`

// WriteFile writes content to dir/name, creating dir, and returns the path.
func WriteFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// FakeSimulator writes a shell script standing in for the simulation
// executable. It writes "ok <sequence>" to its results path and exits with
// status 1 for every sequence number listed in failSequences.
func FakeSimulator(t *testing.T, dir string, failSequences ...int) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake simulator is a POSIX shell script")
	}
	fail := ""
	for _, s := range failSequences {
		fail += " " + strconv.Itoa(s)
	}
	script := `#!/bin/sh
for f in` + fail + `; do
	if [ "$5" = "$f" ]; then
		echo "job $5 failing" >&2
		exit 1
	fi
done
echo "ok $5" > "$4"
`
	path := WriteFile(t, dir, "fake-sim.sh", script)
	if err := os.Chmod(path, 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}

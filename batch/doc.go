// Package batch defines the job and manifest types shared by the batch
// execution engine.
//
// # Reading Guide
//
//   - job.go: Job, one external simulation run and its argument vector
//   - manifest.go: loading, validating and writing batch manifests
//
// # Architecture
//
// Sub-packages implement the pipeline stages:
//   - batch/document/: dynamically shaped configuration documents (JSON/YAML)
//   - batch/pathres/: the relative_to path resolution rule
//   - batch/sweep/: parameter sweeps producing derived model files and jobs
//   - batch/characterize/: characterization setups expanded into batches
//   - batch/dispatch/: bounded-concurrency execution of jobs as OS processes
//   - batch/postprocess/: output-handler handoff after a batch drains
//   - batch/ledger/: SQLite history of batch runs and job outcomes
//
// A batch flows manifest → (sweep) → jobs → dispatcher → post-processing.
// Construction errors (ManifestError, sweep.ConfigError, document.PathError)
// abort before any process starts; per-job failures are reported in
// dispatch.Outcome and never abort sibling jobs.
package batch

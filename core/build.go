package core

// BuildInfo describes the running binary. Debug builds re-raise panics
// after crash reporting so native tooling sees the original trace;
// release builds exit cleanly to keep crash-report channels free of
// dev noise.
type BuildInfo struct {
	Version string
	Debug   bool
}

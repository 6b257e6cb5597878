package metrics

import "time"

// Outcome labels for sync counters.
const (
	OutcomeSuccess   = "success"
	OutcomePartial   = "partial"
	OutcomeFailed    = "failed"
	OutcomeNoop      = "noop"
	OutcomeContended = "contended"
)

// Recorder defines observability hooks for sync operations. Implementations
// may forward to Prometheus or elsewhere; the NoopRecorder makes injection
// optional.
type Recorder interface {
	ObserveSyncDuration(repo string, d time.Duration)
	IncSyncOutcome(repo, outcome string)
	IncImports(repo string, succeeded, failed int)
	SetActiveRepos(n int)
	IncTick(succeeded, failed int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveSyncDuration(string, time.Duration) {}
func (NoopRecorder) IncSyncOutcome(string, string)             {}
func (NoopRecorder) IncImports(string, int, int)               {}
func (NoopRecorder) SetActiveRepos(int)                        {}
func (NoopRecorder) IncTick(int, int)                          {}

package kvcache

// Metrics exposes connection events for observability.
// Implementation should be safe for concurrent use.
type Metrics interface {
	// ConnAccepted called when connection got worker.
	ConnAccepted()
	// ConnRejected called when connection closed because of MaxThreads limit.
	ConnRejected()
	// ActiveConns called with new number of served connections.
	ActiveConns(n int)
}

type NoopMetrics struct{}

func (NoopMetrics) ConnAccepted()     {}
func (NoopMetrics) ConnRejected()     {}
func (NoopMetrics) ActiveConns(n int) {}

var _ Metrics = NoopMetrics{}

package recorder

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordRun(_ *RunEvent) error             { return nil }
func (n *NoopRecorder) RecordTimeframe(_ *TimeframeEvent) error { return nil }
func (n *NoopRecorder) RecordCleanup(_ *CleanupEvent) error     { return nil }
func (n *NoopRecorder) Close() error                            { return nil }

package model

// Writer defines a sink for sampler output.
type Writer interface {
	// Name identifies the writer in logs and metrics.
	Name() string

	// WriteSample persists one finished sample.
	WriteSample(s *Sample) error

	// Finish writes whatever could only be sized at the end of the session.
	Finish(r *Report) error

	// Close releases the writer's resources.
	Close() error
}

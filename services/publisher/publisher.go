package publisher

// Publisher represents a service for publishing catalog updates to
// downstream marketplace sync jobs
type Publisher interface {
	// Publish publishes one accepted product record to a supplier stream
	Publish(supplier string, message []byte) error

	// TrimStreams trims all streams to the configured maximum length
	TrimStreams() error

	// Close closes the publisher connection
	Close() error
}

package telemetry

// NopPublisher discards everything. Used when no broker is configured.
type NopPublisher struct{}

// PublishEvent discards the event.
func (NopPublisher) PublishEvent(Event) error { return nil }

// PublishSystem discards the event.
func (NopPublisher) PublishSystem(SystemEvent) error { return nil }

// Close does nothing.
func (NopPublisher) Close() error { return nil }

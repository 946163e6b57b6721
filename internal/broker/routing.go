package broker

// Stream and subject names for the event envelope pipeline.
var (
	StreamName    = "CHAT_EVENTS"
	SubjectFanout = StreamName + "." + "fanout"
)

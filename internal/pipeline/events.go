package pipeline

// StreamEvent is one wire-level unit flowing from the controller to the
// transport. Progress text, heartbeats and the answer itself are all Content;
// Done is the distinguished terminal marker every stream ends with.
type StreamEvent interface {
	streamEvent()
}

// Content carries display text for the client. Heartbeats are a single
// space.
type Content struct {
	Text string
}

func (Content) streamEvent() {}

// Done marks the end of the stream. It is emitted exactly once per request,
// in every terminal case.
type Done struct{}

func (Done) streamEvent() {}

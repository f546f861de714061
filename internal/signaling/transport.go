package signaling

// FrameKind distinguishes the data frames a Transport can deliver.
type FrameKind int

const (
	FrameText FrameKind = iota
	FrameBinary
)

func (k FrameKind) String() string {
	switch k {
	case FrameText:
		return "text"
	case FrameBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// Transport is a bidirectional message connection to one client.
//
// Recv is only called from one goroutine and Send only from another; Close
// may be called concurrently with both and more than once. Any Recv error,
// io.EOF included, ends the connection.
type Transport interface {
	Recv() (FrameKind, []byte, error)
	Send(payload []byte) error
	Close() error
}

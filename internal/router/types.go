package router

// Controller is the part of the connection monitor the router drives.
type Controller interface {
	ConfirmConnection()
	Reconnect()
	ShuttingDown() bool
}

// Observer receives per-event counts. Implementations must not block.
type Observer interface {
	EventReceived(name string)
}

// Stats contains runtime statistics.
type Stats struct {
	EventsReceived   int64
	Handshakes       int64
	ConnectionLosses int64
	IDResets         int64
	Faults           int64
	StrayEnds        int64 // End markers that matched no live operation
}

type nopObserver struct{}

func (nopObserver) EventReceived(string) {}

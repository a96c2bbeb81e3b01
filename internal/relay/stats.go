package relay

// Stats receives per-connection counters from the server. Implementations
// must be safe for concurrent use; every method is called from connection
// goroutines.
type Stats interface {
	ConnectionOpened()
	HandshakeFailed()
	BytesRelayed(n int)
	RelayFailed()
}

type nopStats struct{}

func (nopStats) ConnectionOpened() {}
func (nopStats) HandshakeFailed()  {}
func (nopStats) BytesRelayed(int)  {}
func (nopStats) RelayFailed()      {}

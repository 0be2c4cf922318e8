package transport

import (
	"gonum.org/v1/gonum/floats"

	"spectra/internal/log"
)

// LoggingTransport implements the Transport interface by writing a one-line
// summary of each message at debug level.
type LoggingTransport struct {
	log log.Logger
}

func NewLoggingTransport() *LoggingTransport {
	lt := &LoggingTransport{log: log.For("transport")}
	lt.log.Infof("using LoggingTransport")
	return lt
}

// Send logs data. It never fails.
func (lt *LoggingTransport) Send(data any) error {
	switch m := data.(type) {
	case FrameMessage:
		if len(m.Values) == 0 {
			lt.log.Debugf("frame %d %s (empty)", m.Seq, m.State)
			return nil
		}
		i := floats.MaxIdx(m.Values)
		lt.log.Debugf("frame %d %s @%dms: peak bin %d = %.4f", m.Seq, m.State, m.PositionMs, i, m.Values[i])
	case AxisMessage:
		lt.log.Debugf("axis: %d bins, %d ticks", len(m.Frequencies), len(m.Ticks))
	default:
		lt.log.Debugf("received (%T): %+v", data, data)
	}
	return nil
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	lt.log.Debugf("close called")
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)

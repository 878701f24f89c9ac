// SPDX-License-Identifier: MIT
package transport

import (
	"sync/atomic"

	"audioviz/internal/log"
)

// LoggingTransport implements the Transport interface by logging a summary
// of each frame at debug level.
type LoggingTransport struct {
	sent atomic.Uint64
}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	log.Infof("Transport: Using LoggingTransport")
	return &LoggingTransport{}
}

// Send logs the received data. It never fails.
func (lt *LoggingTransport) Send(data any) error {
	lt.sent.Add(1)
	if !log.Enabled(log.LevelDebug) {
		return nil
	}

	switch f := data.(type) {
	case *Frame:
		lt.logFrame(f)
	case Frame:
		lt.logFrame(&f)
	default:
		log.Debugf("LOG_TRANSPORT: Received (%T): %+v", data, data)
	}
	return nil
}

func (lt *LoggingTransport) logFrame(f *Frame) {
	peak, level := 0, uint8(0)
	for i, v := range f.Bins {
		if v > level {
			peak, level = i, v
		}
	}
	log.Debugf("LOG_TRANSPORT: Frame %d (%s, %.2fs) peak bin %d = %d", f.Seq, f.State, f.Position, peak, level)
}

// Sent returns the number of Send calls.
func (lt *LoggingTransport) Sent() uint64 { return lt.sent.Load() }

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	log.Debugf("LOG_TRANSPORT: Close called after %d frames.", lt.sent.Load())
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)

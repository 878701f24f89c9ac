// SPDX-License-Identifier: MIT
package transport

import (
	"strconv"
)

// Transport defines a generic interface for sending frames or events.
// Implementations should be thread-safe. Send must not retain data after it
// returns; frame views are reused by the next tick.
type Transport interface {
	Send(data any) error
	Close() error
}

// Frame is the wire form of one rendered frame.
type Frame struct {
	Seq        uint64  `json:"seq"`
	Timestamp  int64   `json:"ts"`       // Nanoseconds since epoch
	Position   float64 `json:"position"` // Seconds into the source
	State      string  `json:"state"`
	FFTSize    int     `json:"fft_size"`
	SampleRate float64 `json:"sample_rate"`
	Bins       Bins    `json:"bins"`
	Bands      []Band  `json:"bands,omitempty"`
}

// Band is the normalized level of one named frequency band.
type Band struct {
	Name  string  `json:"name"`
	Level float64 `json:"level"`
}

// Bins holds byte magnitudes. It marshals as a JSON number array instead of
// the base64 string encoding/json uses for byte slices.
type Bins []uint8

func (b Bins) MarshalJSON() ([]byte, error) {
	if b == nil {
		return []byte("[]"), nil
	}
	out := make([]byte, 0, 2+len(b)*4)
	out = append(out, '[')
	for i, v := range b {
		if i > 0 {
			out = append(out, ',')
		}
		out = strconv.AppendUint(out, uint64(v), 10)
	}
	return append(out, ']'), nil
}

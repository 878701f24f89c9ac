// SPDX-License-Identifier: MIT
package udp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	applog "audioviz/internal/log"
	"audioviz/internal/transport"
)

// PacketSender is the datagram sink used by Publisher. *Sender implements it.
type PacketSender interface {
	Send(packet []byte) error
	Close() error
}

// HeaderSize is the fixed packet prefix before the magnitudes.
const HeaderSize = 4 + 8 + 2

// MaxMagnitudes is the largest bin count that fits one IPv4 datagram.
// Larger frames are truncated to their lowest bins.
const MaxMagnitudes = (65507 - HeaderSize) / 4

// ErrShortPacket is returned by ParsePacket for truncated input.
var ErrShortPacket = errors.New("udp: short packet")

// Publisher packs frames into the binary layout below and sends them,
// at most once per interval. It is driven by the render loop: every frame
// goes through Send and frames arriving sooner than interval after the last
// packet are skipped.
type Publisher struct {
	sender   PacketSender
	interval time.Duration

	mu          sync.Mutex
	sequenceNum uint32 // Monotonically increasing sequence number for packets.
	lastSent    int64  // Frame timestamp of the last packet, ns.
	skipped     uint64

	// Reused packet buffer; grows to the largest frame seen.
	packet []byte
}

// NewPublisher creates a publisher over sender. If interval is not positive
// every frame is sent.
func NewPublisher(interval time.Duration, sender PacketSender) (*Publisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("UDPPublisher: UDP sender cannot be nil")
	}
	if interval < 0 {
		interval = 0
	}
	applog.Infof("UDPPublisher: Initializing (Interval: %s)", interval)
	return &Publisher{sender: sender, interval: interval}, nil
}

/*
UDP Packet Structure (BigEndian)

+-----------------------------------------------------------------------------+
| Field             | Data Type      | Size (Bytes) | Description             |
|-------------------|----------------|--------------|-------------------------|
| Sequence Number   | uint32         | 4            | Monotonically increasing|
| Timestamp         | int64          | 8            | Nanoseconds since epoch |
| Magnitude Count   | uint16         | 2            | Number of floats (N)    |
| Magnitudes        | []float32      | N * 4        | Bin byte / 255, 0..1    |
+-----------------------------------------------------------------------------+

|<---- 4 Bytes ---->|<------ 8 Bytes ------>|<-- 2 Bytes -->|<----- N * 4 Bytes ----->|
+-------------------+-----------------------+---------------+-------------------------+
|  Sequence Number  |       Timestamp       |   Magnitude   |       Magnitudes        |
|      (uint32)     |        (int64)        |     Count     |      (N * float32)      |
+-------------------+-----------------------+---------------+-------------------------+
*/

// Send publishes a transport.Frame (or pointer to one). Other payloads are
// rejected.
func (p *Publisher) Send(data any) error {
	switch f := data.(type) {
	case *transport.Frame:
		return p.Publish(f)
	case transport.Frame:
		return p.Publish(&f)
	default:
		return fmt.Errorf("UDPPublisher: unsupported payload %T", data)
	}
}

// Publish packs and sends f unless the previous packet is younger than the
// interval. The frame is not retained.
//
// Performance Critical (Hot Path):
// - Runs on the render tick
// - No allocations once the packet buffer has grown
func (p *Publisher) Publish(f *transport.Frame) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	// --- 1. Rate limit ---
	if p.sequenceNum > 0 && f.Timestamp-p.lastSent < int64(p.interval) {
		p.skipped++
		return nil
	}

	// --- 2. Pack ---
	bins := f.Bins
	if len(bins) > MaxMagnitudes {
		bins = bins[:MaxMagnitudes]
	}
	p.sequenceNum++
	p.packet = AppendPacket(p.packet[:0], p.sequenceNum, f.Timestamp, bins)

	// --- 3. Send ---
	if err := p.sender.Send(p.packet); err != nil {
		applog.Warnf("UDPPublisher: Error sending packet %d: %v", p.sequenceNum, err)
		return err
	}
	p.lastSent = f.Timestamp
	if applog.Enabled(applog.LevelDebug) {
		applog.Debugf("UDPPublisher: Sent packet %d (%d bytes)", p.sequenceNum, len(p.packet))
	}
	return nil
}

// Sequence returns the sequence number of the last packet built.
func (p *Publisher) Sequence() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sequenceNum
}

// Skipped returns the number of frames dropped by rate limiting.
func (p *Publisher) Skipped() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.skipped
}

// Close closes the underlying sender.
func (p *Publisher) Close() error {
	applog.Debugf("UDPPublisher: Close called after %d packets", p.Sequence())
	return p.sender.Close()
}

// AppendPacket appends one encoded packet to dst. bins must not exceed
// MaxMagnitudes entries.
func AppendPacket(dst []byte, seq uint32, timestamp int64, bins []uint8) []byte {
	dst = binary.BigEndian.AppendUint32(dst, seq)
	dst = binary.BigEndian.AppendUint64(dst, uint64(timestamp))
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(bins)))
	for _, v := range bins {
		dst = binary.BigEndian.AppendUint32(dst, math.Float32bits(float32(v)/255))
	}
	return dst
}

// Packet is a decoded datagram.
type Packet struct {
	Seq        uint32
	Timestamp  int64
	Magnitudes []float32
}

// ParsePacket decodes b. Magnitudes are appended to dst to allow reuse.
func ParsePacket(b []byte, dst []float32) (Packet, error) {
	if len(b) < HeaderSize {
		return Packet{}, ErrShortPacket
	}
	p := Packet{
		Seq:       binary.BigEndian.Uint32(b[0:4]),
		Timestamp: int64(binary.BigEndian.Uint64(b[4:12])),
	}
	n := int(binary.BigEndian.Uint16(b[12:14]))
	body := b[HeaderSize:]
	if len(body) < n*4 {
		return Packet{}, fmt.Errorf("%w: %d magnitudes declared, %d bytes present", ErrShortPacket, n, len(body))
	}
	for i := range n {
		dst = append(dst, math.Float32frombits(binary.BigEndian.Uint32(body[i*4:])))
	}
	p.Magnitudes = dst
	return p, nil
}

// Ensure Publisher satisfies the interface at compile time.
var _ transport.Transport = (*Publisher)(nil)

// SPDX-License-Identifier: MIT
package udp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	applog "iocapture/internal/log"
	"iocapture/internal/meter"
)

// HeaderSize is the fixed part of a level packet.
const HeaderSize = 4 + 8 + 2

// ErrShortPacket is returned by Decode for truncated packets.
var ErrShortPacket = errors.New("udp: short level packet")

// PacketSender is the part of UDPSender the publisher needs.
type PacketSender interface {
	Send(data []byte) error
}

// UDPPublisher periodically snapshots a level source, packs the levels into
// a binary packet and sends it with a PacketSender. It runs in a separate
// goroutine managed by Start and Stop.
type UDPPublisher struct {
	sender   PacketSender
	source   meter.Source
	interval time.Duration
	now      func() time.Time

	doneChan chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex // Protects doneChan during Start/Stop.

	sequenceNum uint32

	levels meter.Levels
	packet []byte
}

// NewUDPPublisher creates a publisher. An interval <= 0 defaults to 16ms
// (~60Hz).
func NewUDPPublisher(interval time.Duration, sender PacketSender, source meter.Source) (*UDPPublisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("UDPPublisher: UDP sender cannot be nil")
	}
	if source == nil {
		return nil, fmt.Errorf("UDPPublisher: level source cannot be nil")
	}
	if interval <= 0 {
		interval = 16 * time.Millisecond
		applog.Warnf("UDPPublisher: Invalid interval provided, defaulting to %s", interval)
	}

	applog.Infof("UDPPublisher: Initializing (Interval: %s)", interval)
	return &UDPPublisher{
		sender:   sender,
		source:   source,
		interval: interval,
		now:      time.Now,
	}, nil
}

// Start launches the publishing goroutine. Calling Start while running is a
// no-op.
func (p *UDPPublisher) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.doneChan != nil {
		applog.Warnf("UDPPublisher: Start called but already running.")
		return
	}
	done := make(chan struct{})
	p.doneChan = done

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				p.buildAndSendPacket()
			case <-done:
				return
			}
		}
	}()
}

// Stop signals the publishing goroutine and waits for it to exit. It is
// safe to call Stop multiple times.
func (p *UDPPublisher) Stop() error {
	p.mu.Lock()
	if p.doneChan == nil {
		p.mu.Unlock()
		return nil
	}
	close(p.doneChan)
	p.doneChan = nil
	p.mu.Unlock()

	p.wg.Wait()
	applog.Debugf("UDPPublisher: Stopped after %d packets", p.sequenceNum)
	return nil
}

/*
UDP level packet (big-endian)

| Field           | Type      | Size  | Description                     |
|-----------------|-----------|-------|---------------------------------|
| Sequence Number | uint32    | 4     | Increments per packet           |
| Timestamp       | int64     | 8     | Nanoseconds since epoch         |
| Channel Count   | uint16    | 2     | N                               |
| Peaks           | []float32 | N * 4 | Peak per channel, 0..1          |
| RMS             | []float32 | N * 4 | RMS per channel, 0..1           |
*/

// Packet is a decoded level packet.
type Packet struct {
	Seq       uint32
	Timestamp time.Time
	Peak      []float32
	RMS       []float32
}

// AppendPacket appends the wire form of one level frame to dst.
func AppendPacket(dst []byte, seq uint32, ts time.Time, l *meter.Levels) []byte {
	dst = binary.BigEndian.AppendUint32(dst, seq)
	dst = binary.BigEndian.AppendUint64(dst, uint64(ts.UnixNano()))
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(l.Peak)))
	for _, v := range l.Peak {
		dst = binary.BigEndian.AppendUint32(dst, math.Float32bits(float32(v)))
	}
	for _, v := range l.RMS {
		dst = binary.BigEndian.AppendUint32(dst, math.Float32bits(float32(v)))
	}
	return dst
}

// Decode parses a packet produced by AppendPacket.
func Decode(b []byte) (Packet, error) {
	if len(b) < HeaderSize {
		return Packet{}, ErrShortPacket
	}
	n := int(binary.BigEndian.Uint16(b[12:14]))
	if len(b) < HeaderSize+8*n {
		return Packet{}, ErrShortPacket
	}

	p := Packet{
		Seq:       binary.BigEndian.Uint32(b[0:4]),
		Timestamp: time.Unix(0, int64(binary.BigEndian.Uint64(b[4:12]))),
		Peak:      make([]float32, n),
		RMS:       make([]float32, n),
	}
	body := b[HeaderSize:]
	for i := 0; i < n; i++ {
		p.Peak[i] = math.Float32frombits(binary.BigEndian.Uint32(body[4*i:]))
		p.RMS[i] = math.Float32frombits(binary.BigEndian.Uint32(body[4*(n+i):]))
	}
	return p, nil
}

func (p *UDPPublisher) buildAndSendPacket() {
	p.source.Snapshot(&p.levels)
	p.sequenceNum++
	p.packet = AppendPacket(p.packet[:0], p.sequenceNum, p.now(), &p.levels)

	if err := p.sender.Send(p.packet); err != nil {
		applog.Debugf("UDPPublisher: packet %d not sent: %v", p.sequenceNum, err)
		return
	}
	applog.Debugf("UDPPublisher: Sent packet %d (%d bytes)", p.sequenceNum, len(p.packet))
}

// Close implements io.Closer by stopping the publisher.
func (p *UDPPublisher) Close() error {
	return p.Stop()
}

var _ interface{ Close() error } = (*UDPPublisher)(nil)

// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"spectra/internal/engine"
	"spectra/internal/log"
)

// HeaderSize is the fixed part of a packet before the values.
const HeaderSize = 4 + 8 + 1 + 2

/*
Packet layout (BigEndian)

|<-- 4 -->|<---- 8 ---->|<- 1 ->|<-- 2 -->|<------ N * 4 ------>|
+---------+-------------+-------+---------+---------------------+
|   Seq   |  Timestamp  | State |  Count  |       Values        |
| uint32  | int64 (ns)  | uint8 | uint16  |   N * float32       |
+---------+-------------+-------+---------+---------------------+

Seq is the low 32 bits of the frame sequence number. State is the
engine.State value. Values are the normalized bins.
*/

// Packet is a decoded frame packet.
type Packet struct {
	Seq       uint32
	Timestamp int64
	State     engine.State
	Values    []float32
}

// encodePacket writes one frame into buf, replacing its contents.
func encodePacket(buf *bytes.Buffer, f *engine.Frame, values []float32) error {
	if len(values) > math.MaxUint16 {
		return fmt.Errorf("too many values for one packet: %d", len(values))
	}
	buf.Reset()

	err := binary.Write(buf, binary.BigEndian, uint32(f.Seq))
	if err == nil {
		err = binary.Write(buf, binary.BigEndian, f.Time.UnixNano())
	}
	if err == nil {
		err = binary.Write(buf, binary.BigEndian, uint8(f.State))
	}
	if err == nil {
		err = binary.Write(buf, binary.BigEndian, uint16(len(values)))
	}
	if err == nil {
		err = binary.Write(buf, binary.BigEndian, values)
	}
	return err
}

// DecodePacket parses a packet produced by Publisher.
func DecodePacket(b []byte) (Packet, error) {
	if len(b) < HeaderSize {
		return Packet{}, fmt.Errorf("packet too short: %d bytes", len(b))
	}
	p := Packet{
		Seq:       binary.BigEndian.Uint32(b[0:4]),
		Timestamp: int64(binary.BigEndian.Uint64(b[4:12])),
		State:     engine.State(b[12]),
	}
	n := int(binary.BigEndian.Uint16(b[13:15]))
	if len(b) != HeaderSize+n*4 {
		return Packet{}, fmt.Errorf("packet length %d does not match %d values", len(b), n)
	}
	p.Values = make([]float32, n)
	for i := range p.Values {
		off := HeaderSize + i*4
		p.Values[i] = math.Float32frombits(binary.BigEndian.Uint32(b[off : off+4]))
	}
	return p, nil
}

// PacketSender is what a Publisher writes to.
type PacketSender interface {
	Send(data []byte) error
}

// Publisher periodically takes the latest frame from a slot, packs it and
// sends it over UDP. It runs in a separate goroutine managed by Start and
// Stop. Frames are sent once; ticks with nothing new are skipped.
type Publisher struct {
	log      log.Logger
	sender   PacketSender
	slot     *engine.Slot
	interval time.Duration

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex

	lastSeq      uint64
	f32Buffer    []float32
	packetBuffer *bytes.Buffer
}

// NewPublisher creates a publisher. If interval is invalid (<= 0), it
// defaults to 33ms.
func NewPublisher(interval time.Duration, sender PacketSender, slot *engine.Slot) (*Publisher, error) {
	if sender == nil {
		return nil, errors.New("udp publisher: sender cannot be nil")
	}
	if slot == nil {
		return nil, errors.New("udp publisher: slot cannot be nil")
	}

	l := log.For("udp")
	if interval <= 0 {
		interval = 33 * time.Millisecond
		l.Warnf("invalid interval provided, defaulting to %s", interval)
	}

	return &Publisher{
		log:          l,
		sender:       sender,
		slot:         slot,
		interval:     interval,
		packetBuffer: new(bytes.Buffer),
	}, nil
}

// Start begins the periodic publishing. Calling it while running is a no-op.
func (p *Publisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		p.log.Warnf("Start called but already running")
		return
	}
	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}
	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.log.Infof("publisher started (interval %s)", p.interval)
		for {
			select {
			case <-ticker.C:
				p.Publish()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop signals the publisher goroutine to terminate and waits for it.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}
	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()

	p.wg.Wait()
	p.log.Infof("publisher stopped")
	return nil
}

// Publish sends the latest frame if it is new and reports whether a packet
// went out.
func (p *Publisher) Publish() bool {
	f := p.slot.Load()
	if f == nil || f.Seq == p.lastSeq {
		return false
	}
	p.lastSeq = f.Seq

	if cap(p.f32Buffer) < len(f.Values) {
		p.f32Buffer = make([]float32, len(f.Values))
	}
	p.f32Buffer = p.f32Buffer[:len(f.Values)]
	for i, v := range f.Values {
		p.f32Buffer[i] = float32(v)
	}

	if err := encodePacket(p.packetBuffer, f, p.f32Buffer); err != nil {
		p.log.Errorf("error packing frame %d: %v", f.Seq, err)
		return false
	}
	if err := p.sender.Send(p.packetBuffer.Bytes()); err != nil {
		return false
	}
	p.log.Debugf("sent frame %d (%d bytes)", f.Seq, p.packetBuffer.Len())
	return true
}

// Close stops the publisher.
func (p *Publisher) Close() error {
	return p.Stop()
}

var _ interface{ Close() error } = (*Publisher)(nil)

// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"spectra/internal/engine"
)

type recordingSender struct {
	mu      sync.Mutex
	packets [][]byte
	err     error
}

func (s *recordingSender) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.packets = append(s.packets, bytes.Clone(data))
	return nil
}

func (s *recordingSender) Packets() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.packets...)
}

func testFrame(seq uint64, values ...float64) *engine.Frame {
	return &engine.Frame{
		Seq:    seq,
		Time:   time.Unix(0, 1700000000123456789),
		State:  engine.Animating,
		Values: values,
	}
}

func TestPacketLayout(t *testing.T) {
	var buf bytes.Buffer
	f := testFrame(0x1_0000_0005, 0.5, 0.25)
	if err := encodePacket(&buf, f, []float32{0.5, 0.25}); err != nil {
		t.Fatal(err)
	}

	b := buf.Bytes()
	if len(b) != HeaderSize+8 {
		t.Fatalf("packet len = %d, want %d", len(b), HeaderSize+8)
	}
	want := []byte{0, 0, 0, 5} // low 32 bits of seq
	if !bytes.Equal(b[:4], want) {
		t.Errorf("seq bytes = %x, want %x", b[:4], want)
	}
	if b[12] != byte(engine.Animating) {
		t.Errorf("state byte = %d", b[12])
	}

	p, err := DecodePacket(b)
	if err != nil {
		t.Fatalf("DecodePacket() error = %v", err)
	}
	if p.Seq != 5 || p.Timestamp != 1700000000123456789 || p.State != engine.Animating {
		t.Errorf("DecodePacket() header = %+v", p)
	}
	if len(p.Values) != 2 || p.Values[0] != 0.5 || p.Values[1] != 0.25 {
		t.Errorf("DecodePacket() values = %v", p.Values)
	}
}

func TestDecodePacketErrors(t *testing.T) {
	if _, err := DecodePacket(make([]byte, HeaderSize-1)); err == nil {
		t.Error("short packet expected error")
	}
	var buf bytes.Buffer
	_ = encodePacket(&buf, testFrame(1, 1, 2, 3), []float32{1, 2, 3})
	if _, err := DecodePacket(buf.Bytes()[:buf.Len()-1]); err == nil {
		t.Error("truncated packet expected error")
	}
}

func TestPublisherSendsEachFrameOnce(t *testing.T) {
	slot := engine.NewSlot()
	sender := &recordingSender{}
	p, err := NewPublisher(time.Millisecond, sender, slot)
	if err != nil {
		t.Fatal(err)
	}

	if p.Publish() {
		t.Error("Publish() on empty slot sent a packet")
	}
	slot.Store(testFrame(1, 0.1, 0.2, 0.3))
	if !p.Publish() || p.Publish() {
		t.Error("expected exactly one packet for one frame")
	}
	slot.Store(testFrame(2, 0.4))
	p.Publish()

	packets := sender.Packets()
	if len(packets) != 2 {
		t.Fatalf("sent %d packets, want 2", len(packets))
	}
	second, err := DecodePacket(packets[1])
	if err != nil || second.Seq != 2 || len(second.Values) != 1 {
		t.Errorf("second packet = %+v, %v", second, err)
	}

	sender.err = errors.New("network down")
	slot.Store(testFrame(3, 1))
	if p.Publish() {
		t.Error("Publish() reported success on a send error")
	}
}

func TestPublisherStartStop(t *testing.T) {
	slot := engine.NewSlot()
	sender := &recordingSender{}
	p, err := NewPublisher(time.Millisecond, sender, slot)
	if err != nil {
		t.Fatal(err)
	}
	slot.Store(testFrame(1, 1))

	p.Start()
	deadline := time.Now().Add(2 * time.Second)
	for len(sender.Packets()) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if err := p.Stop(); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
	if len(sender.Packets()) != 1 {
		t.Errorf("sent %d packets, want 1", len(sender.Packets()))
	}
}

func TestNewPublisherValidation(t *testing.T) {
	if _, err := NewPublisher(time.Millisecond, nil, engine.NewSlot()); err == nil {
		t.Error("nil sender expected error")
	}
	if _, err := NewPublisher(time.Millisecond, &recordingSender{}, nil); err == nil {
		t.Error("nil slot expected error")
	}
	p, err := NewPublisher(0, &recordingSender{}, engine.NewSlot())
	if err != nil || p.interval != 33*time.Millisecond {
		t.Errorf("NewPublisher(0) = %v, %v", p, err)
	}
}

func TestSenderDeliversPacket(t *testing.T) {
	ln, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Skipf("cannot listen on loopback: %v", err)
	}
	defer ln.Close()

	s, err := NewSender(ln.LocalAddr().String())
	if err != nil {
		t.Fatalf("NewSender() error = %v", err)
	}

	var buf bytes.Buffer
	_ = encodePacket(&buf, testFrame(42, 0.75), []float32{0.75})
	if err := s.Send(buf.Bytes()); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	ln.SetReadDeadline(time.Now().Add(2 * time.Second))
	got := make([]byte, 1500)
	n, _, err := ln.ReadFromUDP(got)
	if err != nil {
		t.Fatalf("ReadFromUDP() error = %v", err)
	}
	p, err := DecodePacket(got[:n])
	if err != nil || p.Seq != 42 || p.Values[0] != 0.75 {
		t.Errorf("received %+v, %v", p, err)
	}

	if err := s.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := s.Send([]byte{1}); err == nil {
		t.Error("Send() after Close expected error")
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestNewSenderBadAddress(t *testing.T) {
	if _, err := NewSender("not an address"); err == nil {
		t.Error("NewSender() with a bad address expected error")
	}
}

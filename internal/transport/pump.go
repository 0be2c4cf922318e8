// SPDX-License-Identifier: MIT
package transport

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"spectra/internal/engine"
	"spectra/internal/log"
)

// Pump periodically reads the latest frame from a slot and fans it out to
// every transport. Frames already sent are skipped, so a pump faster than the
// engine does not repeat itself. It runs in a separate goroutine managed by
// Start and Stop.
type Pump struct {
	log        log.Logger
	slot       *engine.Slot
	interval   time.Duration
	transports []Transport
	decibels   bool

	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex

	lastSeq uint64
}

// NewPump creates a pump for slot. If interval is invalid (<= 0) it defaults
// to 33ms.
func NewPump(slot *engine.Slot, interval time.Duration, withDecibels bool, transports ...Transport) (*Pump, error) {
	if slot == nil {
		return nil, errors.New("pump: slot cannot be nil")
	}
	if len(transports) == 0 {
		return nil, errors.New("pump: at least one transport is required")
	}
	p := &Pump{
		log:        log.For("pump"),
		slot:       slot,
		interval:   interval,
		transports: transports,
		decibels:   withDecibels,
	}
	if p.interval <= 0 {
		p.interval = 33 * time.Millisecond
		p.log.Warnf("invalid interval, defaulting to %s", p.interval)
	}
	return p, nil
}

// Start launches the publishing goroutine. Subsequent calls are no-ops while
// running.
func (p *Pump) Start() {
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
		p.log.Infof("started (interval %s, %d transports)", p.interval, len(p.transports))
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

// Stop signals the goroutine to exit and waits for it. Safe to call more
// than once.
func (p *Pump) Stop() error {
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
	p.log.Infof("stopped")
	return nil
}

// Publish sends the current frame if it has not been sent yet and reports
// whether it did. It is called by the pump goroutine on every tick.
func (p *Pump) Publish() bool {
	f := p.slot.Load()
	if f == nil || f.Seq == p.lastSeq {
		return false
	}
	p.lastSeq = f.Seq

	msg := NewFrameMessage(f, p.decibels)
	for _, t := range p.transports {
		if err := t.Send(msg); err != nil {
			p.log.Errorf("send frame %d via %T: %v", f.Seq, t, err)
		}
	}
	return true
}

// Close stops the pump and closes every transport.
func (p *Pump) Close() error {
	if err := p.Stop(); err != nil {
		return err
	}
	var errs []error
	for _, t := range p.transports {
		if err := t.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %T: %w", t, err))
		}
	}
	return errors.Join(errs...)
}

var _ interface{ Close() error } = (*Pump)(nil)

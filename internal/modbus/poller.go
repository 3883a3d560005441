package modbus

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PollResult is handed to the poller callback once per target and cycle.
type PollResult struct {
	Target *Target
	Values map[string]float64
	Err    error
}

type Poller struct {
	targets  []*Target
	interval time.Duration
	pause    time.Duration
	handle   func(PollResult)
	logger   *zap.Logger
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

// NewPoller polls every target once per interval, waiting pause between two
// targets so simulated devices are not flooded.
func NewPoller(targets []*Target, interval, pause time.Duration, handle func(PollResult), logger *zap.Logger) *Poller {
	return &Poller{
		targets:  targets,
		interval: interval,
		pause:    pause,
		handle:   handle,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start startet das zyklische Polling
func (p *Poller) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}

	p.running = true
	p.wg.Add(1)

	go p.pollLoop()

	p.logger.Info("Poller started",
		zap.Int("targets", len(p.targets)),
		zap.Duration("interval", p.interval))

	return nil
}

// Stop stoppt das Polling
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	close(p.stopChan)
	p.wg.Wait()

	for _, t := range p.targets {
		t.Disconnect()
	}

	p.logger.Info("Poller stopped")
}

func (p *Poller) pollLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// erster Zyklus sofort
	p.PollOnce()

	for {
		select {
		case <-p.stopChan:
			return
		case <-ticker.C:
			p.PollOnce()
		}
	}
}

// PollOnce runs one cycle over all targets.
func (p *Poller) PollOnce() {
	for i, t := range p.targets {
		if i > 0 && p.pause > 0 {
			select {
			case <-p.stopChan:
				return
			case <-time.After(p.pause):
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), p.interval/2)
		values, err := t.ReadAll(ctx)
		cancel()

		if err != nil {
			p.logger.Error("Poll failed",
				zap.String("device", t.Key.String()),
				zap.String("address", t.Client.Address()),
				zap.Error(err))
			// reconnect next cycle
			t.Disconnect()
		}

		if p.handle != nil {
			p.handle(PollResult{Target: t, Values: values, Err: err})
		}
	}
}

func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

package sim

import (
	"fmt"
	"sync"
	"time"

	"github.com/KevinKickass/OpenFieldSim/internal/control"
	"github.com/KevinKickass/OpenFieldSim/internal/snapshot"
	"go.uber.org/zap"
)

// TickObserver is notified after every tick, successful or not.
type TickObserver interface {
	ObserveTick(e snapshot.Entry, duration time.Duration, err error)
}

type WorkerConfig struct {
	Address       string
	TickInterval  time.Duration
	ErrorCooldown time.Duration
}

// Worker drives one engine: consume command, step, publish, sleep. A failing
// tick marks the snapshot as errored and delays the next tick by the cooldown.
type Worker struct {
	engine   Engine
	plane    *control.Plane
	exporter *snapshot.Exporter
	observer TickObserver
	cfg      WorkerConfig
	logger   *zap.Logger
	now      func() time.Time

	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

func NewWorker(engine Engine, plane *control.Plane, exporter *snapshot.Exporter, cfg WorkerConfig, logger *zap.Logger) *Worker {
	return &Worker{
		engine:   engine,
		plane:    plane,
		exporter: exporter,
		cfg:      cfg,
		logger:   logger.With(zap.String("device", engine.Key().String())),
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
}

// SetObserver must be called before Start.
func (w *Worker) SetObserver(o TickObserver) {
	w.observer = o
}

// Start publishes the initial entry and starts the tick loop
func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return
	}

	entry := w.engine.Snapshot()
	entry.Address = w.cfg.Address
	entry.Status = snapshot.StatusInitializing
	entry.UpdatedAt = w.now()
	w.exporter.Publish(entry)

	w.running = true
	w.wg.Add(1)

	go w.loop()

	w.logger.Info("Worker started",
		zap.String("address", w.cfg.Address),
		zap.Duration("interval", w.cfg.TickInterval))
}

// Stop blocks until the current tick has finished. A stopped worker cannot be
// restarted.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopChan)
	w.wg.Wait()

	w.logger.Info("Worker stopped")
}

func (w *Worker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Worker) loop() {
	defer w.wg.Done()

	for {
		wait := w.cfg.TickInterval
		if err := w.tick(); err != nil {
			wait = w.cfg.ErrorCooldown
		}

		select {
		case <-w.stopChan:
			return
		case <-time.After(wait):
		}
	}
}

// tick runs one simulation step. Panics are turned into errors so the loop
// survives them.
func (w *Worker) tick() (err error) {
	started := w.now()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			w.logger.Error("Tick failed",
				zap.Duration("cooldown", w.cfg.ErrorCooldown),
				zap.Error(err))
			w.exporter.SetStatus(w.engine.Key(), snapshot.ErrorStatus(err), w.now())
		}
		if w.observer != nil {
			entry, _ := w.exporter.Get(w.engine.Key())
			w.observer.ObserveTick(entry, w.now().Sub(started), err)
		}
	}()

	var pending *control.Command
	if cmd, ok := w.plane.Consume(w.engine.Key()); ok {
		w.logger.Info("Command consumed",
			zap.String("command_id", cmd.ID.String()),
			zap.String("action", string(cmd.Action)))
		pending = &cmd
	}

	if err := w.engine.Step(pending, w.plane.Speed(), started); err != nil {
		return err
	}

	entry := w.engine.Snapshot()
	entry.Address = w.cfg.Address
	entry.Status = snapshot.StatusRunning
	w.exporter.Publish(entry)

	return nil
}

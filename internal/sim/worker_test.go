package sim

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/KevinKickass/OpenFieldSim/internal/control"
	"github.com/KevinKickass/OpenFieldSim/internal/snapshot"
	"github.com/KevinKickass/OpenFieldSim/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeEngine struct {
	key types.DeviceKey

	mu       sync.Mutex
	steps    int
	failures int
	panics   int
	commands []control.Command
}

func (f *fakeEngine) Key() types.DeviceKey { return f.key }

func (f *fakeEngine) Step(cmd *control.Command, speed float64, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.steps++
	if cmd != nil {
		f.commands = append(f.commands, *cmd)
	}
	if f.panics > 0 {
		f.panics--
		panic("register map corrupted")
	}
	if f.failures > 0 {
		f.failures--
		return errors.New("sensor offline")
	}
	return nil
}

func (f *fakeEngine) Snapshot() snapshot.Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return snapshot.Entry{Key: f.key, State: "Feeding", Power: float64(f.steps)}
}

func (f *fakeEngine) stepCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.steps
}

type recordingObserver struct {
	mu     sync.Mutex
	ticks  int
	errors int
}

func (o *recordingObserver) ObserveTick(_ snapshot.Entry, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ticks++
	if err != nil {
		o.errors++
	}
}

func newTestWorker(engine *fakeEngine, tick, cooldown time.Duration) (*Worker, *control.Plane, *snapshot.Exporter) {
	plane := control.NewPlane(zap.NewNop())
	plane.Register(engine.key)
	exporter := snapshot.NewExporter()
	w := NewWorker(engine, plane, exporter, WorkerConfig{
		Address:       "127.0.0.1:5021",
		TickInterval:  tick,
		ErrorCooldown: cooldown,
	}, zap.NewNop())
	return w, plane, exporter
}

func status(x *snapshot.Exporter, key types.DeviceKey) string {
	e, _ := x.Get(key)
	return e.Status
}

func TestWorkerPublishesInitializingThenRunning(t *testing.T) {
	engine := &fakeEngine{key: types.DeviceKey{Kind: types.DeviceKindPV, ID: 1}}
	w, _, exporter := newTestWorker(engine, time.Hour, time.Hour)

	w.now = func() time.Time { return testStart }
	entry := engine.Snapshot()
	entry.Status = snapshot.StatusInitializing
	exporter.Publish(entry)
	assert.Equal(t, snapshot.StatusInitializing, status(exporter, engine.key))

	require.NoError(t, w.tick())

	e, ok := exporter.Get(engine.key)
	require.True(t, ok)
	assert.Equal(t, snapshot.StatusRunning, e.Status)
	assert.Equal(t, "127.0.0.1:5021", e.Address)
}

func TestWorkerStartStop(t *testing.T) {
	engine := &fakeEngine{key: types.DeviceKey{Kind: types.DeviceKindPV, ID: 1}}
	w, _, exporter := newTestWorker(engine, 5*time.Millisecond, time.Second)

	w.Start()
	assert.True(t, w.IsRunning())

	require.Eventually(t, func() bool {
		return engine.stepCount() >= 3
	}, time.Second, time.Millisecond)
	assert.Equal(t, snapshot.StatusRunning, status(exporter, engine.key))

	w.Stop()
	assert.False(t, w.IsRunning())

	stopped := engine.stepCount()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, engine.stepCount())

	// second stop is a no-op
	w.Stop()
}

func TestWorkerErrorCooldownAndRecovery(t *testing.T) {
	engine := &fakeEngine{
		key:      types.DeviceKey{Kind: types.DeviceKindWallbox, ID: 2},
		failures: 1,
	}
	w, _, exporter := newTestWorker(engine, 5*time.Millisecond, 200*time.Millisecond)
	observer := &recordingObserver{}
	w.SetObserver(observer)

	w.Start()
	defer w.Stop()

	require.Eventually(t, func() bool {
		return strings.HasPrefix(status(exporter, engine.key), "Error: ")
	}, time.Second, time.Millisecond)
	assert.Equal(t, "Error: sensor offline", status(exporter, engine.key))

	// still cooling down
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, engine.stepCount())

	require.Eventually(t, func() bool {
		return status(exporter, engine.key) == snapshot.StatusRunning
	}, 2*time.Second, 5*time.Millisecond)

	observer.mu.Lock()
	defer observer.mu.Unlock()
	assert.Equal(t, 1, observer.errors)
	assert.GreaterOrEqual(t, observer.ticks, 2)
}

func TestWorkerRecoversFromPanic(t *testing.T) {
	engine := &fakeEngine{
		key:    types.DeviceKey{Kind: types.DeviceKindPV, ID: 7},
		panics: 1,
	}
	w, _, exporter := newTestWorker(engine, time.Hour, time.Hour)

	err := w.tick()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "register map corrupted")
	assert.True(t, strings.HasPrefix(status(exporter, engine.key), "Error: panic"))

	require.NoError(t, w.tick())
	assert.Equal(t, snapshot.StatusRunning, status(exporter, engine.key))
}

func TestWorkerConsumesPendingCommandOnce(t *testing.T) {
	engine := &fakeEngine{key: types.DeviceKey{Kind: types.DeviceKindWallbox, ID: 3}}
	w, plane, _ := newTestWorker(engine, time.Hour, time.Hour)

	_, err := plane.Submit(engine.key, control.ActionStopCharging, nil)
	require.NoError(t, err)
	_, err = plane.Submit(engine.key, control.ActionStartCharging, nil)
	require.NoError(t, err)

	require.NoError(t, w.tick())
	require.NoError(t, w.tick())

	engine.mu.Lock()
	defer engine.mu.Unlock()
	require.Len(t, engine.commands, 1)
	assert.Equal(t, control.ActionStartCharging, engine.commands[0].Action)
}

package sim

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/KevinKickass/OpenFieldSim/internal/control"
	"github.com/KevinKickass/OpenFieldSim/internal/registers"
	"github.com/KevinKickass/OpenFieldSim/internal/snapshot"
	"github.com/KevinKickass/OpenFieldSim/internal/types"
)

// Engine advances the model of one device. Step is only ever called from the
// device's own worker; cmd is the out-of-band command consumed for this tick,
// or nil.
type Engine interface {
	Key() types.DeviceKey
	Step(cmd *control.Command, speed float64, now time.Time) error
	Snapshot() snapshot.Entry
}

// jitter returns a uniformly distributed value in [-amplitude, amplitude].
func jitter(rng *rand.Rand, amplitude float64) float64 {
	if amplitude == 0 {
		return 0
	}
	return (rng.Float64()*2 - 1) * amplitude
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + rng.Float64()*(hi-lo)
}

// emit writes every read-only field of the map that has a value. Command
// registers are owned by the fieldbus master and left alone.
func emit(store *registers.Store, fields []registers.Field, values map[string]float64) error {
	for _, f := range fields {
		if f.Access != registers.AccessTypeReadOnly {
			continue
		}
		v, ok := values[f.Name]
		if !ok {
			continue
		}
		if err := store.WriteField(f, v); err != nil {
			return fmt.Errorf("write %s: %w", f.Name, err)
		}
	}
	return nil
}

type day struct {
	year  int
	month time.Month
	day   int
}

func dayOf(t time.Time) day {
	y, m, d := t.Date()
	return day{year: y, month: m, day: d}
}

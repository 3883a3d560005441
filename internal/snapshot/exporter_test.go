package snapshot

import (
	"errors"
	"testing"
	"time"

	"github.com/KevinKickass/OpenFieldSim/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(kind types.DeviceKind, id int) types.DeviceKey {
	return types.DeviceKey{Kind: kind, ID: id}
}

func TestListOrderedByKindThenID(t *testing.T) {
	x := NewExporter()
	x.Publish(Entry{Key: key(types.DeviceKindWallbox, 1)})
	x.Publish(Entry{Key: key(types.DeviceKindPV, 10)})
	x.Publish(Entry{Key: key(types.DeviceKindPV, 2)})
	x.Publish(Entry{Key: key(types.DeviceKindWallbox, 0)})

	got := x.List()
	require.Len(t, got, 4)
	assert.Equal(t, "pv/2", got[0].Key.String())
	assert.Equal(t, "pv/10", got[1].Key.String())
	assert.Equal(t, "wallbox/0", got[2].Key.String())
	assert.Equal(t, "wallbox/1", got[3].Key.String())
}

func TestEntriesAreCopies(t *testing.T) {
	x := NewExporter()
	values := map[string]float64{"soc": 30}
	x.Publish(Entry{Key: key(types.DeviceKindWallbox, 1), Values: values})

	values["soc"] = 99

	e, ok := x.Get(key(types.DeviceKindWallbox, 1))
	require.True(t, ok)
	assert.Equal(t, 30.0, e.Values["soc"])

	e.Values["soc"] = 77
	again, _ := x.Get(key(types.DeviceKindWallbox, 1))
	assert.Equal(t, 30.0, again.Values["soc"])

	_, ok = x.Get(key(types.DeviceKindPV, 1))
	assert.False(t, ok)
}

func TestSetStatusKeepsValues(t *testing.T) {
	x := NewExporter()
	k := key(types.DeviceKindPV, 3)
	x.Publish(Entry{Key: k, Status: StatusRunning, Power: 4200})

	x.SetStatus(k, ErrorStatus(errors.New("boom")), time.Unix(100, 0))

	e, _ := x.Get(k)
	assert.Equal(t, "Error: boom", e.Status)
	assert.False(t, e.Healthy())
	assert.Equal(t, 4200.0, e.Power)
}

func TestSubscribeReceivesPublished(t *testing.T) {
	x := NewExporter()
	ch := x.Subscribe()

	x.Publish(Entry{Key: key(types.DeviceKindPV, 1), Status: StatusRunning})

	select {
	case e := <-ch:
		assert.Equal(t, 1, e.Key.ID)
		assert.True(t, e.Healthy())
	case <-time.After(time.Second):
		t.Fatal("no entry received")
	}

	x.Unsubscribe(ch)
	_, open := <-ch
	assert.False(t, open)

	// Publishing after unsubscribe must not panic.
	x.Publish(Entry{Key: key(types.DeviceKindPV, 1)})
}

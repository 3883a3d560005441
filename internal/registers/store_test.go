package registers

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit32(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		wantHigh uint16
		wantLow  uint16
	}{
		{"zero", 0, 0, 0},
		{"low word only", 0xBEEF, 0, 0xBEEF},
		{"both words", 0x12345678, 0x1234, 0x5678},
		{"fraction truncated", 65536.99, 1, 0},
		{"max uint32", math.MaxUint32, 0xFFFF, 0xFFFF},
		{"wraps modulo 2^32", 1<<32 + 5, 0, 5},
		{"negative clamps", -12, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			high, low := Split32(tt.value)
			assert.Equal(t, tt.wantHigh, high)
			assert.Equal(t, tt.wantLow, low)
		})
	}
}

func TestSplitJoinRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	for i := 0; i < 1000; i++ {
		high := uint16(rng.UintN(1 << 16))
		low := uint16(rng.UintN(1 << 16))

		gotHigh, gotLow := Split32(float64(Join32(high, low)))
		require.Equal(t, high, gotHigh)
		require.Equal(t, low, gotLow)

		v := rng.Uint64N(1 << 40)
		require.Equal(t, uint32(v%(1<<32)), Join32(Split32(float64(v))))
	}
}

func TestScale16(t *testing.T) {
	assert.Equal(t, uint16(2301), Scale16(230.19, 10))
	assert.Equal(t, uint16(99), Scale16(0.999, 100))
	assert.Equal(t, uint16(0), Scale16(-3.2, 1))
	assert.Equal(t, uint16(math.MaxUint16), Scale16(70000, 1))
	assert.Equal(t, uint16(0), Scale16(math.NaN(), 1))
}

func TestStoreWriteRead(t *testing.T) {
	store := NewStore(10)

	require.NoError(t, store.Write(2, 7, 8, 9))

	values, err := store.Read(1, 4)
	require.NoError(t, err)
	assert.Equal(t, []uint16{0, 7, 8, 9}, values)

	values[0] = 42
	again, err := store.Read(1, 1)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), again[0], "read must return a copy")
}

func TestStoreBounds(t *testing.T) {
	store := NewStore(10)

	err := store.Write(9, 1, 2)
	assert.ErrorIs(t, err, ErrOutOfRange)

	_, err = store.Read(8, 3)
	assert.ErrorIs(t, err, ErrOutOfRange)

	assert.Equal(t, 10, store.Size())
}

func TestStoreFields(t *testing.T) {
	store := NewStore(DefaultSize)

	voltage := MustLookup(PVMap, "ac_voltage_l1")
	require.NoError(t, store.WriteField(voltage, 231.47))
	raw, err := store.ReadOne(PVVoltageL1)
	require.NoError(t, err)
	assert.Equal(t, uint16(2314), raw)

	daily := MustLookup(PVMap, "daily_yield")
	require.NoError(t, store.WriteField(daily, 123456.7))
	cells, err := store.Read(PVDailyYield, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint16{1, 57920}, cells)

	value, err := store.ReadField(daily)
	require.NoError(t, err)
	assert.Equal(t, 123456.0, value)

	value, err = store.ReadField(voltage)
	require.NoError(t, err)
	assert.InDelta(t, 231.4, value, 1e-9)
}

func TestRegisterMapsFitDefaultStore(t *testing.T) {
	for _, fields := range [][]Field{PVMap, WallboxMap} {
		seen := map[uint16]string{}
		for _, f := range fields {
			for i := uint16(0); i < f.Width.Cells(); i++ {
				addr := f.Address + i
				require.Less(t, int(addr), DefaultSize, f.Name)
				prev, dup := seen[addr]
				require.False(t, dup, "%s overlaps %s", f.Name, prev)
				seen[addr] = f.Name
			}
		}
	}
}

func TestLookup(t *testing.T) {
	f, ok := Lookup(WallboxMap, "soc")
	require.True(t, ok)
	assert.Equal(t, WallboxSoC, f.Address)

	_, ok = Lookup(WallboxMap, "nope")
	assert.False(t, ok)

	assert.Panics(t, func() { MustLookup(PVMap, "nope") })
}

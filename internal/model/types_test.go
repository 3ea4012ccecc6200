package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVehicleFits(t *testing.T) {
	v := &Vehicle{Capacity: []float64{8, 0}, CapacityConfigs: [][]float64{{4, 1}}}
	assert.True(t, v.Fits([]float64{8, 0}))
	assert.True(t, v.Fits([]float64{3, 1}), "alternative layout")
	assert.False(t, v.Fits([]float64{5, 1}))
	assert.False(t, v.Fits([]float64{0, 2}))

	unlimited := &Vehicle{}
	assert.True(t, unlimited.Fits([]float64{1e9}))

	short := &Vehicle{Capacity: []float64{10}}
	assert.True(t, short.Fits([]float64{10, 99}), "extra dimensions are unconstrained")
}

func TestParseLockPosition(t *testing.T) {
	for in, want := range map[string]LockPosition{"": LockAny, "Departure": LockDeparture, "arrival": LockArrival, " fixed ": LockFixed} {
		got, err := ParseLockPosition(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.NotEmpty(t, got.String())
	}
	_, err := ParseLockPosition("middle")
	assert.Error(t, err)
}

func TestTimeWindowContains(t *testing.T) {
	tw := TimeWindow{Start: 10, End: 20}
	assert.True(t, tw.Contains(10))
	assert.True(t, tw.Contains(20))
	assert.False(t, tw.Contains(21))
}

package networktime

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

const epsilon = 0.000001

func approximately(a, b, epsilon float64) bool {
	return math.Abs(a-b) <= epsilon
}

func TestNewFailsForInvalidTickRate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		time     float64
		tickRate int
	}{
		{time: 0, tickRate: 0},
		{time: 5, tickRate: 0},
		{time: -5, tickRate: 0},
		{time: 0, tickRate: -20},
		{time: 5, tickRate: math.MinInt},
		{time: -5, tickRate: -1},
		{time: math.NaN(), tickRate: -1},
	}

	for _, tt := range tests {
		_, err := New(tt.tickRate, tt.time)
		assert.Truef(t, errors.Is(err, ErrInvalidConfiguration), "time=%v tickRate=%d err=%v", tt.time, tt.tickRate, err)
	}
}

func TestNewFailsForNonFiniteTime(t *testing.T) {
	t.Parallel()

	for _, tickRate := range []int{1, 20, 60, 144} {
		for _, time := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
			_, err := New(tickRate, time)
			assert.Truef(t, errors.Is(err, ErrInvalidValue), "time=%v tickRate=%d err=%v", time, tickRate, err)
		}
	}

	_, err := New(60, math.MaxFloat64)
	assert.True(t, errors.Is(err, ErrInvalidValue))
}

func TestMustNew(t *testing.T) {
	t.Parallel()

	assert.NotPanics(t, func() { MustNew(60, 1) })
	assert.Panics(t, func() { MustNew(0, 1) })
}

func TestNewScenarios(t *testing.T) {
	t.Parallel()

	t.Run("zero time", func(t *testing.T) {
		t.Parallel()

		networkTime := MustNew(60, 0)

		assert.Equal(t, int64(0), networkTime.Tick())
		assert.Equal(t, 0.0, networkTime.TickOffset())
		assert.InDelta(t, 0.016667, networkTime.FixedDeltaTime(), 0.000001)
		assert.Equal(t, 60, networkTime.TickRate())
	})

	t.Run("mid tick", func(t *testing.T) {
		t.Parallel()

		networkTime := MustNew(60, 17.32)

		assert.Equal(t, int64(1039), networkTime.Tick())
		assert.InDelta(t, 0.003333, networkTime.TickOffset(), 0.000001)
	})

	t.Run("negative time floors toward negative infinity", func(t *testing.T) {
		t.Parallel()

		networkTime := MustNew(60, -42.44)

		assert.Equal(t, int64(-2547), networkTime.Tick())
		assert.True(t, networkTime.TickOffset() >= 0)
	})

	t.Run("exact tick boundary has no offset", func(t *testing.T) {
		t.Parallel()

		networkTime := MustNew(10, -6)

		assert.Equal(t, int64(-60), networkTime.Tick())
		assert.Equal(t, 0.0, networkTime.TickOffset())
	})
}

func TestNetworkTimeCreate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		time       float64
		tickOffset float64
		epsilon    float64
	}{
		{time: 34, tickOffset: 0, epsilon: 0.0001},
		{time: 17.32, tickOffset: 0.2 / 60, epsilon: 0.0001},
		{time: -42.44, tickOffset: 1.0/60 - 0.4/60, epsilon: 0.0001},
		{time: -6, tickOffset: 0, epsilon: 0.0001},
		{time: math.MaxInt32 / 61.0, tickOffset: 0.00082, epsilon: 10},
	}

	for _, tt := range tests {
		networkTime := MustNew(60, tt.time)

		assert.True(t, approximately(tt.time, networkTime.Time(), epsilon))
		assert.True(t, approximately(float64(networkTime.Tick())*networkTime.FixedDeltaTime()+networkTime.TickOffset(), networkTime.Time(), tt.epsilon))
		assert.Truef(t, approximately(networkTime.TickOffset(), tt.tickOffset, epsilon), "time=%v offset=%v", tt.time, networkTime.TickOffset())
	}
}

func TestZeroValue(t *testing.T) {
	t.Parallel()

	var networkTime NetworkTime

	assert.Equal(t, 0.0, networkTime.Time())
	assert.Equal(t, int64(0), networkTime.Tick())
	assert.Equal(t, 0.0, networkTime.TickOffset())
	assert.Equal(t, DefaultTickRate, networkTime.TickRate())
	assert.Equal(t, float32(0), networkTime.TimeAsFloat())

	advanced, err := networkTime.AddSeconds(1)
	assert.NoError(t, err)
	assert.Equal(t, int64(DefaultTickRate), advanced.Tick())
}

func TestTimeAsFloat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		time     float64
		expected float32
	}{
		{time: 0, expected: 0},
		{time: 201, expected: 201},
		{time: -4301, expected: -4301},
		{time: math.MaxFloat32, expected: math.MaxFloat32},
	}

	for _, tt := range tests {
		for _, tickRate := range []int{20, 30, 60} {
			assert.Equal(t, tt.expected, MustNew(tickRate, tt.time).TimeAsFloat())
		}
	}

	assert.InDelta(t, 17.32, float64(MustNew(60, 17.32).TimeAsFloat()), 0.00001)
}

func TestToFixedTime(t *testing.T) {
	t.Parallel()

	tests := []struct {
		time              float64
		expectedFixedTime float64
		tickRate          int
	}{
		{time: 53.55, expectedFixedTime: 53.5, tickRate: 10},
		{time: 1013553.55, expectedFixedTime: 1013553.5, tickRate: 10},
		{time: 0, expectedFixedTime: 0, tickRate: 10},
		{time: -27.41, expectedFixedTime: -27.5, tickRate: 10},

		{time: 53.55, expectedFixedTime: 53.54, tickRate: 50},
		{time: 1013553.55, expectedFixedTime: 1013553.54, tickRate: 50},
		{time: 0, expectedFixedTime: 0, tickRate: 50},
		{time: -27.4133, expectedFixedTime: -27.42, tickRate: 50},
	}

	for _, tt := range tests {
		fixed := MustNew(tt.tickRate, tt.time).ToFixedTime()

		assert.Equal(t, tt.expectedFixedTime, fixed.Time())
		assert.Equal(t, 0.0, fixed.TickOffset())
		assert.Equal(t, tt.tickRate, fixed.TickRate())
		assert.Equal(t, MustNew(tt.tickRate, tt.time).Tick(), fixed.Tick())
	}
}

func TestAddAndSubSeconds(t *testing.T) {
	t.Parallel()

	operands := []float64{17.32, 34, -42.4, -6, math.MaxInt32 / 61.0}

	const a = 34.0

	for _, operand := range operands {
		networkTime := MustNew(60, a)

		sum, err := networkTime.AddSeconds(operand)
		assert.NoError(t, err)
		assert.True(t, approximately(a+operand, sum.Time(), epsilon))

		difference, err := networkTime.SubSeconds(operand)
		assert.NoError(t, err)
		assert.True(t, approximately(a-operand, difference.Time(), epsilon))
	}

	sum, err := MustNew(60, 34).AddSeconds(17.32)
	assert.NoError(t, err)
	assert.InDelta(t, 51.32, sum.Time(), epsilon)
	assert.Equal(t, int64(3079), sum.Tick())
}

func TestAddAndSubNetworkTime(t *testing.T) {
	t.Parallel()

	operands := []float64{17.32, 34, -42.4, -6, math.MaxInt32 / 61.0}

	const a = 34.0

	for _, operand := range operands {
		networkTime := MustNew(60, a)
		other := MustNew(60, operand)

		sum, err := networkTime.Add(other)
		assert.NoError(t, err)
		assert.True(t, approximately(a+operand, sum.Time(), epsilon))

		difference, err := networkTime.Sub(other)
		assert.NoError(t, err)
		assert.True(t, approximately(a-operand, difference.Time(), epsilon))
	}
}

func TestArithmeticOverflowIsInvalidValue(t *testing.T) {
	t.Parallel()

	networkTime := MustNew(1, math.MaxFloat64/2)

	_, err := networkTime.AddSeconds(math.MaxFloat64)
	assert.True(t, errors.Is(err, ErrInvalidValue))

	_, err = networkTime.AddSeconds(math.NaN())
	assert.True(t, errors.Is(err, ErrInvalidValue))
}

func TestCombiningDifferentTickRates(t *testing.T) {
	t.Parallel()

	a := MustNew(60, 10)
	b := MustNew(30, 5)

	_, err := a.Add(b)
	assert.True(t, errors.Is(err, ErrIncompatibleRate))

	_, err = a.Sub(b)
	assert.True(t, errors.Is(err, ErrIncompatibleRate))

	converted, err := b.ConvertTo(60)
	assert.NoError(t, err)
	assert.Equal(t, int64(300), converted.Tick())

	sum, err := a.Add(converted)
	assert.NoError(t, err)
	assert.Equal(t, 15.0, sum.Time())

	// The zero value combines with values at the default rate.
	sum, err = NetworkTime{}.Add(MustNew(DefaultTickRate, 2))
	assert.NoError(t, err)
	assert.Equal(t, 2.0, sum.Time())

	_, err = b.ConvertTo(0)
	assert.True(t, errors.Is(err, ErrInvalidConfiguration))
}

func TestFromTick(t *testing.T) {
	t.Parallel()

	t.Run("keeps the given tick and offset", func(t *testing.T) {
		t.Parallel()

		for tick := int64(-1000); tick <= 1000; tick++ {
			networkTime, err := FromTick(60, tick, 0)
			assert.NoError(t, err)
			assert.Equal(t, tick, networkTime.Tick())
			assert.Equal(t, 0.0, networkTime.TickOffset())
		}

		networkTime, err := FromTick(10, 535, 0.05)
		assert.NoError(t, err)
		assert.Equal(t, int64(535), networkTime.Tick())
		assert.InDelta(t, 53.55, networkTime.Time(), epsilon)
	})

	t.Run("folds an out of range offset into the time", func(t *testing.T) {
		t.Parallel()

		networkTime, err := FromTick(10, 5, 0.25)
		assert.NoError(t, err)
		assert.Equal(t, int64(7), networkTime.Tick())
		assert.InDelta(t, 0.05, networkTime.TickOffset(), epsilon)

		networkTime, err = FromTick(10, 5, -0.05)
		assert.NoError(t, err)
		assert.Equal(t, int64(4), networkTime.Tick())
		assert.InDelta(t, 0.05, networkTime.TickOffset(), epsilon)
	})

	t.Run("boundaries whose product rounds down keep their tick", func(t *testing.T) {
		t.Parallel()

		// 7/71*71 is 6.999... in float64.
		networkTime, err := FromTick(71, 7, 0)
		assert.NoError(t, err)
		assert.Equal(t, int64(7), networkTime.Tick())
		assert.Equal(t, int64(7), MustNew(71, networkTime.Time()).Tick())
		assert.Equal(t, int64(7), networkTime.ToFixedTime().Tick())
	})

	t.Run("validates its inputs", func(t *testing.T) {
		t.Parallel()

		_, err := FromTick(0, 1, 0)
		assert.True(t, errors.Is(err, ErrInvalidConfiguration))

		_, err = FromTick(60, 1, math.Inf(1))
		assert.True(t, errors.Is(err, ErrInvalidValue))
	})
}

func TestTickSaturatesForHugeTimes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int64(math.MaxInt64), MustNew(60, math.MaxFloat32).Tick())
	assert.Equal(t, int64(math.MinInt64), MustNew(60, -math.MaxFloat32).Tick())
	assert.Equal(t, 0.0, MustNew(60, math.MaxFloat32).TickOffset())
}

func TestCompareAndApproxEqual(t *testing.T) {
	t.Parallel()

	a := MustNew(60, 1)
	b := MustNew(60, 2)

	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, 1, b.Compare(a))
	assert.Equal(t, 0, a.Compare(MustNew(30, 1)))

	assert.True(t, a.ApproxEqual(MustNew(60, 1+epsilon/2), epsilon))
	assert.False(t, a.ApproxEqual(b, epsilon))
	assert.False(t, a.ApproxEqual(MustNew(30, 1), epsilon))
}

func TestStringAndLogObject(t *testing.T) {
	t.Parallel()

	networkTime := MustNew(60, 17.32)

	assert.Equal(t, "tick=1039 offset=0.003333 rate=60", networkTime.String())

	encoder := zapcore.NewMapObjectEncoder()
	assert.NoError(t, networkTime.MarshalLogObject(encoder))
	assert.Equal(t, 60, encoder.Fields["tickRate"])
	assert.Equal(t, int64(1039), encoder.Fields["tick"])
	assert.Equal(t, 17.32, encoder.Fields["time"])
}

func TestProductTieSnapsToTheNextBoundary(t *testing.T) {
	t.Parallel()

	// -5.55e-17 + 1 rounds to 1, a whole tick at 1Hz.
	networkTime := MustNew(1, -5.55e-17)
	assert.Equal(t, int64(0), networkTime.Tick())
	assert.Equal(t, 0.0, networkTime.TickOffset())

	fixed := networkTime.ToFixedTime()
	assert.Equal(t, 0.0, fixed.Time())
	// The boundary overshoots the time by less than one ulp of a tick.
	assert.Less(t, fixed.Time()-networkTime.Time(), math.Nextafter(1, 2)-1)
}

package oven

import (
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"kiln_controller/internal/clock"
	"kiln_controller/internal/heater"
	"kiln_controller/internal/models"
	"kiln_controller/internal/pid"
	"kiln_controller/internal/schedule"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

var epoch = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

type thermometer struct{ v *atomic.Float64 }

func newThermometer(v float64) thermometer { return thermometer{v: atomic.NewFloat64(v)} }

func (t thermometer) Temperature() float64 { return t.v.Load() }

type countingOutput struct {
	writes *atomic.Int64
	last   *atomic.Bool
}

func newCountingOutput() countingOutput {
	return countingOutput{writes: atomic.NewInt64(0), last: atomic.NewBool(false)}
}

func (o countingOutput) Write(high bool) error {
	o.writes.Inc()
	o.last.Store(high)
	return nil
}

type rig struct {
	oven  *Oven
	clock *clock.Manual
	temp  thermometer
	out   countingOutput
}

func newRig(t *testing.T, cfg Config, opts ...Option) *rig {
	t.Helper()
	clk := clock.NewManual(epoch)
	temp := newThermometer(20)
	out := newCountingOutput()
	act := heater.New(out, clk, nil)
	o, err := New(cfg, temp, act, clk, nil, opts...)
	require.NoError(t, err)
	return &rig{oven: o, clock: clk, temp: temp, out: out}
}

// period runs one control period including its trailing sleep.
func (r *rig) period() {
	ctx := context.Background()
	rest := r.oven.step(ctx)
	_ = r.clock.Sleep(ctx, rest)
}

func longProfile(t *testing.T) schedule.Profile {
	t.Helper()
	p, err := schedule.NewWaypoint("long", [][]float64{{1, 1000}, {1e6, 1000}})
	require.NoError(t, err)
	return p
}

var fullHeat = Config{TimeStep: time.Second, Gains: pid.Gains{Kp: 1}}

func TestNew_RejectsZeroTimeStep(t *testing.T) {
	_, err := New(Config{}, newThermometer(0), heater.New(nil, nil, nil), nil, nil)
	assert.ErrorIs(t, err, ErrInvalidTimeStep)
}

func TestRunProfile_Nil(t *testing.T) {
	r := newRig(t, fullHeat)
	assert.ErrorIs(t, r.oven.RunProfile(nil), ErrNoProfile)
	assert.Equal(t, string(Idle), r.oven.State().State)
}

func TestIdle_SleepsFullPeriodWithoutTouchingHeater(t *testing.T) {
	r := newRig(t, fullHeat)
	assert.Equal(t, time.Second, r.oven.step(context.Background()))
	assert.Zero(t, r.out.writes.Load())
}

func TestRunaway_TripsAfterLimit(t *testing.T) {
	r := newRig(t, fullHeat)
	require.NoError(t, r.oven.RunProfile(longProfile(t)))
	r.clock.Advance(time.Second)

	for i := 0; i < RunawayLimit; i++ {
		r.period()
	}
	st := r.oven.State()
	require.Equal(t, string(Running), st.State)
	assert.Equal(t, 1.0, st.Heat)

	r.period()
	st = r.oven.State()
	assert.Equal(t, string(Idle), st.State)
	assert.Zero(t, st.Heat)
	assert.Empty(t, st.Profile)
	assert.False(t, r.out.last.Load())
}

func TestRunaway_ChangeResetsCounter(t *testing.T) {
	r := newRig(t, fullHeat)
	require.NoError(t, r.oven.RunProfile(longProfile(t)))
	r.clock.Advance(time.Second)

	for i := 0; i < RunawayLimit; i++ {
		r.period()
	}
	r.temp.v.Store(20.25)
	for i := 0; i < RunawayLimit; i++ {
		r.period()
	}
	assert.Equal(t, string(Running), r.oven.State().State)
}

func TestRunaway_AppliesToRampHold(t *testing.T) {
	r := newRig(t, fullHeat)
	p, err := schedule.NewRampHold("slow", [][]float64{{50, 1200, 60}}, schedule.Celsius)
	require.NoError(t, err)
	require.NoError(t, r.oven.RunProfile(p))
	r.clock.Advance(time.Hour) // setpoint well above the stuck reading

	for i := 0; i <= RunawayLimit; i++ {
		r.period()
	}
	assert.Equal(t, string(Idle), r.oven.State().State)
}

func TestRun_CompletesAndResets(t *testing.T) {
	r := newRig(t, Config{TimeStep: time.Second, Gains: pid.Gains{Kp: 0.01}})
	p, err := schedule.NewWaypoint("short", [][]float64{{10, 100}})
	require.NoError(t, err)
	r.temp.v.Store(0)
	require.NoError(t, r.oven.RunProfile(p))

	r.clock.Advance(5 * time.Second)
	rest := r.oven.step(context.Background())
	assert.Equal(t, 500*time.Millisecond, rest)

	st := r.oven.State()
	assert.Equal(t, string(Running), st.State)
	assert.Equal(t, "short", st.Profile)
	assert.NotEmpty(t, st.RunID)
	assert.InDelta(t, 50.0, st.Target, 1e-9)
	assert.InDelta(t, 5.0, st.Runtime, 1e-9)
	assert.InDelta(t, 0.5, st.Heat, 1e-9)
	assert.Equal(t, 10.0, st.TotalTime)

	r.temp.v.Store(100)
	r.clock.Advance(5 * time.Second)
	r.oven.step(context.Background())

	st = r.oven.State()
	assert.Equal(t, string(Idle), st.State)
	assert.Empty(t, st.RunID)
	assert.Zero(t, st.Runtime)
	assert.False(t, r.out.last.Load())
}

func TestState_Idempotent(t *testing.T) {
	r := newRig(t, fullHeat)
	require.NoError(t, r.oven.RunProfile(longProfile(t)))
	r.clock.Advance(time.Second)
	r.period()

	first := r.oven.State()
	assert.Equal(t, first, r.oven.State())
	assert.Equal(t, first, r.oven.State())
}

func TestAbortRun(t *testing.T) {
	r := newRig(t, fullHeat)
	require.NoError(t, r.oven.RunProfile(longProfile(t)))
	r.clock.Advance(time.Second)
	r.period()

	r.oven.AbortRun()
	st := r.oven.State()
	assert.Equal(t, string(Idle), st.State)
	assert.Zero(t, st.Target)
	assert.False(t, r.out.last.Load())

	// Abort while idle is harmless.
	r.oven.AbortRun()
	assert.Equal(t, string(Idle), r.oven.State().State)
}

func TestRunProfile_NewRunGetsNewID(t *testing.T) {
	r := newRig(t, fullHeat)
	require.NoError(t, r.oven.RunProfile(longProfile(t)))
	first := r.oven.State().RunID
	require.NoError(t, r.oven.RunProfile(longProfile(t)))
	assert.NotEqual(t, first, r.oven.State().RunID)
}

func TestSimulate_FixedRuntimeStep(t *testing.T) {
	r := newRig(t, Config{TimeStep: time.Second, Gains: pid.Gains{Kp: 1}, Simulate: true, RuntimeStep: 10 * time.Second})
	require.NoError(t, r.oven.RunProfile(longProfile(t)))
	r.clock.Advance(time.Second)

	for i := 0; i < 3; i++ {
		r.period()
	}
	assert.InDelta(t, 30.0, r.oven.State().Runtime, 1e-9)
}

func TestPIDSampleTooSoon_KeepsHeatOff(t *testing.T) {
	r := newRig(t, fullHeat)
	require.NoError(t, r.oven.RunProfile(longProfile(t)))

	// No time has passed since the run started.
	assert.Equal(t, time.Second, r.oven.step(context.Background()))
	assert.Zero(t, r.oven.State().Heat)
	assert.False(t, r.out.last.Load())
}

func TestRun_ObserverAndShutdown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var seen []models.OvenStatus
	r := newRig(t, fullHeat, WithObserver(func(st models.OvenStatus) {
		seen = append(seen, st)
		if len(seen) == 5 {
			cancel()
		}
	}))
	require.NoError(t, r.oven.RunProfile(longProfile(t)))
	r.clock.Advance(time.Second)

	require.NoError(t, r.oven.Run(ctx))
	require.Len(t, seen, 5)
	assert.Equal(t, string(Running), seen[4].State)
	assert.False(t, r.out.last.Load())
}

func TestNonFiniteReading_NoHeatAndTrips(t *testing.T) {
	r := newRig(t, fullHeat)
	require.NoError(t, r.oven.RunProfile(longProfile(t)))
	r.clock.Advance(time.Second)
	r.temp.v.Store(21) // moved, so the stall count starts at zero
	r.period()
	require.Equal(t, 1.0, r.oven.State().Heat)

	r.temp.v.Store(math.NaN())
	for i := 0; i < RunawayLimit; i++ {
		r.period()
		if i == 0 {
			st := r.oven.State()
			assert.Equal(t, string(Running), st.State)
			assert.Zero(t, st.Heat)
			assert.False(t, r.out.last.Load())
		}
	}
	require.Equal(t, string(Running), r.oven.State().State)

	r.period()
	st := r.oven.State()
	assert.Equal(t, string(Idle), st.State)
	assert.Zero(t, st.Heat)
	assert.False(t, r.out.last.Load())
}

func TestNonFiniteReading_StateStillEncodes(t *testing.T) {
	r := newRig(t, fullHeat)
	require.NoError(t, r.oven.RunProfile(longProfile(t)))
	r.clock.Advance(time.Second)
	r.period()

	for _, v := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		r.temp.v.Store(v)
		r.period()

		st := r.oven.State()
		assert.Equal(t, 20.0, st.Temperature)
		_, err := json.Marshal(st)
		require.NoError(t, err)
	}
}

func TestNonFiniteReading_RecoveryLeavesControllerFinite(t *testing.T) {
	r := newRig(t, Config{TimeStep: time.Second, Gains: pid.Gains{Kp: 0.001, Ki: 0.0001, Kd: 0.01}})
	require.NoError(t, r.oven.RunProfile(longProfile(t)))
	r.clock.Advance(time.Second)
	r.period()

	r.temp.v.Store(math.NaN())
	for i := 0; i < 10; i++ {
		r.period()
	}
	r.temp.v.Store(25)
	r.period()

	st := r.oven.State()
	require.Equal(t, string(Running), st.State)
	assert.False(t, math.IsNaN(st.Heat))
	assert.Greater(t, st.Heat, 0.0)
	assert.LessOrEqual(t, st.Heat, 1.0)
	assert.False(t, math.IsNaN(r.oven.pid.Integrator()))
	assert.False(t, math.IsInf(r.oven.pid.Integrator(), 0))
}

func TestObserver_SeesRunawayTrip(t *testing.T) {
	var seen []models.OvenStatus
	r := newRig(t, fullHeat, WithObserver(func(st models.OvenStatus) {
		seen = append(seen, st)
	}))
	require.NoError(t, r.oven.RunProfile(longProfile(t)))
	r.clock.Advance(time.Second)

	for i := 0; i <= RunawayLimit; i++ {
		r.period()
	}
	require.Len(t, seen, RunawayLimit+1)
	assert.Equal(t, string(Running), seen[RunawayLimit-1].State)
	last := seen[RunawayLimit]
	assert.Equal(t, string(Idle), last.State)
	assert.Empty(t, last.RunID)
	assert.Zero(t, last.Heat)
}

func TestObserver_SeesAbortOnce(t *testing.T) {
	var seen []models.OvenStatus
	r := newRig(t, fullHeat, WithObserver(func(st models.OvenStatus) {
		seen = append(seen, st)
	}))
	require.NoError(t, r.oven.RunProfile(longProfile(t)))
	r.clock.Advance(time.Second)
	r.period()

	r.oven.AbortRun()
	r.oven.AbortRun()
	require.Len(t, seen, 2)
	assert.Equal(t, string(Running), seen[0].State)
	assert.Equal(t, string(Idle), seen[1].State)
}

func TestObserver_SeesCompletion(t *testing.T) {
	var seen []models.OvenStatus
	r := newRig(t, Config{TimeStep: time.Second, Gains: pid.Gains{Kp: 0.01}}, WithObserver(func(st models.OvenStatus) {
		seen = append(seen, st)
	}))
	p, err := schedule.NewWaypoint("short", [][]float64{{10, 100}})
	require.NoError(t, err)
	require.NoError(t, r.oven.RunProfile(p))

	r.temp.v.Store(100)
	r.clock.Advance(10 * time.Second)
	r.oven.step(context.Background())

	require.Len(t, seen, 2)
	assert.Equal(t, "short", seen[0].Profile)
	assert.Equal(t, string(Idle), seen[1].State)
}

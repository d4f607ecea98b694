package heater

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"kiln_controller/internal/clock"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

type recordingOutput struct {
	writes []bool
	failOn map[int]error
}

func (o *recordingOutput) Write(high bool) error {
	o.writes = append(o.writes, high)
	if err, ok := o.failOn[len(o.writes)]; ok {
		return err
	}
	return nil
}

func TestDrive_TimeProportioned(t *testing.T) {
	out := &recordingOutput{}
	clk := clock.NewManual(epoch)
	a := New(out, clk, nil)

	on, err := a.Drive(context.Background(), 0.25, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, on)
	assert.Equal(t, epoch.Add(500*time.Millisecond), clk.Now())
	assert.Equal(t, []bool{true, false}, out.writes)
	assert.Equal(t, 0.25, a.Duty())
}

func TestDrive_NonPositiveDutySwitchesOff(t *testing.T) {
	for _, duty := range []float64{0, -0.7, math.NaN()} {
		out := &recordingOutput{}
		clk := clock.NewManual(epoch)
		a := New(out, clk, nil)

		on, err := a.Drive(context.Background(), duty, time.Second)
		require.NoError(t, err)
		assert.Zero(t, on)
		assert.Equal(t, epoch, clk.Now())
		assert.Equal(t, []bool{false}, out.writes)
		assert.Zero(t, a.Duty())
	}
}

func TestDrive_DutyAboveOneIsFullPeriod(t *testing.T) {
	a := New(&recordingOutput{}, clock.NewManual(epoch), nil)
	on, err := a.Drive(context.Background(), 3, time.Second)
	require.NoError(t, err)
	assert.Equal(t, time.Second, on)
	assert.Equal(t, 1.0, a.Duty())
}

func TestDrive_Inverted(t *testing.T) {
	out := &recordingOutput{}
	a := New(out, clock.NewManual(epoch), nil, WithInvert(true))

	_, err := a.Drive(context.Background(), 0.5, time.Second)
	require.NoError(t, err)
	require.NoError(t, a.Off())
	assert.Equal(t, []bool{false, true, true}, out.writes)
}

func TestDrive_CancelledWhileOnSwitchesOff(t *testing.T) {
	out := &recordingOutput{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a := New(out, clock.NewManual(epoch), nil)

	_, err := a.Drive(ctx, 0.5, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []bool{true, false}, out.writes)
	assert.Zero(t, a.Duty())
}

func TestDrive_WriteFailureSwitchesOff(t *testing.T) {
	boom := errors.New("gpio busy")
	out := &recordingOutput{failOn: map[int]error{1: boom}}
	a := New(out, clock.NewManual(epoch), nil)

	on, err := a.Drive(context.Background(), 0.5, time.Second)
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, on)
	assert.Equal(t, []bool{true, false}, out.writes)
	assert.Zero(t, a.Duty())
}

func TestNullOutput(t *testing.T) {
	a := New(nil, clock.NewManual(epoch), nil)
	_, err := a.Drive(context.Background(), 1, time.Second)
	assert.NoError(t, err)
}

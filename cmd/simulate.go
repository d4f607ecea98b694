package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"sync"
	"text/tabwriter"
	"time"

	"kiln_controller/internal/clock"
	"kiln_controller/internal/config"
	"kiln_controller/internal/heater"
	"kiln_controller/internal/logger"
	"kiln_controller/internal/models"
	"kiln_controller/internal/oven"
	"kiln_controller/internal/pid"
	"kiln_controller/internal/schedule"
	"kiln_controller/internal/sensor"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"
)

const chartWidth = 100

func newSimulateCmd() *cobra.Command {
	var (
		speedup float64
		maxTime time.Duration
		height  int
	)
	cmd := &cobra.Command{
		Use:   "simulate [schedule file]",
		Short: "fire a schedule against the thermal model and chart the result",
		Long: "Runs the schedule on the simulated kiln. With --speedup 0 the run is\n" +
			"computed as fast as possible on a virtual clock.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := cfg.ValidateSimulation(); err != nil {
				return err
			}
			p, err := schedule.ParseFile(args[0], schedule.Scale(cfg.Oven.TempScale))
			if err != nil {
				return err
			}
			trace, err := simulate(cmd.Context(), cfg, p, speedup, maxTime, logger.Init(cfg.Log.Level, cfg.Log.Format))
			if err != nil {
				return err
			}
			printTrace(cmd.OutOrStdout(), p, trace, height)
			return nil
		},
	}
	cmd.Flags().Float64Var(&speedup, "speedup", 0, "clock speed factor, 0 runs on a virtual clock")
	cmd.Flags().DurationVar(&maxTime, "max-time", 48*time.Hour, "give up after this much simulated run time")
	cmd.Flags().IntVar(&height, "height", 15, "chart height")
	return cmd
}

// simulate fires p on the thermal model and returns one snapshot per
// control period.
func simulate(ctx context.Context, cfg *config.Config, p schedule.Profile, speedup float64, maxTime time.Duration, log *logger.Logger) ([]models.OvenStatus, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	step := cfg.Oven.TimeStep
	virtual := speedup <= 0

	var (
		clk    clock.Clock
		manual *clock.Manual
	)
	if virtual {
		manual = clock.NewManual(time.Now())
		clk = manual
	} else {
		clk = clock.NewScaled(speedup)
	}

	act := heater.New(heater.NullOutput{}, clk, log.Named("heater"))
	model := sensor.NewSimulated(simParams(cfg), act, step, clk, log.Named("simulator"))

	var (
		mu    sync.Mutex
		trace []models.OvenStatus
	)
	observe := func(st models.OvenStatus) {
		// completed, aborted or tripped
		if st.State == string(oven.Idle) {
			cancel()
			return
		}
		// on the virtual clock the model only moves here
		if virtual {
			model.Step(step.Seconds())
		}
		mu.Lock()
		trace = append(trace, st)
		mu.Unlock()
		if st.Runtime >= maxTime.Seconds() {
			cancel()
		}
	}

	kiln, err := oven.New(oven.Config{
		TimeStep: step,
		Gains:    pid.Gains{Kp: cfg.PID.Kp, Ki: cfg.PID.Ki, Kd: cfg.PID.Kd},
	}, model, act, clk, log.Named("oven"), oven.WithObserver(observe))
	if err != nil {
		return nil, err
	}
	if err := kiln.RunProfile(p); err != nil {
		return nil, err
	}
	if virtual {
		manual.Advance(step)
	} else {
		go func() { _ = model.Run(ctx) }()
	}

	if err := kiln.Run(ctx); err != nil {
		return nil, err
	}
	kiln.AbortRun()

	mu.Lock()
	defer mu.Unlock()
	return trace, nil
}

func printTrace(w io.Writer, p schedule.Profile, trace []models.OvenStatus, height int) {
	if len(trace) == 0 {
		fmt.Fprintln(w, "no samples recorded")
		return
	}
	temps := make([]float64, 0, len(trace))
	targets := make([]float64, 0, len(trace))
	var maxErr, heatSum float64
	for _, st := range trace {
		temps = append(temps, st.Temperature)
		targets = append(targets, st.Target)
		heatSum += st.Heat
		maxErr = max(maxErr, math.Abs(st.Temperature-st.Target))
	}

	graph := asciigraph.PlotMany([][]float64{downsample(targets, chartWidth), downsample(temps, chartWidth)},
		asciigraph.Height(height),
		asciigraph.Width(chartWidth),
		asciigraph.SeriesColors(asciigraph.Blue, asciigraph.Red),
		asciigraph.Caption(fmt.Sprintf("%s: target (blue) vs temperature (red)", p.Name())),
	)
	fmt.Fprintln(w, graph)
	fmt.Fprintln(w)

	last := trace[len(trace)-1]
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "profile\t%s (%s)\n", p.Name(), p.Kind())
	fmt.Fprintf(tw, "periods\t%d\n", len(trace))
	fmt.Fprintf(tw, "runtime\t%s\n", time.Duration(last.Runtime*float64(time.Second)).Round(time.Second))
	fmt.Fprintf(tw, "total time\t%s\n", time.Duration(last.TotalTime*float64(time.Second)).Round(time.Second))
	fmt.Fprintf(tw, "final temperature\t%.1f\n", last.Temperature)
	fmt.Fprintf(tw, "max tracking error\t%.1f\n", maxErr)
	fmt.Fprintf(tw, "mean heat\t%.2f\n", heatSum/float64(len(trace)))
	fmt.Fprintf(tw, "finished\t%t\n", p.Finished())
	_ = tw.Flush()
}

// downsample keeps at most n evenly spaced points of xs.
func downsample(xs []float64, n int) []float64 {
	if len(xs) <= n {
		return xs
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = xs[i*(len(xs)-1)/(n-1)]
	}
	return out
}

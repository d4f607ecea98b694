package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"kiln_controller/internal/clock"
	"kiln_controller/internal/config"
	"kiln_controller/internal/handlers"
	"kiln_controller/internal/hardware"
	"kiln_controller/internal/heater"
	"kiln_controller/internal/logger"
	"kiln_controller/internal/models"
	"kiln_controller/internal/oven"
	"kiln_controller/internal/pid"
	"kiln_controller/internal/publisher"
	"kiln_controller/internal/repository"
	"kiln_controller/internal/repository/db"
	"kiln_controller/internal/schedule"
	"kiln_controller/internal/sensor"
	"kiln_controller/internal/server"
	"kiln_controller/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var runProfile string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the kiln controller and its status API",
		Long: "Runs the control loop, the temperature source and the HTTP status API.\n" +
			"SIGUSR1 aborts the current run, SIGINT/SIGTERM switch the heater off and exit.",
		Args: cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return serve(runProfile)
		},
	}
	cmd.Flags().StringVar(&runProfile, "run", "", "start this catalog profile once the kiln is up")
	return cmd
}

func serve(runProfile string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Get(logger.InfoLevel).Fatalw("config_invalid", "err", err)
	}
	log := logger.Init(cfg.Log.Level, cfg.Log.Format)
	if cfg.Log.Level != logger.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	database, err := db.InitDB(ctx, cfg.DB.Path)
	if err != nil {
		log.Fatalw("db_init_failed", "path", cfg.DB.Path, "err", err)
	}
	defer func() {
		if cerr := database.Close(); cerr != nil {
			log.Errorw("db_close_failed", "err", cerr)
		}
	}()

	var clk clock.Clock = clock.Real{}
	if cfg.Oven.Simulate {
		clk = clock.NewScaled(cfg.Simulation.Speedup)
	}

	out, closeOut, err := openHeatOutput(cfg)
	if err != nil {
		log.Fatalw("gpio_init_failed", "pin", cfg.GPIO.HeatPin, "err", err)
	}
	defer closeOut()
	act := heater.New(out, clk, log.Named("heater"), heater.WithInvert(cfg.GPIO.Invert))

	src, closeSrc, err := openSensor(cfg, act, clk, log)
	if err != nil {
		log.Fatalw("sensor_init_failed", "port", cfg.Sensor.Serial.Port, "err", err)
	}
	defer closeSrc()

	runs := service.NewRunLog(service.DefaultBacklogSize)
	kiln, err := oven.New(oven.Config{
		TimeStep:    cfg.Oven.TimeStep,
		Gains:       pid.Gains{Kp: cfg.PID.Kp, Ki: cfg.PID.Ki, Kd: cfg.PID.Kd},
		Simulate:    cfg.Oven.Simulate,
		RuntimeStep: cfg.Oven.RuntimeStep,
	}, src, act, clk, log.Named("oven"), oven.WithObserver(runs.Record))
	if err != nil {
		log.Fatalw("oven_init_failed", "err", err)
	}

	repos := repository.NewRepository(database)
	ui := models.UIConfig{
		TempScale:        cfg.Oven.TempScale,
		TimeScaleSlope:   cfg.UI.TimeScaleSlope,
		TimeScaleProfile: cfg.UI.TimeScaleProfile,
		KWhRate:          cfg.UI.KWhRate,
		CurrencyType:     cfg.UI.CurrencyType,
	}
	services := service.NewService(service.Deps{
		Repos:      repos,
		Oven:       kiln,
		RunLog:     runs,
		UI:         ui,
		Scale:      schedule.Scale(cfg.Oven.TempScale),
		SigningKey: cfg.Auth.SigningKey,
		TokenTTL:   cfg.Auth.TokenTTL,
		Log:        log.Named("service"),
	})

	if created, err := services.Bootstrap(ctx, cfg.Auth.AdminUser, cfg.Auth.AdminPassword); err != nil {
		log.Warnw("admin_bootstrap_failed", "username", cfg.Auth.AdminUser, "err", err)
	} else if created {
		log.Infow("admin_user_created", "username", cfg.Auth.AdminUser)
	}
	if _, err := services.ImportDir(ctx, cfg.Profiles.Dir); err != nil {
		log.Warnw("profile_import_failed", "dir", cfg.Profiles.Dir, "err", err)
	}

	var wg sync.WaitGroup
	spawn := func(name string, run func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := run(ctx); err != nil {
				log.Errorw("component_failed", "component", name, "err", err)
				cancel()
			}
		}()
	}

	spawn("sensor", src.Run)
	spawn("oven", kiln.Run)

	srv := server.New(cfg.HTTP.Port, handlers.NewHandler(services, log.Named("http")).InitRoutes(), log.Named("http"))
	spawn("http", srv.Run)

	if cfg.MQTT.Broker != "" {
		client := publisher.NewClient(publisher.Options{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
		}, log.Named("mqtt"))
		pub := publisher.New(client, cfg.MQTT.Topic, cfg.MQTT.Interval, kiln, clk, log.Named("mqtt"))
		spawn("mqtt", pub.Run)
	}

	if runProfile != "" {
		if _, err := services.Start(ctx, runProfile); err != nil {
			log.Errorw("initial_run_failed", "profile", runProfile, "err", err)
		}
	}

	abort := make(chan os.Signal, 1)
	signal.Notify(abort, syscall.SIGUSR1)
	defer signal.Stop(abort)

	log.Infow("kiln_ready", "port", cfg.HTTP.Port, "simulate", cfg.Oven.Simulate, "scale", cfg.Oven.TempScale)
	for done := false; !done; {
		select {
		case <-abort:
			services.Abort(ctx)
		case <-ctx.Done():
			done = true
		}
	}

	log.Infow("shutting_down")
	wg.Wait()
	if err := act.Off(); err != nil {
		log.Errorw("heater_off_failed", "err", err)
	}
	return nil
}

// openHeatOutput returns the GPIO heat line, or a line that goes nowhere
// when GPIO is disabled.
func openHeatOutput(cfg *config.Config) (heater.Output, func(), error) {
	if !cfg.GPIO.Enabled {
		return heater.NullOutput{}, func() {}, nil
	}
	pin, err := hardware.NewSysfsPin(cfg.GPIO.SysfsRoot, cfg.GPIO.HeatPin)
	if err != nil {
		return nil, nil, err
	}
	return pin, func() { _ = pin.Close() }, nil
}

func openSensor(cfg *config.Config, heat sensor.HeatSource, clk clock.Clock, log *logger.Logger) (sensor.Source, func(), error) {
	if cfg.SimulatedSensor() {
		if cfg.SensorFallback() {
			log.Warnw("sensor_not_configured", "fallback", "simulated")
		}
		return sensor.NewSimulated(simParams(cfg), heat, cfg.Oven.TimeStep, clk, log.Named("simulator")), func() {}, nil
	}
	tc, err := hardware.OpenSerialThermocouple(cfg.Sensor.Serial.Port, cfg.Sensor.Serial.Baud, cfg.Sensor.Serial.Timeout)
	if err != nil {
		return nil, nil, fmt.Errorf("open serial thermocouple: %w", err)
	}
	closeFn := func() { _ = tc.Close() }
	return sensor.NewReal(tc, cfg.Oven.TimeStep, clk, log.Named("sensor")), closeFn, nil
}

func simParams(cfg *config.Config) sensor.Params {
	s := cfg.Simulation
	return sensor.Params{TEnv: s.TEnv, CHeat: s.CHeat, COven: s.COven, PHeat: s.PHeat, ROut: s.ROut, RHo: s.RHo}
}

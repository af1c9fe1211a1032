package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/tebeka/atexit"

	"klipper-buffer-stepper/pkg/bufferstepper"
	"klipper-buffer-stepper/pkg/config"
	"klipper-buffer-stepper/pkg/gcode"
	"klipper-buffer-stepper/pkg/history"
	"klipper-buffer-stepper/pkg/log"
	"klipper-buffer-stepper/pkg/mcu"
	"klipper-buffer-stepper/pkg/metrics"
	"klipper-buffer-stepper/pkg/reactor"
	"klipper-buffer-stepper/pkg/sensor"
	"klipper-buffer-stepper/pkg/webhooks"
)

// statsInterval is how often the host logs per-stepper status.
const statsInterval = 10.

type appOptions struct {
	Listen    string
	ListenSet bool
	// DryRun builds and validates everything without opening stores or
	// hardware.
	DryRun bool
}

type app struct {
	hostCfg    *config.HostConfig
	reactor    *reactor.Reactor
	dispatcher *gcode.Dispatcher
	metrics    *metrics.BufferStepperMetrics
	store      *history.Store
	host       *webhooks.ReactorHost
	server     *webhooks.Server
	steppers   []*bufferstepper.BufferStepper
	sims       map[string]*mcu.Sim
	sources    []sensor.Source
	logger     *log.Logger
}

func newApp(cfg *config.Config, opts appOptions) (*app, error) {
	hostCfg, err := config.ParseHost(cfg)
	if err != nil {
		return nil, err
	}
	if opts.ListenSet {
		hostCfg.Listen = opts.Listen
	}
	mcus, err := config.LoadMCUs(cfg)
	if err != nil {
		return nil, err
	}

	a := &app{
		hostCfg:    hostCfg,
		reactor:    reactor.New(),
		dispatcher: gcode.NewDispatcher(),
		metrics:    metrics.NewBufferStepperMetrics(),
		sims:       make(map[string]*mcu.Sim),
		logger:     log.GetLogger("host"),
	}
	a.host = webhooks.NewReactorHost(a.reactor, a.dispatcher)

	if !opts.DryRun && hostCfg.HistoryDB != "" {
		if a.store, err = history.Open(hostCfg.HistoryDB); err != nil {
			return nil, err
		}
		a.host.SetHistory(a.store)
	}
	if !opts.DryRun && hostCfg.Listen != "" {
		a.server = webhooks.New(webhooks.Config{
			Addr:    hostCfg.Listen,
			Host:    a.host,
			Metrics: metrics.NewHandler(a.metrics),
		})
	}
	a.dispatcher.SetRespond(func(msg string) {
		if a.server != nil {
			a.server.NotifyGCodeResponse(msg)
		}
	})

	registry := config.NewRegistry()
	registry.RegisterPrefix(config.BufferStepperPrefix, func(cfg *config.Config, sec *config.Section) (config.Module, error) {
		bsCfg, err := config.ParseBufferStepper(cfg, sec)
		if err != nil {
			return nil, err
		}
		return a.addStepper(bsCfg, mcus[bsCfg.MCU])
	})
	if _, err := registry.LoadModules(cfg); err != nil {
		a.close()
		return nil, err
	}
	if err := cfg.CheckUnusedOptions(); err != nil {
		a.close()
		return nil, err
	}
	if len(a.steppers) > 1 && hostCfg.Sensor != "manual" {
		a.close()
		return nil, config.NewConfigError(config.HostSection, "sensor",
			"a "+hostCfg.Sensor+" sensor can only serve one buffer_stepper")
	}
	return a, nil
}

func (a *app) addStepper(cfg *config.BufferStepperConfig, mcuCfg *config.MCUConfig) (*bufferstepper.BufferStepper, error) {
	if _, claimed := a.sims[cfg.MCU]; claimed {
		return nil, config.NewConfigError("buffer_stepper "+cfg.Name, "mcu",
			"controller '"+cfg.MCU+"' already drives another buffer_stepper")
	}
	sim := mcu.NewSim(mcuCfg, cfg.Stepper.StepsPerMM())

	deps := bufferstepper.Deps{
		Reactor:  a.reactor,
		Clock:    sim,
		Executor: sim,
		Enable:   sim,
		Metrics:  a.metrics,
		Respond:  a.dispatcher.RespondInfo,
		OnMove: func(m history.Move) {
			if a.server != nil {
				a.server.NotifyMove(m)
			}
		},
		Context: a.reactor.Context(),
	}
	if a.store != nil {
		deps.History = a.store
	}
	bs, err := bufferstepper.New(cfg, deps)
	if err != nil {
		return nil, err
	}
	if err := bs.RegisterCommands(a.dispatcher); err != nil {
		return nil, err
	}
	a.sims[cfg.MCU] = sim
	a.steppers = append(a.steppers, bs)
	return bs, nil
}

// start connects the controllers, binds the sensors and arms the
// steppers. The reactor must not be running yet.
func (a *app) start() error {
	a.reactor.Run()
	for _, sim := range a.sims {
		sim.Start(a.reactor)
	}

	for _, bs := range a.steppers {
		bs := bs
		pin := bs.Config().EndstopPin
		src, err := sensor.New(a.hostCfg, pin, a.reactor.Monotonic)
		if err != nil {
			return err
		}
		handler := sensor.Dispatch(a.reactor, pin.Invert, func(eventtime float64, on bool) {
			bs.HandleEdge(eventtime, on)
		})
		if err := src.Start(handler); err != nil {
			src.Close()
			return errors.Wrapf(err, "start sensor for buffer_stepper %s", bs.GetName())
		}
		a.sources = append(a.sources, src)

		var inj webhooks.Injector
		if m, ok := src.(*sensor.Manual); ok {
			inj = m
		}
		a.host.AddStepper(bs, inj)
		a.logger.WithFields(log.Fields{"stepper": bs.GetName(), "source": src.Name()}).Info("sensor bound")
	}

	done := a.reactor.RegisterAsyncCallback(func(eventtime float64) interface{} {
		for _, bs := range a.steppers {
			bs.HandleReady()
		}
		return nil
	})
	if _, err := done.Wait(context.Background()); err != nil {
		return err
	}
	a.reactor.RegisterTimer(a.logStats, a.reactor.Monotonic()+statsInterval)
	return nil
}

func (a *app) logStats(eventtime float64) float64 {
	a.metrics.UpdateSystemMetrics()
	for _, bs := range a.steppers {
		st := bs.GetStatus(eventtime)
		a.logger.WithFields(log.Fields{
			"stepper":   st.Name,
			"state":     st.State,
			"position":  st.Position,
			"moves":     st.Moves,
			"triggers":  st.Triggers,
			"queue_len": st.QueueLength,
			"next":      st.Timeline.NextCommandTime,
		}).Debug("stats")
	}
	return eventtime + statsInterval
}

func (a *app) close() {
	if a.server != nil {
		if err := a.server.Stop(); err != nil {
			a.logger.WithError(err).Warn("API server stop failed")
		}
	}
	for _, src := range a.sources {
		if err := src.Close(); err != nil {
			a.logger.WithError(err).WithField("source", src.Name()).Warn("sensor close failed")
		}
	}
	a.sources = nil
	a.reactor.End()
	a.reactor.Wait()
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.WithError(err).Warn("history close failed")
		}
		a.store = nil
	}
}

// run starts the host and blocks until SIGINT or SIGTERM.
func (a *app) run() error {
	atexit.Register(a.close)
	if err := a.start(); err != nil {
		a.close()
		return err
	}
	if a.server != nil {
		go func() {
			if err := a.server.Start(); err != nil {
				a.logger.WithError(err).Error("API server failed")
				atexit.Exit(1)
			}
		}()
	}
	a.logger.WithField("steppers", len(a.steppers)).Info("buffer stepper host ready")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	a.logger.WithField("signal", sig.String()).Info("shutting down")
	atexit.Exit(0)
	return nil
}

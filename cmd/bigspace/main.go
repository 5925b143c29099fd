// Command bigspace runs a headless many-origins scene: one camera per
// partition flying past spheres from 1e-16 m to 1e27 m across.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zeusync/bigspace/internal/core/camera"
	"github.com/zeusync/bigspace/internal/core/config"
	"github.com/zeusync/bigspace/internal/core/models"
	"github.com/zeusync/bigspace/internal/core/observability/log"
	"github.com/zeusync/bigspace/internal/injector"
)

type flags struct {
	configPath string
	frames     int
	rate       float64
	hudEvery   int
	partitions int
	boost      bool
	watch      bool
}

func parseFlags() flags {
	var f flags
	flag.StringVar(&f.configPath, "config", "", "path to a YAML, TOML or JSON config file")
	flag.IntVar(&f.frames, "frames", 600, "frames to run, 0 runs until interrupted")
	flag.Float64Var(&f.rate, "rate", 60, "frames per second; 0 runs unpaced at 1/60 s steps")
	flag.IntVar(&f.hudEvery, "hud-every", 60, "print the HUD every this many frames, 0 disables it")
	flag.IntVar(&f.partitions, "partitions", 4, "partition count when no config file is given")
	flag.BoolVar(&f.boost, "boost", true, "hold the speed boost on every camera")
	flag.BoolVar(&f.watch, "watch", false, "reload camera settings when the config file changes")
	flag.Parse()
	return f
}

func loadConfig(f flags) (config.Config, error) {
	if f.configPath != "" {
		return config.LoadFile(f.configPath)
	}
	cfg := config.Default()
	cfg.PartitionCount = f.partitions
	return cfg, cfg.Validate()
}

func main() {
	f := parseFlags()
	if err := run(f); err != nil {
		fmt.Fprintln(os.Stderr, "bigspace:", err)
		os.Exit(1)
	}
}

func run(f flags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}

	app, cleanup, err := injector.InitializeApp(cfg)
	if err != nil {
		return err
	}
	defer cleanup()
	world := app.World

	if err = setupScene(world); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.WebSocketAddr != "" || cfg.Telemetry.QUICAddr != "" {
		if err = app.Telemetry.Start(ctx); err != nil {
			return err
		}
		defer func() { _ = app.Telemetry.Close() }()
	}

	if f.watch && f.configPath != "" {
		go func() {
			err := config.Watch(ctx, f.configPath, app.Logger, func(c config.Config) {
				if err := world.ApplyCameraSettings(c.CameraSettings()); err != nil {
					app.Logger.Warn("camera settings rejected", log.Error(err))
				}
			})
			if err != nil {
				app.Logger.Error("config watch stopped", log.Error(err))
			}
		}()
	}

	timings := newFrameTimings(f.frames)
	defer timings.print(os.Stdout)

	dt := 1.0 / 60
	var tick <-chan time.Time
	if f.rate > 0 {
		dt = 1 / f.rate
		ticker := time.NewTicker(time.Duration(dt * float64(time.Second)))
		defer ticker.Stop()
		tick = ticker.C
	}

	for frame := 1; f.frames == 0 || frame <= f.frames; frame++ {
		if tick != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-tick:
			}
		}
		for i := 0; i < world.PartitionCount(); i++ {
			// Partition i turns at its own rate so the cameras diverge.
			in := camera.Input{Forward: 1, Yaw: 0.05 * float64(i), Boost: f.boost}
			if err = world.SetInput(models.PartitionID(i), in); err != nil {
				return err
			}
		}
		report, err := world.Tick(ctx, dt)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		timings.add(report.Duration)
		if f.hudEvery > 0 && frame%f.hudEvery == 0 {
			printHUD(os.Stdout, world, report)
		}
	}
	return nil
}

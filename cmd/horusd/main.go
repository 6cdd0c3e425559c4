// Command horusd is the reference HORUS scheduler host: it wires the node
// scheduler to the registry, heartbeat, and replay-recording facilities and
// runs until a tick budget is exhausted or the process receives a signal.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/horus-rt/horus/internal/idgen"
	"github.com/horus-rt/horus/internal/lifecycle"
	"github.com/horus-rt/horus/internal/obslog"
	"github.com/horus-rt/horus/internal/profiler"
	"github.com/horus-rt/horus/internal/registry"
	"github.com/horus-rt/horus/internal/replay"
	"github.com/horus-rt/horus/internal/scheduler"
)

func main() {
	schedulerName := flag.String("name", "horusd", "scheduler name, recorded in the registry file")
	maxTicks := flag.Uint64("ticks", 0, "stop after this many ticks (0 = run until signaled)")
	profilePath := flag.String("profile", "", "offline profile path; if set, Auto-tier nodes resolve against it")
	record := flag.Bool("record", false, "record every node's inputs/outputs/state for replay")
	sessionName := flag.String("session", "", "recording session name (default: timestamped)")
	registryDir := flag.String("registry-dir", "", "directory for the registry file (default: home directory)")
	flag.Parse()

	log := obslog.New(obslog.Config{Component: "horusd", Level: obslog.Info, Colorize: true})

	if err := run(log, *schedulerName, *maxTicks, *profilePath, *record, *sessionName, *registryDir); err != nil {
		log.Error("horusd exited with an error", obslog.Err(err))
		os.Exit(1)
	}
}

func run(log *obslog.Logger, schedulerName string, maxTicks uint64, profilePath string, record bool, sessionName, registryDir string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown := lifecycle.New(10*time.Second, log)

	cfg := scheduler.DefaultConfig()
	cfg.Log = log.With(obslog.String("subsystem", "scheduler"))
	cfg.MaxTicks = maxTicks

	if profilePath != "" {
		prof, err := profiler.LoadAny(profilePath)
		if err != nil {
			return err
		}
		if warnings := prof.CheckCompatibility(); len(warnings) > 0 {
			for _, w := range warnings {
				log.Warn("profile compatibility warning", obslog.String("warning", w))
			}
		}
		cfg.Profile = prof
	}

	sched := scheduler.New(cfg)

	var recCfg replay.RecorderConfig
	if record {
		recCfg = replay.DefaultRecorderConfig()
		if sessionName != "" {
			recCfg.SessionName = sessionName
		}
	}

	nodeID := idgen.New()
	pulse := newPulseNode("pulse", recCfg, record)

	if err := sched.AddNode(scheduler.NodeConfig{
		Name:     "pulse",
		Body:     pulse,
		Priority: 0,
		Tier:     scheduler.TierFast,
	}); err != nil {
		return err
	}

	reg, err := registry.New(registryDir)
	if err != nil {
		return err
	}
	shutdown.Register(reg.Remove)

	entry := registry.BuildEntry(schedulerName, []registry.NodeSpec{
		{Name: "pulse", Priority: 0, RateHz: 1000},
	})
	if err := reg.Write(entry); err != nil {
		return err
	}

	log.Info("scheduler starting",
		obslog.String("name", schedulerName),
		obslog.String("registry_path", reg.Path()),
		obslog.String("node_id", nodeID),
		obslog.Bool("recording", record),
	)

	runErr := sched.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := shutdown.Run(shutdownCtx); err != nil {
		log.Warn("cleanup reported errors", obslog.Err(err))
	}

	if runErr != nil {
		return fmt.Errorf("scheduler run: %w", runErr)
	}
	log.Info("scheduler stopped cleanly")
	return nil
}

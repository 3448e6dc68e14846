// emotedriver - drives an animated character rig from semantic intents:
// resolves raw rig variables into semantic bindings and runs adaptive
// lip sync against the bound mouth control.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/normanking/emotedriver/internal/binding"
	"github.com/normanking/emotedriver/internal/bus"
	"github.com/normanking/emotedriver/internal/capture"
	"github.com/normanking/emotedriver/internal/config"
	"github.com/normanking/emotedriver/internal/lipsync"
	"github.com/normanking/emotedriver/internal/logging"
	"github.com/normanking/emotedriver/internal/playback"
	"github.com/normanking/emotedriver/internal/rig"
)

func main() {
	var (
		modelPath    = flag.String("model", "", "model file the binding table is keyed by")
		manifestPath = flag.String("manifest", "", "raw variable manifest JSON (used on cache miss)")
		wavPath      = flag.String("wav", "", "run lip sync from a WAV file")
		useMic       = flag.Bool("mic", false, "run lip sync from the default microphone")
		rigURL       = flag.String("rig", "", "player WebSocket URL; omit to print frames instead")
		verbose      = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *verbose {
		cfg.Logging.Level = "debug"
	}

	syslog, err := logging.New(&logging.Config{
		LogDir:  cfg.Logging.Dir,
		Level:   logging.LogLevel(cfg.Logging.Level),
		Console: cfg.Logging.Console,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	defer syslog.Close()
	log := syslog.Component("main")

	if err := run(cfg, syslog, *modelPath, *manifestPath, *wavPath, *useMic, *rigURL); err != nil {
		log.Error().Err(err).Msg("emotedriver failed")
		for _, e := range syslog.History(20) {
			fmt.Fprintf(os.Stderr, "%s %-5s %-12s %s\n", e.Timestamp, e.Level, e.Component, e.Message)
		}
		fmt.Fprintf(os.Stderr, "full log: %s\n", syslog.LogPath())
		syslog.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config, syslog *logging.Logger, modelPath, manifestPath, wavPath string, useMic bool, rigURL string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	eventBus := bus.NewEventBus()
	logger := syslog.Zerolog()

	rules := binding.LoadRules(cfg.Binding.RulesPath, logger)
	if cfg.Binding.WatchRules {
		onReload := func() {
			eventBus.Publish(bus.Event{Type: bus.EventTypeRulesReloaded})
		}
		if err := rules.Watch(ctx, onReload); err != nil {
			syslog.Component("main").Warn().Err(err).Msg("Rule watching unavailable")
		}
	}
	matcher := binding.NewMatcher(rules)
	resolver := binding.NewResolver(matcher, logger)
	cache := binding.NewCache(cfg.Binding.CacheDir, logger)
	bindings := binding.NewService(resolver, cache, eventBus, logger)

	table := binding.DefaultTable()
	if modelPath != "" {
		var manifest []binding.RawVariable
		if manifestPath != "" {
			data, err := os.ReadFile(manifestPath)
			if err != nil {
				return fmt.Errorf("read manifest: %w", err)
			}
			if err := json.Unmarshal(data, &manifest); err != nil {
				return fmt.Errorf("parse manifest: %w", err)
			}
		}
		table = bindings.TableFor(modelPath, manifest)
	}

	if wavPath == "" && !useMic {
		// binding-only invocation: print the resolved table
		out, err := json.MarshalIndent(table, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	engine := lipsync.NewEngine(lipsync.Config{
		Envelope: lipsync.EnvelopeConfig{
			MeanDecay:  cfg.LipSync.MeanDecay,
			PeakDecay:  cfg.LipSync.PeakDecay,
			UpdateRate: cfg.LipSync.UpdateRate,
		},
		Mapper: lipsync.Mapper{
			ActivationRatio: cfg.LipSync.ActivationRatio,
			Curve:           cfg.LipSync.Curve,
			Oversaturation:  cfg.LipSync.Oversaturation,
		},
	}, eventBus, logger)

	done := make(chan struct{})
	if rigURL != "" {
		client := rig.NewWSClient(rigURL, eventBus, logger)
		if err := client.Connect(ctx); err != nil {
			return fmt.Errorf("rig connect: %w", err)
		}
		defer client.Disconnect()

		driver, err := rig.NewMouthDriver(client, table, rig.MouthDriverConfig{
			SetDuration:   cfg.LipSync.SetVariableDur,
			CloseDuration: cfg.LipSync.CloseMouthDur,
		}, logger)
		if err != nil {
			return err
		}
		engine.OnFrame(driver.HandleFrame)
		engine.OnDone(func(reason lipsync.DoneReason) {
			driver.HandleDone(reason)
			close(done)
		})
	} else {
		engine.OnFrame(func(f lipsync.Frame) {
			fmt.Printf("ratio=%.2f rms=%.4f mean=%.4f peak=%.4f threshold=%.4f\n",
				f.Ratio, f.Telemetry.RMS, f.Telemetry.Mean, f.Telemetry.Peak, f.Telemetry.Threshold)
		})
		engine.OnDone(func(lipsync.DoneReason) { close(done) })
	}

	switch {
	case wavPath != "":
		source, err := lipsync.NewFileSource(wavPath, cfg.LipSync.UpdateRate, logger)
		if err != nil {
			return fmt.Errorf("open audio file: %w", err)
		}
		if cfg.LipSync.PlaybackOnFileSync {
			// the player must run at the file's rate, not the capture rate
			player, err := playback.NewPlayer(source.SampleRate())
			if err != nil {
				syslog.Component("main").Warn().Err(err).Msg("Playback unavailable, streaming silently")
			} else {
				source.SetSink(player)
			}
		}
		if err := engine.Start(source); err != nil {
			return err
		}

	case useMic:
		queue := lipsync.NewQueueSource(cfg.Audio.QueueCapacity)
		mic, err := capture.NewMic(capture.Config{
			SampleRate: cfg.Audio.SampleRate,
			UpdateRate: cfg.LipSync.UpdateRate,
		}, queue, logger)
		if err != nil {
			return fmt.Errorf("open microphone: %w", err)
		}
		defer mic.Close()
		if err := mic.Start(); err != nil {
			return fmt.Errorf("start microphone: %w", err)
		}
		defer mic.Stop()
		if err := engine.Start(queue); err != nil {
			return err
		}
	}

	select {
	case <-ctx.Done():
		engine.Stop()
	case <-done:
	}
	return nil
}

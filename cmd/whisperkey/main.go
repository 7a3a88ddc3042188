// Command whisperkey is the push-to-talk dictation service: a trigger starts
// and stops microphone capture, the capture is normalized and transcribed
// remotely, and the transcript lands on the clipboard.
//
// The presentation layer (global hotkey, tray) is external; this binary
// exposes the trigger on stdin and status transitions on stderr, and serves
// Prometheus metrics when enabled.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/whisperkey/whisperkey/internal/archive"
	"github.com/whisperkey/whisperkey/internal/audioproc"
	"github.com/whisperkey/whisperkey/internal/clipboard"
	"github.com/whisperkey/whisperkey/internal/config"
	"github.com/whisperkey/whisperkey/internal/mode"
	"github.com/whisperkey/whisperkey/internal/observe"
	"github.com/whisperkey/whisperkey/internal/record"
	"github.com/whisperkey/whisperkey/internal/resilience"
	"github.com/whisperkey/whisperkey/internal/session"
	"github.com/whisperkey/whisperkey/internal/transcribe"
	"github.com/whisperkey/whisperkey/internal/transcribe/gemini"
	"github.com/whisperkey/whisperkey/internal/transcribe/openai"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", defaultPath("config.yaml"), "path to the YAML configuration file")
	flag.Parse()

	// ── Configuration watcher ─────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		slog.Info("configuration reloaded; next capture uses the new settings")
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "whisperkey: %v\n", err)
		return 1
	}
	defer watcher.Stop()
	cfg := watcher.Current()

	// ── Logger ────────────────────────────────────────────────────────────────
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	slog.Info("whisperkey starting",
		"config", *configPath,
		"provider", cfg.Provider,
		"log_level", cfg.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Components ────────────────────────────────────────────────────────────
	archiveDir := cfg.Paths.ArchiveDir
	if archiveDir == "" {
		archiveDir = defaultPath("recordings")
	}
	store, err := archive.NewStore(archiveDir)
	if err != nil {
		slog.Error("failed to open archive", "dir", archiveDir, "err", err)
		return 1
	}

	modesFile := cfg.Paths.ModesFile
	if modesFile == "" {
		modesFile = defaultPath("modes.yaml")
	}
	modes, err := mode.NewRegistry(modesFile)
	if err != nil {
		slog.Error("failed to open mode registry", "path", modesFile, "err", err)
		return 1
	}

	limiter := resilience.NewLimiter(resilience.LimiterConfig{
		MinInterval: cfg.RateLimit.MinInterval,
		MaxInterval: cfg.RateLimit.MaxInterval,
	})

	processor := audioproc.New(audioproc.Config{
		SoxPath:     cfg.Tools.SoxPath,
		FFmpegPath:  cfg.Tools.FFmpegPath,
		ToolTimeout: cfg.Tools.Timeout,
	})

	recorder := record.New(record.Config{
		ScratchDir: cfg.Paths.ScratchDir,
		SampleRate: cfg.Audio.SampleRate,
		Channels:   cfg.Audio.Channels,
	})

	// The backend is fixed at startup; a provider change in the config file
	// needs a restart, unlike the API key and model which are read per run.
	provider, providerName := buildProvider(cfg.Provider)

	client := transcribe.NewClient(transcribe.ClientConfig{
		Provider:     provider,
		ProviderName: providerName,
		Limiter:      quotaRecorder{limiter: limiter, metrics: metrics},
		Backoff: resilience.BackoffPolicy{
			Base:       cfg.Retry.BaseDelay,
			MaxRetries: cfg.Retry.MaxRetries,
		},
		Progress: func(attempt, total int, retryIn time.Duration) {
			if retryIn > 0 {
				fmt.Printf("  transcribing… attempt %d/%d failed, retrying in %s\n", attempt, total, retryIn)
			}
		},
		Metrics: metrics,
	})

	machine := session.New(session.Config{
		Capturer:    recorder,
		Processor:   processor,
		Limiter:     limiter,
		Client:      client,
		Archive:     store,
		Modes:       modes,
		Deliverer:   clipboard.NewSystem(),
		Settings:    settingsSource{watcher: watcher},
		Notify:      printStatus,
		Metrics:     metrics,
		SettleDelay: cfg.SettleDelay,
	})

	// ── Run loops ─────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Enabled {
		g.Go(func() error {
			return serveMetrics(gctx, cfg.Metrics.ListenAddr)
		})
	}

	g.Go(func() error {
		return commandLoop(gctx, machine, modes, store, stop)
	})

	fmt.Println("whisperkey ready — press Enter to toggle recording, 'h' for help")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	machine.WaitIdle()
	slog.Info("goodbye")
	return 0
}

// quotaRecorder forwards quota rejections to the limiter and the metrics in
// one notification.
type quotaRecorder struct {
	limiter *resilience.Limiter
	metrics *observe.Metrics
}

func (q quotaRecorder) OnQuotaExceeded() {
	q.limiter.OnQuotaExceeded()
	q.metrics.RecordQuotaTrip(context.Background())
}

// settingsSource reads the live config on every accessor call, so edits
// picked up by the watcher apply to the next capture.
type settingsSource struct {
	watcher *config.Watcher
}

func (s settingsSource) APIKey() string          { return s.watcher.Current().APIKey }
func (s settingsSource) ModelID() string         { return s.watcher.Current().Model }
func (s settingsSource) AutoPaste() bool         { return s.watcher.Current().AutoPaste }
func (s settingsSource) ShowNotifications() bool { return s.watcher.Current().ShowNotifications }

// buildProvider selects the transcription backend.
func buildProvider(p config.Provider) (transcribe.Provider, string) {
	switch p {
	case config.ProviderOpenAI:
		return openai.New(), "openai"
	default:
		return gemini.New(), "gemini"
	}
}

// printStatus is the presentation sink for pipeline transitions.
func printStatus(status session.Status, message string) {
	if message == "" {
		slog.Debug("status", "state", status.String())
		return
	}
	fmt.Printf("[%s] %s\n", status, message)
}

// commandLoop reads trigger and management commands from stdin. It stands in
// for the global-hotkey layer, which lives outside this binary.
func commandLoop(ctx context.Context, machine *session.Machine, modes *mode.Registry, store *archive.Store, quit func()) error {
	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- strings.TrimSpace(sc.Text())
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				quit()
				return nil
			}
			switch line {
			case "", "t":
				machine.Trigger(ctx)
			case "m":
				m, err := modes.Cycle()
				if err != nil {
					fmt.Printf("mode switch failed: %v\n", err)
					break
				}
				fmt.Printf("mode: %s\n", m.Name)
			case "modes":
				active, _ := modes.ActiveMode()
				for _, m := range modes.List() {
					marker := "  "
					if m.ID == active.ID {
						marker = "* "
					}
					fmt.Printf("%s%s (%s)\n", marker, m.Name, m.ID)
				}
			case "list":
				printArchive(store)
			case "clear":
				if err := store.ClearAll(); err != nil {
					fmt.Printf("clear failed: %v\n", err)
					break
				}
				fmt.Println("archive cleared")
			case "h", "help":
				printHelp()
			case "q", "quit":
				quit()
				return nil
			default:
				fmt.Printf("unknown command %q — 'h' for help\n", line)
			}
		}
	}
}

func printArchive(store *archive.Store) {
	entries, err := store.List()
	if err != nil {
		fmt.Printf("list failed: %v\n", err)
		return
	}
	if len(entries) == 0 {
		fmt.Println("archive is empty")
		return
	}
	for _, e := range entries {
		transcript := "(no transcript)"
		if e.Transcript != nil {
			transcript = strings.SplitN(*e.Transcript, "\n", 2)[0]
			if len(transcript) > 60 {
				transcript = transcript[:57] + "…"
			}
		}
		fmt.Printf("%s  %6d bytes  %s\n", e.ID, e.SizeBytes, transcript)
	}
}

func printHelp() {
	fmt.Print(`commands:
  <Enter> or t  toggle recording
  m             cycle transcription mode
  modes         list modes (* marks active)
  list          list archived recordings
  clear         delete all archived recordings
  q             quit
`)
}

// serveMetrics exposes the Prometheus scrape endpoint until ctx is cancelled.
func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	slog.Info("metrics endpoint up", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// defaultPath returns name under the per-user whisperkey state directory.
func defaultPath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return name
	}
	return filepath.Join(home, ".whisperkey", name)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogLevelDebug:
		lvl = slog.LevelDebug
	case config.LogLevelWarn:
		lvl = slog.LevelWarn
	case config.LogLevelError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

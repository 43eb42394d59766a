// Command pascal runs the pascal Discord sound bot.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/pascal/internal/config"
	"github.com/MrWong99/pascal/internal/discord"
	"github.com/MrWong99/pascal/internal/discord/commands"
	"github.com/MrWong99/pascal/internal/health"
	"github.com/MrWong99/pascal/internal/history"
	"github.com/MrWong99/pascal/internal/intro"
	"github.com/MrWong99/pascal/internal/observe"
	"github.com/MrWong99/pascal/internal/playback"
	"github.com/MrWong99/pascal/internal/resilience"
	"github.com/MrWong99/pascal/internal/sound"
	"github.com/MrWong99/pascal/internal/voice"
	"github.com/MrWong99/pascal/pkg/audio"
	"github.com/MrWong99/pascal/pkg/audio/ffmpeg"
	"github.com/MrWong99/pascal/pkg/audio/ytdlp"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── Environment ───────────────────────────────────────────────────────────
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "pascal: load .env: %v\n", err)
		return 1
	}

	// ── CLI flags ─────────────────────────────────────────────────────────────
	configPath := flag.String("config", defaultConfigPath(os.Getenv), "path to the YAML configuration file (env CONFIG)")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "pascal: config file %q not found, copy config.example.yml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "pascal: %v\n", err)
		}
		return 1
	}
	config.ApplyEnv(cfg, os.Getenv)

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.SlogLevel())
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("pascal starting",
		"version", version,
		"config", *configPath,
		"sounds", cfg.Sounds.Directory,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownOTel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	met := observe.DefaultMetrics()

	// ── History ───────────────────────────────────────────────────────────────
	store, err := openHistory(ctx, cfg.History)
	if err != nil {
		slog.Error("failed to open play history", "err", err)
		return 1
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("history close error", "err", err)
		}
	}()

	// ── Sound library ─────────────────────────────────────────────────────────
	var scanOpts []sound.Option
	if cfg.Sounds.CaseInsensitiveExtensions {
		scanOpts = append(scanOpts, sound.WithCaseInsensitiveExtensions())
	}
	scanner := sound.NewScanner(cfg.Sounds.Directory, scanOpts...).WithMetrics(met)
	if cat, err := scanner.Scan(ctx); err != nil {
		slog.Warn("sound library not readable yet", "dir", cfg.Sounds.Directory, "err", err)
	} else {
		slog.Info("sound library loaded", "dir", cfg.Sounds.Directory, "sounds", cat.Len())
	}

	ffmpegPath := cfg.Remote.FfmpegPath
	files := func(d sound.Descriptor) audio.Source {
		return ffmpeg.NewFile(ffmpegPath, d.Name, d.Path)
	}

	// ── Discord ───────────────────────────────────────────────────────────────
	bot, err := discord.New(ctx, discord.Config{
		Token:   cfg.Discord.Token,
		GuildID: cfg.Discord.GuildID,
	})
	if err != nil {
		slog.Error("failed to connect to Discord", "err", err)
		return 1
	}
	defer func() {
		if err := bot.Close(); err != nil {
			slog.Warn("discord bot close error", "err", err)
		}
	}()

	voices := voice.NewManager(bot.Platform(),
		voice.WithJoinTimeout(cfg.Playback.JoinTimeout),
		voice.WithPlayTimeout(cfg.Playback.PlayTimeout),
		voice.WithMetrics(met),
	)
	// Runs before bot.Close so voice connections leave cleanly.
	defer voices.Close()
	bot.OnGuildRemoved(voices.HandleGuildRemoved)

	// ── Playback ──────────────────────────────────────────────────────────────
	breaker := newFetchBreaker(cfg.Remote.Breaker, met)
	fetcher := ytdlp.NewFetcher(cfg.Remote.YtdlpPath, cfg.Remote.FfmpegPath)
	orch := playback.New(scanner, voices,
		playback.FetcherFunc(func(ctx context.Context, url string) (audio.Source, error) {
			s, err := fetcher.Fetch(ctx, url)
			if err != nil {
				return nil, err
			}
			return s, nil
		}),
		playback.WithSourceFactory(files),
		playback.WithHistory(store),
		playback.WithMetrics(met),
		playback.WithBreaker(breaker),
		playback.WithFetchTimeout(cfg.Remote.FetchTimeout),
		playback.WithQueueFiles(cfg.Playback.QueueFiles),
		playback.WithStrictAutocomplete(cfg.Playback.StrictAutocomplete),
	)

	perms := discord.NewPermissionChecker(cfg.Discord.ControllerRoleID, cfg.Discord.CommandChannelIDs)
	commands.NewSoundCommands(orch, perms, bot).Register(bot.Router())

	// ── Intros ────────────────────────────────────────────────────────────────
	trigger := intro.NewTrigger(intro.RulesFromConfig(cfg.Intros), scanner, voices, files, intro.WithMetrics(met))
	bot.OnVoiceTransition(func(tr intro.Transition) {
		trigger.Handle(ctx, tr)
	})
	slog.Info("intros configured", "users", trigger.Rules().Len(), "channels", len(cfg.Intros.Channels))

	// ── Config hot-reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		applyReload(old, new, trigger, level)
	})
	if err != nil {
		slog.Error("failed to watch config", "err", err)
		return 1
	}
	defer watcher.Stop()

	// ── Run ───────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := bot.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-hup:
				slog.Info("SIGHUP received, reloading config")
				watcher.Check()
			}
		}
	})

	if cfg.Server.ListenAddr != "" {
		srv := newHTTPServer(cfg.Server.ListenAddr, met,
			health.Checker{Name: "discord", Check: bot.Ready},
			health.Checker{Name: "sounds", Check: func(ctx context.Context) error {
				_, err := scanner.Scan(ctx)
				return err
			}},
		)
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	slog.Info("pascal ready, press Ctrl+C to shut down")

	if err := g.Wait(); err != nil {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// defaultConfigPath returns $CONFIG or "config.yml".
func defaultConfigPath(getenv func(string) string) string {
	if p := getenv("CONFIG"); p != "" {
		return p
	}
	return "config.yml"
}

// openHistory returns the PostgreSQL store when a DSN is configured and the
// in-memory store otherwise.
func openHistory(ctx context.Context, cfg config.HistoryConfig) (history.Store, error) {
	if cfg.PostgresDSN == "" {
		return history.NewMemoryStore(), nil
	}
	store, err := history.NewPostgresStore(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, err
	}
	slog.Info("play history stored in postgres")
	return store, nil
}

// newFetchBreaker guards yt-dlp. Links without audio are the caller's
// fault and do not count as failures.
func newFetchBreaker(cfg config.BreakerConfig, met *observe.Metrics) *resilience.CircuitBreaker {
	return resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:         "ytdlp",
		MaxFailures:  cfg.MaxFailures,
		ResetTimeout: cfg.ResetTimeout,
		IsFailure: func(err error) bool {
			return err != nil &&
				!errors.Is(err, context.Canceled) &&
				!errors.Is(err, ytdlp.ErrNoAudio)
		},
		OnStateChange: func(name string, from, to resilience.State) {
			slog.Warn("circuit breaker state changed", "breaker", name, "from", from, "to", to)
			met.RecordBreakerTransition(context.Background(), name, to.String())
		},
	})
}

// newHTTPServer builds the operational endpoint serving /healthz, /readyz
// and /metrics.
func newHTTPServer(addr string, met *observe.Metrics, checks ...health.Checker) *http.Server {
	mux := http.NewServeMux()
	health.New(checks...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(met)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// applyReload applies the live-reloadable parts of a changed config.
func applyReload(old, new *config.Config, trigger *intro.Trigger, level *slog.LevelVar) {
	o, n := *old, *new
	config.ApplyEnv(&o, os.Getenv)
	config.ApplyEnv(&n, os.Getenv)
	d := config.Diff(&o, &n)

	if d.LogLevelChanged {
		level.Set(d.NewLogLevel.SlogLevel())
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.IntrosChanged {
		rules := intro.RulesFromConfig(n.Intros)
		trigger.SetRules(rules)
		slog.Info("intro rules reloaded", "users", rules.Len(), "channels", len(n.Intros.Channels))
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes require a restart", "settings", d.RestartRequired)
	}
}

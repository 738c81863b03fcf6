package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/crypthunt/crypthunt/internal/config"
	"github.com/crypthunt/crypthunt/internal/domain"
	"github.com/crypthunt/crypthunt/internal/engine"
	"github.com/crypthunt/crypthunt/internal/events"
	"github.com/crypthunt/crypthunt/internal/evolution"
	"github.com/crypthunt/crypthunt/internal/exits"
	"github.com/crypthunt/crypthunt/internal/gates"
	"github.com/crypthunt/crypthunt/internal/governor"
	httpapi "github.com/crypthunt/crypthunt/internal/interfaces/http"
	"github.com/crypthunt/crypthunt/internal/lifecycle"
	"github.com/crypthunt/crypthunt/internal/market"
	"github.com/crypthunt/crypthunt/internal/persistence"
	"github.com/crypthunt/crypthunt/internal/persistence/postgres"
	"github.com/crypthunt/crypthunt/internal/scan"
	"github.com/crypthunt/crypthunt/internal/signals"
	"github.com/crypthunt/crypthunt/internal/sizing"
	"github.com/crypthunt/crypthunt/internal/stream"
)

const (
	appName = "CryptHunt"
	version = "v0.4.0"
)

var (
	flagConfig   string
	flagLogLevel string
	flagPaper    bool
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	rootCmd := &cobra.Command{
		Use:     "crypthunt",
		Short:   appName + " hunts short-horizon crypto opportunities",
		Version: version,
		Long: appName + ` scans a live crypto universe for short-horizon opportunities,
admits only asymmetric-expectancy candidates, sizes entries with fractional
Kelly, manages each hunt's lifecycle, and recalibrates its own priors from
realized outcomes.`,
	}
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to YAML config (defaults apply when omitted)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Override log level (trace|debug|info|warn|error)")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the hunt engine",
		Long: `Start the full engine: ticker feed, scan cycles, execution, exit
monitoring, and learning. First interrupt shuts down gracefully; a second
interrupt forces an emergency stop that flattens the book.`,
		RunE: runEngine,
	}
	runCmd.Flags().BoolVar(&flagPaper, "paper", true, "Simulate fills instead of trading")

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one scan cycle and exit",
		Long:  "Run batch selection, scanners, and the expectancy filter once against current market data, then print the ranked candidates. No orders are placed.",
		RunE:  runScanOnce,
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Query a running engine's status endpoint",
		RunE:  runStatus,
	}
	statusCmd.Flags().String("addr", "http://localhost:8087", "Base URL of the running engine")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(statusCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	level := cfg.LogLevel
	if flagLogLevel != "" {
		level = flagLogLevel
	}
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(parsed)
	return cfg, nil
}

// app is the fully wired engine plus everything that needs closing.
type app struct {
	engine  *engine.Engine
	cache   *market.SnapshotCache
	feed    *stream.Feed
	server  *httpapi.Server
	closers []func() error
}

func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	cache := market.NewSnapshotCache(cfg.Stream.StaleAfter)
	tiering := market.NewTiering(cache)

	var ledger persistence.Ledger
	if cfg.Persistence.PostgresDSN != "" {
		pg, err := postgres.Open(ctx, cfg.Persistence.PostgresDSN, cfg.Persistence.Timeout)
		if err != nil {
			log.Warn().Err(err).Msg("postgres unavailable, running with in-memory ledger")
		} else {
			ledger = pg
		}
	}
	ledger = persistence.NewBestEffort(ledger)

	mirror, err := persistence.NewRedisMirror(ctx, cfg.Persistence.RedisAddr, cfg.Persistence.RedisDB, cfg.Persistence.Timeout)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, mirror disabled")
		mirror = nil
	}

	publisher := events.NewPublisher(cfg.Events.Brokers, cfg.Events.Topic)

	if !cfg.Engine.Paper {
		// Live order routing needs exchange credentials and an adapter;
		// until one is wired in, refuse rather than silently paper-trade.
		return nil, fmt.Errorf("live trading gateway not configured, run with --paper")
	}
	manager := lifecycle.NewManager(
		lifecycle.NewPaperGateway(5),
		exits.NewEvaluator(exits.Config{
			InstantExitPct:      cfg.Exits.InstantExitPct,
			MomentumCapturePnL:  cfg.Exits.MomentumCapturePnL,
			MomentumCaptureHold: cfg.Exits.MomentumCaptureHold,
			PatienceFloor:       cfg.Exits.PatienceFloor,
		}),
		lifecycle.Config{
			OrderTimeout:    10 * time.Second,
			ReentryCooldown: cfg.Engine.ReentryCooldown,
		},
	)

	metrics, registry := httpapi.NewMetrics()

	set := signals.NewSet(cfg.Signals.Timeout)
	for kind, endpoint := range cfg.Signals.Endpoints {
		set.Register(signals.Kind(kind), signals.Guard(
			signals.GuardConfig{Name: kind},
			signals.NewHTTPProvider(endpoint, cfg.Signals.Timeout),
		))
		log.Info().Str("signal", kind).Msg("external signal provider registered")
	}

	eng := engine.New(engine.Config{
		CycleInterval:    cfg.Engine.CycleInterval,
		CycleTimeout:     cfg.Engine.CycleTimeout,
		MaxActiveHunts:   cfg.Engine.MaxActiveHunts,
		TotalCapital:     cfg.Engine.TotalCapital,
		MaxPortfolioRisk: cfg.Engine.MaxPortfolioRisk,
		SafetyLosses:     cfg.Sizing.SafetyLosses,
		SafetyCooldown:   cfg.Sizing.SafetyCooldown,
	}, engine.Deps{
		Cache:     cache,
		Tiering:   tiering,
		Scheduler: governor.NewScheduler(tiering, cfg.Governor.BatchSize),
		Governor:  governor.New(cfg.Governor.MinIntervals, cfg.Governor.DefaultMinInterval),
		Signals:   set,
		Runner: scan.NewRunner(scan.DefaultScanners(), scan.Thresholds{
			MinExpectancy:     cfg.Scan.MinExpectancy,
			MaxExpectedReturn: cfg.Scan.MaxExpectedReturn,
			MaxDownside:       cfg.Scan.MaxDownside,
		}, cfg.Scan.Enabled),
		Filter: gates.NewFilter(gates.Config{
			MinExpectancy:     cfg.Scan.MinExpectancy,
			MinProbability:    cfg.Scan.MinProbability,
			MinSignalStrength: cfg.Scan.MinSignalStrength,
		}),
		Sizer: sizing.NewSizer(sizing.Config{
			KellyMultiplier: cfg.Sizing.KellyMultiplier,
			KellyCap:        cfg.Sizing.KellyCap,
			MinFraction:     cfg.Sizing.MinFraction,
			MaxFraction:     cfg.Sizing.MaxFraction,
			MinNotional:     cfg.Sizing.MinNotional,
			MinProbability:  cfg.Scan.MinProbability,
		}),
		Manager: manager,
		Recorder: evolution.NewRecorder(evolution.Config{
			Threshold:    cfg.Evolution.Threshold,
			WindowSize:   cfg.Evolution.WindowSize,
			VelocitySpan: cfg.Evolution.VelocitySpan,
		}),
		Ledger:    ledger,
		Mirror:    mirror,
		Publisher: publisher,
		Metrics:   metrics,
	})

	a := &app{
		engine: eng,
		cache:  cache,
		server: httpapi.NewServer(cfg.HTTP.Addr, registry, func() interface{} {
			return eng.Status()
		}),
	}
	if cfg.Stream.URL != "" {
		a.feed = stream.NewFeed(stream.Config{
			URL:          cfg.Stream.URL,
			ReconnectMin: cfg.Stream.ReconnectMin,
			ReconnectMax: cfg.Stream.ReconnectMax,
		}, cache)
	}
	a.closers = append(a.closers, ledger.Close, mirror.Close, publisher.Close)
	return a, nil
}

func (a *app) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if a.server != nil {
		a.server.Shutdown(shutdownCtx)
	}
	for _, close := range a.closers {
		if err := close(); err != nil {
			log.Warn().Err(err).Msg("shutdown close failed")
		}
	}
}

func runEngine(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Engine.Paper = flagPaper

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.shutdown()

	a.server.Start()
	if a.feed != nil {
		go a.feed.Run(ctx)
	} else {
		log.Warn().Msg("no stream url configured, cache will stay empty")
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info().Msg("shutdown requested, interrupt again to force emergency stop")
		cancel()
		<-sigCh
		a.engine.RequestEmergencyStop()
	}()

	log.Info().Str("version", version).Bool("paper", cfg.Engine.Paper).
		Dur("cycle_interval", cfg.Engine.CycleInterval).
		Msg(appName + " started")

	err = a.engine.Run(ctx)
	switch {
	case err == context.Canceled:
		log.Info().Msg("engine stopped")
		return nil
	case err == engine.ErrEmergencyStopped:
		log.Warn().Msg("engine halted by emergency stop")
		return nil
	default:
		return err
	}
}

func runScanOnce(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Engine.CycleTimeout+30*time.Second)
	defer cancel()

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.shutdown()

	if a.feed != nil {
		go a.feed.Run(ctx)
		// Give the feed a moment to populate the cache.
		time.Sleep(3 * time.Second)
	}

	report := struct {
		GeneratedAt time.Time            `json:"generated_at"`
		Candidates  []domain.Opportunity `json:"candidates"`
	}{
		GeneratedAt: time.Now(),
		Candidates:  a.engine.ScanOnce(ctx),
	}
	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("addr")

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(addr + "/status")
	if err != nil {
		return fmt.Errorf("engine unreachable at %s: %w", addr, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var pretty map[string]interface{}
	if err := json.Unmarshal(body, &pretty); err != nil {
		return fmt.Errorf("malformed status response: %w", err)
	}
	out, _ := json.MarshalIndent(pretty, "", "  ")
	fmt.Println(string(out))
	return nil
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"VolPulse/internal/alert"
	"VolPulse/internal/backtest"
	"VolPulse/internal/deribit"
	"VolPulse/internal/domain/models"
	"VolPulse/internal/handler/api"
	"VolPulse/internal/metrics"
	"VolPulse/internal/mockdata"
	"VolPulse/internal/monitor"
	"VolPulse/internal/risk"
	"VolPulse/internal/scanner"
	"VolPulse/internal/volatility"
	"VolPulse/pkg/config"
	pkghttp "VolPulse/pkg/http"
	"VolPulse/pkg/logger"
)

type rootFlags struct {
	configPath string
	mock       bool
	once       bool
	verbose    bool
	interval   time.Duration
}

// NewRootCmd builds the volpulse command tree.
func NewRootCmd() *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:           "volpulse",
		Short:         "Short-volatility signal monitor for BTC options",
		Long:          "volpulse watches spot, the DVOL index and the put chain for panic-driven IV spikes, and alerts with a sized short-put candidate when the entry rule fires.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMonitor(cmd.Context(), flags)
		},
	}

	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "config/config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "log every cycle's signal state")
	rootCmd.Flags().BoolVar(&flags.mock, "mock", false, "run against synthetic panic-market data")
	rootCmd.Flags().BoolVar(&flags.once, "once", false, "run a single cycle and exit")
	rootCmd.Flags().DurationVar(&flags.interval, "interval", 30*time.Second, "poll interval")

	rootCmd.AddCommand(newBacktestCmd(flags))
	rootCmd.AddCommand(newTestAlertCmd(flags))

	return rootCmd
}

// Execute runs the command tree with signal-aware cancellation.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

// setup loads .env, the config file and the logger shared by every
// subcommand.
func setup(flags *rootFlags) (*config.Config, *logger.Logger, error) {
	// A missing .env just means everything comes from the real environment.
	_ = godotenv.Load()

	cfg, err := config.LoadOrDefault(flags.configPath)
	if err != nil {
		return nil, nil, err
	}

	logCfg := logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	}
	if flags.verbose {
		logCfg.Level = "debug"
	}
	log, err := logger.New(&logCfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func runMonitor(ctx context.Context, flags *rootFlags) error {
	cfg, log, err := setup(flags)
	if err != nil {
		return err
	}
	metrics.Register()

	analyzer := volatility.NewAnalyzer(cfg.Strategy.LookbackDays, cfg.Strategy.DVOLWindowHours)
	sc := scanner.New(scanner.Config{
		DeltaMin:   cfg.Strategy.DeltaMin,
		DeltaMax:   cfg.Strategy.DeltaMax,
		DTEMinDays: float64(cfg.Strategy.DTEMinDays),
		DTEMaxDays: float64(cfg.Strategy.DTEMaxDays),
	})
	riskEng := risk.NewEngine(cfg.Risk.AccountBalanceUSD, risk.Limits{
		MaxSingleBTC: cfg.Risk.MaxSingleBTC,
		MaxTotalBTC:  cfg.Risk.MaxTotalBTC,
	})
	dispatcher := alert.NewDispatcher(alertConfig(cfg), log)

	var source monitor.Source
	var gen *mockdata.Generator
	if flags.mock {
		gen = mockdata.NewGenerator()
		source = gen
		analyzer.SetHistory(gen.History(cfg.Strategy.LookbackDays))
		log.Info("mock mode: synthetic panic market", logger.Int("history_days", cfg.Strategy.LookbackDays))
	} else {
		client := deribit.New(deribit.Config{
			BaseURL:       cfg.Exchange.BaseURL,
			Currency:      cfg.Exchange.Currency,
			IndexName:     cfg.Exchange.IndexName,
			Timeout:       cfg.Exchange.Timeout,
			MaxAttempts:   cfg.Exchange.MaxAttempts,
			RetryBackoff:  cfg.Exchange.RetryBackoff,
			TickerWorkers: cfg.Exchange.TickerWorkers,
			RatePerSec:    cfg.Exchange.RatePerSec,
			RateBurst:     cfg.Exchange.RateBurst,
			InstrumentTTL: cfg.Exchange.InstrumentTTL,
			ProxyURL:      cfg.ProxyURL(),
			DTEMinDays:    float64(cfg.Strategy.DTEMinDays),
			DTEMaxDays:    float64(cfg.Strategy.DTEMaxDays),
		}, log)
		source = client

		history, err := client.DVOLHistory(ctx, cfg.Strategy.LookbackDays)
		if err != nil {
			if !errors.Is(err, deribit.ErrNoData) {
				return fmt.Errorf("seed dvol history: %w", err)
			}
			log.Warn("dvol history unavailable, rank metrics warm up from live samples")
		}
		analyzer.SetHistory(history)
		log.Info("seeded dvol history", logger.Int("samples", len(history)))
	}

	mcfg := monitor.DefaultConfig()
	mcfg.PollInterval = flags.interval
	mcfg.Once = flags.once
	mcfg.Verbose = flags.verbose
	mcfg.EntryPriceDrop1h = cfg.Strategy.EntryPriceDrop1h
	mcfg.MinDVOLPulse1h = cfg.Strategy.MinDVOLPulse1h
	mcfg.EntryIVPThreshold = cfg.Strategy.EntryIVPThreshold
	mcfg.EntryIVRThreshold = cfg.Strategy.EntryIVRThreshold
	mcfg.BleedPriceDrop1h = cfg.Strategy.BleedPriceDrop1h
	mcfg.BleedDVOLMax1h = cfg.Strategy.BleedDVOLMax1h
	mcfg.SkewTargetDelta = cfg.Strategy.SkewTargetDelta
	mcfg.TermNearDays = float64(cfg.Strategy.TermNearDays)
	mcfg.TermFarDays = float64(cfg.Strategy.TermFarDays)

	mon := monitor.New(mcfg, source, analyzer, sc, riskEng, dispatcher, log)
	if gen != nil {
		// Backdate a baseline sample to just inside the change-rule lookback
		// so the very first cycle can evaluate it.
		nowTS := float64(time.Now().UnixNano()) / 1e9
		mon.SeedWindows(nowTS-mcfg.ChangeWindow+60, gen.BaseSpot, gen.BaseDVOL)
	}

	if cfg.Server.Enabled {
		srv := pkghttp.NewServer(api.NewStatusHandler(mon), log, pkghttp.WithPort(cfg.Server.Port))
		go func() {
			if err := srv.Start(); err != nil {
				log.Error("status server failed", logger.Error(err))
			}
		}()
		defer func() {
			if err := srv.Shutdown(context.Background()); err != nil {
				log.Warn("status server shutdown", logger.Error(err))
			}
		}()
	}

	log.Info("monitor starting",
		logger.Duration("interval", mcfg.PollInterval),
		logger.Bool("mock", flags.mock),
		logger.Bool("once", flags.once),
	)
	if err := mon.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("monitor stopped")
	return nil
}

func newBacktestCmd(flags *rootFlags) *cobra.Command {
	var (
		csvPath   string
		holdHours int
		feeBps    float64
	)
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay the entry rule over an hourly spot/DVOL CSV series",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := setup(flags)
			if err != nil {
				return err
			}

			bars, rows, err := backtest.LoadCSV(csvPath)
			if err != nil {
				return err
			}

			btCfg := backtest.DefaultConfig()
			btCfg.PriceDropThreshold1h = cfg.Strategy.EntryPriceDrop1h
			btCfg.DVOLPulseThreshold1h = cfg.Strategy.MinDVOLPulse1h
			btCfg.HoldHours = holdHours
			btCfg.FeeBpsRoundTrip = feeBps

			result, err := backtest.Run(bars, btCfg)
			if err != nil {
				return err
			}

			fmt.Printf("bars: %d\n", len(bars))
			fmt.Printf("trades: %d\n", result.Trades)
			fmt.Printf("win rate: %.1f%%\n", result.WinRate*100)
			fmt.Printf("avg return: %.2f%%\n", result.AvgReturn*100)
			fmt.Printf("cumulative return: %.2f%%\n", result.CumulativeReturn*100)

			if sig := backtest.FitOLSSignal(rows, 120); sig != nil {
				fmt.Printf("expected VRP: %.3f\n", sig.ExpectedVRP)
				fmt.Printf("residual z: %.2f\n", sig.ResidualZ)
				if sig.Is2SigmaMispricing {
					fmt.Println("latest VRP is a 2-sigma outlier vs the regression")
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", "", "hourly series: timestamp,spot,dvol[,skew,term_spread]")
	cmd.Flags().IntVar(&holdHours, "hold-hours", 24, "holding period per simulated trade")
	cmd.Flags().Float64Var(&feeBps, "fee-bps", 10, "round-trip fees in basis points")
	_ = cmd.MarkFlagRequired("csv")
	return cmd
}

func newTestAlertCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "test-alert",
		Short: "Send a test message through every configured alert channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(flags)
			if err != nil {
				return err
			}
			metrics.Register()

			dispatcher := alert.NewDispatcher(alertConfig(cfg), log)
			dispatcher.Send("test", models.AlertMessage{
				Title: "VolPulse Test",
				Body:  fmt.Sprintf("Channel check at %s. If you can read this, delivery works.", time.Now().Format(time.RFC3339)),
			})
			return nil
		},
	}
}

func alertConfig(cfg *config.Config) alert.Config {
	return alert.Config{
		TelegramToken:  cfg.Alerts.TelegramToken,
		TelegramChatID: cfg.Alerts.TelegramChatID,
		DiscordWebhook: cfg.Alerts.DiscordWebhook,
		PushUserKey:    cfg.Alerts.PushUserKey,
		PushAPIToken:   cfg.Alerts.PushAPIToken,
		PushRepeat:     cfg.Alerts.PushRepeat,
		PushInterval:   time.Duration(cfg.Alerts.PushIntervalS * float64(time.Second)),
		PushTitle:      cfg.Alerts.PushTitle,
		PushDebug:      cfg.Alerts.PushDebug,
	}
}

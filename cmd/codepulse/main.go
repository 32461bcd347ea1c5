package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/codepulse/codepulse/internal/config"
	"github.com/codepulse/codepulse/internal/engine"
	"github.com/codepulse/codepulse/internal/logging"
	"github.com/codepulse/codepulse/internal/models"
	"github.com/codepulse/codepulse/internal/scanner"
	"github.com/codepulse/codepulse/internal/scheduler"
	"github.com/codepulse/codepulse/internal/store"
	"github.com/codepulse/codepulse/internal/training"
	"github.com/codepulse/codepulse/internal/validation"
	"github.com/codepulse/codepulse/pkg/github"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

var (
	flagDBPath      string
	flagLogLevel    string
	flagLogFormat   string
	flagInterval    time.Duration
	flagMetricsPort int
	flagCategories  []string
)

var rootCmd = &cobra.Command{
	Use:     "codepulse",
	Short:   "CodePulse - multi-repository code intelligence engine",
	Long:    `CodePulse scans source repositories through the GitHub API, extracts structural and anti-pattern signals, and generates validated refactoring recommendations.`,
	Version: Version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the analysis scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan owner/repo",
	Short: "Scan one repository immediately",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScan(args[0])
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("CodePulse %s\n", Version)
		if BuildTime != "unknown" {
			fmt.Printf("Built: %s\n", BuildTime)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDBPath, "db", "data/codepulse.db", "SQLite database path")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "auto", "log format (json, console, auto)")
	serveCmd.Flags().DurationVar(&flagInterval, "interval", time.Hour, "scheduler pass interval")
	serveCmd.Flags().IntVar(&flagMetricsPort, "metrics-port", 9191, "Prometheus metrics port (0 disables)")
	scanCmd.Flags().StringSliceVar(&flagCategories, "category", nil, "category tags for a new repository (repeatable)")
	rootCmd.AddCommand(serveCmd, scanCmd, versionCmd)
}

func main() {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app bundles the wired components shared by serve and scan.
type app struct {
	cfg   config.Config
	store *store.Store
	train *training.Store
	sched *scheduler.Scheduler
}

func setup() (*app, error) {
	logging.Setup(logging.Config{Format: flagLogFormat, Level: flagLogLevel})

	cfg := config.Default()
	cfg.RemoteToken = os.Getenv("GITHUB_TOKEN")
	cfg.ApplyEnvironment()
	cfg.Normalize()

	st, err := store.New(flagDBPath)
	if err != nil {
		return nil, err
	}

	train, err := training.NewStore(cfg.TrainingDataPath, 500)
	if err != nil {
		st.Close()
		return nil, err
	}
	if err := train.Watch(); err != nil {
		log.Warn().Err(err).Msg("Prevention rule watching unavailable")
	}

	client := github.NewClient(github.ClientConfig{
		Token:   cfg.RemoteToken,
		Timeout: cfg.Timeout,
	})
	governor := scanner.NewGovernor(client)
	fileScanner := scanner.New(client, governor, cfg)
	validator := validation.New(train)
	eng := engine.New(fileScanner, st, validator, train, cfg)

	return &app{
		cfg:   cfg,
		store: st,
		train: train,
		sched: scheduler.New(eng, st),
	}, nil
}

func (a *app) close() {
	a.train.Close()
	if err := a.store.Close(); err != nil {
		log.Warn().Err(err).Msg("Closing store failed")
	}
}

func runServe() error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if flagMetricsPort > 0 {
		go func() {
			addr := fmt.Sprintf(":%d", flagMetricsPort)
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			log.Info().Str("addr", addr).Msg("Metrics endpoint listening")
			if err := http.ListenAndServe(addr, mux); err != nil {
				log.Warn().Err(err).Msg("Metrics endpoint failed")
			}
		}()
	}

	a.sched.Start(ctx, flagInterval)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Shutting down")

	cancel()
	a.sched.Stop()
	return nil
}

func runScan(fullName string) error {
	if !strings.Contains(fullName, "/") {
		return fmt.Errorf("repository must be owner/repo, got %q", fullName)
	}

	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()

	repo := findOrRegister(a.store, fullName)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	report, err := a.sched.ScanRepositoryManually(ctx, repo.ID)
	if err != nil {
		return err
	}
	fmt.Printf("%s: %d patterns, %d recommendations (%d rejected) in %s\n",
		report.Repository, report.Patterns, report.Inserted, report.Rejected,
		report.Duration.Round(time.Millisecond))
	return nil
}

// findOrRegister resolves fullName to a stored repository, creating a
// pending row on first contact.
func findOrRegister(st *store.Store, fullName string) models.Repository {
	repos, err := st.ListRepositories()
	if err == nil {
		for _, r := range repos {
			if r.FullName == fullName {
				if len(flagCategories) > 0 {
					r.Categories = flagCategories
					if uerr := st.UpsertRepository(r); uerr != nil {
						log.Warn().Err(uerr).Msg("Updating repository categories failed")
					}
				}
				return r
			}
		}
	}

	repo := models.Repository{
		ID:             uuid.NewString(),
		Name:           fullName[strings.Index(fullName, "/")+1:],
		FullName:       fullName,
		Organization:   fullName[:strings.Index(fullName, "/")],
		Categories:     flagCategories,
		AnalysisStatus: models.AnalysisPending,
		CreatedAt:      time.Now(),
	}
	if err := st.UpsertRepository(repo); err != nil {
		log.Warn().Err(err).Msg("Registering repository failed")
	}
	return repo
}

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	_ "go.uber.org/automaxprocs"

	"github.com/goodturn-social/goodturn/consensus"
	"github.com/goodturn-social/goodturn/content"
	"github.com/goodturn-social/goodturn/events"
	"github.com/goodturn-social/goodturn/governance"
	"github.com/goodturn-social/goodturn/jury"
	"github.com/goodturn-social/goodturn/ledger"
	"github.com/goodturn-social/goodturn/notifs"
	"github.com/goodturn-social/goodturn/profiles"
	"github.com/goodturn-social/goodturn/reputation"
	"github.com/goodturn-social/goodturn/util/cliutil"

	"github.com/carlmjohnson/versioninfo"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
	"gorm.io/plugin/opentelemetry/tracing"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting process", "err", err.Error())
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "goodturn",
		Usage:   "proof-of-help consensus engine daemon",
		Version: versioninfo.Short(),
	}
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "log verbosity level (eg: warn, info, debug)",
			EnvVars: []string{"GOODTURN_LOG_LEVEL", "GO_LOG_LEVEL", "LOG_LEVEL"},
		},
	}
	app.Commands = []*cli.Command{
		&cli.Command{
			Name:   "serve",
			Usage:  "run the consensus engine daemon",
			Action: runServe,
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "db-url",
					Usage:   "database connection string for engine database",
					Value:   "sqlite://data/goodturn/engine.sqlite",
					EnvVars: []string{"DATABASE_URL"},
				},
				&cli.IntFlag{
					Name:    "max-db-conn",
					Usage:   "limit on size of database connection pool",
					EnvVars: []string{"MAX_DB_CONNECTIONS"},
					Value:   40,
				},
				&cli.StringFlag{
					Name:    "bind",
					Usage:   "IP or address, and port, to listen on for the engine API",
					Value:   ":2510",
					EnvVars: []string{"GOODTURN_API_BIND"},
				},
				&cli.StringFlag{
					Name:    "metrics-listen",
					Usage:   "IP or address, and port, to listen on for prometheus metrics",
					Value:   ":2511",
					EnvVars: []string{"GOODTURN_METRICS_LISTEN"},
				},
				&cli.DurationFlag{
					Name:    "sweep-interval",
					Usage:   "how often to run the deadline sweepers",
					Value:   time.Minute,
					EnvVars: []string{"GOODTURN_SWEEP_INTERVAL"},
				},
				&cli.BoolFlag{
					Name: "enable-db-tracing",
				},
			},
		},
	}
	return app.Run(args)
}

func configLogger(cctx *cli.Context) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cctx.String("log-level")) {
	case "error":
		level = slog.LevelError
	case "warn":
		level = slog.LevelWarn
	case "info":
		level = slog.LevelInfo
	case "debug":
		level = slog.LevelDebug
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger
}

func runServe(cctx *cli.Context) error {
	logger := configLogger(cctx)

	// Trap SIGINT to trigger a shutdown.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	dburl := cctx.String("db-url")
	maxConn := cctx.Int("max-db-conn")
	logger.Info("configuring database", "url", dburl, "maxConn", maxConn)
	db, err := cliutil.SetupDatabase(dburl, maxConn)
	if err != nil {
		return err
	}
	if cctx.Bool("enable-db-tracing") {
		if err := db.Use(tracing.NewPlugin()); err != nil {
			return err
		}
	}

	evtman := events.NewEventManager()
	go evtman.Run()

	pstore, err := profiles.NewStore(db)
	if err != nil {
		return err
	}
	rep := reputation.NewEngine(db, pstore)
	nm, err := notifs.NewNotificationManager(db)
	if err != nil {
		return err
	}
	cstore, err := content.NewStore(db, nm)
	if err != nil {
		return err
	}
	tl, err := ledger.NewLedger(db, pstore, rep, nm, evtman)
	if err != nil {
		return err
	}
	cons, err := consensus.NewConsensus(db, pstore, rep, nm, evtman)
	if err != nil {
		return err
	}
	jr, err := jury.NewJury(db, pstore, rep, cstore, nm, evtman)
	if err != nil {
		return err
	}
	gov, err := governance.NewGovernance(db, pstore, rep, tl, nm, evtman)
	if err != nil {
		return err
	}

	svc := NewService(db, tl, cons, jr, gov, cstore, rep, evtman, logger)

	sweepCtx, cancelSweeps := context.WithCancel(context.Background())
	defer cancelSweeps()
	eg, sweepCtx := errgroup.WithContext(sweepCtx)
	interval := cctx.Duration("sweep-interval")
	eg.Go(func() error {
		return jr.RunSweeper(sweepCtx, interval)
	})
	eg.Go(func() error {
		return gov.RunSweeper(sweepCtx, interval)
	})

	go func() {
		if err := svc.StartMetrics(cctx.String("metrics-listen")); err != nil {
			logger.Error("failed to start metrics endpoint", "err", err)
			os.Exit(1)
		}
	}()

	svcErr := make(chan error, 1)
	go func() {
		svcErr <- svc.StartAPI(cctx.String("bind"))
	}()

	logger.Info("startup complete", "bind", cctx.String("bind"))
	select {
	case <-signals:
		logger.Info("received shutdown signal")
	case err := <-svcErr:
		if err != nil {
			logger.Error("API server failed", "err", err)
		}
	}

	cancelSweeps()
	_ = eg.Wait()
	if err := svc.Shutdown(); err != nil {
		logger.Error("error during shutdown", "err", err)
	}
	evtman.Shutdown()
	return nil
}

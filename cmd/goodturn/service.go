package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/goodturn-social/goodturn/consensus"
	"github.com/goodturn-social/goodturn/content"
	"github.com/goodturn-social/goodturn/events"
	"github.com/goodturn-social/goodturn/governance"
	"github.com/goodturn-social/goodturn/jury"
	"github.com/goodturn-social/goodturn/ledger"
	"github.com/goodturn-social/goodturn/reputation"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	slogecho "github.com/samber/slog-echo"
	"gorm.io/gorm"
)

type Service struct {
	db     *gorm.DB
	echo   *echo.Echo
	logger *slog.Logger

	ledger     *ledger.Ledger
	consensus  *consensus.Consensus
	jury       *jury.Jury
	governance *governance.Governance
	content    *content.Store
	rep        *reputation.Engine
	events     *events.EventManager
}

func NewService(db *gorm.DB, tl *ledger.Ledger, cons *consensus.Consensus, jr *jury.Jury, gov *governance.Governance, cstore *content.Store, rep *reputation.Engine, evtman *events.EventManager, logger *slog.Logger) *Service {
	e := echo.New()
	e.HideBanner = true
	e.Use(slogecho.New(logger))
	e.Use(middleware.Recover())

	svc := &Service{
		db:         db,
		echo:       e,
		logger:     logger.With("system", "service"),
		ledger:     tl,
		consensus:  cons,
		jury:       jr,
		governance: gov,
		content:    cstore,
		rep:        rep,
		events:     evtman,
	}

	e.GET("/_health", svc.handleHealthCheck)

	api := e.Group("/api")
	api.POST("/blocks", svc.handleCreateBlock)
	api.GET("/blocks", svc.handleListBlocks)
	api.GET("/blocks/:id", svc.handleGetBlock)
	api.POST("/blocks/:id/validations", svc.handleValidateBlock)
	api.GET("/chain/verify", svc.handleVerifyChain)

	api.POST("/moderation/reports", svc.handleOpenCase)
	api.GET("/moderation/cases/:id", svc.handleGetCase)
	api.POST("/moderation/cases/:id/votes", svc.handleModerationVote)

	api.POST("/proposals", svc.handleCreateProposal)
	api.GET("/proposals", svc.handleListProposals)
	api.GET("/proposals/:id", svc.handleGetProposal)
	api.POST("/proposals/:id/votes", svc.handleProposalVote)
	api.POST("/proposals/:id/comments", svc.handleCreateComment)
	api.GET("/proposals/:id/comments", svc.handleGetComments)

	api.GET("/users/:id/reputation", svc.handleGetReputation)

	api.GET("/events/subscribe", svc.handleSubscribeEvents)

	return svc
}

type HealthStatus struct {
	Status  string `json:"status"`
	Message string `json:"msg,omitempty"`
}

func (svc *Service) handleHealthCheck(c echo.Context) error {
	if err := svc.db.Exec("SELECT 1").Error; err != nil {
		svc.logger.Error("healthcheck can't connect to database", "err", err)
		return c.JSON(http.StatusInternalServerError, HealthStatus{Status: "error", Message: "can't connect to database"})
	}
	return c.JSON(http.StatusOK, HealthStatus{Status: "ok"})
}

func (svc *Service) StartAPI(bind string) error {
	svc.logger.Info("starting API server", "bind", bind)
	svc.echo.Server.ReadHeaderTimeout = 10 * time.Second
	return svc.echo.Start(bind)
}

// metricsMux serves prometheus metrics and the pprof endpoints on the
// internal listener, away from the public API.
func metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}

func (svc *Service) StartMetrics(listen string) error {
	srv := &http.Server{
		Addr:              listen,
		Handler:           metricsMux(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

func (svc *Service) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return svc.echo.Shutdown(ctx)
}

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradesync/internal/accounts"
	"tradesync/internal/aggregation"
	"tradesync/internal/capture"
	"tradesync/internal/commission"
	"tradesync/internal/config"
	"tradesync/internal/db"
	"tradesync/internal/feed"
	"tradesync/internal/httpserver"
	"tradesync/internal/journal"
	"tradesync/internal/pricing"
	"tradesync/internal/rates"
	"tradesync/internal/scheduler"
	"tradesync/internal/settlement"
	"tradesync/pkg/logger"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot := logger.New(logger.Config{})
		boot.Fatal().Err(err).Msg("config load failed")
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	logger.SetGlobalLogger(log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("database connect failed")
	}
	defer pool.Close()

	ratesSvc := rates.NewService(pool, rates.NewHTTPClient(cfg.RateAPIURL, cfg.RateAPIKey), log)
	normalizer := pricing.NewNormalizer(ratesSvc)
	resolver := commission.NewResolver(commission.NewPgStore(pool))

	var images settlement.ImageStore = capture.Disabled{}
	if cfg.CaptureEnabled() {
		opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWSRegion)}
		if cfg.AWSAccessKey != "" {
			opts = append(opts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.AWSAccessKey, cfg.AWSSecretKey, "")))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			log.Fatal().Err(err).Msg("aws config load failed")
		}
		images = capture.NewS3Store(s3.NewFromConfig(awsCfg), cfg.ImageBucket, cfg.AWSRegion, log)
	}

	locks := settlement.NewPairLocker()
	journalStore := journal.NewStore(pool)
	engine := settlement.NewEngine(journal.NewSettlementStore(journalStore), resolver, normalizer, images, locks, log)
	aggregator := aggregation.NewAggregator(journal.NewAggregationStore(journalStore), locks, log)
	accountsSvc := accounts.NewService(pool)

	sched := scheduler.New(ctx, log)

	var feedMgr *feed.Manager
	if cfg.FeedEnabled() {
		rest := feed.NewClient(cfg.BrokerAPIURL, cfg.BrokerClientID, cfg.BrokerSecret, cfg.BrokerReturnURI)
		feedMgr = feed.NewManager(rest, cfg.BrokerWSURL, accountsSvc, accountsSvc, engine, log)
		go func() {
			if err := feedMgr.Restore(ctx); err != nil {
				log.Error().Err(err).Msg("feed restore failed")
			}
		}()
		if err := sched.AddJob("@every 65m", feed.TokenRenewalJob{Manager: feedMgr}); err != nil {
			log.Fatal().Err(err).Msg("scheduler setup failed")
		}
	}
	if err := sched.AddJob("0 4 * * *", aggregation.SweepJob{Aggregator: aggregator, Accounts: accountsSvc, Log: log}); err != nil {
		log.Fatal().Err(err).Msg("scheduler setup failed")
	}
	sched.Start()
	defer sched.Stop()

	tokens := httpserver.NewTokenService(cfg.JWTIssuer, []byte(cfg.JWTSecret), cfg.JWTTTL)
	var feedControl httpserver.FeedControl
	if feedMgr != nil {
		feedControl = feedMgr
	}
	handler := httpserver.NewHandler(accountsSvc, engine, aggregator, journalStore, feedControl, log)
	router := httpserver.NewRouter(httpserver.RouterDeps{
		Handler:   handler,
		Tokens:    tokens,
		WebOrigin: cfg.WebOrigin,
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	log.Info().Str("addr", cfg.HTTPAddr).Msg("server listening")
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server failed")
	}
}

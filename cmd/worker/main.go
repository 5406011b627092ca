package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/careloop/outreach-api/internal/config"
	"github.com/careloop/outreach-api/internal/repository/postgres"
	auditService "github.com/careloop/outreach-api/internal/service/audit"
	recallService "github.com/careloop/outreach-api/internal/service/recall"
	waitlistService "github.com/careloop/outreach-api/internal/service/waitlist"
	"github.com/careloop/outreach-api/internal/worker"
	"github.com/careloop/outreach-api/pkg/messaging"
	redisBroker "github.com/careloop/outreach-api/pkg/messaging/redis"
	"github.com/careloop/outreach-api/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	broker, err := redisBroker.NewRedisBroker(redisBroker.Config{
		URL:          cfg.Redis.URL,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}, &log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer broker.Close()

	messenger, err := buildMessenger(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure messaging")
	}

	registry := prometheus.NewRegistry()
	m := metrics.NewMetrics("outreach_worker", registry)

	waitlistRepo := postgres.NewWaitlistRepository(db)
	recallRepo := postgres.NewRecallRepository(db)
	appointmentRepo := postgres.NewAppointmentRepository(db)
	patientRepo := postgres.NewPatientRepository(db)
	auditRepo := postgres.NewAuditRepository(db)

	auditor := auditService.NewService(auditRepo)
	waitlistSvc := waitlistService.NewService(waitlistRepo, appointmentRepo, patientRepo, auditor, messenger, broker, m, waitlistService.Config{
		MaxMatches:      cfg.Engine.MaxMatches,
		ExpirationHours: cfg.Engine.OfferExpirationHours,
		MaxOffers:       cfg.Engine.MaxAutoFillOffers,
	})
	recallSvc := recallService.NewService(recallRepo, auditor, messenger, broker, m)

	setupHealthAndMetrics(registry)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	expiry := worker.NewExpiryWorker(waitlistSvc, time.Duration(cfg.Engine.ExpirySweepSeconds)*time.Second)
	outreach := worker.NewOutreachWorker(recallSvc, time.Duration(cfg.Engine.OutreachIntervalSecond)*time.Second, cfg.Engine.OutreachBatchSize)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		expiry.Start(ctx)
	}()
	go func() {
		defer wg.Done()
		outreach.Start(ctx)
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down workers...")
	wg.Wait()
	log.Info().Msg("workers exited properly")
}

func setupHealthAndMetrics(registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	go func() {
		if err := http.ListenAndServe(":8081", mux); err != nil {
			log.Error().Err(err).Msg("health check server failed")
			os.Exit(1)
		}
	}()
}

func buildMessenger(cfg *config.Config) (messaging.Messenger, error) {
	dispatcher := messaging.NewDispatcher()

	if cfg.Twilio.AccountSID != "" {
		sms, err := messaging.NewTwilioSender(messaging.TwilioConfig{
			AccountSID: cfg.Twilio.AccountSID,
			AuthToken:  cfg.Twilio.AuthToken,
			FromNumber: cfg.Twilio.FromNumber,
		})
		if err != nil {
			return nil, err
		}
		dispatcher.Register(messaging.ChannelSMS, sms)
	}

	if cfg.SMTP.Host != "" {
		email := messaging.NewEmailSender(messaging.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
		dispatcher.Register(messaging.ChannelEmail, email)
	}

	return dispatcher, nil
}

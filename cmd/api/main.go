package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/careloop/outreach-api/internal/config"
	healthHandler "github.com/careloop/outreach-api/internal/handler/health"
	prometheusHandler "github.com/careloop/outreach-api/internal/handler/prometheus"
	recallHandler "github.com/careloop/outreach-api/internal/handler/recall"
	waitlistHandler "github.com/careloop/outreach-api/internal/handler/waitlist"
	"github.com/careloop/outreach-api/internal/repository/postgres"
	"github.com/careloop/outreach-api/internal/router"
	auditService "github.com/careloop/outreach-api/internal/service/audit"
	recallService "github.com/careloop/outreach-api/internal/service/recall"
	waitlistService "github.com/careloop/outreach-api/internal/service/waitlist"
	"github.com/careloop/outreach-api/pkg/messaging"
	redisBroker "github.com/careloop/outreach-api/pkg/messaging/redis"
	"github.com/careloop/outreach-api/pkg/metrics"
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

	prom := prometheusHandler.New()
	m := metrics.NewMetrics("outreach", prom.Registry())

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

	r := router.NewRouter(
		healthHandler.NewHandler(db),
		prom,
		waitlistHandler.NewHandler(waitlistSvc),
		recallHandler.NewHandler(recallSvc),
		router.Config{},
	)
	r.Setup()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.TimeoutSeconds) * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited properly")
}

// buildMessenger wires one sender per configured channel. Unconfigured
// channels simply fail at send time with an unroutable-channel error.
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

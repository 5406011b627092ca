package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/careloop/outreach-api/pkg/circuitbreaker"
)

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// TwilioSender delivers SMS through the Twilio REST API, guarded by a
// circuit breaker so a provider outage fails fast instead of stalling
// outreach batches.
type TwilioSender struct {
	client *twilio.RestClient
	from   string
	cb     *circuitbreaker.CircuitBreaker
}

func NewTwilioSender(cfg TwilioConfig) (*TwilioSender, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("twilio account SID and auth token must be provided")
	}
	if cfg.FromNumber == "" {
		return nil, fmt.Errorf("twilio from number must be provided")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})

	return &TwilioSender{
		client: client,
		from:   cfg.FromNumber,
		cb: circuitbreaker.New(circuitbreaker.Settings{
			Name:             "twilio-sms",
			FailureThreshold: 5,
			Cooldown:         30 * time.Second,
		}),
	}, nil
}

func (s *TwilioSender) Send(_ context.Context, _, to, body string) (*Receipt, error) {
	var receipt *Receipt

	err := s.cb.Execute(func() error {
		params := &twilioApi.CreateMessageParams{}
		params.SetTo(to)
		params.SetFrom(s.from)
		params.SetBody(body)

		resp, err := s.client.Api.CreateMessage(params)
		if err != nil {
			return fmt.Errorf("failed to send SMS: %w", err)
		}

		receipt = &Receipt{}
		if resp.Sid != nil {
			receipt.ExternalID = *resp.Sid
		}
		if resp.Status != nil {
			receipt.Status = *resp.Status
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return receipt, nil
}

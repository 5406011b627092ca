package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const (
	ChannelSMS   = "sms"
	ChannelEmail = "email"
	ChannelPhone = "phone"
)

// Receipt is the delivery collaborator's report for one send attempt. The
// core records it and never implements delivery itself.
type Receipt struct {
	ExternalID string `json:"external_id"`
	Status     string `json:"status"`
}

// Messenger sends one outbound message over a named channel.
type Messenger interface {
	Send(ctx context.Context, channel, to, body string) (*Receipt, error)
}

// Dispatcher routes sends to per-channel messengers.
type Dispatcher struct {
	senders map[string]Messenger
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{senders: make(map[string]Messenger)}
}

func (d *Dispatcher) Register(channel string, m Messenger) {
	d.senders[channel] = m
}

func (d *Dispatcher) Send(ctx context.Context, channel, to, body string) (*Receipt, error) {
	sender, ok := d.senders[channel]
	if !ok {
		return nil, fmt.Errorf("unsupported channel: %s", channel)
	}
	return sender.Send(ctx, channel, to, body)
}

// SentMessage records one attempt captured by the Recorder.
type SentMessage struct {
	Channel string
	To      string
	Body    string
	SentAt  time.Time
}

// Recorder is a Messenger for tests and local runs: it records every send
// and reports success.
type Recorder struct {
	mu       sync.Mutex
	Messages []SentMessage
	Err      error
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Send(_ context.Context, channel, to, body string) (*Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}
	r.Messages = append(r.Messages, SentMessage{Channel: channel, To: to, Body: body, SentAt: time.Now()})
	return &Receipt{ExternalID: fmt.Sprintf("recorded-%d", len(r.Messages)), Status: "sent"}, nil
}

package probe

import (
	"Go2AQMSpectra/internal/config"
	"Go2AQMSpectra/internal/model"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/nats-io/nats.go"
)

// SampleHandler is a function that processes a received sample summary.
type SampleHandler func(s SampleSummary)

// SessionHandler is a function that processes a finished session.
type SessionHandler func(s model.SessionSummary)

// Subscriber is responsible for subscribing to a NATS subject and processing messages.
type Subscriber struct {
	nc      *nats.Conn
	subs    []*nats.Subscription
	subject string
}

// NewSubscriber creates a new NATS subscriber.
func NewSubscriber(cfg config.NATSConfig) (*Subscriber, error) {
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	log.Printf("Connected to NATS server at %s", url)
	return &Subscriber{nc: nc, subject: cfg.Subject}, nil
}

// Start subscribes to the sample subject and its session subject.
func (s *Subscriber) Start(onSample SampleHandler, onSession SessionHandler) error {
	handler := func(msg *nats.Msg) {
		dispatch(msg, onSample, onSession)
	}
	for _, subject := range []string{s.subject, s.subject + ".session"} {
		sub, err := s.nc.Subscribe(subject, handler)
		if err != nil {
			return err
		}
		s.subs = append(s.subs, sub)
	}
	log.Printf("Subscribed to '%s'. Waiting for messages...", s.subject)
	return nil
}

func dispatch(msg *nats.Msg, onSample SampleHandler, onSession SessionHandler) {
	if strings.HasSuffix(msg.Subject, ".session") {
		var sum model.SessionSummary
		if err := json.Unmarshal(msg.Data, &sum); err != nil {
			log.Printf("Error unmarshalling session summary: %v", err)
			return
		}
		if onSession != nil {
			onSession(sum)
		}
		return
	}
	sample, err := UnmarshalSampleSummary(msg.Data)
	if err != nil {
		log.Printf("Error unmarshalling sample: %v", err)
		return
	}
	if onSample != nil {
		onSample(sample)
	}
}

// Close unsubscribes and closes the NATS connection.
func (s *Subscriber) Close() {
	for _, sub := range s.subs {
		sub.Unsubscribe()
	}
	if s.nc != nil {
		s.nc.Close()
		log.Println("NATS connection closed.")
	}
}

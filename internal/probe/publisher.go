package probe

import (
	"Go2AQMSpectra/internal/config"
	"Go2AQMSpectra/internal/model"
	"encoding/json"
	"fmt"
	"log"

	"github.com/nats-io/nats.go"
)

// Publisher is responsible for publishing sample summaries to a NATS
// subject. It implements model.Writer.
type Publisher struct {
	nc        *nats.Conn
	subject   string
	sessionID string
}

// NewPublisher creates a new NATS publisher.
func NewPublisher(cfg config.NATSConfig, sessionID string) (*Publisher, error) {
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	nc, err := nats.Connect(url, nats.Name("aqm-analyzer "+sessionID))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	log.Printf("Connected to NATS server at %s", url)
	return &Publisher{nc: nc, subject: cfg.Subject, sessionID: sessionID}, nil
}

// Name implements model.Writer.
func (p *Publisher) Name() string {
	return "nats"
}

// WriteSample publishes the summary of one sample.
func (p *Publisher) WriteSample(s *model.Sample) error {
	data, err := Summarize(p.sessionID, s).Marshal()
	if err != nil {
		return err
	}
	return p.nc.Publish(p.subject, data)
}

// Finish publishes the session summary as JSON on the ".session" subject.
func (p *Publisher) Finish(r *model.Report) error {
	if r.Summary == nil {
		return nil
	}
	data, err := json.Marshal(r.Summary)
	if err != nil {
		return fmt.Errorf("failed to encode session summary: %w", err)
	}
	if err := p.nc.Publish(p.subject+".session", data); err != nil {
		return err
	}
	return p.nc.Flush()
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() error {
	if p.nc == nil {
		return nil
	}
	if err := p.nc.Drain(); err != nil {
		return err
	}
	log.Println("NATS connection drained and closed.")
	return nil
}

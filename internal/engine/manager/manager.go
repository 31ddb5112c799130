package manager

import (
	"Go2AQMSpectra/internal/capture"
	"Go2AQMSpectra/internal/codec"
	"Go2AQMSpectra/internal/config"
	"Go2AQMSpectra/internal/engine/aggregator"
	"Go2AQMSpectra/internal/engine/protocol"
	"Go2AQMSpectra/internal/engine/sampler"
	"Go2AQMSpectra/internal/factory"
	"Go2AQMSpectra/internal/model"
	_ "Go2AQMSpectra/internal/probe"  // Registers the nats writer
	_ "Go2AQMSpectra/internal/writer" // Registers the text and clickhouse writers
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/uuid"
)

// Session states reported by Status.
const (
	StateIdle      = "idle"
	StateCapturing = "capturing"
	StateStopping  = "stopping"
	StateFinished  = "finished"
)

// Options describe one capture session.
type Options struct {
	Source     gopacket.PacketDataSource
	SourceName string // device or file name, for the summary
	Filter     string

	Format  codec.Format
	IPClass bool
	Sampler sampler.Config

	Pace bool
	Dump *capture.Dumper

	OutputDir string
	Writers   []config.WriterDef
}

// Manager owns a capture session: the aggregator, the capture and
// reporting goroutines and the writers.
type Manager struct {
	opts      Options
	sessionID string

	agg     *aggregator.Aggregator
	capture *capture.Capture
	sched   *sampler.Scheduler
	quit    *sampler.Quit
	writers []model.Writer

	wg         sync.WaitGroup
	captureErr error
	schedErr   error

	mu        sync.Mutex
	state     string
	startTime time.Time
	onState   func(capturing bool)
}

// NewManager creates the writers and wires the pipeline. Writer creation
// failures are setup errors.
func NewManager(opts Options) (*Manager, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("no capture source")
	}
	m := &Manager{
		opts:      opts,
		sessionID: uuid.NewString(),
		agg:       aggregator.New(),
		quit:      sampler.NewQuit(),
		state:     StateIdle,
	}

	delays := codec.NewDelayTable(opts.Format)
	writers, err := factory.Create(&factory.Env{
		SessionID: m.sessionID,
		OutputDir: opts.OutputDir,
		Delays:    delays,
	}, opts.Writers)
	if err != nil {
		return nil, err
	}
	m.writers = writers

	m.sched, err = sampler.New(opts.Sampler, m.agg, delays, m.quit, writers...)
	if err != nil {
		m.closeWriters()
		return nil, err
	}

	capOpts := capture.Options{Pace: opts.Pace, Dump: opts.Dump, OnEOF: m.quit.Cancel}
	m.capture = capture.New(opts.Source, protocol.NewDecoder(opts.Format, opts.IPClass), m.agg, capOpts)

	log.Printf("Session %s created with %d writers.", m.sessionID, len(writers))
	return m, nil
}

// SessionID returns the id stamped on every output of the session.
func (m *Manager) SessionID() string {
	return m.sessionID
}

// Quit returns the cancellation flag of the session. Signal handlers only
// need this.
func (m *Manager) Quit() *sampler.Quit {
	return m.quit
}

// OnStateChange registers a callback told whether the session is
// capturing. Call it before Start.
func (m *Manager) OnStateChange(f func(capturing bool)) {
	m.onState = f
}

func (m *Manager) setState(state string) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
	if m.onState != nil {
		m.onState(state == StateCapturing)
	}
}

// Start opens the first sample and launches the capture and reporting
// goroutines.
func (m *Manager) Start() {
	m.mu.Lock()
	m.startTime = time.Now()
	m.mu.Unlock()

	m.sched.Begin()
	m.setState(StateCapturing)

	m.wg.Add(2)
	go func() {
		defer m.wg.Done()
		if err := m.capture.Run(); err != nil {
			log.Printf("Capture stopped: %v", err)
			m.captureErr = err
			m.quit.Cancel()
		}
	}()
	go func() {
		defer m.wg.Done()
		m.schedErr = m.sched.Run()
		// reporting has exited, now stop the producer
		m.setState(StateStopping)
		m.capture.Stop()
	}()
	log.Printf("Session %s started on %s.", m.sessionID, m.opts.SourceName)
}

// Wait blocks until the session ends, writes the end-of-session outputs and
// closes the writers. A reporting error takes precedence over a capture
// error.
func (m *Manager) Wait() (*model.SessionSummary, error) {
	m.wg.Wait()

	if m.opts.Dump != nil {
		if err := m.opts.Dump.Stop(); err != nil {
			log.Printf("Error closing capture dump: %v", err)
		}
	}

	summary := m.summary()
	if m.schedErr != nil {
		m.closeWriters()
		m.setState(StateFinished)
		return summary, m.schedErr
	}

	err := m.sched.Finish(summary)
	m.closeWriters()
	m.setState(StateFinished)
	if err != nil {
		return summary, err
	}
	return summary, m.captureErr
}

func (m *Manager) summary() *model.SessionSummary {
	m.mu.Lock()
	start := m.startTime
	m.mu.Unlock()
	return &model.SessionSummary{
		SessionID:        m.sessionID,
		Device:           m.opts.SourceName,
		Filter:           m.opts.Filter,
		WireFormat:       m.opts.Format.String(),
		SampleInterval:   m.opts.Sampler.Interval.String(),
		PacketsCaptured:  m.capture.Captured(),
		PacketsProcessed: m.sched.Processed(),
		PacketsMalformed: m.capture.Malformed(),
		StartTime:        start,
		EndTime:          time.Now(),
	}
}

func (m *Manager) closeWriters() {
	for _, w := range m.writers {
		if err := w.Close(); err != nil {
			log.Printf("Error closing writer %s: %v", w.Name(), err)
		}
	}
}

// Close releases the writers and the dump of a session that was never
// started.
func (m *Manager) Close() {
	if m.opts.Dump != nil {
		if err := m.opts.Dump.Stop(); err != nil {
			log.Printf("Error closing capture dump: %v", err)
		}
	}
	m.closeWriters()
}

// Stop cancels the session. Wait returns once it has wound down.
func (m *Manager) Stop() {
	log.Println("Manager stopping...")
	m.quit.Cancel()
}

// Status implements api.StatusSource.
func (m *Manager) Status() model.SessionStatus {
	m.mu.Lock()
	state, start := m.state, m.startTime
	m.mu.Unlock()

	var samples int
	if latest := m.sched.Latest(); latest != nil {
		samples = latest.ID + 1
	}
	return model.SessionStatus{
		SessionID:        m.sessionID,
		State:            state,
		Source:           m.opts.SourceName,
		StartTime:        start,
		Samples:          samples,
		PacketsCaptured:  m.capture.Captured(),
		PacketsProcessed: m.sched.Processed(),
		PacketsMalformed: m.capture.Malformed(),
	}
}

// Latest implements api.StatusSource.
func (m *Manager) Latest() *model.Sample {
	return m.sched.Latest()
}

package writer

import (
	"Go2AQMSpectra/internal/config"
	"Go2AQMSpectra/internal/model"
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const createFlowTableStatement = `
CREATE TABLE IF NOT EXISTS aqm_flow_samples (
    SessionID   String,
    Timestamp   DateTime64(3),
    SampleID    UInt32,
    Queue       LowCardinality(String),
    Protocol    UInt8,
    SrcIP       String,
    DstIP       String,
    SrcPort     UInt16,
    DstPort     UInt16,
    Port        UInt16,
    Rate        UInt64,
    Drops       UInt32,
    Marks       UInt32
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(Timestamp)
ORDER BY (SessionID, SampleID);
`

const createQueueTableStatement = `
CREATE TABLE IF NOT EXISTS aqm_queue_samples (
    SessionID    String,
    Timestamp    DateTime64(3),
    SampleID     UInt32,
    Queue        LowCardinality(String),
    Packets      UInt64,
    Rate         UInt64,
    Drops        UInt64,
    Marks        UInt64,
    MeanQDelayUs Float64,
    P99QDelayUs  Float64
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(Timestamp)
ORDER BY (SessionID, SampleID);
`

// ClickHouseWriter implements the model.Writer interface for ClickHouse.
// It stores one row per flow and one row per queue for every sample.
type ClickHouseWriter struct {
	conn      driver.Conn
	sessionID string
}

// flowRow is one row of aqm_flow_samples.
type flowRow struct {
	Timestamp time.Time
	SampleID  uint32
	Queue     string
	Protocol  uint8
	SrcIP     string
	DstIP     string
	SrcPort   uint16
	DstPort   uint16
	Port      uint16
	Rate      uint64
	Drops     uint32
	Marks     uint32
}

// NewClickHouseWriter creates a new ClickHouse writer.
func NewClickHouseWriter(cfg config.ClickHouseConfig, sessionID string) (*ClickHouseWriter, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	for _, stmt := range []string{createFlowTableStatement, createQueueTableStatement} {
		if err := conn.Exec(context.Background(), stmt); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to create table: %w", err)
		}
	}
	log.Println("Successfully connected to ClickHouse and ensured tables exist.")

	return &ClickHouseWriter{conn: conn, sessionID: sessionID}, nil
}

func connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Debug: false,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})

	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	return conn, nil
}

// Name implements model.Writer.
func (w *ClickHouseWriter) Name() string {
	return "clickhouse"
}

// flowRows flattens the flows of a sample, ecn queue first.
func flowRows(s *model.Sample) []flowRow {
	var rows []flowRow
	for _, c := range []model.Class{model.ECN, model.NonECN} {
		for _, f := range s.Flows[c] {
			rows = append(rows, flowRow{
				Timestamp: s.End,
				SampleID:  uint32(s.ID),
				Queue:     c.String(),
				Protocol:  f.Key.Protocol,
				SrcIP:     f.Key.SrcIP.String(),
				DstIP:     f.Key.DstIP.String(),
				SrcPort:   f.Key.SrcPort,
				DstPort:   f.Key.DstPort,
				Port:      f.Data.Port,
				Rate:      f.Data.Rate,
				Drops:     f.Data.Drops,
				Marks:     f.Data.Marks,
			})
		}
	}
	return rows
}

// WriteSample inserts the flows and queue totals of one sample.
func (w *ClickHouseWriter) WriteSample(s *model.Sample) error {
	ctx := context.Background()

	rows := flowRows(s)
	if len(rows) > 0 {
		values := make([][]interface{}, 0, len(rows))
		for _, r := range rows {
			values = append(values, []interface{}{
				w.sessionID,
				r.Timestamp,
				r.SampleID,
				r.Queue,
				r.Protocol,
				r.SrcIP,
				r.DstIP,
				r.SrcPort,
				r.DstPort,
				r.Port,
				r.Rate,
				r.Drops,
				r.Marks,
			})
		}
		if err := w.insert(ctx, "INSERT INTO aqm_flow_samples", values); err != nil {
			return fmt.Errorf("failed to write flows: %w", err)
		}
	}

	values := make([][]interface{}, 0, model.NumClasses)
	for c := model.NonECN; c < model.NumClasses; c++ {
		t := s.Totals[c]
		values = append(values, []interface{}{
			w.sessionID,
			s.End,
			uint32(s.ID),
			c.String(),
			t.Packets,
			t.Rate,
			t.Drops,
			t.Marks,
			s.Stats[c].MeanQDelayUs,
			s.Stats[c].P99QDelayUs,
		})
	}
	if err := w.insert(ctx, "INSERT INTO aqm_queue_samples", values); err != nil {
		return fmt.Errorf("failed to write queue totals: %w", err)
	}
	return nil
}

func (w *ClickHouseWriter) insert(ctx context.Context, query string, values [][]interface{}) error {
	batch, err := w.conn.PrepareBatch(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}
	if err := appendRows(batch, values); err != nil {
		return err
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

// rowAppender is the part of driver.Batch used to fill a batch.
type rowAppender interface {
	Append(v ...interface{}) error
	Abort() error
}

// appendRows appends every row to batch. On failure the batch is aborted so
// that its connection is released.
func appendRows(batch rowAppender, values [][]interface{}) error {
	for _, v := range values {
		if err := batch.Append(v...); err != nil {
			if aerr := batch.Abort(); aerr != nil {
				log.Printf("Error aborting clickhouse batch: %v", aerr)
			}
			return fmt.Errorf("failed to append row to batch: %w", err)
		}
	}
	return nil
}

// Finish only logs; every row is already stored.
func (w *ClickHouseWriter) Finish(r *model.Report) error {
	if r.Summary != nil {
		log.Printf("Session %s stored in ClickHouse: %d samples", w.sessionID, r.Summary.Samples)
	}
	return nil
}

// Close closes the connection.
func (w *ClickHouseWriter) Close() error {
	return w.conn.Close()
}

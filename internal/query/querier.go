package query

import (
	"Go2AQMSpectra/internal/config"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// SessionInfo describes one stored session.
type SessionInfo struct {
	SessionID string    `json:"session_id"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	Samples   uint64    `json:"samples"`
}

// QueuePoint is one sample of one queue.
type QueuePoint struct {
	SampleID     uint32    `json:"sample_id"`
	Timestamp    time.Time `json:"timestamp"`
	Packets      uint64    `json:"packets"`
	Rate         uint64    `json:"rate"`
	Drops        uint64    `json:"drops"`
	Marks        uint64    `json:"marks"`
	MeanQDelayUs float64   `json:"mean_qdelay_us"`
	P99QDelayUs  float64   `json:"p99_qdelay_us"`
}

// FlowTotal is one flow summed over a session.
type FlowTotal struct {
	Protocol uint8   `json:"protocol"`
	SrcIP    string  `json:"src_ip"`
	DstIP    string  `json:"dst_ip"`
	SrcPort  uint16  `json:"src_port"`
	DstPort  uint16  `json:"dst_port"`
	Port     uint16  `json:"port"`
	AvgRate  float64 `json:"avg_rate"`
	Drops    uint64  `json:"drops"`
	Marks    uint64  `json:"marks"`
	Samples  uint64  `json:"samples"`
}

// Querier defines the interface for querying stored sessions.
type Querier interface {
	Sessions(ctx context.Context, since time.Time) ([]SessionInfo, error)
	QueueSeries(ctx context.Context, sessionID, queue string) ([]QueuePoint, error)
	TopFlows(ctx context.Context, sessionID, queue string, limit int) ([]FlowTotal, error)
}

// clickhouseQuerier implements the Querier interface for ClickHouse.
type clickhouseQuerier struct {
	conn clickhouse.Conn
}

// NewClickHouseQuerier creates a new querier for ClickHouse.
func NewClickHouseQuerier(cfg config.ClickHouseConfig) (Querier, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}
	return &clickhouseQuerier{conn: conn}, nil
}

func connect(cfg config.ClickHouseConfig) (clickhouse.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
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

// ValidQueue checks a queue name taken from a request.
func ValidQueue(queue string) error {
	switch queue {
	case "ecn", "nonecn":
		return nil
	default:
		return fmt.Errorf("unsupported queue: %s, only ecn and nonecn are allowed", queue)
	}
}

func buildSessionsQuery(since time.Time) (string, []interface{}) {
	var queryBuilder strings.Builder
	queryBuilder.WriteString(`
		SELECT
			SessionID,
			min(Timestamp) AS FirstSeen,
			max(Timestamp) AS LastSeen,
			uniqExact(SampleID) AS Samples
		FROM aqm_queue_samples
	`)
	args := []interface{}{}
	if !since.IsZero() {
		queryBuilder.WriteString(" WHERE Timestamp >= ?")
		args = append(args, since)
	}
	queryBuilder.WriteString(`
		GROUP BY SessionID
		ORDER BY FirstSeen DESC
	`)
	return queryBuilder.String(), args
}

func buildQueueSeriesQuery(sessionID, queue string) (string, []interface{}) {
	query := `
		SELECT SampleID, Timestamp, Packets, Rate, Drops, Marks, MeanQDelayUs, P99QDelayUs
		FROM aqm_queue_samples
		WHERE SessionID = ? AND Queue = ?
		ORDER BY SampleID
	`
	return query, []interface{}{sessionID, queue}
}

func buildTopFlowsQuery(sessionID, queue string, limit int) (string, []interface{}) {
	query := `
		SELECT
			Protocol, SrcIP, DstIP, SrcPort, DstPort,
			any(Port) AS Port,
			avg(Rate) AS AvgRate,
			sum(Drops) AS Drops,
			sum(Marks) AS Marks,
			count() AS Samples
		FROM aqm_flow_samples
		WHERE SessionID = ? AND Queue = ?
		GROUP BY Protocol, SrcIP, DstIP, SrcPort, DstPort
		ORDER BY AvgRate DESC
		LIMIT ?
	`
	return query, []interface{}{sessionID, queue, limit}
}

// Sessions lists the stored sessions, newest first.
func (q *clickhouseQuerier) Sessions(ctx context.Context, since time.Time) ([]SessionInfo, error) {
	query, args := buildSessionsQuery(since)
	rows, err := q.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var sessions []SessionInfo
	for rows.Next() {
		var s SessionInfo
		if err := rows.Scan(&s.SessionID, &s.FirstSeen, &s.LastSeen, &s.Samples); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// QueueSeries returns the per-sample totals of one queue.
func (q *clickhouseQuerier) QueueSeries(ctx context.Context, sessionID, queue string) ([]QueuePoint, error) {
	if err := ValidQueue(queue); err != nil {
		return nil, err
	}
	query, args := buildQueueSeriesQuery(sessionID, queue)
	rows, err := q.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var points []QueuePoint
	for rows.Next() {
		var p QueuePoint
		if err := rows.Scan(&p.SampleID, &p.Timestamp, &p.Packets, &p.Rate, &p.Drops, &p.Marks, &p.MeanQDelayUs, &p.P99QDelayUs); err != nil {
			return nil, fmt.Errorf("failed to scan queue sample: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// TopFlows returns the flows of a queue with the highest mean rate.
func (q *clickhouseQuerier) TopFlows(ctx context.Context, sessionID, queue string, limit int) ([]FlowTotal, error) {
	if err := ValidQueue(queue); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	query, args := buildTopFlowsQuery(sessionID, queue, limit)
	rows, err := q.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	var flows []FlowTotal
	for rows.Next() {
		var f FlowTotal
		if err := rows.Scan(&f.Protocol, &f.SrcIP, &f.DstIP, &f.SrcPort, &f.DstPort, &f.Port, &f.AvgRate, &f.Drops, &f.Marks, &f.Samples); err != nil {
			return nil, fmt.Errorf("failed to scan flow: %w", err)
		}
		flows = append(flows, f)
	}
	return flows, rows.Err()
}

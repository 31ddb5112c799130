package api

import (
	"Go2AQMSpectra/internal/config"
	"Go2AQMSpectra/internal/model"
	"Go2AQMSpectra/internal/probe"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type fakeSource struct {
	latest *model.Sample
}

func (f *fakeSource) Status() model.SessionStatus {
	return model.SessionStatus{SessionID: "s1", State: "capturing", PacketsCaptured: 42}
}

func (f *fakeSource) Latest() *model.Sample {
	return f.latest
}

func TestStatusHandler(t *testing.T) {
	s := NewServer(config.APIConfig{}, &fakeSource{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var st model.SessionStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("failed to decode status: %v", err)
	}
	if st.SessionID != "s1" || st.PacketsCaptured != 42 {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestLatestHandler(t *testing.T) {
	src := &fakeSource{}
	s := NewServer(config.APIConfig{}, src)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/summary/latest", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 before the first sample, got %d", rec.Code)
	}

	src.latest = &model.Sample{ID: 4, TimeMs: 5000}
	src.latest.Totals[model.ECN].Packets = 7
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/summary/latest", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var sum probe.SampleSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &sum); err != nil {
		t.Fatalf("failed to decode summary: %v", err)
	}
	if sum.SessionID != "s1" || sum.SampleID != 4 || sum.Queues[model.ECN].Packets != 7 {
		t.Errorf("unexpected summary %+v", sum)
	}
}

func TestMetricsHandler(t *testing.T) {
	s := NewServer(config.APIConfig{}, &fakeSource{})
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHealthService(t *testing.T) {
	s := NewServer(config.APIConfig{}, &fakeSource{})
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	if err := s.ServeGRPC(lis); err != nil {
		t.Fatalf("ServeGRPC() error: %v", err)
	}
	defer s.Shutdown(context.Background())

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer conn.Close()
	client := healthpb.NewHealthClient(conn)

	check := func() healthpb.HealthCheckResponse_ServingStatus {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: HealthService})
		if err != nil {
			t.Fatalf("Check() error: %v", err)
		}
		return resp.Status
	}

	if got := check(); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("expected NOT_SERVING before capture, got %v", got)
	}
	s.SetServing(true)
	if got := check(); got != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("expected SERVING while capturing, got %v", got)
	}
}

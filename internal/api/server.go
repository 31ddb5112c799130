package api

import (
	"Go2AQMSpectra/internal/config"
	"Go2AQMSpectra/internal/model"
	"Go2AQMSpectra/internal/probe"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthService is the gRPC health service name of the analyzer.
const HealthService = "aqm.analyzer"

// StatusSource is the live session seen by the status endpoints.
type StatusSource interface {
	Status() model.SessionStatus
	Latest() *model.Sample
}

// Server serves the HTTP status API and the gRPC health service.
type Server struct {
	cfg    config.APIConfig
	src    StatusSource
	router *mux.Router
	http   *http.Server
	grpc   *grpc.Server
	health *health.Server
}

// NewServer creates a Server. Nothing listens until Start.
func NewServer(cfg config.APIConfig, src StatusSource) *Server {
	s := &Server{
		cfg:    cfg,
		src:    src,
		router: mux.NewRouter(),
		health: health.NewServer(),
	}
	s.router.HandleFunc("/api/v1/status", s.statusHandler).Methods("GET")
	s.router.HandleFunc("/api/v1/summary/latest", s.latestHandler).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	s.health.SetServingStatus(HealthService, healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured addresses. Empty addresses are skipped.
func (s *Server) Start() error {
	if s.cfg.ListenAddr != "" {
		lis, err := net.Listen("tcp", s.cfg.ListenAddr)
		if err != nil {
			return fmt.Errorf("could not listen on %s: %w", s.cfg.ListenAddr, err)
		}
		s.http = &http.Server{Handler: s.router}
		go func() {
			log.Printf("API server starting on %s", lis.Addr())
			if err := s.http.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("API server stopped: %v", err)
			}
		}()
	}

	if s.cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", s.cfg.GRPCAddr)
		if err != nil {
			s.Shutdown(context.Background())
			return fmt.Errorf("could not listen on %s: %w", s.cfg.GRPCAddr, err)
		}
		if err := s.ServeGRPC(lis); err != nil {
			return err
		}
	}
	return nil
}

// ServeGRPC serves the health service on lis in the background.
func (s *Server) ServeGRPC(lis net.Listener) error {
	if s.grpc != nil {
		return errors.New("gRPC server already running")
	}
	s.grpc = grpc.NewServer()
	healthpb.RegisterHealthServer(s.grpc, s.health)
	go func() {
		log.Printf("gRPC health service starting on %s", lis.Addr())
		if err := s.grpc.Serve(lis); err != nil {
			log.Printf("gRPC server stopped: %v", err)
		}
	}()
	return nil
}

// SetServing reports whether packets are being captured.
func (s *Server) SetServing(serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(HealthService, st)
}

// Shutdown stops both servers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.Shutdown()
	if s.grpc != nil {
		s.grpc.GracefulStop()
	}
	if s.http != nil {
		return s.http.Shutdown(ctx)
	}
	return nil
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.src.Status())
}

func (s *Server) latestHandler(w http.ResponseWriter, r *http.Request) {
	latest := s.src.Latest()
	if latest == nil {
		http.Error(w, "no sample yet", http.StatusNotFound)
		return
	}
	writeJSON(w, probe.Summarize(s.src.Status().SessionID, latest))
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	jsonBytes, err := json.Marshal(v)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to marshal response: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(jsonBytes)
}

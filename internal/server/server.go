// FilePath: internal/server/server.go
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ghandlers "github.com/gorilla/handlers"
	"github.com/sensegrid/hub/api"
	"github.com/sensegrid/hub/internal/config"
	"github.com/sensegrid/hub/internal/database"
	"github.com/sensegrid/hub/internal/ingest"
	"github.com/sensegrid/hub/internal/monitoring"
	"github.com/sensegrid/hub/internal/query"
	"github.com/sensegrid/hub/internal/repository/timescale"
	"github.com/sensegrid/hub/internal/transport/mqtt"
	nuts "github.com/vaudience/go-nuts"
)

// Server wires the store, pipeline, query engine and both transports
// (HTTP and MQTT) together and manages their lifecycle.
type Server struct {
	config     *config.Config
	srv        *http.Server
	db         database.DB
	pipeline   *ingest.Pipeline
	engine     *query.Engine
	monitoring *monitoring.Service

	mqttClient *mqtt.Client
	mqttCancel context.CancelFunc
}

// New creates a new server instance
func New(cfg *config.Config) *Server {
	return &Server{
		config: cfg,
		srv: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}
}

// Start initializes all components, begins serving and blocks until a
// shutdown signal arrives.
func (s *Server) Start() error {
	if err := s.initialize(); err != nil {
		return err
	}

	s.monitoring = monitoring.NewService(monitoring.Config{
		LogLevel: s.config.Monitoring.LogLevel,
	})
	s.setupEventHandlers()

	router := api.NewRouter(s.pipeline, s.engine)

	// The browser dashboards that consume this API are served from other
	// origins, so CORS stays wide open.
	cors := ghandlers.CORS(
		ghandlers.AllowedOrigins([]string{"*"}),
		ghandlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		ghandlers.AllowedHeaders([]string{"Content-Type"}),
	)
	s.srv.Handler = cors(router)

	if s.config.MQTT.Enabled {
		if err := s.startMQTT(); err != nil {
			return err
		}
	}

	go func() {
		nuts.L.Infof("[Server] Listening on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			nuts.L.Errorf("[Server] Error starting server: %v", err)
			os.Exit(1)
		}
	}()

	return s.waitForShutdown()
}

// initialize connects the store and builds the pipeline and engine.
func (s *Server) initialize() error {
	db, err := database.NewTimescaleDB(s.config.Database.TimescaleDB)
	if err != nil {
		return fmt.Errorf("failed to connect to TimescaleDB: %w", err)
	}
	s.db = db

	readings, err := timescale.NewReadingRepository(db)
	if err != nil {
		return fmt.Errorf("failed to initialize readings store: %w", err)
	}

	s.pipeline = ingest.New(readings)
	s.engine = query.New(readings, s.config.Database.TimescaleDB.QueryTimeout)
	return nil
}

// startMQTT opens the broker session and attaches the ingest subscriber
// and, when enabled, the request/response responder.
func (s *Server) startMQTT() error {
	s.mqttClient = mqtt.NewClient(s.config.MQTT)

	subscriber := mqtt.NewSubscriber(s.mqttClient, s.pipeline)
	if s.config.MQTT.RPCEnabled {
		mqtt.NewResponder(s.mqttClient, s.pipeline, s.engine)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.mqttCancel = cancel

	if err := s.mqttClient.Start(ctx); err != nil {
		cancel()
		return fmt.Errorf("failed to start MQTT transport: %w", err)
	}
	subscriber.Run(ctx)

	nuts.L.Infof("[Server] MQTT transport up, ingesting from %s", s.config.MQTT.IngestTopic)
	return nil
}

// setupEventHandlers forwards pipeline events to monitoring.
func (s *Server) setupEventHandlers() {
	forward := func(event, label string) {
		s.pipeline.Events().On(event, "monitoring_"+event, func(args ...interface{}) {
			labels := map[string]string{}
			if len(args) > 0 {
				if v, ok := args[0].(string); ok {
					labels[label] = v
				}
			}
			s.monitoring.RecordEvent(event, labels)
		})
	}

	forward(ingest.EventIngested, "sensor_id")
	forward(ingest.EventRejected, "reason")
	forward(ingest.EventEmpty, "sensor_id")
	forward(ingest.EventDeleted, "sensor_id")
	forward(ingest.EventPurged, "sensor_id")
}

// waitForShutdown waits for interrupt signal and gracefully shuts down
func (s *Server) waitForShutdown() error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	nuts.L.Infof("[Server] Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()

	if s.mqttClient != nil {
		if err := s.mqttClient.Stop(ctx); err != nil {
			nuts.L.Warnf("[Server] Error disconnecting MQTT: %v", err)
		}
		s.mqttCancel()
	}

	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("error shutting down server: %w", err)
	}

	if err := s.db.Close(); err != nil {
		nuts.L.Warnf("[Server] Error closing database: %v", err)
	}

	nuts.L.Infof("[Server] Shut down cleanly")
	return nil
}

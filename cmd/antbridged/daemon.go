package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dougsko/antbridge/pkg/client"
	"github.com/dougsko/antbridge/pkg/config"
	"github.com/dougsko/antbridge/pkg/engine"
	"github.com/dougsko/antbridge/pkg/logging"
	"github.com/dougsko/antbridge/pkg/metrics"
	"github.com/dougsko/antbridge/pkg/publish"
	"github.com/dougsko/antbridge/pkg/storage"
	"github.com/gin-gonic/gin"
)

// AntBridgeDaemon wires the engine to its transports, observers and the
// web API.
type AntBridgeDaemon struct {
	config *config.Config
	logger *logging.Logger
	log    *logging.ComponentLogger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Core components
	engine    *engine.Engine
	metrics   *metrics.Metrics
	publisher *publish.MQTTPublisher
	store     *storage.CommandStore
	recorder  *storage.Recorder

	router    *gin.Engine
	webServer *http.Server
}

// NewAntBridgeDaemon creates a daemon using the real controller and logger
// channels.
func NewAntBridgeDaemon(cfg *config.Config, logger *logging.Logger) (*AntBridgeDaemon, error) {
	url, err := client.BuildWebSocketURL(cfg.WebSocket.URL, cfg.WebSocket.Port)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket url: %w", err)
	}

	commands := client.NewCommandChannel(client.CommandChannelConfig{
		URL:     url,
		Enabled: cfg.WebSocketEnabled(),
	}, logger)
	telemetry := client.NewTelemetryChannel(client.TelemetryChannelConfig{
		Host:    cfg.UDP.Host,
		Port:    cfg.UDP.Port,
		Enabled: cfg.UDPEnabled(),
	}, logger)

	return newDaemon(cfg, logger, commands, telemetry)
}

func newDaemon(cfg *config.Config, logger *logging.Logger, commands engine.CommandSender, telemetry engine.TelemetrySource) (*AntBridgeDaemon, error) {
	ctx, cancel := context.WithCancel(context.Background())

	d := &AntBridgeDaemon{
		config: cfg,
		logger: logger,
		log:    logger.Component("daemon"),
		ctx:    ctx,
		cancel: cancel,
		engine: engine.NewEngine(cfg, logger, commands, telemetry),
	}

	d.metrics = metrics.New(d.engine.Status)
	d.engine.Subscribe(d.metrics.HandleEvent)

	if cfg.Storage.DatabasePath != "" {
		store, err := storage.NewCommandStore(cfg.Storage.DatabasePath, cfg.Storage.MaxCommands, logger)
		if err != nil {
			cancel()
			return nil, err
		}
		d.store = store
		d.recorder = storage.NewRecorder(store, logger)
		d.engine.Subscribe(d.recorder.HandleEvent)
	}

	d.setupWebServer()
	return d, nil
}

// Start starts the daemon
func (d *AntBridgeDaemon) Start() error {
	d.log.Info("Starting antbridged daemon")

	// The publisher connects before the engine so the first events reach the broker.
	publisher, err := publish.NewMQTTPublisher(d.config.MQTT, d.logger)
	if err != nil {
		d.log.Error("MQTT publisher disabled", logging.Fields{"error": err})
	} else if publisher != nil {
		d.publisher = publisher
		d.engine.Subscribe(publisher.HandleEvent)
	}

	if err := d.engine.Start(d.ctx); err != nil {
		return fmt.Errorf("failed to start engine: %w", err)
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.log.Info("Starting web server", logging.Fields{"addr": d.webServer.Addr})
		if err := d.webServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.log.Error("Web server error", logging.Fields{"error": err})
		}
	}()

	return nil
}

// Stop stops the daemon gracefully
func (d *AntBridgeDaemon) Stop() error {
	d.log.Info("Stopping daemon")

	d.cancel()

	if d.webServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.webServer.Shutdown(ctx); err != nil {
			d.log.Warn("Web server shutdown error", logging.Fields{"error": err})
		}
	}

	d.engine.Stop()

	if d.recorder != nil {
		d.recorder.Close()
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			d.log.Warn("Command store close error", logging.Fields{"error": err})
		}
	}
	d.publisher.Disconnect()

	d.wg.Wait()

	d.log.Info("Daemon stopped")
	return nil
}

// setupWebServer initializes the web server and routes
func (d *AntBridgeDaemon) setupWebServer() {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), d.requestLogger())

	api := router.Group("/api/v1")
	{
		api.GET("/status", d.handleGetStatus)
		api.POST("/antenna", d.handleSelectAntenna)
		api.POST("/send", d.handleSendText)
		api.PUT("/auto/:rig", d.handleSetAuto)
		api.GET("/rules", d.handleGetRules)
		api.GET("/commands", d.handleGetCommands)
	}

	router.GET("/ws/events", d.handleEventsWebSocket)
	router.GET("/metrics", gin.WrapH(d.metrics.Handler()))

	d.router = router
	d.webServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", d.config.Web.BindAddress, d.config.Web.Port),
		Handler: router,
	}
}

// requestLogger logs each request through the daemon logger at debug level.
func (d *AntBridgeDaemon) requestLogger() gin.HandlerFunc {
	log := d.logger.Component("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("Request", logging.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		})
	}
}

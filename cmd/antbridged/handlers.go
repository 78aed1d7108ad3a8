package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dougsko/antbridge/pkg/client"
	"github.com/dougsko/antbridge/pkg/engine"
	"github.com/dougsko/antbridge/pkg/logging"
	"github.com/dougsko/antbridge/pkg/protocol"
	"github.com/dougsko/antbridge/pkg/state"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	eventBufferSize = 64
	writeWait       = 10 * time.Second
)

// RigView is the per-rig part of the status response.
type RigView struct {
	Name        string             `json:"name"`
	Antenna     string             `json:"antenna"`
	AntennaName string             `json:"antenna_name"`
	Auto        bool               `json:"auto"`
	Telemetry   state.RigTelemetry `json:"telemetry"`
}

// antennaLabel maps a controller selector string to its display name.
func (d *AntBridgeDaemon) antennaLabel(selector string) string {
	switch selector {
	case "":
		return ""
	case "-":
		return d.config.AntennaName(0)
	}
	n, err := strconv.Atoi(selector)
	if err != nil {
		return selector
	}
	return d.config.AntennaName(n)
}

func (d *AntBridgeDaemon) rigViews(s engine.Status) map[string]RigView {
	names := map[protocol.Rig]string{
		protocol.RigA: d.config.Rigs.RigAName,
		protocol.RigB: d.config.Rigs.RigBName,
	}
	views := make(map[string]RigView, len(protocol.Rigs))
	for _, rig := range protocol.Rigs {
		selector := s.Controller.Antenna(rig)
		views[rig.String()] = RigView{
			Name:        names[rig],
			Antenna:     selector,
			AntennaName: d.antennaLabel(selector),
			Auto:        s.Auto(rig),
			Telemetry:   s.Telemetry.Rig(rig),
		}
	}
	return views
}

// handleGetStatus returns the engine status
func (d *AntBridgeDaemon) handleGetStatus(c *gin.Context) {
	s := d.engine.Status()
	c.JSON(http.StatusOK, gin.H{
		"version": Version,
		"rigs":    d.rigViews(s),
		"status":  s,
	})
}

// handleSelectAntenna manually selects an antenna
func (d *AntBridgeDaemon) handleSelectAntenna(c *gin.Context) {
	var req struct {
		Rig     string `json:"rig" binding:"required"`
		Antenna *int   `json:"antenna" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rig, err := protocol.ParseRig(req.Rig)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sent, err := d.engine.SelectAntenna(rig, *req.Antenna)
	if err != nil {
		status := http.StatusServiceUnavailable
		if errors.Is(err, engine.ErrInvalidAntenna) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	result := "unchanged"
	if sent {
		result = "sent"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  result,
		"command": protocol.FormatSelectCommand(rig, *req.Antenna),
	})
}

// handleSendText sends a raw command to the controller
func (d *AntBridgeDaemon) handleSendText(c *gin.Context) {
	var req struct {
		Text string `json:"text"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := d.engine.SendText(req.Text); err != nil {
		status := http.StatusBadGateway
		switch {
		case engine.IsEmptyCommand(err):
			status = http.StatusBadRequest
		case errors.Is(err, engine.ErrNotRunning), errors.Is(err, client.ErrDisabled):
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "sent"})
}

// handleSetAuto toggles automatic selection for a rig
func (d *AntBridgeDaemon) handleSetAuto(c *gin.Context) {
	rig, err := protocol.ParseRig(c.Param("rig"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var req struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := d.engine.SetAuto(rig, *req.Enabled); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"rig":     rig.String(),
		"enabled": *req.Enabled,
	})
}

// handleGetRules returns the configured antenna rules
func (d *AntBridgeDaemon) handleGetRules(c *gin.Context) {
	rules := d.engine.Rules()
	c.JSON(http.StatusOK, gin.H{
		"rules": rules,
		"count": len(rules),
	})
}

// handleGetCommands returns the command audit log
func (d *AntBridgeDaemon) handleGetCommands(c *gin.Context) {
	if d.store == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "command storage is disabled"})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 0 {
		limit = 50
	}

	commands, err := d.store.Recent(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"commands": commands,
		"count":    len(commands),
	})
}

// WebSocket upgrader
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleEventsWebSocket streams engine events to a browser or script.
func (d *AntBridgeDaemon) handleEventsWebSocket(c *gin.Context) {
	log := d.logger.Component("http")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn("WebSocket upgrade failed", logging.Fields{"error": err})
		return
	}
	defer conn.Close()

	events := make(chan engine.Event, eventBufferSize)
	unsubscribe := d.engine.Subscribe(func(ev engine.Event) {
		select {
		case events <- ev:
		default:
			// slow client
		}
	})
	defer unsubscribe()

	log.Info("Event WebSocket client connected", logging.Fields{"remote": c.Request.RemoteAddr})

	// Reader only watches for the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(gin.H{"kind": "snapshot", "status": d.engine.Status()}); err != nil {
		return
	}

	for {
		select {
		case ev := <-events:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				log.Debug("WebSocket write error", logging.Fields{"error": err})
				return
			}
		case <-closed:
			log.Info("Event WebSocket client disconnected")
			return
		case <-d.ctx.Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(time.Second))
			return
		}
	}
}

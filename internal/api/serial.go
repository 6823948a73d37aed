package api

import (
	"context"
	"net/http"

	"github.com/banshee-data/rover.control/internal/httputil"
	"github.com/banshee-data/rover.control/internal/monitoring"
	"github.com/banshee-data/rover.control/internal/security"
	"github.com/banshee-data/rover.control/internal/serialmux"
)

func (s *Server) handleSerialPorts(w http.ResponseWriter, r *http.Request) {
	ports, err := s.cfg.ListPorts()
	if err != nil {
		httputil.InternalServerError(w, "failed to list serial ports")
		monitoring.Opsf("list serial ports: %v", err)
		return
	}
	if ports == nil {
		ports = []serialmux.PortInfo{}
	}
	httputil.WriteJSONOK(w, ports)
}

func (s *Server) handleSerialConnection(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Serial == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "serial disabled")
		return
	}
	httputil.WriteJSONOK(w, s.cfg.Serial.Connection())
}

type reconnectRequest struct {
	Port string `json:"port"`
	serialmux.PortOptions
}

func (s *Server) handleSerialReconnect(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Serial == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "serial disabled")
		return
	}
	var req reconnectRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if req.Port == "" {
		req.Port = s.cfg.Serial.Connection().PortPath
	}
	if err := security.ValidateDevicePath(req.Port); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if _, err := req.PortOptions.Normalize(); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), reconnectTimeout)
	defer cancel()
	conn, err := s.cfg.Serial.Reconnect(ctx, req.Port, req.PortOptions)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadGateway, conn)
		return
	}
	httputil.WriteJSONOK(w, conn)
}

func (s *Server) handleSerialDisconnect(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Serial == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "serial disabled")
		return
	}
	httputil.WriteJSONOK(w, s.cfg.Serial.Disconnect())
}

package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"i4.energy/across/ubloxd/atclient"
	"i4.energy/across/ubloxd/cellular"
)

// Server handles incoming HTTP requests for interacting with the
// configured u-blox module
type Server struct {
	Logger *slog.Logger
	Device *cellular.Device
}

// ServeHTTP implements the http.Handler interface for the Server struct
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /command", s.handleCommand)
	mux.ServeHTTP(w, r)
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	if message == "" {
		w.WriteHeader(statusCode)
		return
	}

	type ErrorResponse struct {
		Message string `json:"message"`
	}
	resp := ErrorResponse{Message: message}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}

// handleStatus reports the module's current network state
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	type StatusResponse struct {
		Registration string `json:"registration"`
		Registered   bool   `json:"registered"`
		RSSI         int    `json:"rssi"`
		BER          int    `json:"ber"`
		Operator     string `json:"operator,omitempty"`
	}

	ctx := r.Context()

	status, err := s.Device.RegistrationStatus(ctx)
	if err != nil {
		s.Logger.Error("Failed to query registration status", "error", err)
		s.sendError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	rssi, ber, err := s.Device.SignalQuality(ctx)
	if err != nil {
		s.Logger.Error("Failed to query signal quality", "error", err)
		s.sendError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// The operator name is unavailable while unregistered; that is not
	// an error for a status report.
	operator, _ := s.Device.Operator(ctx)

	resp := StatusResponse{
		Registration: status.String(),
		Registered:   status.Registered(),
		RSSI:         rssi,
		BER:          ber,
		Operator:     operator,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleCommand runs one diagnostic AT command and returns the
// information response lines
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	type CommandRequest struct {
		Command string `json:"command"`
	}
	type CommandResponse struct {
		Lines []string `json:"lines"`
	}

	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	command := strings.TrimSpace(req.Command)
	if command == "" {
		s.sendError(w, "'command' field is required", http.StatusBadRequest)
		return
	}
	if !strings.HasPrefix(strings.ToUpper(command), "AT") {
		s.sendError(w, "only AT commands are accepted", http.StatusBadRequest)
		return
	}

	lines, err := s.runCommand(r, command)
	if err != nil {
		var devErr *atclient.DeviceError
		switch {
		case errors.As(err, &devErr):
			s.Logger.Warn("Module rejected command", "command", command, "result", devErr.Line)
			s.sendError(w, devErr.Line, http.StatusBadGateway)
		case errors.Is(err, atclient.ErrTimeout):
			s.sendError(w, "module did not answer in time", http.StatusGatewayTimeout)
		default:
			s.Logger.Error("Command failed", "command", command, "error", err)
			s.sendError(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	s.Logger.Info("Command executed", "command", command, "lines", len(lines))
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(CommandResponse{Lines: lines})
}

// runCommand performs the exchange and collects every information
// response line up to the final result code.
func (s *Server) runCommand(r *http.Request, command string) ([]string, error) {
	client := s.Device.Client()

	ctx, err := client.Lock(r.Context())
	if err != nil {
		return nil, err
	}
	defer client.Unlock(ctx)

	if err := client.SendCommand(ctx, command); err != nil {
		return nil, err
	}

	lines := []string{}
	for {
		err := client.ResponseLine(ctx, "")
		if errors.Is(err, atclient.ErrNoResponseLine) {
			break
		}
		if err != nil {
			return nil, err
		}
		text, err := client.ResponseText()
		if err != nil {
			return nil, err
		}
		lines = append(lines, text)
	}

	if err := client.ResponseStop(ctx); err != nil {
		return nil, err
	}
	return lines, nil
}

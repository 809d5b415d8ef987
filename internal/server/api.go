package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/muurk/ippower/internal/device"
	"github.com/muurk/ippower/internal/engine"
	"github.com/muurk/ippower/internal/logging"
	"go.uber.org/zap"
)

// SocketResponse is the API representation of one socket
type SocketResponse struct {
	ID    device.SocketID   `json:"id"`
	Name  string            `json:"name"`
	Power device.PowerState `json:"power"`
	On    bool              `json:"on"`
}

// StatusResponse is returned by GET /api/status
type StatusResponse struct {
	Status    string           `json:"status"`
	Error     string           `json:"error,omitempty"`
	PollState string           `json:"poll_state"`
	Sockets   []SocketResponse `json:"sockets"`
}

// ErrorResponse is the body of every non-2xx API response
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
	Hint  string `json:"hint,omitempty"`
}

// PowerRequest is the body of PUT /api/sockets/{id}/power
type PowerRequest struct {
	State string `json:"state"`
}

func newSocketResponse(rec device.SocketRecord) SocketResponse {
	return SocketResponse{
		ID:    rec.ID,
		Name:  rec.Name,
		Power: rec.Power,
		On:    rec.Power == device.PowerOn,
	}
}

func (s *Server) socketList() []SocketResponse {
	all := s.engine.Sockets()
	out := make([]SocketResponse, 0, len(all))
	for _, rec := range all {
		out = append(out, newSocketResponse(rec))
	}
	return out
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.engine.Status()
	resp := StatusResponse{
		Status:    status.String(),
		PollState: s.engine.PollState().String(),
		Sockets:   s.socketList(),
	}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSockets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.socketList())
}

func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	id, err := socketFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	rec, err := s.engine.Socket(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSocketResponse(rec))
}

func (s *Server) handleSetPower(w http.ResponseWriter, r *http.Request) {
	id, err := socketFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req PowerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, device.NewInvalidArgumentError("request body must be {\"state\":\"on|off\"}"))
		return
	}
	desired, err := device.ParsePowerState(req.State)
	if err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()

	if err := s.engine.SetSocketPower(ctx, id, desired); err != nil {
		writeError(w, err)
		return
	}
	s.writeSocket(w, id)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	id, err := socketFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()

	if err := s.engine.ToggleSocketPower(ctx, id); err != nil {
		writeError(w, err)
		return
	}
	s.writeSocket(w, id)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()

	if err := s.engine.RefreshPowerState(ctx); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.socketList())
}

func (s *Server) handleRefreshNames(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()

	if err := s.engine.RefreshSocketNames(ctx); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.socketList())
}

func (s *Server) handleVariables(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Variables())
}

func (s *Server) writeSocket(w http.ResponseWriter, id device.SocketID) {
	rec, err := s.engine.Socket(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSocketResponse(rec))
}

func socketFromPath(r *http.Request) (device.SocketID, error) {
	return device.ParseSocketID(mux.Vars(r)["id"])
}

// statusCode maps an error to the HTTP status returned to API clients
func statusCode(err error) int {
	if kind, ok := device.KindOf(err); ok {
		switch kind {
		case device.KindInvalidArgument:
			return http.StatusBadRequest
		case device.KindPreconditionFailed:
			return http.StatusConflict
		case device.KindUnreachable:
			return http.StatusGatewayTimeout
		case device.KindProtocol:
			return http.StatusBadGateway
		case device.KindConfigIncomplete:
			return http.StatusServiceUnavailable
		}
	}
	switch {
	case errors.Is(err, engine.ErrNotStarted):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: err.Error()}
	if kind, ok := device.KindOf(err); ok {
		resp.Kind = kind.String()
		resp.Hint = device.TroubleshootingHint(err)
	}
	writeJSON(w, statusCode(err), resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debug("Failed to write response", zap.Error(err))
	}
}

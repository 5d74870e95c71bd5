package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/shaunagostinho/psudash/internal/psu"
)

// statusFor maps supply errors onto HTTP statuses.
func statusFor(err error) int {
	var unrep *psu.ValueUnrepresentableError
	var rerr *psu.ReadError
	var werr *psu.WriteError
	var derr *psu.DialError
	switch {
	case errors.As(err, &unrep):
		return http.StatusBadRequest
	case errors.Is(err, psu.ErrUnknownVariant):
		return http.StatusConflict
	case errors.Is(err, psu.ErrMalformedResponse),
		errors.Is(err, psu.ErrNoResponse),
		errors.As(err, &rerr),
		errors.As(err, &werr),
		errors.As(err, &derr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func writeErr(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), statusFor(err))
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func methodNotAllowed(w http.ResponseWriter) {
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
}

// pointRequest carries optional voltage and current updates.
type pointRequest struct {
	Voltage *float64 `json:"voltage"`
	Current *float64 `json:"current"`
}

type pointResponse struct {
	Voltage float64 `json:"voltage"`
	Current float64 `json:"current"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.lastMu.RLock()
	lastErr := s.lastErr
	s.lastMu.RUnlock()
	writeJSON(w, map[string]interface{}{
		"status":    "ok",
		"model":     s.supply.Name(),
		"connected": s.supply.IsConnected(),
		"error":     lastErr,
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		data, err := s.cfg.ToJSON()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)

	case http.MethodPost:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if err := s.cfg.UpdateFromJSON(body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.cfg.Save(); err != nil {
			log.Errorf("[config] save failed: %v", err)
		}

		psuCfg, dl := s.cfg.Snapshot()
		s.logger.SetEnabled(dl.Enabled)
		s.broadcast(Frame{Config: &psuCfg, Model: s.supply.Name(), Stamp: time.Now().UnixMilli()})
		writeOK(w)

	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		set, err := s.supply.Settings()
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, set)

	case http.MethodPost:
		var req pointRequest
		if !decode(w, r, &req) {
			return
		}
		var cmds []psu.Command
		if req.Voltage != nil {
			cmds = append(cmds, psu.SetVoltage{Voltage: *req.Voltage})
		}
		if req.Current != nil {
			cmds = append(cmds, psu.SetCurrent{Current: *req.Current})
		}
		if err := s.supply.Apply(cmds...); err != nil {
			writeErr(w, err)
			return
		}
		writeOK(w)

	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleLimits(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		v, err := s.supply.VoltageLimit()
		if err != nil {
			writeErr(w, err)
			return
		}
		i, err := s.supply.CurrentLimit()
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, pointResponse{Voltage: v, Current: i})

	case http.MethodPost:
		var req pointRequest
		if !decode(w, r, &req) {
			return
		}
		var cmds []psu.Command
		if req.Voltage != nil {
			cmds = append(cmds, psu.SetVoltageLimit{Voltage: *req.Voltage})
		}
		if req.Current != nil {
			cmds = append(cmds, psu.SetCurrentLimit{Current: *req.Current})
		}
		if err := s.supply.Apply(cmds...); err != nil {
			writeErr(w, err)
			return
		}
		writeOK(w)

	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleOutput(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		On *bool `json:"on"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.On == nil {
		http.Error(w, "bad request: missing on", http.StatusBadRequest)
		return
	}
	state := psu.OutputOff
	if *req.On {
		state = psu.OutputOn
	}
	if err := s.supply.SetOutput(state); err != nil {
		writeErr(w, err)
		return
	}
	log.Printf("[psu] output %s", state)
	writeOK(w)
}

func (s *Server) handlePresets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		p, err := s.supply.Presets()
		if err != nil {
			writeErr(w, err)
			return
		}
		writeJSON(w, p)

	case http.MethodPost:
		var req []psu.OperatingPoint
		if !decode(w, r, &req) {
			return
		}
		if len(req) != psu.NumPresets {
			http.Error(w, "bad request: need exactly 3 presets", http.StatusBadRequest)
			return
		}
		var p psu.Presets
		copy(p[:], req)
		if err := s.supply.SetPresets(p); err != nil {
			writeErr(w, err)
			return
		}
		writeOK(w)

	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleSelectPreset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req struct {
		Index *int `json:"index"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Index == nil {
		http.Error(w, "bad request: missing index", http.StatusBadRequest)
		return
	}
	if err := s.supply.SelectPreset(psu.PresetIndex(*req.Index)); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w)
}

func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	caps, err := s.supply.Capabilities()
	if err != nil {
		writeErr(w, err)
		return
	}
	model := ""
	if v := caps.Variant(); v != nil {
		model = v.Model()
	}
	writeJSON(w, struct {
		psu.Capabilities
		Model string `json:"model"`
	}{caps, model})
}

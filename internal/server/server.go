package server

import (
	"context"
	"encoding/json"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/shaunagostinho/psudash/internal/logger"
	"github.com/shaunagostinho/psudash/internal/monitor"
	"github.com/shaunagostinho/psudash/internal/psu"
	"github.com/shaunagostinho/psudash/internal/publish"
)

const publishTimeout = 2 * time.Second

// Server polls the supply and broadcasts samples to WebSocket clients.
type Server struct {
	cfg        *Config
	supply     *psu.Supply
	webFS      fs.FS
	logger     *logger.Logger
	metrics    *monitor.Metrics
	gatherer   prometheus.Gatherer
	publishers []publish.Publisher

	clients   map[*wsClient]struct{}
	clientsMu sync.RWMutex

	upgrader websocket.Upgrader

	lastMu  sync.RWMutex
	last    *psu.Sample
	lastErr string
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Frame is the JSON structure sent to all WebSocket clients.
type Frame struct {
	Sample    *psu.Sample `json:"sample,omitempty"`
	Model     string      `json:"model,omitempty"`
	Connected bool        `json:"connected"`
	Error     string      `json:"error,omitempty"`
	Config    *PSUConfig  `json:"config,omitempty"`
	Stamp     int64       `json:"stamp"` // Unix ms
}

// New creates a new Server. Its collectors are registered with reg, which
// is also what /metrics serves. The supply's Observer is taken over.
func New(cfg *Config, supply *psu.Supply, webFS fs.FS, reg *prometheus.Registry, pubs ...publish.Publisher) *Server {
	_, dl := cfg.Snapshot()
	s := &Server{
		cfg:    cfg,
		supply: supply,
		webFS:  webFS,
		logger: logger.New(logger.Config{
			Enabled:    dl.Enabled,
			Path:       dl.Path,
			IntervalMs: dl.Interval,
		}),
		metrics:    monitor.NewMetrics(reg),
		gatherer:   reg,
		publishers: pubs,
		clients:    make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	supply.Observer = s.metrics.ObserveExchange
	return s
}

// Handler routes every endpoint.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Embedded web files
	mux.Handle("/", http.FileServer(http.FS(s.webFS)))

	mux.HandleFunc("/ws", s.handleWS)
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", s.handleHealth)

	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/settings", s.handleSettings)
	mux.HandleFunc("/api/limits", s.handleLimits)
	mux.HandleFunc("/api/output", s.handleOutput)
	mux.HandleFunc("/api/presets", s.handlePresets)
	mux.HandleFunc("/api/presets/select", s.handleSelectPreset)
	mux.HandleFunc("/api/capabilities", s.handleCapabilities)
	return mux
}

// Run starts the HTTP server and the poll loop.
func (s *Server) Run(ctx context.Context) error {
	go s.pollLoop(ctx)

	srv := &http.Server{
		Addr:    s.cfg.Server.ListenAddr,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	log.Printf("[server] listening on %s", s.cfg.Server.ListenAddr)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Last returns the most recent sample, nil before the first good poll.
func (s *Server) Last() *psu.Sample {
	s.lastMu.RLock()
	defer s.lastMu.RUnlock()
	return s.last
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("[ws] upgrade error: %v", err)
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 64),
	}

	s.clientsMu.Lock()
	s.clients[client] = struct{}{}
	n := len(s.clients)
	s.clientsMu.Unlock()
	s.metrics.WSClients.Set(float64(n))

	log.Printf("[ws] client connected (%d total)", n)

	// Greet with config and whatever we last saw
	psuCfg, _ := s.cfg.Snapshot()
	s.lastMu.RLock()
	hello := Frame{
		Sample:    s.last,
		Model:     s.supply.Name(),
		Connected: s.lastErr == "" && s.last != nil,
		Error:     s.lastErr,
		Config:    &psuCfg,
		Stamp:     time.Now().UnixMilli(),
	}
	s.lastMu.RUnlock()
	if data, err := json.Marshal(hello); err == nil {
		client.send <- data
	}

	// Writer
	go func() {
		defer conn.Close()
		for msg := range client.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()

	// Reader, for close detection
	go func() {
		defer func() {
			s.clientsMu.Lock()
			delete(s.clients, client)
			n := len(s.clients)
			close(client.send)
			s.clientsMu.Unlock()
			s.metrics.WSClients.Set(float64(n))
			log.Printf("[ws] client disconnected (%d total)", n)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

// pollLoop samples the supply at psu.poll_hz. Failures are reported to
// clients and retried on the next tick.
func (s *Server) pollLoop(ctx context.Context) {
	psuCfg, _ := s.cfg.Snapshot()
	hz := psuCfg.PollHz
	if hz <= 0 {
		hz = 2
	}
	ticker := time.NewTicker(time.Second / time.Duration(hz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Close()
			return
		case <-ticker.C:
			s.PollOnce(ctx)
		}
	}
}

// PollOnce takes one sample and hands it to clients, the CSV log, the
// metrics and the publishers. A supply of unknown model is detected first.
func (s *Server) PollOnce(ctx context.Context) *psu.Sample {
	if s.supply.CurrentVariant() == nil {
		if _, err := s.supply.Detect(); err != nil {
			s.pollFailed(err)
			return nil
		}
	}

	sample, err := s.supply.Poll()
	if err != nil {
		s.pollFailed(err)
		return nil
	}

	s.lastMu.Lock()
	if s.lastErr != "" {
		log.Printf("[psu] %s responding again", sample.Model)
	}
	s.last = sample
	s.lastErr = ""
	s.lastMu.Unlock()

	s.metrics.ObserveSample(sample)
	s.logger.Record(sample)
	s.broadcast(Frame{
		Sample:    sample,
		Model:     sample.Model,
		Connected: true,
		Stamp:     time.Now().UnixMilli(),
	})
	s.publish(ctx, sample)
	return sample
}

func (s *Server) pollFailed(err error) {
	msg := err.Error()
	s.lastMu.Lock()
	// Only log when the failure changes, a dead link fails every tick
	if msg != s.lastErr {
		log.Warnf("[psu] poll failed: %v", err)
	}
	s.lastErr = msg
	s.lastMu.Unlock()

	s.broadcast(Frame{
		Model: s.supply.Name(),
		Error: msg,
		Stamp: time.Now().UnixMilli(),
	})
}

func (s *Server) publish(ctx context.Context, sample *psu.Sample) {
	for _, p := range s.publishers {
		go func(p publish.Publisher) {
			pctx, cancel := context.WithTimeout(ctx, publishTimeout)
			defer cancel()
			err := p.Publish(pctx, sample)
			s.metrics.ObservePublish(p.Name(), err)
			if err != nil {
				log.Debugf("[%s] publish failed: %v", p.Name(), err)
			}
		}(p)
	}
}

func (s *Server) broadcast(frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for client := range s.clients {
		select {
		case client.send <- data:
		default:
			// Client too slow, skip
		}
	}
}

package server_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing/fstest"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/shaunagostinho/psudash/internal/psu"
	. "github.com/shaunagostinho/psudash/internal/server"
)

type deadDialer struct{}

func (deadDialer) Dial(bool) (psu.Conn, error) {
	return nil, &psu.DialError{Port: "/dev/ttyUSB9", Err: errors.New("no such device")}
}

var _ = Describe("Server", func() {
	var (
		cfg    *Config
		supply *psu.Supply
		srv    *Server
		ts     *httptest.Server
	)

	web := fstest.MapFS{"index.html": {Data: []byte("<html>psudash</html>")}}

	start := func() {
		srv = New(cfg, supply, web, prometheus.NewRegistry())
		ts = httptest.NewServer(srv.Handler())
		DeferCleanup(ts.Close)
	}

	do := func(method, path, body string) (int, string) {
		req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(body))
		Expect(err).NotTo(HaveOccurred())
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		return resp.StatusCode, string(b)
	}

	BeforeEach(func() {
		cfg = LoadConfig(filepath.Join(GinkgoT().TempDir(), "config.yaml"))
		supply = &psu.Supply{
			Dialer:  &psu.DemoDialer{Variant: psu.BK1687B},
			Variant: psu.BK1687B,
			Wait:    time.Nanosecond,
		}
	})

	Context("with a working supply", func() {
		BeforeEach(start)

		It("serves the web app", func() {
			code, body := do("GET", "/", "")
			Expect(code).To(Equal(http.StatusOK))
			Expect(body).To(ContainSubstring("psudash"))
		})

		It("reports health", func() {
			code, body := do("GET", "/health", "")
			Expect(code).To(Equal(http.StatusOK))
			Expect(body).To(MatchJSON(`{"status":"ok","model":"BK1687B","connected":false,"error":""}`))
		})

		It("sets and reads back settings", func() {
			code, _ := do("POST", "/api/settings", `{"voltage":12.5,"current":1.5}`)
			Expect(code).To(Equal(http.StatusOK))
			code, body := do("GET", "/api/settings", "")
			Expect(code).To(Equal(http.StatusOK))
			Expect(body).To(MatchJSON(`{"voltage":12.5,"current":1.5}`))
		})

		It("rejects values the supply cannot take", func() {
			code, body := do("POST", "/api/settings", `{"voltage":120}`)
			Expect(code).To(Equal(http.StatusBadRequest))
			Expect(body).To(ContainSubstring("unrepresentable value in command: 120"))
		})

		It("changes nothing when one setting is rejected", func() {
			code, _ := do("POST", "/api/settings", `{"voltage":20,"current":120}`)
			Expect(code).To(Equal(http.StatusBadRequest))
			_, body := do("GET", "/api/settings", "")
			Expect(body).To(MatchJSON(`{"voltage":5,"current":1}`))
		})

		It("changes no limit when one is rejected", func() {
			code, _ := do("POST", "/api/limits", `{"voltage":30,"current":120}`)
			Expect(code).To(Equal(http.StatusBadRequest))
			_, body := do("GET", "/api/limits", "")
			Expect(body).To(MatchJSON(`{"voltage":37,"current":10.2}`))
		})

		It("rejects bad JSON", func() {
			code, _ := do("POST", "/api/settings", `{"voltage":`)
			Expect(code).To(Equal(http.StatusBadRequest))
		})

		It("sets and reads back limits", func() {
			code, _ := do("POST", "/api/limits", `{"voltage":30,"current":8}`)
			Expect(code).To(Equal(http.StatusOK))
			code, body := do("GET", "/api/limits", "")
			Expect(code).To(Equal(http.StatusOK))
			Expect(body).To(MatchJSON(`{"voltage":30,"current":8}`))
		})

		It("switches the output", func() {
			code, _ := do("POST", "/api/output", `{}`)
			Expect(code).To(Equal(http.StatusBadRequest))
			code, _ = do("POST", "/api/output", `{"on":true}`)
			Expect(code).To(Equal(http.StatusOK))
			code, _ = do("GET", "/api/output", "")
			Expect(code).To(Equal(http.StatusMethodNotAllowed))
		})

		It("stores and selects presets", func() {
			code, _ := do("POST", "/api/presets", `[
				{"voltage":3.3,"current":0.5},
				{"voltage":5,"current":1},
				{"voltage":24,"current":2.5}
			]`)
			Expect(code).To(Equal(http.StatusOK))

			code, body := do("GET", "/api/presets", "")
			Expect(code).To(Equal(http.StatusOK))
			Expect(body).To(MatchJSON(`[
				{"voltage":3.3,"current":0.5},
				{"voltage":5,"current":1},
				{"voltage":24,"current":2.5}
			]`))

			code, _ = do("POST", "/api/presets/select", `{"index":2}`)
			Expect(code).To(Equal(http.StatusOK))
			_, body = do("GET", "/api/settings", "")
			Expect(body).To(MatchJSON(`{"voltage":24,"current":2.5}`))
		})

		It("needs exactly three presets", func() {
			code, _ := do("POST", "/api/presets", `[{"voltage":1,"current":1}]`)
			Expect(code).To(Equal(http.StatusBadRequest))
		})

		It("rejects a preset out of range", func() {
			code, _ := do("POST", "/api/presets/select", `{"index":3}`)
			Expect(code).To(Equal(http.StatusBadRequest))
			code, _ = do("POST", "/api/presets/select", `{}`)
			Expect(code).To(Equal(http.StatusBadRequest))
		})

		It("reports capabilities", func() {
			code, body := do("GET", "/api/capabilities", "")
			Expect(code).To(Equal(http.StatusOK))
			Expect(body).To(MatchJSON(`{"maxVoltage":37,"maxCurrent":10.2,"model":"BK1687B"}`))
		})

		It("exports metrics", func() {
			do("GET", "/api/settings", "")
			code, body := do("GET", "/metrics", "")
			Expect(code).To(Equal(http.StatusOK))
			Expect(body).To(ContainSubstring(`psu_exchanges_total{function="GETS",result="ok"} 1`))
		})

		It("updates and saves config", func() {
			code, _ := do("POST", "/api/config", `{"psu":{"pollHz":5}}`)
			Expect(code).To(Equal(http.StatusOK))
			code, body := do("GET", "/api/config", "")
			Expect(code).To(Equal(http.StatusOK))
			Expect(body).To(ContainSubstring(`"pollHz":5`))
			_, err := os.Stat(cfg.Path())
			Expect(err).NotTo(HaveOccurred())
		})

		It("polls", func() {
			Expect(srv.Last()).To(BeNil())
			sample := srv.PollOnce(context.Background())
			Expect(sample).NotTo(BeNil())
			Expect(sample.Model).To(Equal("BK1687B"))
			Expect(srv.Last()).To(BeIdenticalTo(sample))
		})

		It("streams samples over the WebSocket", func() {
			url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
			conn, _, err := websocket.DefaultDialer.Dial(url, nil)
			Expect(err).NotTo(HaveOccurred())
			defer conn.Close()

			var hello map[string]interface{}
			Expect(conn.ReadJSON(&hello)).To(Succeed())
			Expect(hello).To(HaveKeyWithValue("model", "BK1687B"))
			Expect(hello).To(HaveKey("config"))
			Expect(hello).NotTo(HaveKey("sample"))

			srv.PollOnce(context.Background())
			var frame map[string]interface{}
			Expect(conn.SetReadDeadline(time.Now().Add(2 * time.Second))).To(Succeed())
			Expect(conn.ReadJSON(&frame)).To(Succeed())
			Expect(frame).To(HaveKeyWithValue("connected", true))
			Expect(frame["sample"]).To(HaveKeyWithValue("model", "BK1687B"))
		})
	})

	Context("before the model is known", func() {
		BeforeEach(func() {
			supply.Variant = nil
			start()
		})

		It("refuses model-dependent requests", func() {
			code, _ := do("GET", "/api/settings", "")
			Expect(code).To(Equal(http.StatusConflict))
		})

		It("still answers capabilities", func() {
			code, body := do("GET", "/api/capabilities", "")
			Expect(code).To(Equal(http.StatusOK))
			Expect(body).To(ContainSubstring(`"model":"BK1687B"`))
		})

		It("detects on the first poll", func() {
			sample := srv.PollOnce(context.Background())
			Expect(sample).NotTo(BeNil())
			Expect(supply.CurrentVariant()).To(BeIdenticalTo(psu.BK1687B))
		})
	})

	Context("with a dead supply", func() {
		BeforeEach(func() {
			supply.Dialer = deadDialer{}
			start()
		})

		It("answers 502", func() {
			code, body := do("GET", "/api/settings", "")
			Expect(code).To(Equal(http.StatusBadGateway))
			Expect(body).To(ContainSubstring("no such device while opening /dev/ttyUSB9"))
		})

		It("reports the poll failure", func() {
			Expect(srv.PollOnce(context.Background())).To(BeNil())
			_, body := do("GET", "/health", "")
			Expect(body).To(ContainSubstring("no such device"))
		})
	})
})

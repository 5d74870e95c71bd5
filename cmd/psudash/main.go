package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"

	"github.com/shaunagostinho/psudash/internal/psu"
	"github.com/shaunagostinho/psudash/internal/publish"
	"github.com/shaunagostinho/psudash/internal/server"
	"github.com/shaunagostinho/psudash/web"
)

var Version = "dev"

func main() {
	configPath := flag.String("config", "/etc/psudash/config.yaml", "Path to config file")
	demo := flag.Bool("demo", false, "Run against a simulated supply")
	listenAddr := flag.String("listen", "", "Override listen address (e.g. :8080)")
	listPorts := flag.Bool("list-ports", false, "List serial ports and exit")
	version := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("psudash", Version)
		return
	}
	if *listPorts {
		ports, err := psu.ListPorts()
		if err != nil {
			fmt.Fprintln(os.Stderr, "list ports:", err)
			os.Exit(1)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	cfg := server.LoadConfig(*configPath)
	if *demo {
		cfg.PSU.Type = "demo"
	}
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}

	setupLogger(cfg.Log)
	log.Printf("[main] psudash %s starting", Version)

	variant, err := cfg.PSU.Variant()
	if err != nil {
		log.Fatalf("[main] %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("[main] received %v, shutting down", sig)
		cancel()
	}()

	supply := &psu.Supply{Variant: variant, Wait: cfg.PSU.Settle()}
	switch cfg.PSU.Type {
	case "serial":
		if cfg.PSU.PortPath == "" {
			log.Fatalf("[main] psu.port_path is required for a serial supply")
		}
		supply.Dialer = &psu.SerialDialer{
			PortPath: cfg.PSU.PortPath,
			BaudRate: cfg.PSU.BaudRate,
		}
	default:
		supply.Dialer = &psu.DemoDialer{Variant: variant, LoadOhms: cfg.PSU.LoadOhms}
		supply.Wait = time.Millisecond
	}
	defer supply.Close()

	// Detection runs in the background, the dashboard starts regardless
	go connectWithRetry(ctx, supply, variant, 10)

	pubs := startPublishers(ctx, cfg)
	defer func() {
		for _, p := range pubs {
			p.Close()
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	srv := server.New(cfg, supply, web.FS, reg, pubs...)
	if err := srv.Run(ctx); err != nil {
		log.Errorf("[main] server exited: %v", err)
	}
}

func setupLogger(cfg server.LogConfig) {
	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)

	if cfg.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	} else {
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	if cfg.Output == "file" && cfg.FilePath != "" {
		file, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err == nil {
			log.SetOutput(file)
		} else {
			log.Warnf("[main] open log file failed: %v, using stdout", err)
		}
	}

	psu.ErrorLogFunc = withPrefix(log.Warnf)
	psu.InfoLogFunc = withPrefix(log.Infof)
	psu.DebugLogFunc = withPrefix(log.Debugf)
}

func withPrefix(f func(string, ...interface{})) func(string, ...interface{}) {
	return func(format string, v ...interface{}) {
		f("[psu] "+format, v...)
	}
}

func startPublishers(ctx context.Context, cfg *server.Config) []publish.Publisher {
	var pubs []publish.Publisher

	if cfg.Redis.Enabled {
		rctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		r, err := publish.NewRedis(rctx, publish.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
			Channel:  cfg.Redis.Channel,
		})
		cancel()
		if err != nil {
			log.Errorf("[main] %v, redis publishing disabled", err)
		} else {
			pubs = append(pubs, r)
		}
	}

	if cfg.MQTT.Enabled {
		m, err := publish.NewMQTT(publish.MQTTOptions{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			Topic:    cfg.MQTT.Topic,
			QoS:      cfg.MQTT.QoS,
			Retain:   cfg.MQTT.Retain,
		})
		if err != nil {
			log.Errorf("[main] %v, mqtt publishing disabled", err)
		} else {
			log.Printf("[main] publishing samples to %s", m.Topic())
			pubs = append(pubs, m)
		}
	}

	return pubs
}

// connectWithRetry detects the supply with exponential backoff.
// Starts at 1s, doubles each attempt up to 60s, retries up to maxAttempts
// then continues at max interval indefinitely.
//
// A supply whose capabilities match no known model is accepted when a model
// was configured, otherwise detection gives up.
func connectWithRetry(ctx context.Context, supply *psu.Supply, configured *psu.Variant, maxAttempts int) {
	delay := 1 * time.Second
	maxDelay := 60 * time.Second
	attempt := 0

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		caps, err := supply.Detect()
		switch {
		case err == nil:
			log.Printf("[psu] %s ready (attempt %d)", supply.Name(), attempt+1)
			return
		case errors.Is(err, psu.ErrUnknownVariant):
			if configured != nil {
				log.Warnf("[psu] capabilities %.1fV/%.2fA match no model, trusting configured %s",
					caps.MaxVoltage, caps.MaxCurrent, configured)
			} else {
				log.Errorf("[psu] capabilities %.1fV/%.2fA match no model, set psu.model",
					caps.MaxVoltage, caps.MaxCurrent)
			}
			return
		}

		attempt++
		if attempt <= maxAttempts {
			log.Printf("[psu] connect attempt %d/%d failed: %v (retry in %v)",
				attempt, maxAttempts, err, delay)
		} else {
			log.Printf("[psu] connect attempt %d failed: %v (retry in %v)",
				attempt, err, delay)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}

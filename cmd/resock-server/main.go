// Command resock-server is a reference resock server.
//
// It accepts WebSocket sessions and either echoes each message back to its
// sender or relays it to every connected session. Optionally it exposes
// Prometheus metrics and advertises itself over mDNS.
//
// Usage:
//
//	resock-server [flags]
//
// Flags:
//
//	-config string        Configuration file path
//	-listen string        HTTP listen address (default ":8080")
//	-path string          WebSocket endpoint path (default "/ws")
//	-mode string          Message handling: echo, relay (default "echo")
//	-idle duration        Close idle sessions after this long
//	-metrics string       Prometheus endpoint path, empty to disable
//	-advertise string     Advertise over mDNS under this instance name
//	-log-level string     Log level: debug, info, warn, error
//	-protocol-log string  Write a protocol log (.rlog) to this file
//
// Examples:
//
//	# Echo server with metrics
//	resock-server -metrics /metrics
//
//	# Chat relay discoverable on the LAN
//	resock-server -mode relay -advertise lab-server
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/resock/resock-go/pkg/config"
	"github.com/resock/resock-go/pkg/discovery"
	"github.com/resock/resock-go/pkg/metrics"
	"github.com/resock/resock-go/pkg/middleware"
	"github.com/resock/resock-go/pkg/plugin"
	"github.com/resock/resock-go/pkg/server"
	"github.com/resock/resock-go/pkg/wire"
)

// Message handling modes.
const (
	ModeEcho  = "echo"
	ModeRelay = "relay"
)

// Flags holds the command-line settings. Set flags override the
// configuration file.
type Flags struct {
	ConfigFile  string
	Listen      string
	Path        string
	Mode        string
	Idle        time.Duration
	Metrics     string
	Advertise   string
	LogLevel    string
	ProtocolLog string
}

var flags Flags

func init() {
	flag.StringVar(&flags.ConfigFile, "config", "", "Configuration file path")
	flag.StringVar(&flags.Listen, "listen", ":8080", "HTTP listen address")
	flag.StringVar(&flags.Path, "path", "/ws", "WebSocket endpoint path")
	flag.StringVar(&flags.Mode, "mode", ModeEcho, "Message handling: echo, relay")
	flag.DurationVar(&flags.Idle, "idle", server.DefaultIdleTimeout, "Close idle sessions after this long")
	flag.StringVar(&flags.Metrics, "metrics", "", "Prometheus endpoint path, empty to disable")
	flag.StringVar(&flags.Advertise, "advertise", "", "Advertise over mDNS under this instance name")
	flag.StringVar(&flags.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&flags.ProtocolLog, "protocol-log", "", "Write a protocol log (.rlog) to this file")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	if flags.Mode != ModeEcho && flags.Mode != ModeRelay {
		log.Fatalf("Invalid mode %q (use: echo, relay)", flags.Mode)
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	logger, err := cfg.Log.Logger(os.Stderr)
	if err != nil {
		log.Fatalf("Invalid log settings: %v", err)
	}
	plog, closeLog, err := cfg.Log.ProtocolLogger(logger)
	if err != nil {
		log.Fatalf("Failed to open protocol log: %v", err)
	}
	defer func() {
		if err := closeLog(); err != nil {
			log.Printf("Warning: failed to close protocol log: %v", err)
		}
	}()

	codec, err := config.CodecByName(cfg.Server.Codec)
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	broadcaster := plugin.NewBroadcaster(plugin.Config{Logger: logger})
	mux := http.NewServeMux()

	if cfg.Server.Metrics != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		observer, err := metrics.NewObserver(reg)
		if err != nil {
			log.Fatalf("Failed to create metrics observer: %v", err)
		}
		if err := broadcaster.Register(observer); err != nil {
			log.Fatalf("Failed to register metrics observer: %v", err)
		}
		mux.Handle(cfg.Server.Metrics, metrics.Handler(reg))
		log.Printf("Metrics at %s", cfg.Server.Metrics)
	}

	pipeline := middleware.New()
	if err := pipeline.Use(middleware.Logging(logger)); err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}
	if cfg.Server.ReadLimit > 0 {
		// Frames are capped by the transport; this caps decoded payloads.
		if err := pipeline.Use(middleware.MaxSize(int(cfg.Server.ReadLimit), middleware.Incoming)); err != nil {
			log.Fatalf("Failed to build pipeline: %v", err)
		}
	}

	srvCfg := cfg.Server.Config
	srvCfg.Logger = logger
	srvCfg.ProtocolLogger = plog

	var srv *server.Server
	srv = server.New(srvCfg,
		server.WithCodec(codec),
		server.WithPipeline(pipeline),
		server.WithBroadcaster(broadcaster),
		server.WithHandlers(handlers(func() *server.Server { return srv }, logger)),
	)
	mux.Handle(cfg.Server.Path, srv)

	ln, err := net.Listen("tcp", cfg.Server.Listen)
	if err != nil {
		log.Fatalf("Failed to listen: %v", err)
	}
	httpServer := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()
	log.Printf("Listening on %s%s (mode %s)", ln.Addr(), cfg.Server.Path, flags.Mode)

	var advertiser *discovery.Advertiser
	if cfg.Server.Advertise != "" {
		advertiser = discovery.NewAdvertiser(cfg.Server.Discovery)
		info := &discovery.ServiceInfo{
			Instance:  cfg.Server.Advertise,
			Port:      listenPort(ln.Addr()),
			Path:      cfg.Server.Path,
			Protocols: cfg.Server.Protocols,
		}
		if err := advertiser.Advertise(info); err != nil {
			log.Printf("Warning: failed to advertise: %v", err)
		} else {
			log.Printf("Advertising %q as %s", info.Instance, discovery.ServiceType)
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("Received signal: %v", sig)
	log.Println("Shutting down...")

	if advertiser != nil {
		advertiser.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Error closing sessions: %v", err)
	}
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("Error stopping HTTP server: %v", err)
	}

	log.Println("Goodbye!")
}

// loadConfig reads the configuration file, if any, and applies the flags
// that were set explicitly.
func loadConfig() (config.File, error) {
	cfg := config.Default()
	if flags.ConfigFile != "" {
		loaded, err := config.Load(flags.ConfigFile)
		if err != nil {
			return config.File{}, err
		}
		cfg = loaded
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.Server.Listen = flags.Listen
		case "path":
			cfg.Server.Path = flags.Path
		case "idle":
			cfg.Server.IdleTimeout = flags.Idle
		case "metrics":
			cfg.Server.Metrics = flags.Metrics
		case "advertise":
			cfg.Server.Advertise = flags.Advertise
		case "log-level":
			cfg.Log.Level = flags.LogLevel
		case "protocol-log":
			cfg.Log.ProtocolFile = flags.ProtocolLog
		}
	})

	if err := cfg.Validate(); err != nil {
		return config.File{}, err
	}
	return cfg, nil
}

func handlers(srv func() *server.Server, logger *slog.Logger) server.Handlers {
	return server.Handlers{
		OnConnect: func(s *server.Session) {
			logger.Info("session opened", "session", s.ID(), "remote", s.RemoteAddr(), "subprotocol", s.Subprotocol())
			welcome := wire.NewEvent(wire.EventInfo, wire.CodeNone, fmt.Sprintf("welcome, %d session(s) online", srv().Count()))
			if err := s.Emit(context.Background(), welcome); err != nil {
				logger.Warn("welcome failed", "session", s.ID(), "error", err)
			}
		},
		OnMessage: func(s *server.Session, payload []byte) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if flags.Mode == ModeRelay {
				n, err := srv().Broadcast(ctx, payload)
				if err != nil {
					logger.Warn("relay incomplete", "session", s.ID(), "delivered", n, "error", err)
				}
				return
			}
			if err := s.Send(ctx, payload); err != nil {
				logger.Warn("echo failed", "session", s.ID(), "error", err)
			}
		},
		OnClose: func(s *server.Session, code wire.CloseCode, reason string) {
			logger.Info("session closed", "session", s.ID(), "code", int(code), "reason", reason)
		},
	}
}

func listenPort(addr net.Addr) uint16 {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return uint16(tcp.Port)
	}
	_, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return discovery.DefaultPort
	}
	n, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return discovery.DefaultPort
	}
	return uint16(n)
}

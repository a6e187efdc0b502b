// Command resock-client is an interactive resock client.
//
// It keeps one resilient connection open, reconnecting with backoff when the
// server goes away, and queues messages typed while the connection is down.
//
// Usage:
//
//	resock-client [flags]
//
// Flags:
//
//	-config string        Configuration file path
//	-url string           Server URL (ws:// or wss://)
//	-instance string      Resolve the URL by mDNS instance name
//	-token string         Bearer token for the handshake
//	-codec string         Frame codec: cbor, raw
//	-transport string     Transport: gorilla, coder
//	-max-attempts int     Reconnect attempts, 0 for unlimited
//	-log-level string     Log level: debug, info, warn, error
//	-protocol-log string  Write a protocol log (.rlog) to this file
//	-interactive          Enable interactive command mode (default true)
//
// Examples:
//
//	# Connect to a local server
//	resock-client -url ws://localhost:8080/ws
//
//	# Find the server on the LAN and record the session
//	resock-client -instance lab-server -protocol-log client.rlog
//
// Interactive Commands:
//
//	send <text>   - Send a message
//	state         - Show connection state
//	queue         - Show queued message count
//	close [code]  - Close the connection
//	quit          - Exit
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/resock/resock-go/cmd/resock-client/interactive"
	"github.com/resock/resock-go/pkg/config"
	"github.com/resock/resock-go/pkg/connection"
	"github.com/resock/resock-go/pkg/discovery"
	"github.com/resock/resock-go/pkg/middleware"
	"github.com/resock/resock-go/pkg/plugin"
	"github.com/resock/resock-go/pkg/wire"
)

// Flags holds the command-line settings. Set flags override the
// configuration file.
type Flags struct {
	ConfigFile  string
	URL         string
	Instance    string
	Token       string
	Codec       string
	Transport   string
	MaxAttempts int
	LogLevel    string
	ProtocolLog string
	Interactive bool
}

var flags Flags

func init() {
	flag.StringVar(&flags.ConfigFile, "config", "", "Configuration file path")
	flag.StringVar(&flags.URL, "url", "", "Server URL (ws:// or wss://)")
	flag.StringVar(&flags.Instance, "instance", "", "Resolve the URL by mDNS instance name")
	flag.StringVar(&flags.Token, "token", "", "Bearer token for the handshake")
	flag.StringVar(&flags.Codec, "codec", config.CodecCBOR, "Frame codec: cbor, raw")
	flag.StringVar(&flags.Transport, "transport", config.TransportGorilla, "Transport: gorilla, coder")
	flag.IntVar(&flags.MaxAttempts, "max-attempts", 0, "Reconnect attempts, 0 for unlimited")
	flag.StringVar(&flags.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&flags.ProtocolLog, "protocol-log", "", "Write a protocol log (.rlog) to this file")
	flag.BoolVar(&flags.Interactive, "interactive", true, "Enable interactive command mode")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	var shell *interactive.Shell
	var out io.Writer = os.Stdout
	errOut := io.Writer(os.Stderr)
	if flags.Interactive {
		shell, err = interactive.New()
		if err != nil {
			log.Fatalf("Failed to start shell: %v", err)
		}
		// Route log output through readline to keep the prompt intact
		out, errOut = shell.Stdout(), shell.Stderr()
		log.SetOutput(errOut)
	}

	logger, err := cfg.Log.Logger(errOut)
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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Client.URL == "" && cfg.Client.Instance != "" {
		log.Printf("Resolving %q via mDNS...", cfg.Client.Instance)
		url, err := discovery.NewBrowser(cfg.Client.Discovery).ResolveURL(ctx, cfg.Client.Instance)
		if err != nil {
			log.Fatalf("Failed to resolve instance: %v", err)
		}
		cfg.Client.URL = url
	}

	codec, err := config.CodecByName(cfg.Client.Codec)
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	pipeline := middleware.New()
	if err := pipeline.Use(middleware.Logging(logger)); err != nil {
		log.Fatalf("Failed to build pipeline: %v", err)
	}

	broadcaster := plugin.NewBroadcaster(plugin.Config{Logger: logger})
	notices := plugin.Filter(plugin.Func("shell", func(ev wire.Event) error {
		fmt.Fprintf(out, "[%s] %d %s %s\n", ev.Type, ev.Code, ev.Code, ev.Reason)
		return nil
	}), wire.EventInfo, wire.EventWarning)
	if err := broadcaster.Register(notices); err != nil {
		log.Fatalf("Failed to register observer: %v", err)
	}

	connCfg := cfg.Client.Config
	connCfg.Logger = logger
	connCfg.ProtocolLogger = plog

	conn, err := connection.New(connCfg,
		connection.WithDialer(cfg.Client.Dialer(logger)),
		connection.WithCodec(codec),
		connection.WithPipeline(pipeline),
		connection.WithBroadcaster(broadcaster),
		connection.WithHandlers(handlers(out, logger)),
	)
	if err != nil {
		log.Fatalf("Failed to create connection: %v", err)
	}

	log.Printf("Connecting to %s", connCfg.URL)
	connectCtx, connectCancel := context.WithTimeout(ctx, 30*time.Second)
	err = conn.Connect(connectCtx)
	connectCancel()
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		log.Printf("Not connected yet, retrying in the background")
	default:
		log.Fatalf("Failed to connect: %v", err)
	}

	if shell != nil {
		shell.Attach(conn)
		go shell.Run(ctx, cancel)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received signal: %v", sig)
	case <-ctx.Done():
	case <-conn.Done():
		log.Printf("Connection ended: %v", conn.Err())
	}

	if err := conn.Close(); err != nil && !errors.Is(err, connection.ErrConnectionClosed) {
		log.Printf("Error closing connection: %v", err)
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
		case "url":
			cfg.Client.URL = flags.URL
		case "instance":
			cfg.Client.Instance = flags.Instance
		case "token":
			cfg.Client.AuthToken = flags.Token
		case "codec":
			cfg.Client.Codec = flags.Codec
		case "transport":
			cfg.Client.Transport = flags.Transport
		case "max-attempts":
			n := flags.MaxAttempts
			cfg.Client.Reconnect.MaxAttempts = &n
		case "log-level":
			cfg.Log.Level = flags.LogLevel
		case "protocol-log":
			cfg.Log.ProtocolFile = flags.ProtocolLog
		}
	})

	if err := cfg.Validate(); err != nil {
		return config.File{}, err
	}
	if cfg.Client.URL == "" && cfg.Client.Instance == "" {
		return config.File{}, errors.New("either -url or -instance is required")
	}
	return cfg, nil
}

func handlers(out io.Writer, logger *slog.Logger) connection.Handlers {
	return connection.Handlers{
		OnOpen: func() {
			fmt.Fprintln(out, "Connected")
		},
		OnMessage: func(payload []byte) {
			fmt.Fprintf(out, "< %s\n", payload)
		},
		OnClose: func(code wire.CloseCode, reason string) {
			fmt.Fprintf(out, "Closed: %d (%s) %s\n", code, code, reason)
		},
		OnError: func(err error) {
			fmt.Fprintf(out, "Error: %v\n", err)
		},
		OnServerEvent: func(ev wire.Event) {
			fmt.Fprintf(out, "Server event %s: %s\n", ev.Type, ev.Reason)
		},
		OnStateChange: func(ev connection.StateEvent) {
			logger.Debug("state change", "from", ev.OldState, "to", ev.NewState, "reason", ev.Reason)
		},
	}
}

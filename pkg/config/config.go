// Package config loads resock YAML configuration files.
//
// A file has one section per role plus logging:
//
//	client:
//	  url: ws://localhost:8080/ws
//	  reconnect:
//	    baseDelay: 500ms
//	    maxAttempts: 10
//	server:
//	  listen: :8080
//	  path: /ws
//	  idleTimeout: 2m
//	log:
//	  level: debug
//	  protocolFile: resock.rlog
//
// Unset fields keep their defaults. Binaries let flags override the file.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/resock/resock-go/pkg/connection"
	"github.com/resock/resock-go/pkg/discovery"
	resocklog "github.com/resock/resock-go/pkg/log"
	"github.com/resock/resock-go/pkg/server"
	"github.com/resock/resock-go/pkg/transport"
	"github.com/resock/resock-go/pkg/wire"
)

// Codec and transport names.
const (
	CodecCBOR = "cbor"
	CodecRaw  = "raw"

	TransportGorilla = "gorilla"
	TransportCoder   = "coder"
)

// ErrInvalid wraps every validation error.
var ErrInvalid = errors.New("invalid configuration")

// File is the top-level configuration file.
type File struct {
	Client Client `yaml:"client"`
	Server Server `yaml:"server"`
	Log    Log    `yaml:"log"`
}

// Client configures resock-client.
type Client struct {
	connection.Config `yaml:",inline"`

	// Instance resolves the URL by mDNS instance name when URL is empty.
	Instance string `yaml:"instance,omitempty"`

	// Codec is "cbor" or "raw".
	Codec string `yaml:"codec,omitempty"`

	// Transport is "gorilla" or "coder".
	Transport string `yaml:"transport,omitempty"`

	// KeepAlive enables ping/pong on the gorilla transport.
	KeepAlive *transport.KeepAliveConfig `yaml:"keepAlive,omitempty"`

	Discovery discovery.BrowserConfig `yaml:"discovery,omitempty"`
}

// Server configures resock-server.
type Server struct {
	server.Config `yaml:",inline"`

	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`

	// Path is the WebSocket endpoint.
	Path string `yaml:"path"`

	// Metrics is the Prometheus endpoint path. Empty disables it.
	Metrics string `yaml:"metrics,omitempty"`

	// Codec is "cbor" or "raw".
	Codec string `yaml:"codec,omitempty"`

	// Advertise publishes the server over mDNS under this instance name.
	Advertise string `yaml:"advertise,omitempty"`

	Discovery discovery.AdvertiserConfig `yaml:"discovery,omitempty"`
}

// Log configures operational and protocol logging.
type Log struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`

	// Format is text or json.
	Format string `yaml:"format"`

	// ProtocolFile receives the CBOR protocol log when set.
	ProtocolFile string `yaml:"protocolFile,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() File {
	return File{
		Client: Client{
			Codec:     CodecCBOR,
			Transport: TransportGorilla,
			Discovery: discovery.DefaultBrowserConfig(),
		},
		Server: Server{
			Config: server.DefaultConfig(),
			Listen: ":8080",
			Path:   "/ws",
			Codec:  CodecCBOR,
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads and validates a configuration file.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read config: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return File{}, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes YAML on top of Default and validates the result.
func Parse(data []byte) (File, error) {
	f := Default()
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, fmt.Errorf("YAML parse error: %w", err)
	}
	if err := f.Validate(); err != nil {
		return File{}, err
	}
	return f, nil
}

// Validate checks the parts that do not depend on the role. Connection
// settings are validated by connection.New.
func (f File) Validate() error {
	var errs []error
	if _, err := CodecByName(f.Client.Codec); err != nil {
		errs = append(errs, fmt.Errorf("client: %w", err))
	}
	if _, err := CodecByName(f.Server.Codec); err != nil {
		errs = append(errs, fmt.Errorf("server: %w", err))
	}
	switch f.Client.Transport {
	case "", TransportGorilla, TransportCoder:
	default:
		errs = append(errs, fmt.Errorf("client: unknown transport %q", f.Client.Transport))
	}
	if f.Server.Path != "" && !strings.HasPrefix(f.Server.Path, "/") {
		errs = append(errs, fmt.Errorf("server: path must start with /, got %q", f.Server.Path))
	}
	if _, err := parseLevel(f.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log: %w", err))
	}
	switch f.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log: unknown format %q", f.Log.Format))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return nil
}

// CodecByName returns the codec for name. Empty selects CBOR.
func CodecByName(name string) (wire.Codec, error) {
	switch name {
	case "", CodecCBOR:
		return wire.CBORCodec{}, nil
	case CodecRaw:
		return wire.RawCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

// Dialer returns the transport dialer selected by c.
func (c Client) Dialer(logger *slog.Logger) transport.Dialer {
	text := c.Codec == CodecRaw
	if c.Transport == TransportCoder {
		return &transport.CoderDialer{Text: text, Logger: logger}
	}
	return &transport.GorillaDialer{Options: transport.GorillaOptions{
		Text:      text,
		KeepAlive: c.KeepAlive,
		Logger:    logger,
	}}
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, err
	}
	return level, nil
}

// Logger builds the operational logger writing to w.
func (l Log) Logger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// ProtocolLogger opens the protocol log. The returned close function is
// never nil. When debug logging is enabled, records are also written to
// logger.
func (l Log) ProtocolLogger(logger *slog.Logger) (resocklog.Logger, func() error, error) {
	var loggers []resocklog.Logger
	closeFn := func() error { return nil }

	if l.ProtocolFile != "" {
		fl, err := resocklog.NewFileLogger(l.ProtocolFile)
		if err != nil {
			return nil, closeFn, fmt.Errorf("open protocol log: %w", err)
		}
		loggers = append(loggers, fl)
		closeFn = fl.Close
	}
	if logger != nil && strings.EqualFold(l.Level, "debug") {
		loggers = append(loggers, resocklog.NewSlogAdapter(logger))
	}

	switch len(loggers) {
	case 0:
		return resocklog.NoopLogger{}, closeFn, nil
	case 1:
		return loggers[0], closeFn, nil
	default:
		return resocklog.NewMultiLogger(loggers...), closeFn, nil
	}
}

package discovery

import (
	"errors"
	"net"
	"strconv"
	"strings"
	"time"
)

// Service type and domain.
const (
	ServiceType = "_resock._tcp"
	Domain      = "local."
)

// Defaults and limits.
const (
	// DefaultPort is used when ServiceInfo.Port is zero.
	DefaultPort = 8080

	// BrowseTimeout is the default timeout for browse operations.
	BrowseTimeout = 10 * time.Second

	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63

	// RecordVersion is the TXT record layout version.
	RecordVersion = "1"
)

// TXT record keys.
const (
	TXTKeyPath     = "path"
	TXTKeyProtocol = "proto"
	TXTKeyTLS      = "tls"
	TXTKeyVersion  = "ver"
)

// Discovery errors.
var (
	ErrNotFound            = errors.New("service not found")
	ErrInstanceNameTooLong = errors.New("instance name too long")
	ErrEmptyInstanceName   = errors.New("instance name is empty")
	ErrMissingRequired     = errors.New("missing required TXT field")
	ErrUnsupportedVersion  = errors.New("unsupported record version")
)

// ServiceInfo is what a server advertises.
type ServiceInfo struct {
	// Instance is the user-visible instance name.
	Instance string

	// Port is the TCP port of the HTTP server.
	Port uint16

	// Path is the HTTP path of the upgrade endpoint.
	Path string

	// Protocols are the accepted subprotocols.
	Protocols []string

	// TLS marks a wss endpoint.
	TLS bool
}

// Service is a discovered server. Addresses from several interfaces are
// aggregated into one entry.
type Service struct {
	Instance  string
	Host      string
	Port      uint16
	Addresses []string
	Path      string
	Protocols []string
	TLS       bool
}

func (s *Service) clone() *Service {
	c := *s
	c.Addresses = append([]string(nil), s.Addresses...)
	c.Protocols = append([]string(nil), s.Protocols...)
	return &c
}

// URL returns the WebSocket URL of the service, preferring the first
// resolved address over the host name.
func (s *Service) URL() string {
	host := strings.TrimSuffix(s.Host, ".")
	if len(s.Addresses) > 0 {
		host = s.Addresses[0]
	}
	scheme := "ws"
	if s.TLS {
		scheme = "wss"
	}
	path := s.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return scheme + "://" + net.JoinHostPort(host, strconv.Itoa(int(s.Port))) + path
}

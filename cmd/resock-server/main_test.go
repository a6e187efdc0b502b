package main

import (
	"net"
	"testing"

	"github.com/resock/resock-go/pkg/discovery"
)

type strAddr string

func (a strAddr) Network() string { return "tcp" }
func (a strAddr) String() string { return string(a) }

func TestListenPort(t *testing.T) {
	tests := []struct {
		name string
		addr net.Addr
		want uint16
	}{
		{"tcp", &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9443}, 9443},
		{"string", strAddr("[::1]:7000"), 7000},
		{"no port", strAddr("localhost"), discovery.DefaultPort},
		{"bad port", strAddr("localhost:http"), discovery.DefaultPort},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := listenPort(tt.addr); got != tt.want {
				t.Errorf("listenPort(%v) = %d, want %d", tt.addr, got, tt.want)
			}
		})
	}
}

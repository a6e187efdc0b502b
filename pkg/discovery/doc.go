// Package discovery advertises and finds resock servers with mDNS/DNS-SD.
//
// Servers register one instance of the _resock._tcp service. The TXT
// record carries what a client needs to build the WebSocket URL:
//
//	path   HTTP path of the upgrade endpoint (default "/")
//	proto  comma-separated subprotocols
//	tls    "1" when the endpoint requires wss
//	ver    discovery record version
//
// Clients browse for instances, or resolve a single instance name to a
// ws:// or wss:// URL with ResolveURL.
package discovery

// Package plugin provides the lifecycle observer registry.
//
// Observers receive every connection event (new connection, message, close,
// error, warning, info) in registration order. A failing observer, whether it
// returns an error or panics, is logged and skipped; the remaining observers
// still run and the connection is unaffected.
//
// # Catalog
//
// Metadata such as display names and singleton markers is attached to
// observer types out of band, at startup, through a Catalog keyed by type
// identity:
//
//	plugin.DefaultCatalog.Tag((*metrics.Observer)(nil), plugin.Meta{
//	    Name:      "prometheus",
//	    Singleton: true,
//	})
//
// A Broadcaster refuses to register a second instance of a singleton type.
package plugin

// Package log provides protocol capture for resock connections.
//
// Protocol capture is separate from operational logging (slog). It records a
// machine-readable trace of every frame, state change, lifecycle event and
// error seen by a connection or server session.
//
// # Basic Usage
//
//	// Development: print records via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// Production: append to a binary file
//	fl, _ := log.NewFileLogger("/var/log/resock/client.rlog")
//	cfg.ProtocolLogger = fl
//
//	// Both
//	cfg.ProtocolLogger = log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), fl)
//
// # File Format
//
// Files hold a sequence of CBOR-encoded Records with integer keys and use the
// .rlog extension. The resock-log tool views, filters and summarizes them.
package log

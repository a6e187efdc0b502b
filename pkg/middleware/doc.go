// Package middleware implements the ordered message pipeline shared by
// resock clients and server sessions.
//
// Entries are tagged with a direction and a priority. An inbound message runs
// the Incoming and Both entries, an outbound message the Outgoing and Both
// entries, in ascending priority and then registration order:
//
//	p := middleware.New()
//	p.Use(middleware.Entry{
//	    Name:      "trace",
//	    Direction: middleware.Both,
//	    Handler: func(c *middleware.Context, next middleware.Next) error {
//	        c.Set("start", time.Now())
//	        return next()
//	    },
//	})
//	chain := p.Compose()
//
// A handler that does not call next ends the chain early; the message still
// continues unless the handler called Drop. A handler error, or a recovered
// panic, is returned by the chain.
package middleware

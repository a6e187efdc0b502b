// Package server accepts resock WebSocket connections.
//
// A Server is an http.Handler that upgrades requests with gorilla/websocket
// and wraps each socket in a Session. Sessions share one composed middleware
// chain, one codec and one lifecycle broadcaster:
//
//	srv := server.New(server.DefaultConfig(),
//	    server.WithPipeline(p),
//	    server.WithHandlers(server.Handlers{
//	        OnMessage: func(s *server.Session, payload []byte) {
//	            _ = s.Send(context.Background(), payload)
//	        },
//	    }))
//	http.Handle("/ws", srv)
//
// Inbound frames of one session are dispatched in order on that session's
// read goroutine. A frame that does not decode closes the session with 1003,
// middleware returning middleware.ErrPolicy closes it with 1008, and a
// session that stays silent for longer than IdleTimeout is closed with 4001.
package server

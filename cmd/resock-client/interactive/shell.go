// Package interactive provides the interactive command-line interface
// for resock-client.
package interactive

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/resock/resock-go/pkg/connection"
	"github.com/resock/resock-go/pkg/wire"
)

// Conn is the part of *connection.Connection the shell drives.
type Conn interface {
	ID() string
	State() connection.State
	Attempt() int
	QueueLen() int
	Policy() connection.Policy
	Send(ctx context.Context, payload []byte, opts ...connection.SendOption) error
	CloseWithCode(code wire.CloseCode, reason string) error
}

// Shell handles interactive mode for resock-client.
type Shell struct {
	conn Conn
	rl   *readline.Instance
	out  io.Writer
}

// New creates a shell reading from the terminal. Attach the connection
// before calling Run.
func New() (*Shell, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "resock> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Shell{rl: rl, out: rl.Stdout()}, nil
}

// Attach sets the connection driven by the shell.
func (s *Shell) Attach(conn Conn) {
	s.conn = conn
}

// Stdout returns a writer that coordinates with the readline prompt.
// Use it for log output so lines do not break the input line.
func (s *Shell) Stdout() io.Writer {
	return s.rl.Stdout()
}

// Stderr returns the readline-aware error writer.
func (s *Shell) Stderr() io.Writer {
	return s.rl.Stderr()
}

// Run starts the interactive command loop.
func (s *Shell) Run(ctx context.Context, cancel context.CancelFunc) {
	defer s.rl.Close()

	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			// EOF or interrupt
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(s.out, "Exiting...")
			cancel()
			return
		}

		if s.Exec(ctx, line) {
			cancel()
			return
		}
	}
}

// Exec runs one command line and reports whether the shell should exit.
func (s *Shell) Exec(ctx context.Context, line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return false
	}

	cmd, rest, _ := strings.Cut(input, " ")
	cmd = strings.ToLower(cmd)
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "help", "?":
		s.printHelp()

	case "send", "s":
		s.cmdSend(ctx, []byte(rest))

	case "sendhex", "x":
		data, err := hex.DecodeString(strings.ReplaceAll(rest, " ", ""))
		if err != nil {
			fmt.Fprintf(s.out, "Invalid hex: %v\n", err)
			return false
		}
		s.cmdSend(ctx, data)

	case "state", "status":
		s.cmdState()

	case "queue", "q":
		fmt.Fprintf(s.out, "Queued messages: %d\n", s.conn.QueueLen())

	case "policy":
		s.cmdPolicy()

	case "close":
		s.cmdClose(strings.Fields(rest))

	case "quit", "exit":
		fmt.Fprintln(s.out, "Exiting...")
		return true

	default:
		fmt.Fprintf(s.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return false
}

func (s *Shell) printHelp() {
	fmt.Fprintln(s.out, `
resock Client Commands:
  Messaging:
    send <text>          - Send text as one message (queued while reconnecting)
    sendhex <hex>        - Send raw bytes given as hex

  Connection:
    state                - Show connection state and retry attempt
    queue                - Show number of queued messages
    policy               - Show the reconnect delay schedule
    close [code] [text]  - Close the connection (default 1000)

  General:
    help                 - Show this help
    quit                 - Close and exit`)
}

func (s *Shell) cmdSend(ctx context.Context, payload []byte) {
	if len(payload) == 0 {
		fmt.Fprintln(s.out, "Usage: send <text>")
		return
	}

	state := s.conn.State()
	err := s.conn.Send(ctx, payload,
		connection.OnAck(func() {
			if state != connection.StateConnected {
				fmt.Fprintf(s.out, "Delivered queued message (%d bytes)\n", len(payload))
			}
		}),
		connection.OnFail(func(err error) {
			fmt.Fprintf(s.out, "Queued message failed: %v\n", err)
		}),
	)
	if err != nil {
		fmt.Fprintf(s.out, "Send error: %v\n", err)
		return
	}
	if state == connection.StateConnected {
		fmt.Fprintf(s.out, "Sent %d bytes\n", len(payload))
	} else {
		fmt.Fprintf(s.out, "Queued %d bytes (state %s)\n", len(payload), state)
	}
}

func (s *Shell) cmdState() {
	fmt.Fprintf(s.out, "Connection: %s\n", s.conn.ID())
	fmt.Fprintf(s.out, "State:      %s\n", s.conn.State())
	if n := s.conn.Attempt(); n > 0 {
		fmt.Fprintf(s.out, "Attempt:    %d\n", n)
	}
	fmt.Fprintf(s.out, "Queued:     %d\n", s.conn.QueueLen())
}

func (s *Shell) cmdPolicy() {
	p := s.conn.Policy()
	if !p.Enabled {
		fmt.Fprintln(s.out, "Reconnect disabled")
		return
	}
	attempts := "unlimited"
	if p.MaxAttempts > 0 {
		attempts = strconv.Itoa(p.MaxAttempts)
	}
	fmt.Fprintf(s.out, "Max attempts: %s, jitter %.2f\n", attempts, p.JitterFraction)

	n := 8
	if p.MaxAttempts > 0 && p.MaxAttempts < n {
		n = p.MaxAttempts
	}
	delays := make([]string, 0, n)
	for _, d := range p.Sequence(n) {
		delays = append(delays, d.Round(time.Millisecond).String())
	}
	fmt.Fprintf(s.out, "Base delays: %s\n", strings.Join(delays, ", "))
}

func (s *Shell) cmdClose(args []string) {
	code := wire.CloseNormalClosure
	reason := ""
	if len(args) > 0 {
		n, err := strconv.ParseUint(args[0], 10, 16)
		if err != nil {
			fmt.Fprintf(s.out, "Invalid close code: %s\n", args[0])
			return
		}
		code = wire.CloseCode(n)
		reason = strings.Join(args[1:], " ")
	}
	if err := s.conn.CloseWithCode(code, reason); err != nil {
		fmt.Fprintf(s.out, "Close error: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "Closed with %d (%s)\n", code, code)
}

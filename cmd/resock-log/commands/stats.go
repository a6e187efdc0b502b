package commands

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/resock/resock-go/pkg/log"
	"github.com/resock/resock-go/pkg/wire"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalRecords int
	ByKind       map[log.Kind]int
	ByDirection  map[log.Direction]int
	ByEvent      map[wire.EventType]int
	CloseCodes   map[wire.CloseCode]int
	Connections  map[string]*ConnectionStats
	Errors       int
	TimeRange    struct {
		Start time.Time
		End   time.Time
	}
}

// ConnectionStats holds statistics for a single connection.
type ConnectionStats struct {
	Role       log.Role
	FirstSeen  time.Time
	LastSeen   time.Time
	Records    int
	BytesIn    int
	BytesOut   int
	Reconnects int
	LastState  string
}

// Collect reads every record of path into Stats.
func Collect(path string) (*Stats, error) {
	reader, err := log.NewReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		ByKind:      make(map[log.Kind]int),
		ByDirection: make(map[log.Direction]int),
		ByEvent:     make(map[wire.EventType]int),
		CloseCodes:  make(map[wire.CloseCode]int),
		Connections: make(map[string]*ConnectionStats),
	}

	for {
		rec, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read record: %w", err)
		}
		stats.add(rec)
	}
	return stats, nil
}

func (s *Stats) add(rec log.Record) {
	s.TotalRecords++
	s.ByKind[rec.Kind]++
	if rec.Direction != log.DirectionNone {
		s.ByDirection[rec.Direction]++
	}

	if s.TimeRange.Start.IsZero() || rec.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = rec.Timestamp
	}
	if rec.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = rec.Timestamp
	}

	conn, ok := s.Connections[rec.ConnID]
	if !ok {
		conn = &ConnectionStats{Role: rec.Role, FirstSeen: rec.Timestamp, LastSeen: rec.Timestamp}
		s.Connections[rec.ConnID] = conn
	}
	conn.Records++
	if rec.Timestamp.After(conn.LastSeen) {
		conn.LastSeen = rec.Timestamp
	}

	switch {
	case rec.Frame != nil:
		if rec.Direction == log.DirectionIn {
			conn.BytesIn += rec.Frame.Size
		} else {
			conn.BytesOut += rec.Frame.Size
		}
	case rec.State != nil:
		conn.LastState = rec.State.New
	case rec.Event != nil:
		s.ByEvent[rec.Event.Type]++
		if rec.Event.Type == wire.EventClose {
			s.CloseCodes[rec.Event.Code]++
		}
		if rec.Event.Type == wire.EventInfo && rec.Event.Code == wire.CodeReconnecting {
			conn.Reconnects++
		}
	case rec.Error != nil:
		s.Errors++
	}
}

// RunStats analyzes the log file and prints statistics.
func RunStats(path string, w io.Writer) error {
	stats, err := Collect(path)
	if err != nil {
		return err
	}
	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== resock Protocol Log Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalRecords > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Records: %d\n", stats.TotalRecords)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Records by Kind:")
	for _, k := range []log.Kind{log.KindFrame, log.KindState, log.KindEvent, log.KindError} {
		if count := stats.ByKind[k]; count > 0 {
			fmt.Fprintf(w, "  %-16s %d\n", k.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Frames by Direction:")
	for _, d := range []log.Direction{log.DirectionIn, log.DirectionOut} {
		if count := stats.ByDirection[d]; count > 0 {
			fmt.Fprintf(w, "  %-16s %d\n", d.String()+":", count)
		}
	}
	fmt.Fprintln(w)

	if len(stats.ByEvent) > 0 {
		fmt.Fprintln(w, "Events:")
		for t := wire.EventNewConnection; t <= wire.EventInfo; t++ {
			if count := stats.ByEvent[t]; count > 0 {
				fmt.Fprintf(w, "  %-16s %d\n", t.String()+":", count)
			}
		}
		fmt.Fprintln(w)
	}

	if len(stats.CloseCodes) > 0 {
		codes := make([]wire.CloseCode, 0, len(stats.CloseCodes))
		for c := range stats.CloseCodes {
			codes = append(codes, c)
		}
		sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })

		fmt.Fprintln(w, "Close Codes:")
		for _, c := range codes {
			fmt.Fprintf(w, "  %-16s %d\n", fmt.Sprintf("%d:", c), stats.CloseCodes[c])
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Connections: %d\n", len(stats.Connections))
	if len(stats.Connections) > 0 {
		type connInfo struct {
			id    string
			stats *ConnectionStats
		}
		conns := make([]connInfo, 0, len(stats.Connections))
		for id, cs := range stats.Connections {
			conns = append(conns, connInfo{id, cs})
		}
		sort.Slice(conns, func(i, j int) bool {
			return conns[i].stats.FirstSeen.Before(conns[j].stats.FirstSeen)
		})

		fmt.Fprintln(w)
		for _, c := range conns {
			duration := c.stats.LastSeen.Sub(c.stats.FirstSeen).Round(time.Millisecond)
			fmt.Fprintf(w, "  [%s] %s %d records, duration %s\n",
				shortenConnID(c.id), c.stats.Role, c.stats.Records, duration)
			fmt.Fprintf(w, "           Bytes: %d in, %d out\n", c.stats.BytesIn, c.stats.BytesOut)
			if c.stats.Reconnects > 0 {
				fmt.Fprintf(w, "           Reconnects: %d\n", c.stats.Reconnects)
			}
			if c.stats.LastState != "" {
				fmt.Fprintf(w, "           Last state: %s\n", c.stats.LastState)
			}
		}
	}

	if stats.Errors > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Errors: %d\n", stats.Errors)
	}
}

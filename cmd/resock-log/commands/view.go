package commands

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/resock/resock-go/pkg/log"
)

// formatRecord writes a human-readable representation of rec to w.
func formatRecord(w io.Writer, rec log.Record) {
	// Header line: timestamp [conn:id] ROLE DIR KIND
	fmt.Fprintf(w, "%s [conn:%s] %-6s %-3s %s\n",
		rec.Timestamp.UTC().Format(timeLayout),
		shortenConnID(rec.ConnID),
		rec.Role, rec.Direction, rec.Kind)

	switch {
	case rec.Frame != nil:
		fmt.Fprintf(w, "  Size: %d bytes\n", rec.Frame.Size)
		if len(rec.Frame.Data) > 0 {
			fmt.Fprintf(w, "  Data: %s", hex.EncodeToString(rec.Frame.Data))
			if rec.Frame.Truncated {
				fmt.Fprint(w, " (truncated)")
			}
			fmt.Fprintln(w)
		}
	case rec.State != nil:
		if rec.State.Old != "" {
			fmt.Fprintf(w, "  %s -> %s\n", rec.State.Old, rec.State.New)
		} else {
			fmt.Fprintf(w, "  -> %s\n", rec.State.New)
		}
		if rec.State.Reason != "" {
			fmt.Fprintf(w, "  Reason: %s\n", rec.State.Reason)
		}
		if rec.State.Attempt > 0 {
			fmt.Fprintf(w, "  Attempt: %d\n", rec.State.Attempt)
		}
	case rec.Event != nil:
		fmt.Fprintf(w, "  Event: %s\n", rec.Event.Type)
		if rec.Event.Code != 0 {
			fmt.Fprintf(w, "  Code: %d (%s)\n", rec.Event.Code, rec.Event.Code)
		}
		if rec.Event.Reason != "" {
			fmt.Fprintf(w, "  Reason: %s\n", rec.Event.Reason)
		}
		if len(rec.Event.Payload) > 0 {
			fmt.Fprintf(w, "  Payload: %d bytes\n", len(rec.Event.Payload))
		}
	case rec.Error != nil:
		fmt.Fprintf(w, "  Message: %s\n", rec.Error.Message)
		if rec.Error.Code != 0 {
			fmt.Fprintf(w, "  Code: %d (%s)\n", rec.Error.Code, rec.Error.Code)
		}
		if rec.Error.Context != "" {
			fmt.Fprintf(w, "  Context: %s\n", rec.Error.Context)
		}
	}

	fmt.Fprintln(w) // Blank line between records
}

// RunView executes the view command.
func RunView(path string, filter log.Filter, output io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	for {
		rec, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read record: %w", err)
		}
		formatRecord(output, rec)
	}
}

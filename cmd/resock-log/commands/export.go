package commands

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/resock/resock-go/pkg/log"
)

// RunExport exports the records of path matching filter in format
// ("jsonl" or "csv") to output, or stdout when output is empty.
func RunExport(path, format, output string, filter log.Filter) error {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch format {
	case "jsonl":
		return exportJSONL(reader, w)
	case "csv":
		return exportCSV(reader, w)
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}
}

// jsonRecord is the JSON shape of a record with readable enums.
type jsonRecord struct {
	Timestamp string           `json:"timestamp"`
	ConnID    string           `json:"conn_id"`
	Role      string           `json:"role"`
	Kind      string           `json:"kind"`
	Direction string           `json:"direction,omitempty"`
	Frame     *log.FrameRecord `json:"frame,omitempty"`
	State     *log.StateRecord `json:"state,omitempty"`
	Event     *jsonEvent       `json:"event,omitempty"`
	Error     *log.ErrorRecord `json:"error,omitempty"`
}

type jsonEvent struct {
	Type    string `json:"type"`
	Code    int    `json:"code,omitempty"`
	Reason  string `json:"reason,omitempty"`
	Payload []byte `json:"payload,omitempty"`
}

func toJSON(rec log.Record) jsonRecord {
	jr := jsonRecord{
		Timestamp: rec.Timestamp.UTC().Format(timeLayout),
		ConnID:    rec.ConnID,
		Role:      rec.Role.String(),
		Kind:      rec.Kind.String(),
		Frame:     rec.Frame,
		State:     rec.State,
		Error:     rec.Error,
	}
	if rec.Direction != log.DirectionNone {
		jr.Direction = rec.Direction.String()
	}
	if rec.Event != nil {
		jr.Event = &jsonEvent{
			Type:    rec.Event.Type.String(),
			Code:    int(rec.Event.Code),
			Reason:  rec.Event.Reason,
			Payload: rec.Event.Payload,
		}
	}
	return jr
}

func exportJSONL(reader *log.Reader, w io.Writer) error {
	encoder := json.NewEncoder(w)
	for {
		rec, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read record: %w", err)
		}
		if err := encoder.Encode(toJSON(rec)); err != nil {
			return fmt.Errorf("failed to encode record: %w", err)
		}
	}
}

func exportCSV(reader *log.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"timestamp", "conn_id", "role", "kind", "direction", "detail", "code"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for {
		rec, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read record: %w", err)
		}

		detail, code := "", ""
		switch {
		case rec.Frame != nil:
			detail = strconv.Itoa(rec.Frame.Size)
		case rec.State != nil:
			detail = rec.State.New
		case rec.Event != nil:
			detail = rec.Event.Type.String()
			code = strconv.Itoa(int(rec.Event.Code))
		case rec.Error != nil:
			detail = rec.Error.Message
			code = strconv.Itoa(int(rec.Error.Code))
		}

		row := []string{
			rec.Timestamp.UTC().Format(timeLayout),
			rec.ConnID,
			rec.Role.String(),
			rec.Kind.String(),
			rec.Direction.String(),
			detail,
			code,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
}

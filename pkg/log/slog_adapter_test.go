package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/resock/resock-go/pkg/wire"
)

func captureSlog(t *testing.T, rec Record) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	NewSlogAdapter(logger).Log(rec)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("parse log output %q: %v", buf.String(), err)
	}
	return entry
}

func TestSlogAdapterFrame(t *testing.T) {
	entry := captureSlog(t, FrameRec("conn-1", RoleClient, DirectionOut, make([]byte, 64)))

	if entry["msg"] != "protocol" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["conn_id"] != "conn-1" {
		t.Errorf("conn_id = %v", entry["conn_id"])
	}
	if entry["direction"] != "OUT" {
		t.Errorf("direction = %v", entry["direction"])
	}
	if entry["frame_size"] != float64(64) {
		t.Errorf("frame_size = %v", entry["frame_size"])
	}
}

func TestSlogAdapterState(t *testing.T) {
	entry := captureSlog(t, StateRec("conn-2", RoleClient, "CONNECTED", "RECONNECTING", "GOING_AWAY", 2))

	if entry["new_state"] != "RECONNECTING" {
		t.Errorf("new_state = %v", entry["new_state"])
	}
	if entry["attempt"] != float64(2) {
		t.Errorf("attempt = %v", entry["attempt"])
	}
	if _, ok := entry["direction"]; ok {
		t.Error("state records have no direction")
	}
}

func TestSlogAdapterEvent(t *testing.T) {
	ev := wire.NewEvent(wire.EventClose, wire.ClosePolicyViolation, "nope").WithConn("conn-3")
	entry := captureSlog(t, EventRec(RoleServer, ev))

	if entry["event"] != "CLOSE" {
		t.Errorf("event = %v", entry["event"])
	}
	if entry["code"] != "POLICY_VIOLATION" {
		t.Errorf("code = %v", entry["code"])
	}
	if entry["role"] != "SERVER" {
		t.Errorf("role = %v", entry["role"])
	}
}

func TestSlogAdapterError(t *testing.T) {
	entry := captureSlog(t, ErrorRec("conn-4", RoleClient, errors.New("bad frame"), wire.CloseUnsupportedData, "decode"))

	if entry["error"] != "bad frame" {
		t.Errorf("error = %v", entry["error"])
	}
	if entry["context"] != "decode" {
		t.Errorf("context = %v", entry["context"])
	}
}

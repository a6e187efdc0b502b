package log

import (
	"bytes"
	"errors"
	"testing"

	"github.com/resock/resock-go/pkg/wire"
)

func TestFrameRecTruncates(t *testing.T) {
	small := FrameRec("c1", RoleClient, DirectionOut, []byte("hi"))
	if small.Frame.Size != 2 || small.Frame.Truncated {
		t.Errorf("small frame: size=%d truncated=%v", small.Frame.Size, small.Frame.Truncated)
	}

	big := bytes.Repeat([]byte{0xAB}, MaxFrameCapture+10)
	rec := FrameRec("c1", RoleServer, DirectionIn, big)
	if rec.Frame.Size != len(big) {
		t.Errorf("Size = %d, want %d", rec.Frame.Size, len(big))
	}
	if !rec.Frame.Truncated {
		t.Error("expected Truncated")
	}
	if len(rec.Frame.Data) != MaxFrameCapture {
		t.Errorf("len(Data) = %d, want %d", len(rec.Frame.Data), MaxFrameCapture)
	}
	if rec.Kind != KindFrame {
		t.Errorf("Kind = %v, want FRAME", rec.Kind)
	}
}

func TestFrameRecCopiesData(t *testing.T) {
	data := []byte("abc")
	rec := FrameRec("c1", RoleClient, DirectionOut, data)
	data[0] = 'x'
	if string(rec.Frame.Data) != "abc" {
		t.Errorf("record aliases caller buffer: %q", rec.Frame.Data)
	}
}

func TestRecordEncodeDecode(t *testing.T) {
	ev := wire.NewEvent(wire.EventClose, wire.CloseGoingAway, "restart").WithConn("c9")
	records := []Record{
		StateRec("c9", RoleClient, "CONNECTED", "RECONNECTING", "GOING_AWAY", 1),
		EventRec(RoleClient, ev),
		ErrorRec("c9", RoleServer, errors.New("boom"), wire.CloseUnsupportedData, "decode"),
	}

	for _, rec := range records {
		t.Run(rec.Kind.String(), func(t *testing.T) {
			data, err := EncodeRecord(rec)
			if err != nil {
				t.Fatalf("EncodeRecord: %v", err)
			}
			got, err := DecodeRecord(data)
			if err != nil {
				t.Fatalf("DecodeRecord: %v", err)
			}
			if got.Kind != rec.Kind || got.ConnID != "c9" || got.Role != rec.Role {
				t.Errorf("header mismatch: got %+v", got)
			}
			if !got.Timestamp.Equal(rec.Timestamp) {
				t.Errorf("Timestamp = %v, want %v", got.Timestamp, rec.Timestamp)
			}
			switch rec.Kind {
			case KindState:
				if got.State == nil || got.State.New != "RECONNECTING" || got.State.Attempt != 1 {
					t.Errorf("State = %+v", got.State)
				}
			case KindEvent:
				if got.Event == nil || got.Event.Code != wire.CloseGoingAway || got.Event.Reason != "restart" {
					t.Errorf("Event = %+v", got.Event)
				}
			case KindError:
				if got.Error == nil || got.Error.Code != wire.CloseUnsupportedData || got.Error.Message != "boom" {
					t.Errorf("Error = %+v", got.Error)
				}
			}
		})
	}
}

func TestParseKind(t *testing.T) {
	for k := KindFrame; k <= KindError; k++ {
		got, ok := ParseKind(k.String())
		if !ok || got != k {
			t.Errorf("ParseKind(%q) = %v, %v", k.String(), got, ok)
		}
	}
	if _, ok := ParseKind("BOGUS"); ok {
		t.Error("ParseKind accepted BOGUS")
	}
}

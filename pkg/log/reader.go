package log

import (
	"errors"
	"io"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/resock/resock-go/pkg/wire"
)

// Filter selects records. Zero-value fields match everything.
type Filter struct {
	ConnID    string
	Role      *Role
	Kind      *Kind
	Direction *Direction

	// EventType and Code only match event records.
	EventType *wire.EventType
	Code      *wire.CloseCode

	// TimeStart is inclusive, TimeEnd exclusive.
	TimeStart *time.Time
	TimeEnd   *time.Time
}

// Match reports whether rec satisfies every criterion.
func (f *Filter) Match(rec Record) bool {
	if f.ConnID != "" && rec.ConnID != f.ConnID {
		return false
	}
	if f.Role != nil && rec.Role != *f.Role {
		return false
	}
	if f.Kind != nil && rec.Kind != *f.Kind {
		return false
	}
	if f.Direction != nil && rec.Direction != *f.Direction {
		return false
	}
	if f.EventType != nil && (rec.Event == nil || rec.Event.Type != *f.EventType) {
		return false
	}
	if f.Code != nil && !f.codeMatches(rec) {
		return false
	}
	if f.TimeStart != nil && rec.Timestamp.Before(*f.TimeStart) {
		return false
	}
	if f.TimeEnd != nil && !rec.Timestamp.Before(*f.TimeEnd) {
		return false
	}
	return true
}

func (f *Filter) codeMatches(rec Record) bool {
	switch {
	case rec.Event != nil:
		return rec.Event.Code == *f.Code
	case rec.Error != nil:
		return rec.Error.Code == *f.Code
	}
	return false
}

// Reader streams records from a file.
type Reader struct {
	file    *os.File
	decoder *cbor.Decoder
	filter  Filter
}

// NewReader opens path and reads every record.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader opens path and reads only records matching filter.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{file: f, decoder: NewDecoder(f), filter: filter}, nil
}

// Next returns the next matching record, or io.EOF.
func (r *Reader) Next() (Record, error) {
	for {
		var rec Record
		if err := r.decoder.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return Record{}, io.EOF
			}
			return Record{}, err
		}
		if r.filter.Match(rec) {
			return rec, nil
		}
	}
}

// Close closes the file.
func (r *Reader) Close() error {
	return r.file.Close()
}

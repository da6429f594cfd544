package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"

	"collegead.ai/internal/sim/reg"
	"collegead.ai/internal/sim/world"
)

// JSONLZstdWriter appends one JSON document per line to a zstd stream.
// Output is buffered; callers flush at tick boundaries.
type JSONLZstdWriter struct {
	path string

	mu  sync.Mutex
	f   *os.File
	enc *zstd.Encoder
	w   *bufio.Writer
}

func NewJSONLZstdWriter(path string) *JSONLZstdWriter {
	return &JSONLZstdWriter{path: path}
}

func (l *JSONLZstdWriter) Path() string { return l.path }

func (l *JSONLZstdWriter) Write(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.openLocked(); err != nil {
		return err
	}
	if _, err := l.w.Write(b); err != nil {
		return err
	}
	return l.w.WriteByte('\n')
}

// Flush pushes buffered lines through the encoder so a reader sees every
// complete tick even if the process dies before Close.
func (l *JSONLZstdWriter) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.w == nil {
		return nil
	}
	if err := l.w.Flush(); err != nil {
		return err
	}
	return l.enc.Flush()
}

func (l *JSONLZstdWriter) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeLocked()
}

func (l *JSONLZstdWriter) openLocked() error {
	if l.f != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	l.f = f
	l.enc = enc
	l.w = bufio.NewWriterSize(enc, 128*1024)
	return nil
}

func (l *JSONLZstdWriter) closeLocked() error {
	if l.f == nil {
		return nil
	}
	var errs []error
	if err := l.w.Flush(); err != nil {
		errs = append(errs, err)
	}
	if err := l.enc.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := l.f.Close(); err != nil {
		errs = append(errs, err)
	}
	l.f, l.enc, l.w = nil, nil, nil
	return errors.Join(errs...)
}

// EventLogger writes one line per fired REG event.
type EventLogger struct {
	w *JSONLZstdWriter
}

func NewEventLogger(path string) *EventLogger {
	return &EventLogger{w: NewJSONLZstdWriter(path)}
}

func (l *EventLogger) WriteEvents(recs []reg.Record) error {
	for i := range recs {
		if err := l.w.Write(recs[i]); err != nil {
			return err
		}
	}
	return nil
}

func (l *EventLogger) Flush() error { return l.w.Flush() }
func (l *EventLogger) Close() error { return l.w.Close() }
func (l *EventLogger) Path() string { return l.w.Path() }

// HistoryLine is the on-disk trait history row. Contexts and tags are
// "|"-joined so the file stays flat for spreadsheet import.
type HistoryLine struct {
	Week     int     `json:"week"`
	CoachID  string  `json:"coach_id"`
	Trait    string  `json:"trait"`
	Pre      float64 `json:"pre"`
	Post     float64 `json:"post"`
	Delta    float64 `json:"delta"`
	Contexts string  `json:"contexts"`
	Tags     string  `json:"tags"`
}

type HistoryLogger struct {
	w *JSONLZstdWriter
}

func NewHistoryLogger(path string) *HistoryLogger {
	return &HistoryLogger{w: NewJSONLZstdWriter(path)}
}

func (l *HistoryLogger) WriteHistory(rows []world.HistoryRow) error {
	for _, r := range rows {
		line := HistoryLine{
			Week:     r.Week,
			CoachID:  r.CoachID,
			Trait:    r.Trait,
			Pre:      r.Pre,
			Post:     r.Post,
			Delta:    r.Delta,
			Contexts: strings.Join(r.Contexts, "|"),
			Tags:     strings.Join(r.Tags, "|"),
		}
		if err := l.w.Write(line); err != nil {
			return err
		}
	}
	return nil
}

func (l *HistoryLogger) Flush() error { return l.w.Flush() }
func (l *HistoryLogger) Close() error { return l.w.Close() }
func (l *HistoryLogger) Path() string { return l.w.Path() }

// Merge concatenates parts into dst in the given order. Concatenated zstd
// frames decode as one stream, so no re-encoding is needed. Missing parts
// are skipped.
func Merge(dst string, parts []string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	for _, p := range parts {
		in, err := os.Open(p)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			_ = out.Close()
			return err
		}
		_, err = io.Copy(out, in)
		_ = in.Close()
		if err != nil {
			_ = out.Close()
			return err
		}
	}
	return out.Close()
}

// ReadJSONL calls fn for every line of a zstd JSONL file.
func ReadJSONL(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	// A writer that died after a flush leaves an unterminated frame; every
	// flushed line has been delivered by then.
	if err := sc.Err(); err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return err
	}
	return nil
}

// ReadEvents decodes an event log written by EventLogger.
func ReadEvents(path string) ([]reg.Record, error) {
	var out []reg.Record
	err := ReadJSONL(path, func(line []byte) error {
		var r reg.Record
		if err := json.Unmarshal(line, &r); err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	return out, err
}

// ReadHistory decodes a history log written by HistoryLogger.
func ReadHistory(path string) ([]HistoryLine, error) {
	var out []HistoryLine
	err := ReadJSONL(path, func(line []byte) error {
		var r HistoryLine
		if err := json.Unmarshal(line, &r); err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	return out, err
}

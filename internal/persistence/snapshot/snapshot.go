package snapshot

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"collegead.ai/internal/sim/model"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	RunID   string `json:"run_id"`
	Week    int    `json:"week"`
	Seed    uint64 `json:"seed"`
	// Digests are the catalog digests the run was started with.
	Digests map[string]string `json:"digests,omitempty"`
}

// SnapshotV1 is the roster plus one meter set per batch. Coaches are kept
// in document form so a snapshot stays readable without this package.
type SnapshotV1 struct {
	Header  Header      `json:"header"`
	Coaches []model.Doc `json:"coaches"`
	Worlds  []model.Doc `json:"worlds"`
}

// Capture builds a snapshot of coaches and meters at week.
func Capture(h Header, coaches []*model.Coach, meters []*model.World) SnapshotV1 {
	h.Version = Version
	snap := SnapshotV1{
		Header:  h,
		Coaches: make([]model.Doc, 0, len(coaches)),
		Worlds:  make([]model.Doc, 0, len(meters)),
	}
	for _, c := range coaches {
		snap.Coaches = append(snap.Coaches, c.ToDoc())
	}
	for _, w := range meters {
		snap.Worlds = append(snap.Worlds, w.ToDoc())
	}
	return snap
}

// Restore rebuilds the roster and meters.
func (s SnapshotV1) Restore() ([]*model.Coach, []*model.World, error) {
	coaches := make([]*model.Coach, 0, len(s.Coaches))
	for i, d := range s.Coaches {
		c, err := model.CoachFromDoc(d)
		if err != nil {
			return nil, nil, fmt.Errorf("coach %d: %w", i, err)
		}
		coaches = append(coaches, c)
	}
	meters := make([]*model.World, 0, len(s.Worlds))
	for i, d := range s.Worlds {
		w, err := model.WorldFromDoc(d)
		if err != nil {
			return nil, nil, fmt.Errorf("world %d: %w", i, err)
		}
		meters = append(meters, w)
	}
	return coaches, meters, nil
}

// WriteSnapshot writes a header line followed by the full JSON body, both
// inside one zstd stream. The file is written next to path and renamed.
func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := writeFile(tmp, snap); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func writeFile(path string, snap SnapshotV1) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = f.Close()
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	_, err = bw.Write(hb)
	if err == nil {
		err = bw.WriteByte('\n')
	}
	if err == nil {
		if err = json.NewEncoder(bw).Encode(&snap); err != nil {
			err = fmt.Errorf("json encode: %w", err)
		}
	}
	if err == nil {
		err = bw.Flush()
	}
	return errors.Join(err, enc.Close(), f.Close())
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	err := withReader(path, func(br *bufio.Reader) error {
		// The body repeats the header.
		if _, err := br.ReadBytes('\n'); err != nil {
			return err
		}
		if err := json.NewDecoder(br).Decode(&snap); err != nil {
			return fmt.Errorf("json decode: %w", err)
		}
		return nil
	})
	if err != nil {
		return snap, err
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("snapshot version %d, want %d", snap.Header.Version, Version)
	}
	return snap, nil
}

// ReadHeader decodes only the leading header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	err := withReader(path, func(br *bufio.Reader) error {
		line, err := br.ReadBytes('\n')
		if err != nil {
			return err
		}
		return json.Unmarshal(line, &h)
	})
	return h, err
}

func withReader(path string, fn func(*bufio.Reader) error) error {
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
	return fn(bufio.NewReaderSize(dec, 256*1024))
}

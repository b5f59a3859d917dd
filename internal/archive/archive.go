// Package archive writes store dumps taken before a size-threshold purge.
//
// An archive is a zstd-compressed stream of JSON lines, one persisted document
// per line, named after the moment the purge was decided.
package archive

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/couchcryptid/station-data-ingest/internal/domain"
	"github.com/jonboulle/clockwork"
	"github.com/klauspost/compress/zstd"
)

const (
	filePrefix = "archive_"
	fileSuffix = ".jsonl.zst"
	nameLayout = "20060102T150405Z"
)

// Writer creates archive files in a directory.
type Writer struct {
	dir   string
	clock clockwork.Clock
}

// NewWriter returns a Writer for dir. A nil clock uses the real clock.
func NewWriter(dir string, clock clockwork.Clock) *Writer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Writer{dir: dir, clock: clock}
}

// Write dumps docs to a new archive file and returns its path. The file is
// complete and synced when Write returns without error.
func (w *Writer) Write(docs []domain.Observation) (string, error) {
	if err := os.MkdirAll(w.dir, 0o750); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}

	name := filePrefix + w.clock.Now().UTC().Format(nameLayout) + fileSuffix
	path := filepath.Join(w.dir, name)
	tmp := path + ".tmp"

	if err := writeFile(tmp, docs); err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("finalize archive: %w", err)
	}
	return path, nil
}

func writeFile(path string, docs []domain.Observation) error {
	f, err := os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("create archive: %w", err)
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("create archive encoder: %w", err)
	}

	bw := bufio.NewWriter(enc)
	je := json.NewEncoder(bw)
	for i := range docs {
		if err := je.Encode(docs[i]); err != nil {
			enc.Close()
			return fmt.Errorf("encode archive document: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		enc.Close()
		return fmt.Errorf("write archive: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close archive encoder: %w", err)
	}
	return f.Sync()
}

// Read decodes every document of an archive file.
func Read(path string) ([]domain.Observation, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("open archive decoder: %w", err)
	}
	defer dec.Close()

	var docs []domain.Observation
	jd := json.NewDecoder(dec)
	for {
		var o domain.Observation
		if err := jd.Decode(&o); err != nil {
			if errors.Is(err, io.EOF) {
				return docs, nil
			}
			return nil, fmt.Errorf("decode archive document: %w", err)
		}
		docs = append(docs, o)
	}
}

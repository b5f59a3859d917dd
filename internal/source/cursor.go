package source

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/couchcryptid/station-data-ingest/internal/domain"
)

// cursor is how far a single file has been consumed.
type cursor struct {
	Inode  uint64 `json:"inode"`
	Offset int64  `json:"offset"`
}

type bookmarks struct {
	Files map[string]cursor `json:"files"`
}

// CursorStore tracks, per source file, the byte offset up to which complete
// lines have been handed out. Offsets only move forward unless the file is
// truncated or replaced, in which case reading restarts at 0.
//
// With an empty bookmark path cursors live in memory only and a restart
// re-reads every file from the start. Downstream dedup makes that safe.
type CursorStore struct {
	mu     sync.Mutex
	path   string
	files  map[string]cursor
	logger *slog.Logger
}

// NewCursorStore creates a store and loads bookmarks from path when set.
// A missing or corrupt bookmark file starts from empty state.
func NewCursorStore(path string, logger *slog.Logger) *CursorStore {
	s := &CursorStore{path: path, files: make(map[string]cursor), logger: logger}
	if path == "" {
		return s
	}

	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("failed to load cursor bookmarks, starting fresh", "file", path, "error", err)
		}
		return s
	}
	var bm bookmarks
	if err := json.Unmarshal(data, &bm); err != nil {
		logger.Warn("corrupt cursor bookmarks, starting fresh", "file", path, "error", err)
		return s
	}
	for k, v := range bm.Files {
		s.files[k] = v
	}
	return s
}

// ReadNewLines returns the complete lines appended to path since the previous
// call, without their line terminator. Header lines are skipped. A file that
// does not exist yields no lines and no error. A trailing line without a
// newline is left for a later call.
func (s *CursorStore) ReadNewLines(path string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, domain.E(domain.KindFileMissing, "open "+path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	cur := s.files[path]
	inode, _ := getInode(info)
	switch {
	case cur.Inode != 0 && inode != 0 && inode != cur.Inode:
		s.logger.Info("source file replaced, reading from start", "file", path)
		cur.Offset = 0
	case info.Size() < cur.Offset:
		s.logger.Info("source file truncated, reading from start", "file", path,
			"offset", cur.Offset, "size", info.Size())
		cur.Offset = 0
	}
	cur.Inode = inode

	if cur.Offset == info.Size() {
		s.files[path] = cur
		return nil, nil
	}
	if _, err := f.Seek(cur.Offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek %s: %w", path, err)
	}

	lines, consumed, err := readCompleteLines(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	// The offset only advances after the read succeeded.
	cur.Offset += consumed
	s.files[path] = cur
	return lines, nil
}

// Offset returns the current consumed offset of path.
func (s *CursorStore) Offset(path string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.files[path].Offset
}

// Save writes the bookmarks atomically. It is a no-op without a bookmark path.
func (s *CursorStore) Save() error {
	if s.path == "" {
		return nil
	}

	s.mu.Lock()
	bm := bookmarks{Files: make(map[string]cursor, len(s.files))}
	for k, v := range s.files {
		bm.Files[k] = v
	}
	s.mu.Unlock()

	data, err := json.Marshal(bm)
	if err != nil {
		return err
	}
	return writeFileAtomic(s.path, data)
}

// readCompleteLines reads r to EOF and returns every newline-terminated line
// that is not a header, and the number of bytes those lines (headers included)
// occupy.
func readCompleteLines(r io.Reader) ([]string, int64, error) {
	br := bufio.NewReader(r)
	var (
		lines    []string
		consumed int64
	)
	for {
		line, err := br.ReadBytes('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return lines, consumed, nil
			}
			return nil, 0, err
		}
		consumed += int64(len(line))

		text := strings.TrimRight(string(bytes.TrimSuffix(line, []byte{'\n'})), "\r")
		if strings.HasPrefix(text, domain.HeaderPrefix) {
			continue
		}
		lines = append(lines, text)
	}
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// getInode extracts the inode number from file info.
func getInode(info os.FileInfo) (uint64, bool) {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, false
	}
	return stat.Ino, true
}

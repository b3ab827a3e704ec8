package journal

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Rotation layouts for segment names.
const (
	Hourly = "2006-01-02-15"
	Daily  = "2006-01-02"
)

// segment is one open <prefix>-<key>.jsonl.zst file. Reopening an existing
// segment appends a new zstd frame, which readers decode transparently.
type segment struct {
	key string
	f   *os.File
	zw  *zstd.Encoder
	buf *bufio.Writer
	enc *json.Encoder
}

func openSegment(path, key string) (*segment, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	buf := bufio.NewWriterSize(zw, 32*1024)
	return &segment{key: key, f: f, zw: zw, buf: buf, enc: json.NewEncoder(buf)}, nil
}

// append writes one line and flushes it through the compressor so a crash
// loses at most the entry being written.
func (s *segment) append(e Entry) error {
	if err := s.enc.Encode(e); err != nil {
		return err
	}
	if err := s.buf.Flush(); err != nil {
		return err
	}
	return s.zw.Flush()
}

func (s *segment) close() error {
	return errors.Join(s.buf.Flush(), s.zw.Close(), s.f.Close())
}

// rotator appends entries to time-keyed segments under dir.
type rotator struct {
	dir    string
	prefix string
	layout string
	now    func() time.Time

	mu  sync.Mutex
	cur *segment
}

func newRotator(dir, prefix, layout string) *rotator {
	if layout == "" {
		layout = Hourly
	}
	return &rotator{dir: dir, prefix: prefix, layout: layout, now: time.Now}
}

func (r *rotator) Append(e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := r.now().UTC().Format(r.layout)
	if r.cur == nil || r.cur.key != key {
		if r.cur != nil {
			if err := r.cur.close(); err != nil {
				return err
			}
			r.cur = nil
		}
		seg, err := openSegment(r.path(key), key)
		if err != nil {
			return err
		}
		r.cur = seg
	}
	return r.cur.append(e)
}

func (r *rotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cur == nil {
		return nil
	}
	err := r.cur.close()
	r.cur = nil
	return err
}

func (r *rotator) path(key string) string {
	return filepath.Join(r.dir, r.prefix+"-"+key+".jsonl.zst")
}

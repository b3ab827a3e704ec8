package savestore

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
)

const fileSuffix = ".save.zst"

// Header is the first line of a save file.
type Header struct {
	Version   int    `json:"version"`
	Slot      string `json:"slot"`
	WrittenAt string `json:"written_at"`
	Size      int    `json:"size"`
}

// File stores each slot as <dir>/<slot>.save.zst.
type File struct {
	dir string
}

func NewFile(dir string) (*File, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("empty save dir")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &File{dir: dir}, nil
}

func (f *File) path(slot string) string {
	return filepath.Join(f.dir, slot+fileSuffix)
}

func (f *File) Read(slot string) ([]byte, error) {
	_, data, err := ReadFile(f.path(slot))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// Write replaces the slot atomically via a temp file and rename.
func (f *File) Write(slot string, data []byte) error {
	if slot == "" || strings.ContainsAny(slot, `/\`) {
		return fmt.Errorf("invalid slot %q", slot)
	}
	tmp := f.path(slot) + ".tmp"
	if err := WriteFile(tmp, slot, data); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, f.path(slot))
}

func (f *File) Slots() ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileSuffix) {
			continue
		}
		out = append(out, strings.TrimSuffix(e.Name(), fileSuffix))
	}
	sort.Strings(out)
	return out, nil
}

func (f *File) Close() error { return nil }

// WriteFile writes a zstd stream holding a JSON header line followed by the
// raw save document.
func WriteFile(path, slot string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	enc, err := zstd.NewWriter(out, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 64*1024)

	hb, _ := json.Marshal(Header{
		Version:   1,
		Slot:      slot,
		WrittenAt: time.Now().UTC().Format(time.RFC3339),
		Size:      len(data),
	})
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if _, err := bw.Write(data); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	return out.Sync()
}

// ReadFile reads a file produced by WriteFile.
func ReadFile(path string) (Header, []byte, error) {
	var h Header
	in, err := os.Open(path)
	if err != nil {
		return h, nil, err
	}
	defer in.Close()

	dec, err := zstd.NewReader(in)
	if err != nil {
		return h, nil, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return h, nil, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, nil, fmt.Errorf("decode header: %w", err)
	}
	data, err := io.ReadAll(br)
	if err != nil {
		return h, nil, fmt.Errorf("read body: %w", err)
	}
	if h.Size > 0 && len(data) != h.Size {
		return h, nil, fmt.Errorf("truncated save: have %d bytes, header says %d", len(data), h.Size)
	}
	return h, data, nil
}

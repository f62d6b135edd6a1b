package index

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/kailas-cloud/docqa/internal/domain"
)

const (
	// FileName is the snapshot file inside the index directory.
	FileName = "index.dqx"

	formatVersion  = 1
	maxHeaderBytes = 1 << 30
)

var magic = [8]byte{'D', 'Q', 'X', 'I', 'D', 'X', '0', '1'}

// ErrNotDurable means the snapshot was renamed into place but the directory
// fsync failed: the new snapshot is visible and will be loaded, but a power
// loss may roll it back. Callers should treat the save as committed.
var ErrNotDurable = errors.New("snapshot committed but directory not synced")

// syncDir is replaced in tests.
var syncDir = fsyncDir

// Snapshot is the persisted state of an index plus the document registry.
type Snapshot struct {
	Dimension      int
	EmbeddingModel string
	SavedAt        time.Time
	Entries        []Entry
	Documents      []domain.DocumentRecord
}

// header is the JSON part of the file. Vectors follow it as raw little-endian float32.
type header struct {
	Version        int                     `json:"version"`
	Dimension      int                     `json:"dimension"`
	EmbeddingModel string                  `json:"embedding_model,omitempty"`
	SavedAt        int64                   `json:"saved_at"` // unix millis
	Entries        []entryDTO              `json:"entries"`
	Documents      []domain.DocumentRecord `json:"documents,omitempty"`
}

type entryDTO struct {
	Text     string               `json:"text"`
	Metadata domain.ChunkMetadata `json:"metadata"`
}

// Path returns the snapshot file path for dir.
func Path(dir string) string {
	return filepath.Join(filepath.Clean(dir), FileName)
}

// Save writes snap into dir atomically: temp file, fsync, rename, fsync dir.
// A crash at any point leaves either the old or the new snapshot.
// The rename is the commit point: errors before it wrap domain.ErrPersistence
// and leave the old snapshot; a failed directory fsync after it returns
// ErrNotDurable with the new snapshot already in place.
func Save(dir string, snap *Snapshot) error {
	dir = filepath.Clean(dir)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("%w: create dir: %w", domain.ErrPersistence, err)
	}
	for i := range snap.Entries {
		if len(snap.Entries[i].Vector) != snap.Dimension {
			return fmt.Errorf("%w: entry %d has %d, snapshot dimension %d",
				domain.ErrDimensionMismatch, i, len(snap.Entries[i].Vector), snap.Dimension)
		}
	}

	tmp, err := os.CreateTemp(dir, FileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %w", domain.ErrPersistence, err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	if err := encode(tmp, snap); err != nil {
		return fmt.Errorf("%w: encode: %w", domain.ErrPersistence, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("%w: fsync: %w", domain.ErrPersistence, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close: %w", domain.ErrPersistence, err)
	}
	if err := os.Rename(tmpPath, Path(dir)); err != nil {
		return fmt.Errorf("%w: rename: %w", domain.ErrPersistence, err)
	}
	committed = true

	if err := syncDir(dir); err != nil {
		return fmt.Errorf("%w: %w", ErrNotDurable, err)
	}
	return nil
}

func encode(w io.Writer, snap *Snapshot) error {
	if _, err := w.Write(magic[:]); err != nil {
		return fmt.Errorf("write magic: %w", err)
	}

	zw, err := zstd.NewWriter(w, zstd.WithEncoderCRC(true))
	if err != nil {
		return fmt.Errorf("zstd writer: %w", err)
	}

	h := header{
		Version:        formatVersion,
		Dimension:      snap.Dimension,
		EmbeddingModel: snap.EmbeddingModel,
		SavedAt:        snap.SavedAt.UnixMilli(),
		Entries:        make([]entryDTO, len(snap.Entries)),
		Documents:      snap.Documents,
	}
	for i, e := range snap.Entries {
		h.Entries[i] = entryDTO{Text: e.Text, Metadata: e.Metadata}
	}
	hb, err := json.Marshal(h)
	if err != nil {
		_ = zw.Close()
		return fmt.Errorf("marshal header: %w", err)
	}

	bw := bufio.NewWriter(zw)
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(hb))) //nolint:gosec // bounded by maxHeaderBytes on read
	_, _ = bw.Write(lenBuf[:])
	_, _ = bw.Write(hb)

	var f [4]byte
	for i := range snap.Entries {
		for _, v := range snap.Entries[i].Vector {
			binary.LittleEndian.PutUint32(f[:], math.Float32bits(v))
			_, _ = bw.Write(f[:])
		}
	}
	if err := bw.Flush(); err != nil {
		_ = zw.Close()
		return fmt.Errorf("write body: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("close zstd: %w", err)
	}
	return nil
}

// Load reads the snapshot in dir. It returns (nil, nil) when nothing is persisted,
// an error wrapping domain.ErrCorruptIndex when the file cannot be decoded,
// and an error wrapping domain.ErrPersistence for other I/O failures.
func Load(dir string) (*Snapshot, error) {
	f, err := os.Open(Path(dir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: open: %w", domain.ErrPersistence, err)
	}
	defer f.Close()

	snap, err := decode(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrCorruptIndex, Path(dir), err)
	}
	return snap, nil
}

func decode(r io.Reader) (*Snapshot, error) {
	var m [8]byte
	if _, err := io.ReadFull(r, m[:]); err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if m != magic {
		return nil, fmt.Errorf("bad magic %q", m[:])
	}

	zr, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer zr.Close()

	var lenBuf [4]byte
	if _, err := io.ReadFull(zr, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("read header length: %w", err)
	}
	hlen := binary.LittleEndian.Uint32(lenBuf[:])
	if hlen == 0 || hlen > maxHeaderBytes {
		return nil, fmt.Errorf("header length %d out of range", hlen)
	}
	hb := make([]byte, hlen)
	if _, err := io.ReadFull(zr, hb); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	var h header
	if err := json.Unmarshal(hb, &h); err != nil {
		return nil, fmt.Errorf("parse header: %w", err)
	}
	if h.Version != formatVersion {
		return nil, fmt.Errorf("unsupported format version %d", h.Version)
	}
	if h.Dimension < 0 || (h.Dimension == 0 && len(h.Entries) > 0) {
		return nil, fmt.Errorf("invalid dimension %d for %d entries", h.Dimension, len(h.Entries))
	}

	snap := &Snapshot{
		Dimension:      h.Dimension,
		EmbeddingModel: h.EmbeddingModel,
		SavedAt:        time.UnixMilli(h.SavedAt),
		Entries:        make([]Entry, len(h.Entries)),
		Documents:      h.Documents,
	}
	row := make([]byte, 4*h.Dimension)
	for i, dto := range h.Entries {
		if _, err := io.ReadFull(zr, row); err != nil {
			return nil, fmt.Errorf("read vector %d: %w", i, err)
		}
		vec := make([]float32, h.Dimension)
		for j := range vec {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(row[4*j:]))
		}
		snap.Entries[i] = Entry{ID: i, Vector: vec, Text: dto.Text, Metadata: dto.Metadata}
	}

	// Хвост после последнего вектора означает рассинхрон заголовка и данных.
	var extra [1]byte
	if n, err := zr.Read(extra[:]); n > 0 || !errors.Is(err, io.EOF) {
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read trailer: %w", err)
		}
		return nil, errors.New("trailing data after vector block")
	}
	return snap, nil
}

// Remove deletes dir and everything in it. Missing dir is not an error.
func Remove(dir string) error {
	if err := os.RemoveAll(filepath.Clean(dir)); err != nil {
		return fmt.Errorf("%w: remove %s: %w", domain.ErrPersistence, dir, err)
	}
	return nil
}

// Quarantine renames a corrupt snapshot aside so the next Save does not
// overwrite it. Returns the new path.
func Quarantine(dir string, now time.Time) (string, error) {
	dst := Path(dir) + ".corrupt-" + strconv.FormatInt(now.Unix(), 10)
	if err := os.Rename(Path(dir), dst); err != nil {
		return "", fmt.Errorf("%w: quarantine: %w", domain.ErrPersistence, err)
	}
	return dst, nil
}

func fsyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return err
	}
	return nil
}

// Dir is an index directory that can report whether it accepts writes.
type Dir string

// CheckWritable creates and removes a probe file in d, creating d if needed.
func (d Dir) CheckWritable(_ context.Context) error {
	dir := filepath.Clean(string(d))
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("%w: create dir: %w", domain.ErrPersistence, err)
	}
	f, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return fmt.Errorf("%w: dir not writable: %w", domain.ErrPersistence, err)
	}
	name := f.Name()
	_ = f.Close()
	if err := os.Remove(name); err != nil {
		return fmt.Errorf("%w: remove probe: %w", domain.ErrPersistence, err)
	}
	return nil
}

// Package snapshot persists inference state blobs on disk, zstd-compressed
// and checksummed.
//
// File layout: magic "LCS1", xxhash64 of the raw state (8 bytes LE), meta
// length (4 bytes LE), JSON meta, zstd frame of the raw state.
package snapshot

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"llamactx/internal/common/fsutil"
)

const (
	magic  = "LCS1"
	ext    = ".lcs"
	header = len(magic) + 8 + 4
)

var (
	ErrNotFound   = errors.New("snapshot: not found")
	ErrChecksum   = errors.New("snapshot: checksum mismatch")
	ErrInvalidKey = errors.New("snapshot: invalid key")
	ErrFormat     = errors.New("snapshot: unrecognized file format")
)

var keyRE = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,127}$`)

var mOps = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "llamactx",
	Name:      "snapshot_ops_total",
	Help:      "Snapshot store operations by op and result.",
}, []string{"op", "result"})

// Meta describes a stored snapshot.
type Meta struct {
	Key       string    `json:"key"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	RawBytes  int       `json:"raw_bytes"`
	// DiskBytes is filled in by List and Get.
	DiskBytes int64 `json:"disk_bytes,omitempty"`
}

// Store is a directory of snapshot files. Safe for concurrent use; writes
// to the same key race at the file level and the last rename wins.
type Store struct {
	dir string
	enc *zstd.Encoder
	dec *zstd.Decoder
	now func() time.Time
}

// Open creates dir if needed.
func Open(dir string) (*Store, error) {
	dir, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot: create dir: %w", err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	return &Store{dir: dir, enc: enc, dec: dec, now: time.Now}, nil
}

// Dir is the backing directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(key string) (string, error) {
	if !keyRE.MatchString(key) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(s.dir, key+ext), nil
}

// Put stores state under key, replacing any previous snapshot.
func (s *Store) Put(key, model string, state []byte) (Meta, error) {
	meta, err := s.put(key, model, state)
	observe("put", err)
	return meta, err
}

func (s *Store) put(key, model string, state []byte) (Meta, error) {
	p, err := s.path(key)
	if err != nil {
		return Meta{}, err
	}
	meta := Meta{Key: key, Model: model, CreatedAt: s.now().UTC(), RawBytes: len(state)}
	mb, err := json.Marshal(meta)
	if err != nil {
		return Meta{}, err
	}
	buf := make([]byte, header, header+len(mb)+len(state)/2)
	copy(buf, magic)
	binary.LittleEndian.PutUint64(buf[4:], xxhash.Sum64(state))
	binary.LittleEndian.PutUint32(buf[12:], uint32(len(mb)))
	buf = append(buf, mb...)
	buf = s.enc.EncodeAll(state, buf)
	if err := fsutil.WriteFileAtomic(p, buf, 0o644); err != nil {
		return Meta{}, fmt.Errorf("snapshot: %w", err)
	}
	meta.DiskBytes = int64(len(buf))
	return meta, nil
}

// Get returns the raw state and its meta.
func (s *Store) Get(key string) ([]byte, Meta, error) {
	state, meta, err := s.get(key)
	observe("get", err)
	return state, meta, err
}

func (s *Store) get(key string) ([]byte, Meta, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, Meta{}, err
	}
	b, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, Meta{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, Meta{}, fmt.Errorf("snapshot: read: %w", err)
	}
	meta, body, sum, err := parseHeader(b)
	if err != nil {
		return nil, Meta{}, err
	}
	state, err := s.dec.DecodeAll(body, nil)
	if err != nil {
		return nil, Meta{}, fmt.Errorf("%w: %v", ErrChecksum, err)
	}
	if xxhash.Sum64(state) != sum {
		return nil, Meta{}, ErrChecksum
	}
	meta.DiskBytes = int64(len(b))
	return state, meta, nil
}

func parseHeader(b []byte) (Meta, []byte, uint64, error) {
	if len(b) < header || string(b[:4]) != magic {
		return Meta{}, nil, 0, ErrFormat
	}
	sum := binary.LittleEndian.Uint64(b[4:])
	ml := int(binary.LittleEndian.Uint32(b[12:]))
	if ml > len(b)-header {
		return Meta{}, nil, 0, ErrFormat
	}
	var meta Meta
	if err := json.Unmarshal(b[header:header+ml], &meta); err != nil {
		return Meta{}, nil, 0, fmt.Errorf("%w: meta: %v", ErrFormat, err)
	}
	return meta, b[header+ml:], sum, nil
}

// Delete removes a snapshot. A missing key yields ErrNotFound.
func (s *Store) Delete(key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			err = fmt.Errorf("%w: %s", ErrNotFound, key)
			observe("delete", err)
			return err
		}
		observe("delete", err)
		return fmt.Errorf("snapshot: delete: %w", err)
	}
	observe("delete", nil)
	return nil
}

// List returns the meta of every readable snapshot, sorted by key.
func (s *Store) List() ([]Meta, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("snapshot: list: %w", err)
	}
	var out []Meta
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ext) {
			continue
		}
		b, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			continue
		}
		meta, _, _, err := parseHeader(b)
		if err != nil {
			continue
		}
		meta.DiskBytes = int64(len(b))
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Close releases the codec resources.
func (s *Store) Close() error {
	s.dec.Close()
	return s.enc.Close()
}

func observe(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	mOps.WithLabelValues(op, result).Inc()
}

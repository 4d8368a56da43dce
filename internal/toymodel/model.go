// Package toymodel is a deterministic, pure-Go model provider. Its vocabulary
// is the 256 byte values plus BOS and EOS; its logits follow a text corpus so
// that a prompt drawn from the corpus is continued verbatim, with hashed
// noise on every other token. It backs the tests and the "toy" backend.
package toymodel

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"llamactx/internal/llm"
)

// Special tokens.
const (
	BOS       llm.Token = 256
	EOS       llm.Token = 257
	VocabSize           = 258
)

const defaultTrainCtx = 4096

// Options tune the synthetic distribution and fault injection.
type Options struct {
	// Order is the longest corpus suffix used to predict the next byte.
	Order int
	// Peak is added to the logit of the predicted token.
	Peak float32
	// Noise bounds the hashed logit of every other token.
	Noise float32
	// Seed perturbs the noise.
	Seed uint64
	// FailDecodeAt makes the n-th Decode call (1-based) fail.
	FailDecodeAt int64
	// FailTokenize makes every Tokenize call fail.
	FailTokenize bool
	// FailNewDecoder makes NewDecoder fail.
	FailNewDecoder bool
	// NoState makes decoders report a zero state size.
	NoState bool
}

func (o Options) withDefaults() Options {
	if o.Order <= 0 {
		o.Order = 8
	}
	if o.Peak == 0 {
		o.Peak = 12
	}
	if o.Noise == 0 {
		o.Noise = 1
	}
	return o
}

// Model implements llm.Model over a corpus.
type Model struct {
	name   string
	corpus string
	opts   Options
	loadMs float64

	loaded      atomic.Bool
	decodeCalls atomic.Int64

	mu       sync.Mutex
	decoders map[*decoder]struct{}
}

var _ llm.Model = (*Model)(nil)

func init() {
	llm.Register("toy", func(path string, _ llm.ModelOptions) (llm.Model, error) {
		m, err := Load(path, Options{})
		if err != nil {
			return nil, err
		}
		return m, nil
	})
}

// New returns a loaded model over corpus.
func New(name, corpus string, opts Options) *Model {
	m := &Model{name: name, corpus: corpus, opts: opts.withDefaults(), decoders: map[*decoder]struct{}{}}
	m.loaded.Store(true)
	return m
}

// Load reads a corpus file. The model name is the file base name without
// extension.
func Load(path string, opts Options) (*Model, error) {
	start := time.Now()
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("toymodel: load %s: %w", path, err)
	}
	if len(b) == 0 {
		return nil, errors.New("toymodel: empty corpus " + path)
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	m := New(name, string(b), opts)
	m.loadMs = float64(time.Since(start).Microseconds()) / 1000
	return m, nil
}

func (m *Model) Name() string { return m.name }

func (m *Model) Loaded() bool { return m.loaded.Load() }

// DecodeCalls counts Decode invocations across every decoder.
func (m *Model) DecodeCalls() int64 { return m.decodeCalls.Load() }

// Unload marks the model unusable without freeing decoders.
func (m *Model) Unload() { m.loaded.Store(false) }

func (m *Model) Close() error {
	m.Unload()
	m.mu.Lock()
	ds := m.decoders
	m.decoders = map[*decoder]struct{}{}
	m.mu.Unlock()
	for d := range ds {
		_ = d.Close()
	}
	return nil
}

func (m *Model) Tokenize(text string, addBOS bool) ([]llm.Token, error) {
	if !m.Loaded() {
		return nil, errors.New("toymodel: model not loaded")
	}
	if m.opts.FailTokenize {
		return nil, errors.New("toymodel: tokenizer failure")
	}
	out := make([]llm.Token, 0, len(text)+1)
	if addBOS {
		out = append(out, BOS)
	}
	for i := 0; i < len(text); i++ {
		out = append(out, llm.Token(text[i]))
	}
	return out, nil
}

func (m *Model) Detokenize(tokens []llm.Token) (string, error) {
	var sb strings.Builder
	for _, t := range tokens {
		if t < 0 || t >= VocabSize {
			return "", fmt.Errorf("toymodel: token %d out of range", t)
		}
		if t < BOS {
			sb.WriteByte(byte(t))
		}
	}
	return sb.String(), nil
}

func (m *Model) TokenToPiece(tok llm.Token) string {
	if tok < 0 || tok >= BOS {
		return ""
	}
	return string([]byte{byte(tok)})
}

func (m *Model) VocabSize() int { return VocabSize }

func (m *Model) IsEOG(tok llm.Token) bool { return tok == EOS }

func (m *Model) Metadata() map[string]string {
	return map[string]string{
		"general.architecture": "toy",
		"general.name":         m.name,
		"toy.corpus_bytes":     strconv.Itoa(len(m.corpus)),
		"toy.order":            strconv.Itoa(m.opts.Order),
		"toy.context_length":   strconv.Itoa(defaultTrainCtx),
	}
}

func (m *Model) NewDecoder(p llm.DecoderParams) (llm.Decoder, error) {
	if !m.Loaded() {
		return nil, errors.New("toymodel: model not loaded")
	}
	if m.opts.FailNewDecoder {
		return nil, errors.New("toymodel: decoder allocation failed")
	}
	nCtx := int(p.NCtx)
	if nCtx == 0 {
		nCtx = defaultTrainCtx
	}
	nBatch := int(p.NBatch)
	if nBatch == 0 {
		nBatch = nCtx
	}
	d := &decoder{
		m:      m,
		nCtx:   nCtx,
		nBatch: min(nBatch, nCtx),
		start:  time.Now(),
	}
	m.mu.Lock()
	m.decoders[d] = struct{}{}
	m.mu.Unlock()
	return d, nil
}

func (m *Model) forget(d *decoder) {
	m.mu.Lock()
	delete(m.decoders, d)
	m.mu.Unlock()
}

package toymodel

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fxamacker/cbor/v2"

	"llamactx/internal/llm"
)

const stateMagic = "toy-state/1"

// ErrContextFull is returned when a batch does not fit the context window.
var ErrContextFull = errors.New("toymodel: context window full")

type decoder struct {
	m      *Model
	nCtx   int
	nBatch int
	start  time.Time

	mu     sync.Mutex
	closed bool
	tokens []llm.Token
	logits []float32
	perf   llm.Perf
}

type state struct {
	Magic  string      `cbor:"1,keyasint"`
	Model  string      `cbor:"2,keyasint"`
	Tokens []llm.Token `cbor:"3,keyasint"`
}

var _ llm.Decoder = (*decoder)(nil)

func (d *decoder) Decode(tokens []llm.Token) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errors.New("toymodel: decoder closed")
	}
	n := d.m.decodeCalls.Add(1)
	if len(tokens) == 0 {
		return errors.New("toymodel: empty batch")
	}
	if f := d.m.opts.FailDecodeAt; f > 0 && n == f {
		return fmt.Errorf("toymodel: injected failure on decode %d", n)
	}
	if len(tokens) > d.nBatch {
		return fmt.Errorf("toymodel: batch of %d exceeds n_batch %d", len(tokens), d.nBatch)
	}
	if len(d.tokens)+len(tokens) > d.nCtx {
		return ErrContextFull
	}
	for _, t := range tokens {
		if t < 0 || t >= VocabSize {
			return fmt.Errorf("toymodel: token %d out of range", t)
		}
	}
	begin := time.Now()
	d.tokens = append(d.tokens, tokens...)
	d.logits = d.m.predict(d.tokens)
	ms := float64(time.Since(begin).Microseconds()) / 1000
	if len(tokens) > 1 {
		d.perf.PromptEvalCount += len(tokens)
		d.perf.PromptEvalMs += ms
	} else {
		d.perf.EvalCount++
		d.perf.EvalMs += ms
	}
	return nil
}

func (d *decoder) Logits() []float32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.logits == nil {
		return nil
	}
	return append([]float32(nil), d.logits...)
}

func (d *decoder) ClearMemory() {
	d.mu.Lock()
	d.tokens = d.tokens[:0]
	d.logits = nil
	d.mu.Unlock()
}

func (d *decoder) Perf() llm.Perf {
	d.mu.Lock()
	defer d.mu.Unlock()
	p := d.perf
	p.StartMs = float64(d.start.UnixMicro()) / 1000
	p.LoadMs = d.m.loadMs
	return p
}

func (d *decoder) ResetPerf() {
	d.mu.Lock()
	d.perf = llm.Perf{}
	d.mu.Unlock()
}

func (d *decoder) ContextSize() int { return d.nCtx }

// Len reports how many tokens are cached.
func (d *decoder) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tokens)
}

func (d *decoder) encode() []byte {
	b, err := cbor.Marshal(state{Magic: stateMagic, Model: d.m.name, Tokens: d.tokens})
	if err != nil {
		return nil
	}
	return b
}

func (d *decoder) StateSize() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || d.m.opts.NoState {
		return 0
	}
	// Headroom so callers see a capacity larger than the written size.
	return len(d.encode()) + 64
}

func (d *decoder) SaveState(dst []byte) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	b := d.encode()
	if d.closed || b == nil || len(b) > len(dst) {
		return 0
	}
	return copy(dst, b)
}

func (d *decoder) LoadState(src []byte) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0
	}
	var st state
	rest, err := cbor.UnmarshalFirst(src, &st)
	if err != nil || st.Magic != stateMagic || st.Model != d.m.name || len(st.Tokens) > d.nCtx {
		return 0
	}
	d.tokens = append(d.tokens[:0], st.Tokens...)
	d.logits = nil
	if len(d.tokens) > 0 {
		d.logits = d.m.predict(d.tokens)
	}
	return len(src) - len(rest)
}

func (d *decoder) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.tokens = nil
	d.logits = nil
	d.mu.Unlock()
	d.m.forget(d)
	return nil
}

// predict scores the token following ctx. The longest suffix of the cached
// bytes found in the corpus decides the peak; running off the corpus end
// predicts EOS.
func (m *Model) predict(ctx []llm.Token) []float32 {
	var sb strings.Builder
	for _, t := range ctx {
		if t < BOS {
			sb.WriteByte(byte(t))
		}
	}
	text := sb.String()

	next := EOS
	if m.corpus != "" {
		next = llm.Token(m.corpus[0])
	}
	for k := min(m.opts.Order, len(text)); k >= 1; k-- {
		idx := strings.Index(m.corpus, text[len(text)-k:])
		if idx < 0 {
			continue
		}
		if end := idx + k; end < len(m.corpus) {
			next = llm.Token(m.corpus[end])
		} else {
			next = EOS
		}
		break
	}

	tail := text[max(len(text)-m.opts.Order, 0):]
	ctxHash := xxhash.Sum64String(tail)
	var key [24]byte
	binary.LittleEndian.PutUint64(key[0:], m.opts.Seed)
	binary.LittleEndian.PutUint64(key[8:], ctxHash)
	logits := make([]float32, VocabSize)
	for id := range logits {
		binary.LittleEndian.PutUint64(key[16:], uint64(id))
		h := xxhash.Sum64(key[:])
		u := float32(h>>40) / float32(1<<24)
		logits[id] = (2*u - 1) * m.opts.Noise
	}
	logits[BOS] = -m.opts.Peak
	logits[next] += m.opts.Peak
	return logits
}

//go:build llama

package llamacpp

/*
#include <stdlib.h>
#include <string.h>
#include "llama.h"
*/
import "C"

import (
	"errors"
	"fmt"
	"math"
	"os"
	"runtime"
	"sync"
	"time"
	"unsafe"

	"llamactx/internal/llm"
)

// Built reports whether the native binding is compiled in.
const Built = true

var backendOnce sync.Once

func init() { llm.Register(Backend, Load) }

// Model wraps a llama_model. Read operations are safe for concurrent use.
type Model struct {
	mu     sync.RWMutex
	handle *C.struct_llama_model
	vocab  *C.struct_llama_vocab
	nVocab int
	loadMs float64
	meta   map[string]string
}

var _ llm.Model = (*Model)(nil)

// Load reads a GGUF file.
func Load(path string, opts llm.ModelOptions) (llm.Model, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("llamacpp: model file: %w", err)
	}
	backendOnce.Do(func() { C.llama_backend_init() })

	p := C.llama_model_default_params()
	p.n_gpu_layers = C.int32_t(opts.GPULayers)
	p.use_mmap = C.bool(opts.UseMmap)
	p.use_mlock = C.bool(opts.UseMlock)
	p.vocab_only = C.bool(opts.VocabOnly)
	p.check_tensors = C.bool(opts.CheckTensors)

	cpath := C.CString(path)
	defer C.free(unsafe.Pointer(cpath))
	start := time.Now()
	h := C.llama_model_load_from_file(cpath, p)
	if h == nil {
		return nil, fmt.Errorf("llamacpp: failed to load model from %q", path)
	}
	m := &Model{
		handle: h,
		vocab:  (*C.struct_llama_vocab)(unsafe.Pointer(C.llama_model_get_vocab(h))),
		loadMs: float64(time.Since(start).Microseconds()) / 1000,
	}
	m.nVocab = int(C.llama_vocab_n_tokens(m.vocab))
	m.meta = m.readMetadata()
	runtime.SetFinalizer(m, func(m *Model) { _ = m.Close() })
	return m, nil
}

func (m *Model) Loaded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.handle != nil
}

func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handle == nil {
		return nil
	}
	C.llama_model_free(m.handle)
	m.handle, m.vocab = nil, nil
	runtime.SetFinalizer(m, nil)
	return nil
}

// Tokenize sizes the output with a first pass, then fills it.
func (m *Model) Tokenize(text string, addBOS bool) ([]llm.Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.handle == nil {
		return nil, errors.New("llamacpp: model is closed")
	}
	ctext := C.CString(text)
	defer C.free(unsafe.Pointer(ctext))
	n := C.llama_tokenize(m.vocab, ctext, C.int32_t(len(text)), nil, 0, C.bool(addBOS), C.bool(true))
	if int32(n) == math.MinInt32 {
		return nil, errors.New("llamacpp: tokenization overflow")
	}
	size := int(n)
	if size < 0 {
		size = -size
	}
	if size == 0 {
		return nil, nil
	}
	buf := C.malloc(C.size_t(size) * C.size_t(unsafe.Sizeof(C.llama_token(0))))
	defer C.free(buf)
	n = C.llama_tokenize(m.vocab, ctext, C.int32_t(len(text)), (*C.llama_token)(buf), C.int32_t(size), C.bool(addBOS), C.bool(true))
	if n < 0 {
		return nil, fmt.Errorf("llamacpp: tokenization failed, need %d tokens", -n)
	}
	src := unsafe.Slice((*C.llama_token)(buf), int(n))
	out := make([]llm.Token, int(n))
	for i, t := range src {
		out[i] = llm.Token(t)
	}
	return out, nil
}

func (m *Model) Detokenize(tokens []llm.Token) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.handle == nil {
		return "", errors.New("llamacpp: model is closed")
	}
	if len(tokens) == 0 {
		return "", nil
	}
	ctoks := (*C.llama_token)(unsafe.Pointer(&tokens[0]))
	size := len(tokens)*4 + 16
	for attempt := 0; attempt < 2; attempt++ {
		buf := make([]byte, size)
		n := C.llama_detokenize(m.vocab, ctoks, C.int32_t(len(tokens)),
			(*C.char)(unsafe.Pointer(&buf[0])), C.int32_t(len(buf)), C.bool(true), C.bool(false))
		if n >= 0 {
			runtime.KeepAlive(tokens)
			return string(buf[:n]), nil
		}
		size = int(-n)
	}
	return "", errors.New("llamacpp: detokenize failed")
}

// TokenToPiece renders a token, growing the buffer when llama reports a
// negative required length.
func (m *Model) TokenToPiece(tok llm.Token) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.handle == nil {
		return ""
	}
	buf := make([]byte, 64)
	n := C.llama_token_to_piece(m.vocab, C.llama_token(tok), (*C.char)(unsafe.Pointer(&buf[0])), C.int32_t(len(buf)), 0, C.bool(true))
	if n < 0 {
		buf = make([]byte, int(-n))
		n = C.llama_token_to_piece(m.vocab, C.llama_token(tok), (*C.char)(unsafe.Pointer(&buf[0])), C.int32_t(len(buf)), 0, C.bool(true))
		if n < 0 {
			return ""
		}
	}
	return string(buf[:n])
}

func (m *Model) VocabSize() int { return m.nVocab }

func (m *Model) IsEOG(tok llm.Token) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.handle == nil {
		return true
	}
	return bool(C.llama_vocab_is_eog(m.vocab, C.llama_token(tok)))
}

func (m *Model) Metadata() map[string]string {
	out := make(map[string]string, len(m.meta))
	for k, v := range m.meta {
		out[k] = v
	}
	return out
}

func (m *Model) readMetadata() map[string]string {
	count := int(C.llama_model_meta_count(m.handle))
	out := make(map[string]string, count)
	key := make([]byte, 512)
	val := make([]byte, 2048)
	for i := 0; i < count; i++ {
		kn := C.llama_model_meta_key_by_index(m.handle, C.int32_t(i), (*C.char)(unsafe.Pointer(&key[0])), C.size_t(len(key)))
		vn := C.llama_model_meta_val_str_by_index(m.handle, C.int32_t(i), (*C.char)(unsafe.Pointer(&val[0])), C.size_t(len(val)))
		if kn < 0 || vn < 0 {
			continue
		}
		out[string(key[:min(int(kn), len(key)-1)])] = string(val[:min(int(vn), len(val)-1)])
	}
	return out
}

func (m *Model) NewDecoder(p llm.DecoderParams) (llm.Decoder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.handle == nil {
		return nil, errors.New("llamacpp: model is closed")
	}
	cp := C.llama_context_default_params()
	cp.n_ctx = C.uint32_t(p.NCtx)
	cp.n_batch = C.uint32_t(p.NBatch)
	cp.n_ubatch = C.uint32_t(p.NUBatch)
	cp.n_threads = C.int32_t(p.Threads)
	cp.n_threads_batch = C.int32_t(p.ThreadsBatch)
	h := C.llama_init_from_model(m.handle, cp)
	if h == nil {
		return nil, errors.New("llamacpp: llama_init_from_model failed")
	}
	d := &Decoder{model: m, handle: h}
	runtime.SetFinalizer(d, func(d *Decoder) { _ = d.Close() })
	return d, nil
}

// Decoder wraps a llama_context. Not safe for concurrent use; the inference
// core serializes access.
type Decoder struct {
	mu     sync.Mutex
	model  *Model
	handle *C.struct_llama_context
}

var _ llm.Decoder = (*Decoder)(nil)

func (d *Decoder) Decode(tokens []llm.Token) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handle == nil {
		return errors.New("llamacpp: decoder is closed")
	}
	if len(tokens) == 0 {
		return errors.New("llamacpp: empty batch")
	}
	// The batch keeps a pointer to the tokens, so they live in C memory.
	n := len(tokens)
	buf := (*C.llama_token)(C.malloc(C.size_t(n) * C.size_t(unsafe.Sizeof(C.llama_token(0)))))
	defer C.free(unsafe.Pointer(buf))
	dst := unsafe.Slice(buf, n)
	for i, t := range tokens {
		dst[i] = C.llama_token(t)
	}
	rc := C.llama_decode(d.handle, C.llama_batch_get_one(buf, C.int32_t(n)))
	switch {
	case rc == 0:
		return nil
	case rc == 1:
		return errors.New("llamacpp: KV cache full, need larger context or shorter prompt")
	default:
		return fmt.Errorf("llamacpp: decode failed with code %d", int(rc))
	}
}

func (d *Decoder) Logits() []float32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handle == nil {
		return nil
	}
	p := C.llama_get_logits_ith(d.handle, -1)
	if p == nil {
		return nil
	}
	src := unsafe.Slice((*float32)(unsafe.Pointer(p)), d.model.nVocab)
	return append([]float32(nil), src...)
}

func (d *Decoder) ClearMemory() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handle != nil {
		C.llama_memory_clear(C.llama_get_memory(d.handle), C.bool(true))
	}
}

func (d *Decoder) Perf() llm.Perf {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handle == nil {
		return llm.Perf{}
	}
	p := C.llama_perf_context(d.handle)
	return llm.Perf{
		StartMs:         float64(p.t_start_ms),
		LoadMs:          float64(p.t_load_ms),
		PromptEvalMs:    float64(p.t_p_eval_ms),
		EvalMs:          float64(p.t_eval_ms),
		PromptEvalCount: int(p.n_p_eval),
		EvalCount:       int(p.n_eval),
		Reused:          int(p.n_reused),
	}
}

func (d *Decoder) ResetPerf() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handle != nil {
		C.llama_perf_context_reset(d.handle)
	}
}

func (d *Decoder) ContextSize() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handle == nil {
		return 0
	}
	return int(C.llama_n_ctx(d.handle))
}

func (d *Decoder) StateSize() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handle == nil {
		return 0
	}
	return int(C.llama_state_get_size(d.handle))
}

func (d *Decoder) SaveState(dst []byte) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handle == nil || len(dst) == 0 {
		return 0
	}
	n := C.llama_state_get_data(d.handle, (*C.uint8_t)(unsafe.Pointer(&dst[0])), C.size_t(len(dst)))
	return int(n)
}

func (d *Decoder) LoadState(src []byte) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handle == nil || len(src) == 0 {
		return 0
	}
	n := C.llama_state_set_data(d.handle, (*C.uint8_t)(unsafe.Pointer(&src[0])), C.size_t(len(src)))
	return int(n)
}

func (d *Decoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handle == nil {
		return nil
	}
	C.llama_free(d.handle)
	d.handle = nil
	runtime.SetFinalizer(d, nil)
	return nil
}

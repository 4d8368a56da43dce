// Package llm declares the contracts between the inference core and the
// native model runtime. Concrete providers live in internal/llamacpp (cgo)
// and internal/toymodel (pure Go).
package llm

// Token is a vocabulary id.
type Token = int32

// Model is a loaded, immutable language model. It is shared by reference and
// must outlive every Decoder created from it.
type Model interface {
	// Loaded reports whether the weights are resident and usable.
	Loaded() bool
	// Tokenize converts text into tokens, prepending the beginning-of-sequence
	// marker when addBOS is set.
	Tokenize(text string, addBOS bool) ([]Token, error)
	Detokenize(tokens []Token) (string, error)
	// TokenToPiece renders one token as text. Pieces may be partial UTF-8.
	TokenToPiece(tok Token) string
	VocabSize() int
	// IsEOG reports whether tok ends generation.
	IsEOG(tok Token) bool
	Metadata() map[string]string
	// NewDecoder allocates a fresh decode state bound to this model.
	NewDecoder(p DecoderParams) (Decoder, error)
	Close() error
}

// DecoderParams configures a native decode state.
type DecoderParams struct {
	NCtx         uint32
	NBatch       uint32
	NUBatch      uint32
	Threads      int32
	ThreadsBatch int32
}

// Decoder owns the KV cache of one sequence.
type Decoder interface {
	// Decode evaluates tokens as one batch appended after the cached ones.
	Decode(tokens []Token) error
	// Logits returns the scores of the last decoded position. The slice is
	// owned by the caller.
	Logits() []float32
	// ClearMemory drops every cached token.
	ClearMemory()
	Perf() Perf
	ResetPerf()
	ContextSize() int
	// StateSize is an upper bound for SaveState.
	StateSize() int
	// SaveState writes the state into dst and returns the bytes written.
	SaveState(dst []byte) int
	// LoadState restores from src and returns the bytes consumed; 0 on failure.
	LoadState(src []byte) int
	Close() error
}

// Perf mirrors the native performance counters.
type Perf struct {
	StartMs         float64
	LoadMs          float64
	PromptEvalMs    float64
	EvalMs          float64
	PromptEvalCount int
	EvalCount       int
	Reused          int
}

// ModelOptions are load-time knobs understood by native providers.
type ModelOptions struct {
	GPULayers    int  `json:"n_gpu_layers" yaml:"n_gpu_layers" toml:"n_gpu_layers"`
	UseMmap      bool `json:"use_mmap" yaml:"use_mmap" toml:"use_mmap"`
	UseMlock     bool `json:"use_mlock" yaml:"use_mlock" toml:"use_mlock"`
	VocabOnly    bool `json:"vocab_only" yaml:"vocab_only" toml:"vocab_only"`
	CheckTensors bool `json:"check_tensors" yaml:"check_tensors" toml:"check_tensors"`
}

// DefaultModelOptions matches the native loader defaults.
func DefaultModelOptions() ModelOptions {
	return ModelOptions{UseMmap: true}
}

package types

// Model represents a discoverable or loadable model file on disk.
type Model struct {
	// Stable identifier for the model (the file name).
	// example: tinyllama-q4.gguf
	ID string `json:"id" example:"tinyllama-q4.gguf"`
	// Human-friendly name.
	// example: tinyllama-q4
	Name string `json:"name" example:"tinyllama-q4"`
	// Absolute path to the model file on disk.
	// example: /home/user/models/tinyllama-q4.gguf
	Path string `json:"path" example:"/home/user/models/tinyllama-q4.gguf"`
	// Backend that loads the file: "llama" for GGUF, "toy" for corpus files.
	// example: llama
	Backend string `json:"backend" example:"llama"`
	// File size in bytes.
	// example: 668788096
	SizeBytes int64 `json:"size_bytes" example:"668788096"`
	// Quantization level or variant string parsed from the file name.
	// example: Q4_K_M
	Quant string `json:"quant,omitempty" example:"Q4_K_M"`
	// Optional family (e.g., llama, mistral, phi).
	// example: llama
	Family string `json:"family,omitempty" example:"llama"`
}

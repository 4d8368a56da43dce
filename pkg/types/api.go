package types

// InferRequest represents an inference request payload. Optional sampling
// fields are pointers so that an explicit zero (e.g. temperature 0, greedy)
// is distinguishable from "use the server default".
type InferRequest struct {
	// Optional model identifier. If empty, the server default is used.
	// example: tinyllama-q4.gguf
	Model string `json:"model,omitempty" example:"tinyllama-q4.gguf"`
	// Optional session id from POST /sessions. If empty, the model's default session is used.
	// example: 5b0c7f0e-8f38-4b5e-9e0e-2b7c1d7f6a10
	Session string `json:"session,omitempty" example:"5b0c7f0e-8f38-4b5e-9e0e-2b7c1d7f6a10"`
	// Required prompt text to generate a completion for.
	// example: Write a haiku about the ocean.
	Prompt string `json:"prompt" example:"Write a haiku about the ocean."`
	// If true, stream token lines as NDJSON. When false only the final line is written.
	// example: true
	Stream bool `json:"stream,omitempty" example:"true"`
	// Maximum number of new tokens to generate.
	// example: 128
	MaxTokens *int `json:"max_tokens,omitempty" example:"128"`
	// Sampling temperature; 0 selects greedy decoding.
	// example: 0.7
	Temperature *float64 `json:"temperature,omitempty" example:"0.7"`
	// Nucleus sampling probability.
	// example: 0.9
	TopP *float64 `json:"top_p,omitempty" example:"0.9"`
	// Minimum probability relative to the most likely token.
	// example: 0.05
	MinP *float64 `json:"min_p,omitempty" example:"0.05"`
	// Top-K sampling: limit candidates to top K tokens.
	// example: 40
	TopK *int `json:"top_k,omitempty" example:"40"`
	// Repetition penalty over the last penalty_last_n tokens.
	// example: 1.1
	RepeatPenalty *float64 `json:"repeat_penalty,omitempty" example:"1.1"`
	// Frequency penalty.
	// example: 0
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty" example:"0"`
	// Presence penalty.
	// example: 0
	PresencePenalty *float64 `json:"presence_penalty,omitempty" example:"0"`
	// Penalty window; -1 means the whole context, 0 disables penalties.
	// example: 64
	PenaltyLastN *int `json:"penalty_last_n,omitempty" example:"64"`
	// Random seed; -1 or omitted picks one from the clock.
	// example: 42
	Seed *int64 `json:"seed,omitempty" example:"42"`
	// Stop sequences, as a string or an array. Generation ends at the earliest match.
	Stop StopList `json:"stop,omitempty" swaggertype:"array,string"`
	// Additional stop sequences, merged with stop.
	StopSequences []string `json:"stop_sequences,omitempty"`
}

// TokenLine is one streamed NDJSON token line.
type TokenLine struct {
	// example: Hello
	Token string `json:"token" example:"Hello"`
	// example: 15043
	TokenID int32 `json:"token_id" example:"15043"`
}

// Usage contains token accounting.
type Usage struct {
	// example: 12
	PromptTokens int `json:"prompt_tokens" example:"12"`
	// example: 64
	CompletionTokens int `json:"completion_tokens" example:"64"`
	// example: 76
	TotalTokens int `json:"total_tokens" example:"76"`
}

// FinalLine is the last NDJSON line of an inference response.
type FinalLine struct {
	Done bool `json:"done" example:"true"`
	// Full generated text, truncated before any stop sequence.
	Content string `json:"content"`
	// One of length, eog, stop, cancelled.
	// example: eog
	FinishReason string `json:"finish_reason" example:"eog"`
	Usage        Usage  `json:"usage"`
	// Session that served the request.
	Session string `json:"session"`
	// example: 812
	DurationMs int64 `json:"duration_ms" example:"812"`
}

// ErrorLine is written in place of FinalLine when generation fails after
// streaming has begun.
type ErrorLine struct {
	Done  bool   `json:"done" example:"true"`
	Error string `json:"error"`
	// Inference error code (e.g. decode_failed).
	Kind string `json:"kind,omitempty"`
	// Text generated before the failure.
	Content string `json:"content,omitempty"`
}

// ContextOptions overrides decode-state sizes for a new session.
type ContextOptions struct {
	// example: 2048
	NCtx *int `json:"n_ctx,omitempty" example:"2048"`
	// example: 512
	NBatch *int `json:"n_batch,omitempty" example:"512"`
	// example: 4
	Threads *int `json:"threads,omitempty" example:"4"`
	// example: 4
	ThreadsBatch *int `json:"threads_batch,omitempty" example:"4"`
}

// SessionRequest opens a session on a model.
type SessionRequest struct {
	// example: tinyllama-q4.gguf
	Model   string         `json:"model,omitempty" example:"tinyllama-q4.gguf"`
	Context ContextOptions `json:"context,omitempty"`
}

// SessionInfo describes an open session.
type SessionInfo struct {
	ID    string `json:"id"`
	Model string `json:"model"`
	// Resolved context window in tokens.
	// example: 2048
	NCtx int `json:"n_ctx" example:"2048"`
	// example: false
	Busy bool `json:"busy" example:"false"`
	// Whether this is the model's implicit default session.
	Default     bool  `json:"default"`
	CreatedUnix int64 `json:"created_unix" example:"1700000000"`
	LastUsed    int64 `json:"last_used_unix" example:"1700000000"`
	QueueLen    int   `json:"queue_len" example:"0"`
}

// SessionsResponse wraps GET /sessions.
type SessionsResponse struct {
	Sessions []SessionInfo `json:"sessions"`
}

// StatsResponse is the performance summary of a session.
type StatsResponse struct {
	Session          string  `json:"session"`
	StartMs          float64 `json:"t_start_ms"`
	LoadMs           float64 `json:"t_load_ms"`
	PromptEvalMs     float64 `json:"t_p_eval_ms"`
	EvalMs           float64 `json:"t_eval_ms"`
	PromptEvalTokens int     `json:"n_p_eval"`
	EvalTokens       int     `json:"n_eval"`
	ReusedTokens     int     `json:"n_reused"`
	ContextSize      int     `json:"n_ctx"`
	// example: 410.5
	PromptTokensPerSecond float64 `json:"prompt_tokens_per_second" example:"410.5"`
	// example: 38.2
	TokensPerSecond float64 `json:"tokens_per_second" example:"38.2"`
}

// SnapshotRequest names a stored snapshot.
type SnapshotRequest struct {
	// example: chat-42
	Key string `json:"key" example:"chat-42"`
}

// SnapshotInfo describes a stored snapshot.
type SnapshotInfo struct {
	Key         string `json:"key"`
	Model       string `json:"model"`
	RawBytes    int    `json:"raw_bytes"`
	DiskBytes   int64  `json:"disk_bytes"`
	CreatedUnix int64  `json:"created_unix"`
}

// SnapshotsResponse wraps GET /snapshots.
type SnapshotsResponse struct {
	Snapshots []SnapshotInfo `json:"snapshots"`
}

// SwitchRequest asks the server to load a model in the background.
type SwitchRequest struct {
	// example: tinyllama-q4.gguf
	Model string `json:"model" example:"tinyllama-q4.gguf"`
}

// SwitchResponse is returned by POST /switch.
type SwitchResponse struct {
	// Operation id for log correlation.
	OpID  string `json:"op_id"`
	Model string `json:"model"`
	// example: loading
	State string `json:"state" example:"loading"`
}

// ModelsResponse wraps the list of models returned by GET /models.
type ModelsResponse struct {
	// List of available models.
	Models []Model `json:"models"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
	// Inference error code, when the failure came from a context operation.
	// example: busy
	Kind string `json:"kind,omitempty" example:"busy"`
}

// InstanceStatus summarizes a loaded instance for /status.
type InstanceStatus struct {
	// ID of the model this instance serves.
	// example: tinyllama-q4.gguf
	ModelID string `json:"model_id" example:"tinyllama-q4.gguf"`
	// example: llama
	Backend string `json:"backend" example:"llama"`
	// Current lifecycle state of the instance (loading, ready, draining).
	// example: ready
	State string `json:"state" example:"ready"`
	// Last time this instance served a request (unix seconds).
	// example: 1700000000
	LastUsed int64 `json:"last_used_unix" example:"1700000000"`
	// Estimated VRAM usage in MB.
	// example: 1200
	EstVRAMMB int `json:"est_vram_mb" example:"1200"`
	// Open sessions on this instance, including the default session.
	// example: 2
	Sessions int `json:"sessions" example:"2"`
	// Requests waiting across sessions.
	// example: 0
	QueueLen int `json:"queue_len" example:"0"`
	// Sessions currently generating.
	// example: 1
	Inflight int `json:"inflight" example:"1"`
	// Maximum queued requests per session before backpressure triggers.
	// example: 8
	MaxQueueDepth int `json:"max_queue_depth" example:"8"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Loaded/managed instances.
	Instances []InstanceStatus `json:"instances"`
	// VRAM budget in MB across all instances.
	// example: 8192
	BudgetMB int `json:"budget_mb" example:"8192"`
	// Estimated used VRAM in MB.
	// example: 2048
	UsedMB int `json:"used_est_mb" example:"2048"`
	// Reserved VRAM margin in MB.
	// example: 512
	MarginMB int `json:"margin_mb" example:"512"`
	// Optional top-level error message.
	Error string `json:"error,omitempty"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
	// Total number of evictions performed to free VRAM.
	// example: 5
	EvictionsTotal uint64 `json:"evictions_total" example:"5"`
	// Total number of model loads.
	// example: 12
	LoadsTotal uint64 `json:"loads_total" example:"12"`
	// Overall manager state (e.g., loading, ready, error).
	// example: ready
	State string `json:"state" example:"ready"`
	// Number of instances currently warming up (loading).
	// example: 1
	WarmupsInProgress int `json:"warmups_in_progress" example:"1"`
	// Number of instances currently draining (unload in progress).
	// example: 1
	DrainingCount int `json:"draining_count" example:"1"`
	// Open sessions across all instances.
	// example: 3
	SessionsOpen int `json:"sessions_open" example:"3"`
}

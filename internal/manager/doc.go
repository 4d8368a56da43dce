// Package manager coordinates loaded models, their inference sessions and
// request admission. It is structured into small files by concern:
//
//   - manager.go: core Manager type, constructor, simple getters.
//   - config.go: ManagerConfig and package defaults; NewWithConfig applies defaults.
//   - types.go: state types (State, ModelInfo, Instance, Session).
//   - errors.go: error types and helpers (IsTooBusy, IsModelNotFound, IsSessionNotFound).
//   - instance_ensure.go: EnsureInstance loads a model through its backend.
//   - sessions.go: session table with idle expiry; default session per model.
//   - queue_admission.go: per-session queueing and generation admission.
//   - inference.go: Infer streams NDJSON lines from a session.
//   - session_ops.go: cancel, reset, stats, raw state and snapshots.
//   - evict.go, unload.go, close.go: VRAM budget eviction and teardown.
//   - status_report.go, sanity.go, ops.go: Status, SanityCheck, Switch.
//
// Backends register with the llm package; build with -tags=llama to link
// llama.cpp. Without it only the toy backend can serve requests and GGUF
// models fail with a dependency-unavailable error.
package manager

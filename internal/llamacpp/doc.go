// Package llamacpp binds llama.cpp through cgo and registers the "llama"
// backend with llm.DefaultRegistry.
//
// The binding is only compiled with the 'llama' build tag; it links against
// libllama from ./bin (see cgo.go). Without the tag a stub registers the same
// backend name and fails with llm.ErrBackendUnavailable, keeping default
// builds CGO-free.
package llamacpp

// Backend is the registry key for this provider.
const Backend = "llama"

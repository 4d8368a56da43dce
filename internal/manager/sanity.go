package manager

import (
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"llamactx/internal/inference"
	"llamactx/internal/llamacpp"
	"llamactx/internal/llm"
)

// SanityReport describes the runtime: compiled backends and host resources.
type SanityReport struct {
	NativeBackend  bool     `json:"native_backend"`
	Backends       []string `json:"backends"`
	LogicalCPUs    int      `json:"logical_cpus"`
	MemTotalBytes  uint64   `json:"mem_total_bytes"`
	MemAvailBytes  uint64   `json:"mem_available_bytes"`
	DefaultThreads int      `json:"default_threads"`
	Models         int      `json:"models"`
	Error          string   `json:"error,omitempty"`
}

// SanityCheck validates that the default model is loadable in this build
// and reports host capacity. It does not mutate state.
func (m *Manager) SanityCheck() SanityReport {
	r := SanityReport{
		NativeBackend:  llamacpp.Built,
		Backends:       llm.DefaultRegistry.Backends(),
		DefaultThreads: inference.DefaultThreads(),
		Models:         len(m.ListModels()),
	}
	if n, err := cpu.Counts(true); err == nil {
		r.LogicalCPUs = n
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		r.MemTotalBytes = vm.Total
		r.MemAvailBytes = vm.Available
	}
	if m.defaultModel != "" {
		mdl, ok := m.getModelByID(m.defaultModel)
		switch {
		case !ok:
			r.Error = "default model not found: " + m.defaultModel
		case (mdl.Backend == "" || mdl.Backend == llamacpp.Backend) && !llamacpp.Built:
			r.Error = "default model needs the llama backend; rebuild with -tags=llama"
		}
	}
	return r
}

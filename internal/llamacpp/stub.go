//go:build !llama

package llamacpp

import (
	"fmt"

	"llamactx/internal/llm"
)

// Built reports whether the native binding is compiled in.
const Built = false

func init() { llm.Register(Backend, Load) }

// Load always fails in builds without the 'llama' tag.
func Load(path string, _ llm.ModelOptions) (llm.Model, error) {
	return nil, fmt.Errorf("%w: llama (rebuild with -tags llama to load %s)", llm.ErrBackendUnavailable, path)
}

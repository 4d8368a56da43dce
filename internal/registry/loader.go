package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"llamactx/internal/common/fsutil"
	"llamactx/pkg/types"
)

// Backend names by file extension.
var backends = map[string]string{
	".gguf": "llama",
	".toy":  "toy",
}

var quantRE = regexp.MustCompile(`(?i)[._-]((?:IQ|Q)[0-9](?:_[0-9A-Z]+)*|F16|F32|BF16)(?:[._-]|$)`)

// Scanner discovers model files in a directory.
type Scanner struct {
	// Extensions maps a lower-case file extension to its backend.
	Extensions map[string]string
}

// NewScanner returns a scanner for GGUF and toy corpus files.
func NewScanner() *Scanner {
	ext := make(map[string]string, len(backends))
	for k, v := range backends {
		ext[k] = v
	}
	return &Scanner{Extensions: ext}
}

// Scan lists model files in dir, sorted by ID. ID is the full filename;
// Path is the absolute file path.
func (s *Scanner) Scan(dir string) ([]types.Model, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var models []types.Model
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		ext := strings.ToLower(filepath.Ext(name))
		backend, ok := s.Extensions[ext]
		if !ok {
			continue
		}
		m := types.Model{
			ID:      name,
			Name:    strings.TrimSuffix(name, filepath.Ext(name)),
			Path:    filepath.Join(abs, name),
			Backend: backend,
			Quant:   parseQuant(name),
			Family:  parseFamily(name),
		}
		if fi, err := e.Info(); err == nil {
			m.SizeBytes = fi.Size()
		}
		models = append(models, m)
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

// LoadDir scans dir with the default scanner.
func LoadDir(dir string) ([]types.Model, error) {
	return NewScanner().Scan(dir)
}

func parseQuant(name string) string {
	if m := quantRE.FindStringSubmatch(name); m != nil {
		return strings.ToUpper(m[1])
	}
	return ""
}

var families = []string{"llama", "mistral", "mixtral", "phi", "qwen", "gemma", "falcon", "tinyllama"}

func parseFamily(name string) string {
	lower := strings.ToLower(name)
	best := ""
	for _, f := range families {
		if strings.Contains(lower, f) && len(f) > len(best) {
			best = f
		}
	}
	return best
}

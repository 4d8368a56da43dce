package inference

import (
	"fmt"

	"llamactx/internal/common/fsutil"
)

// SaveState serializes the decode state. It returns nil when the Context is
// not ready, a generation is running, or the native state is empty.
func (c *Context) SaveState() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running.Load() {
		return nil
	}
	return c.saveLocked()
}

func (c *Context) saveLocked() []byte {
	if !c.readyLocked() {
		return nil
	}
	size := c.dec.StateSize()
	if size <= 0 {
		return nil
	}
	buf := make([]byte, size)
	n := c.dec.SaveState(buf)
	if n <= 0 {
		return nil
	}
	return buf[:n]
}

// LoadState restores a blob produced by SaveState and resets the sampler
// history. An empty blob leaves the state untouched.
func (c *Context) LoadState(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running.Load() {
		return ErrBusy
	}
	return c.loadLocked(data)
}

func (c *Context) loadLocked(data []byte) error {
	if !c.readyLocked() {
		return ErrNotReady
	}
	if len(data) == 0 {
		return newError(CodeInvalidArgument, "state data is empty", nil)
	}
	if n := c.dec.LoadState(data); n != len(data) {
		return newError(CodeCorrupt, fmt.Sprintf("consumed %d of %d state bytes", n, len(data)), nil)
	}
	c.pipe.Reset()
	return nil
}

// SaveStateFile writes the serialized state to path.
func (c *Context) SaveStateFile(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running.Load() {
		return ErrBusy
	}
	if !c.readyLocked() {
		return ErrNotReady
	}
	data := c.saveLocked()
	if len(data) == 0 {
		return newError(CodeIOError, "write state file", fmt.Errorf("decode state is empty"))
	}
	if err := fsutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return newError(CodeIOError, "write state file", err)
	}
	return nil
}

// LoadStateFile restores state from a file written by SaveStateFile.
func (c *Context) LoadStateFile(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running.Load() {
		return ErrBusy
	}
	if !c.readyLocked() {
		return ErrNotReady
	}
	data, err := fsutil.ReadFile(path)
	if err != nil {
		return newError(CodeIOError, "read state file", err)
	}
	return c.loadLocked(data)
}

//go:build linux

package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"chiko/internal/judge/sandbox/spec"
)

// taskCgroup is a cgroup v2 directory owned by one invocation.
type taskCgroup struct {
	path string
	dir  *os.File
}

func createTaskCgroup(root, name string) (*taskCgroup, error) {
	if root == "" {
		return nil, fmt.Errorf("cgroup root is required")
	}
	if name == "" || name != filepath.Base(name) {
		return nil, fmt.Errorf("invalid cgroup name %q", name)
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create cgroup root: %w", err)
	}
	path := filepath.Join(root, name)
	if err := os.Mkdir(path, 0755); err != nil {
		return nil, fmt.Errorf("create cgroup %s: %w", name, err)
	}
	dir, err := os.Open(path)
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("open cgroup %s: %w", name, err)
	}
	return &taskCgroup{path: path, dir: dir}, nil
}

func (c *taskCgroup) fd() int {
	return int(c.dir.Fd())
}

func (c *taskCgroup) applyLimits(limits spec.ResourceLimit) error {
	if limits.Processes > 0 {
		if err := c.write("pids.max", strconv.FormatInt(limits.Processes, 10)); err != nil {
			return err
		}
	}
	if limits.MemoryBytes > 0 {
		if err := c.write("memory.max", strconv.FormatInt(limits.MemoryBytes, 10)); err != nil {
			return err
		}
		// Absent without swap accounting.
		_ = c.write("memory.swap.max", "0")
	}
	return nil
}

func (c *taskCgroup) kill() error {
	killPath := filepath.Join(c.path, "cgroup.kill")
	if _, err := os.Stat(killPath); err != nil {
		return err
	}
	return os.WriteFile(killPath, []byte("1"), 0600)
}

func (c *taskCgroup) oomKilled() bool {
	val, ok := c.keyedValue("memory.events", "oom_kill")
	return ok && val > 0
}

func (c *taskCgroup) memoryPeak() int64 {
	val, err := c.readInt("memory.peak")
	if err != nil {
		return 0
	}
	return val
}

func (c *taskCgroup) cpuTimeNs() (int64, bool) {
	usec, ok := c.keyedValue("cpu.stat", "usage_usec")
	if !ok {
		return 0, false
	}
	return usec * 1000, true
}

// destroy kills any stragglers and removes the group.
func (c *taskCgroup) destroy() error {
	_ = c.kill()
	_ = c.dir.Close()
	err := os.Remove(c.path)
	if errors.Is(err, syscall.EBUSY) {
		// Killed tasks may still be exiting.
		_ = c.kill()
		err = os.Remove(c.path)
	}
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (c *taskCgroup) keyedValue(file, key string) (int64, bool) {
	data, err := os.ReadFile(filepath.Join(c.path, file))
	if err != nil {
		return 0, false
	}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 || fields[0] != key {
			continue
		}
		val, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return 0, false
		}
		return val, true
	}
	return 0, false
}

func (c *taskCgroup) readInt(name string) (int64, error) {
	data, err := os.ReadFile(filepath.Join(c.path, name))
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
}

func (c *taskCgroup) write(name, value string) error {
	if err := os.WriteFile(filepath.Join(c.path, name), []byte(value), 0640); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

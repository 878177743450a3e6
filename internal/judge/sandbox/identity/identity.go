// Package identity generates per-task identities.
package identity

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const idBytes = 16

// TaskID is an opaque 128-bit random token, hex encoded.
type TaskID string

// Generator produces task identities.
type Generator func() (TaskID, error)

// New draws a fresh identity from the system CSPRNG.
func New() (TaskID, error) {
	var buf [idBytes]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", fmt.Errorf("read random task id: %w", err)
	}
	return TaskID(hex.EncodeToString(buf[:])), nil
}

func (id TaskID) String() string { return string(id) }

// Hostname returns the hostname presented inside the sandbox.
func (id TaskID) Hostname(prefix, role string) string {
	if prefix == "" {
		return fmt.Sprintf("%s-%s", role, id)
	}
	return fmt.Sprintf("%s-%s-%s", prefix, role, id)
}

// CgroupName returns the resource-accounting group name.
func (id TaskID) CgroupName(role string) string {
	return fmt.Sprintf("%s-%s", role, id)
}

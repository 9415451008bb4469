// Package editor owns everything the patch engine deliberately does not:
// which file an operation applies to, whether the caller approved it, and
// the reads/writes against the workspace. The engine in package diff stays
// pure; this layer feeds it strings and persists what comes back.
package editor

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
)

// OperationType is the kind of file operation requested by a patch call.
type OperationType string

const (
	OpCreateFile OperationType = "create_file"
	OpUpdateFile OperationType = "update_file"
	OpDeleteFile OperationType = "delete_file"
)

// Operation is one requested file edit: the kind, the target path, and the
// V4A diff text (empty for deletes).
type Operation struct {
	Type OperationType `json:"type"`
	Path string        `json:"path"`
	Diff string        `json:"diff,omitempty"`
}

const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Result is the structured outcome of one operation.
type Result struct {
	Status string `json:"status"`
	Output string `json:"output"`
}

func completed(output string) Result {
	return Result{Status: StatusCompleted, Output: output}
}

// Editor applies patch operations to some backing store. Implementations
// must not silently discard engine failures: a diff that does not apply is
// reported to the caller, never papered over.
type Editor interface {
	CreateFile(op Operation) (Result, error)
	UpdateFile(op Operation) (Result, error)
	DeleteFile(op Operation) (Result, error)
}

// ErrRejected is returned when an operation fails approval.
var ErrRejected = errors.New("apply patch operation rejected")

// ApprovalTracker remembers operations the user has already approved, keyed
// by a fingerprint of the operation's type, display path, and diff text, so
// an identical retry does not prompt twice.
type ApprovalTracker struct {
	mu       sync.Mutex
	approved map[string]struct{}
}

func NewApprovalTracker() *ApprovalTracker {
	return &ApprovalTracker{approved: make(map[string]struct{})}
}

// Fingerprint derives the stable identity of an operation at a path.
func (t *ApprovalTracker) Fingerprint(op Operation, displayPath string) string {
	h := sha256.New()
	h.Write([]byte(op.Type))
	h.Write([]byte{0})
	h.Write([]byte(displayPath))
	h.Write([]byte{0})
	h.Write([]byte(op.Diff))
	return hex.EncodeToString(h.Sum(nil))
}

func (t *ApprovalTracker) Remember(fingerprint string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.approved[fingerprint] = struct{}{}
}

func (t *ApprovalTracker) IsApproved(fingerprint string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.approved[fingerprint]
	return ok
}

package editor

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/yargevad/filepathx"

	"github.com/stumble/mend/diff"
)

// ApprovalFunc decides whether an unapproved operation may proceed.
// displayPath is the workspace-relative path in slash form.
type ApprovalFunc func(op Operation, displayPath string) bool

// Workspace is a filesystem Editor rooted at a single directory. Every
// operation path resolves inside the root; anything escaping it is refused
// before any I/O happens.
type Workspace struct {
	root        string
	approvals   *ApprovalTracker
	autoApprove bool
	approve     ApprovalFunc
}

type WorkspaceOption func(*Workspace)

// WithAutoApprove skips approval prompts for every operation.
func WithAutoApprove() WorkspaceOption {
	return func(w *Workspace) { w.autoApprove = true }
}

// WithApprovalFunc installs the callback consulted for not-yet-approved
// operations. Without one, unapproved operations are rejected.
func WithApprovalFunc(f ApprovalFunc) WorkspaceOption {
	return func(w *Workspace) { w.approve = f }
}

// NewWorkspace creates a workspace editor rooted at dir, which must exist.
// MEND_AUTO_APPROVE=1 in the environment enables auto-approval, matching
// the option of the same name.
func NewWorkspace(dir string, opts ...WorkspaceOption) (*Workspace, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("editor: resolve workspace root %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("editor: workspace root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("editor: workspace root %q is not a directory", abs)
	}
	// Pin the root to its real location so containment checks compare
	// symlink-free paths on both sides.
	abs, err = filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("editor: resolve workspace root %q: %w", dir, err)
	}

	w := &Workspace{
		root:        abs,
		approvals:   NewApprovalTracker(),
		autoApprove: os.Getenv("MEND_AUTO_APPROVE") == "1",
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Root returns the absolute workspace root.
func (w *Workspace) Root() string { return w.root }

// CreateFile synthesizes a new file from a create-mode diff, making parent
// directories as needed.
func (w *Workspace) CreateFile(op Operation) (Result, error) {
	display, target, err := w.resolve(op.Path)
	if err != nil {
		return Result{}, err
	}
	if err := w.requireApproval(op, display); err != nil {
		return Result{}, err
	}
	content, err := diff.Apply("", op.Diff, diff.ModeCreate)
	if err != nil {
		return Result{}, err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return Result{}, fmt.Errorf("editor: create parent for %s: %w", display, err)
	}
	if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
		return Result{}, fmt.Errorf("editor: write %s: %w", display, err)
	}
	log.Debug().Msgf("editor: created %s (%d bytes)", display, len(content))
	return completed(fmt.Sprintf("Created %s", display)), nil
}

// UpdateFile patches an existing file in place with an update-mode diff.
func (w *Workspace) UpdateFile(op Operation) (Result, error) {
	display, target, err := w.resolve(op.Path)
	if err != nil {
		return Result{}, err
	}
	if err := w.requireApproval(op, display); err != nil {
		return Result{}, err
	}
	original, err := os.ReadFile(target)
	if err != nil {
		return Result{}, fmt.Errorf("editor: read %s: %w", display, err)
	}
	patched, err := diff.Apply(string(original), op.Diff, diff.ModeUpdate)
	if err != nil {
		return Result{}, fmt.Errorf("editor: patch %s: %w", display, err)
	}
	if err := os.WriteFile(target, []byte(patched), 0o644); err != nil {
		return Result{}, fmt.Errorf("editor: write %s: %w", display, err)
	}
	log.Debug().Msgf("editor: updated %s (%d -> %d bytes)", display, len(original), len(patched))
	return completed(fmt.Sprintf("Updated %s", display)), nil
}

// DeleteFile removes a file. A target that is already gone is not an error.
func (w *Workspace) DeleteFile(op Operation) (Result, error) {
	display, target, err := w.resolve(op.Path)
	if err != nil {
		return Result{}, err
	}
	if err := w.requireApproval(op, display); err != nil {
		return Result{}, err
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return Result{}, fmt.Errorf("editor: delete %s: %w", display, err)
	}
	log.Debug().Msgf("editor: deleted %s", display)
	return completed(fmt.Sprintf("Deleted %s", display)), nil
}

// Snapshot reads workspace files matched by the given **-style glob
// patterns (relative to the root) into a path -> content map, keyed by
// slash-form relative paths. With no patterns it snapshots everything.
func (w *Workspace) Snapshot(globs ...string) (map[string]string, error) {
	if len(globs) == 0 {
		globs = []string{"**/*"}
	}
	files := make(map[string]string)
	for _, pattern := range globs {
		matches, err := filepathx.Glob(filepath.Join(w.root, pattern))
		if err != nil {
			return nil, fmt.Errorf("editor: glob %q: %w", pattern, err)
		}
		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil {
				return nil, fmt.Errorf("editor: stat %s: %w", match, err)
			}
			if info.IsDir() {
				continue
			}
			content, err := os.ReadFile(match)
			if err != nil {
				return nil, fmt.Errorf("editor: read %s: %w", match, err)
			}
			rel, err := filepath.Rel(w.root, match)
			if err != nil {
				return nil, fmt.Errorf("editor: relativize %s: %w", match, err)
			}
			files[filepath.ToSlash(rel)] = string(content)
		}
	}
	return files, nil
}

// resolve turns an operation path into its display (workspace-relative,
// slash form) and absolute target, refusing anything outside the root.
// Symlinks are followed before the containment check, so a link inside the
// workspace pointing elsewhere cannot smuggle an operation past the jail.
func (w *Workspace) resolve(path string) (display string, target string, err error) {
	if strings.TrimSpace(path) == "" {
		return "", "", fmt.Errorf("editor: operation path is empty")
	}
	candidate := path
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(w.root, candidate)
	}
	candidate = filepath.Clean(candidate)

	target, err = resolveExisting(candidate)
	if err != nil {
		return "", "", fmt.Errorf("editor: resolve %s: %w", path, err)
	}

	rel, err := filepath.Rel(w.root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", "", fmt.Errorf("editor: operation outside workspace: %s", path)
	}
	return filepath.ToSlash(rel), target, nil
}

// resolveExisting follows symlinks on the deepest existing ancestor of path
// and rejoins the not-yet-created remainder, so containment is judged on
// the path an operation would actually touch.
func resolveExisting(path string) (string, error) {
	suffix := ""
	for cur := path; ; {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			return filepath.Join(resolved, suffix), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", err
		}
		suffix = filepath.Join(filepath.Base(cur), suffix)
		cur = parent
	}
}

func (w *Workspace) requireApproval(op Operation, display string) error {
	fingerprint := w.approvals.Fingerprint(op, display)
	if w.autoApprove || w.approvals.IsApproved(fingerprint) {
		w.approvals.Remember(fingerprint)
		return nil
	}
	if w.approve != nil && w.approve(op, display) {
		w.approvals.Remember(fingerprint)
		return nil
	}
	log.Info().Msgf("editor: rejected %s on %s", op.Type, display)
	return fmt.Errorf("%w: %s %s", ErrRejected, op.Type, display)
}

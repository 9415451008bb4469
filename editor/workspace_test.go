package editor

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/stumble/mend/diff"
)

type WorkspaceSuite struct {
	suite.Suite
}

func TestWorkspaceSuite(t *testing.T) { suite.Run(t, new(WorkspaceSuite)) }

func (s *WorkspaceSuite) newWorkspace(opts ...WorkspaceOption) *Workspace {
	w, err := NewWorkspace(s.T().TempDir(), opts...)
	s.Require().NoError(err)
	return w
}

func (s *WorkspaceSuite) TestCreateUpdateDeleteRoundTrip() {
	w := s.newWorkspace(WithAutoApprove())

	res, err := w.CreateFile(Operation{
		Type: OpCreateFile,
		Path: "notes/tasks.md",
		Diff: "+- [ ] milk\n+- [ ] bread",
	})
	s.Require().NoError(err)
	s.Equal(StatusCompleted, res.Status)
	s.Equal("Created notes/tasks.md", res.Output)

	target := filepath.Join(w.Root(), "notes", "tasks.md")
	content, err := os.ReadFile(target)
	s.Require().NoError(err)
	s.Equal("- [ ] milk\n- [ ] bread\n", string(content))

	res, err = w.UpdateFile(Operation{
		Type: OpUpdateFile,
		Path: "notes/tasks.md",
		Diff: "@@\n-- [ ] bread\n+- [x] bread",
	})
	s.Require().NoError(err)
	s.Equal("Updated notes/tasks.md", res.Output)

	content, err = os.ReadFile(target)
	s.Require().NoError(err)
	s.Equal("- [ ] milk\n- [x] bread\n", string(content))

	res, err = w.DeleteFile(Operation{Type: OpDeleteFile, Path: "notes/tasks.md"})
	s.Require().NoError(err)
	s.Equal("Deleted notes/tasks.md", res.Output)
	_, err = os.Stat(target)
	s.True(os.IsNotExist(err))

	// Deleting again is not an error.
	_, err = w.DeleteFile(Operation{Type: OpDeleteFile, Path: "notes/tasks.md"})
	s.NoError(err)
}

func (s *WorkspaceSuite) TestPathEscapesAreRefused() {
	w := s.newWorkspace(WithAutoApprove())

	for _, path := range []string{"../evil.txt", "a/../../evil.txt", ""} {
		_, err := w.CreateFile(Operation{Type: OpCreateFile, Path: path, Diff: "+x"})
		s.Require().Error(err, "path %q", path)
	}
}

func (s *WorkspaceSuite) TestSymlinkEscapeIsRefused() {
	w := s.newWorkspace(WithAutoApprove())
	outside := s.T().TempDir()
	s.Require().NoError(os.Symlink(outside, filepath.Join(w.Root(), "link")))

	_, err := w.CreateFile(Operation{Type: OpCreateFile, Path: "link/evil.txt", Diff: "+pwned"})
	s.Require().Error(err)
	s.Contains(err.Error(), "outside workspace")
	_, statErr := os.Stat(filepath.Join(outside, "evil.txt"))
	s.True(os.IsNotExist(statErr), "escape must not create anything outside the root")

	s.Require().NoError(os.WriteFile(filepath.Join(outside, "data.txt"), []byte("x\n"), 0o644))
	_, err = w.UpdateFile(Operation{Type: OpUpdateFile, Path: "link/data.txt", Diff: "@@\n-x\n+y"})
	s.Require().Error(err)
	_, err = w.DeleteFile(Operation{Type: OpDeleteFile, Path: "link/data.txt"})
	s.Require().Error(err)

	content, readErr := os.ReadFile(filepath.Join(outside, "data.txt"))
	s.Require().NoError(readErr)
	s.Equal("x\n", string(content))
}

func (s *WorkspaceSuite) TestSymlinkedRootStillWorks() {
	real := s.T().TempDir()
	link := filepath.Join(s.T().TempDir(), "ws")
	s.Require().NoError(os.Symlink(real, link))

	w, err := NewWorkspace(link, WithAutoApprove())
	s.Require().NoError(err)

	_, err = w.CreateFile(Operation{Type: OpCreateFile, Path: "f.txt", Diff: "+x"})
	s.Require().NoError(err)
	content, err := os.ReadFile(filepath.Join(real, "f.txt"))
	s.Require().NoError(err)
	s.Equal("x\n", string(content))
}

func (s *WorkspaceSuite) TestUnapprovedOperationLeavesDiskUntouched() {
	w := s.newWorkspace()

	_, err := w.CreateFile(Operation{Type: OpCreateFile, Path: "f.txt", Diff: "+x"})
	s.Require().Error(err)
	s.True(errors.Is(err, ErrRejected))

	_, statErr := os.Stat(filepath.Join(w.Root(), "f.txt"))
	s.True(os.IsNotExist(statErr))
}

func (s *WorkspaceSuite) TestApprovalIsRememberedByFingerprint() {
	calls := 0
	w := s.newWorkspace(WithApprovalFunc(func(op Operation, displayPath string) bool {
		calls++
		s.Equal("f.txt", displayPath)
		return true
	}))

	op := Operation{Type: OpCreateFile, Path: "f.txt", Diff: "+x"}
	_, err := w.CreateFile(op)
	s.Require().NoError(err)
	_, err = w.CreateFile(op)
	s.Require().NoError(err)
	s.Equal(1, calls, "identical operation must not prompt twice")

	// A different diff is a different fingerprint.
	_, err = w.UpdateFile(Operation{Type: OpUpdateFile, Path: "f.txt", Diff: "@@\n-x\n+y"})
	s.Require().NoError(err)
	s.Equal(2, calls)
}

func (s *WorkspaceSuite) TestUpdateSurfacesResolutionFailure() {
	w := s.newWorkspace(WithAutoApprove())
	target := filepath.Join(w.Root(), "f.txt")
	s.Require().NoError(os.WriteFile(target, []byte("one\ntwo\n"), 0o644))

	_, err := w.UpdateFile(Operation{
		Type: OpUpdateFile,
		Path: "f.txt",
		Diff: "@@\n x\n-two\n+2",
	})
	s.Require().Error(err)
	var re *diff.ResolutionError
	s.True(errors.As(err, &re))

	content, readErr := os.ReadFile(target)
	s.Require().NoError(readErr)
	s.Equal("one\ntwo\n", string(content), "failed patch must not modify the file")
}

func (s *WorkspaceSuite) TestUpdateMissingFileFails() {
	w := s.newWorkspace(WithAutoApprove())
	_, err := w.UpdateFile(Operation{Type: OpUpdateFile, Path: "absent.txt", Diff: "@@\n+x"})
	s.Require().Error(err)
}

func (s *WorkspaceSuite) TestSnapshot() {
	w := s.newWorkspace(WithAutoApprove())
	s.Require().NoError(os.MkdirAll(filepath.Join(w.Root(), "pkg"), 0o755))
	s.Require().NoError(os.WriteFile(filepath.Join(w.Root(), "top.txt"), []byte("top"), 0o644))
	s.Require().NoError(os.WriteFile(filepath.Join(w.Root(), "pkg", "a.go"), []byte("package pkg"), 0o644))
	s.Require().NoError(os.WriteFile(filepath.Join(w.Root(), "pkg", "b.md"), []byte("doc"), 0o644))

	all, err := w.Snapshot()
	s.Require().NoError(err)
	s.Equal(map[string]string{
		"top.txt":  "top",
		"pkg/a.go": "package pkg",
		"pkg/b.md": "doc",
	}, all)

	goOnly, err := w.Snapshot("**/*.go")
	s.Require().NoError(err)
	s.Equal(map[string]string{"pkg/a.go": "package pkg"}, goOnly)
}

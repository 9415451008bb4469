package patch

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/stumble/mend/editor"
)

type ApplyPatchToolSuite struct {
	suite.Suite
}

func TestApplyPatchToolSuite(t *testing.T) { suite.Run(t, new(ApplyPatchToolSuite)) }

func (s *ApplyPatchToolSuite) newTool() (*ApplyPatchTool, *editor.Workspace) {
	w, err := editor.NewWorkspace(s.T().TempDir(), editor.WithAutoApprove())
	s.Require().NoError(err)
	return &ApplyPatchTool{Editor: w}, w
}

func (s *ApplyPatchToolSuite) run(t *ApplyPatchTool, op editor.Operation) editor.Result {
	args, err := json.Marshal(op)
	s.Require().NoError(err)
	out, err := t.InvokableRun(context.TODO(), string(args))
	s.Require().NoError(err)
	var res editor.Result
	s.Require().NoError(json.Unmarshal([]byte(out), &res))
	return res
}

func (s *ApplyPatchToolSuite) TestCreateThenUpdate() {
	tool, w := s.newTool()

	res := s.run(tool, editor.Operation{
		Type: editor.OpCreateFile,
		Path: "tasks.md",
		Diff: "+- [ ] milk\n+- [ ] bread",
	})
	s.Equal(editor.StatusCompleted, res.Status)
	s.Equal("Created tasks.md", res.Output)

	res = s.run(tool, editor.Operation{
		Type: editor.OpUpdateFile,
		Path: "tasks.md",
		Diff: "@@\n-- [ ] milk\n+- [x] milk",
	})
	s.Equal(editor.StatusCompleted, res.Status)
	s.Equal("Updated tasks.md", res.Output)

	content, err := os.ReadFile(filepath.Join(w.Root(), "tasks.md"))
	s.Require().NoError(err)
	s.Equal("- [x] milk\n- [ ] bread\n", string(content))
}

func (s *ApplyPatchToolSuite) TestResolutionFailureSurfacedToModel() {
	tool, w := s.newTool()
	s.Require().NoError(os.WriteFile(filepath.Join(w.Root(), "f.txt"), []byte("one\ntwo\n"), 0o644))

	res := s.run(tool, editor.Operation{
		Type: editor.OpUpdateFile,
		Path: "f.txt",
		Diff: "@@\n x\n-two\n+2",
	})
	s.Equal(editor.StatusFailed, res.Status)
	s.Contains(res.Output, "context", "resolution failure must reach the model verbatim")
}

func (s *ApplyPatchToolSuite) TestBadArgumentsReported() {
	tool, _ := s.newTool()

	out, err := tool.InvokableRun(context.TODO(), "not json")
	s.Require().NoError(err)
	s.Contains(out, "failed to parse arguments")

	out, err = tool.InvokableRun(context.TODO(), "")
	s.Require().NoError(err)
	s.Contains(out, "missing arguments")

	out, err = tool.InvokableRun(context.TODO(), `{"type":"rename_file","path":"x"}`)
	s.Require().NoError(err)
	s.Contains(out, "unknown operation type")
}

func (s *ApplyPatchToolSuite) TestUninitializedToolIsFatal() {
	var tool *ApplyPatchTool
	_, err := tool.InvokableRun(context.TODO(), "{}")
	s.Require().Error(err)

	_, err = (&ApplyPatchTool{}).InvokableRun(context.TODO(), "{}")
	s.Require().Error(err)
}

func (s *ApplyPatchToolSuite) TestInfo() {
	tool, _ := s.newTool()
	info, err := tool.Info(context.TODO())
	s.Require().NoError(err)
	s.Equal(ApplyPatchToolName, info.Name)
	s.NotEmpty(ApplyPatchDoc)
}

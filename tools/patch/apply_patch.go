// Package patch exposes the workspace editor as an agent tool.
package patch

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	"github.com/stumble/mend/editor"
)

const (
	// ApplyPatchToolName is the public name exposed to the agent.
	ApplyPatchToolName = "apply_patch"
)

//go:embed apply_patch.md
var ApplyPatchDoc string

// ApplyPatchTool routes create/update/delete file operations to an Editor.
//
// The tool expects JSON arguments mirroring editor.Operation:
//   - type: one of create_file, update_file, delete_file
//   - path: target file path, relative to the workspace
//   - diff: V4A diff text (omitted for delete_file)
//
// Engine failures are recoverable from the model's point of view: the error
// text (including which context block did not resolve) is returned as the
// tool output so the model can regenerate the diff against fresh content.
type ApplyPatchTool struct {
	Editor editor.Editor
}

// Info implements the tool metadata for exposure to the agent runtime.
func (t *ApplyPatchTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: ApplyPatchToolName,
		Desc: "Create, update, or delete a workspace file by applying a V4A context diff. " +
			"Update diffs anchor on surrounding context lines, never on line numbers.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"type": {
				Type:     schema.String,
				Required: true,
				Desc:     "Operation kind: create_file, update_file, or delete_file.",
			},
			"path": {
				Type:     schema.String,
				Required: true,
				Desc:     "Workspace-relative path of the target file.",
			},
			"diff": {
				Type: schema.String,
				Desc: "V4A diff text. Required for create_file and update_file.",
			},
		}),
	}, nil
}

// InvokableRun dispatches the requested operation to the editor. It returns
// a non-nil error only for unrecoverable setup problems; everything else,
// including patch resolution failures, comes back as the tool output.
func (t *ApplyPatchTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	if t == nil || t.Editor == nil {
		// fatal
		return "", errors.New("apply_patch: tool not initialized with an editor")
	}
	if strings.TrimSpace(argumentsInJSON) == "" {
		return "apply_patch: missing arguments, empty string", nil
	}

	var op editor.Operation
	if err := json.Unmarshal([]byte(argumentsInJSON), &op); err != nil {
		return fmt.Sprintf("apply_patch: failed to parse arguments: %v", err), nil
	}
	log.Debug().Msgf("apply_patch: %s %s", op.Type, op.Path)

	var res editor.Result
	var err error
	switch op.Type {
	case editor.OpCreateFile:
		res, err = t.Editor.CreateFile(op)
	case editor.OpUpdateFile:
		res, err = t.Editor.UpdateFile(op)
	case editor.OpDeleteFile:
		res, err = t.Editor.DeleteFile(op)
	default:
		return fmt.Sprintf("apply_patch: unknown operation type: %q", op.Type), nil
	}
	if err != nil {
		log.Info().Msgf("apply_patch: %s %s failed: %v", op.Type, op.Path, err)
		failed := editor.Result{Status: editor.StatusFailed, Output: err.Error()}
		return encodeResult(failed), nil
	}
	return encodeResult(res), nil
}

func encodeResult(res editor.Result) string {
	encoded, err := json.Marshal(res)
	if err != nil {
		// Result only holds strings; this cannot realistically fail.
		return fmt.Sprintf(`{"status":%q,"output":"encode error"}`, res.Status)
	}
	return string(encoded)
}

package mend

import (
	"context"
	"sort"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	toolpatch "github.com/stumble/mend/tools/patch"
)

func buildMessages(ctx context.Context, instruction string, files map[string]string) ([]*schema.Message, error) {
	sys := `You are Mend, a careful file-editing assistant. You change workspace files only through the {{ patch_tool }} tool; you never pretend to have edited anything without calling it.

Rules:
1. Generate update diffs strictly against the file contents shown between <BEGIN_FILES> and <END_FILES>.
2. One file per {{ patch_tool }} call. If a patch fails, re-read the reported reason and regenerate the diff instead of retrying it verbatim.
3. When the instruction is satisfied, answer with a short summary of what changed.

Patch format reference:
{{ patch_format }}
`

	usr := `{{ files_block }}
{{ instruction }}`

	template := prompt.FromMessages(schema.Jinja2,
		schema.SystemMessage(sys),
		schema.UserMessage(usr),
	)
	vars := map[string]any{
		"patch_tool":   toolpatch.ApplyPatchToolName,
		"patch_format": toolpatch.ApplyPatchDoc,
		"instruction":  strings.TrimSpace(instruction),
		"files_block":  renderFilesBlock(files),
	}
	return template.Format(ctx, vars)
}

// renderFilesBlock frames the workspace snapshot the way update diffs are
// expected to be generated against it. Paths are sorted for determinism.
func renderFilesBlock(files map[string]string) string {
	if len(files) == 0 {
		return "<BEGIN_FILES>\n(workspace is empty)\n<END_FILES>"
	}
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var sb strings.Builder
	sb.WriteString("<BEGIN_FILES>\n")
	for _, p := range paths {
		sb.WriteString("===== ")
		sb.WriteString(p)
		sb.WriteString("\n")
		sb.WriteString(files[p])
		if !strings.HasSuffix(files[p], "\n") {
			sb.WriteString("\n")
		}
	}
	sb.WriteString("<END_FILES>")
	return sb.String()
}

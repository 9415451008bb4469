// Package mend wires the V4A patch engine into a small file-editing
// assistant: a ReAct agent whose only side-effect channel is the
// apply_patch tool, operating on one rooted workspace directory.
package mend

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	ccb "github.com/cloudwego/eino-ext/callbacks/cozeloop"
	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/coze-dev/cozeloop-go"

	"github.com/stumble/mend/editor"
	toolpatch "github.com/stumble/mend/tools/patch"
)

const defaultMaxSteps = 20

// Assistant runs patch-editing conversations against one workspace.
type Assistant struct {
	Workspace *editor.Workspace
	Model     ModelName
	MaxSteps  int

	workspaceOpts []editor.WorkspaceOption
}

// NewAssistant creates an assistant rooted at workspaceDir.
func NewAssistant(workspaceDir string, opts ...AssistantOption) (*Assistant, error) {
	a := &Assistant{}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	a.applyDefaults()

	workspace, err := editor.NewWorkspace(workspaceDir, a.workspaceOpts...)
	if err != nil {
		return nil, err
	}
	a.Workspace = workspace
	return a, nil
}

// Ask sends one instruction to the agent. The current workspace contents are
// included in the prompt so update diffs are generated against fresh text.
// It returns the agent's final message content.
func (a *Assistant) Ask(ctx context.Context, instruction string) (string, error) {
	if a == nil || a.Workspace == nil {
		return "", errors.New("mend: nil assistant")
	}
	if strings.TrimSpace(instruction) == "" {
		return "", errors.New("mend: instruction cannot be empty")
	}

	_ = godotenv.Load()

	closeTrace, err := setupTracing(ctx)
	if err != nil {
		return "", err
	}
	defer closeTrace()

	chatModel, err := newChatModel(ctx, a.Model)
	if err != nil {
		return "", err
	}

	tools := []tool.BaseTool{
		&toolpatch.ApplyPatchTool{Editor: a.Workspace},
	}
	agt, err := react.NewAgent(ctx, &react.AgentConfig{
		ToolCallingModel: chatModel,
		ToolsConfig: compose.ToolsNodeConfig{
			Tools: tools,
		},
		MaxStep: a.MaxSteps,
	})
	if err != nil {
		return "", fmt.Errorf("mend: create agent: %w", err)
	}

	files, err := a.Workspace.Snapshot()
	if err != nil {
		return "", err
	}
	messages, err := buildMessages(ctx, instruction, files)
	if err != nil {
		return "", err
	}

	log.Debug().Msgf("mend: asking %s with %d workspace files", a.Model, len(files))
	out, err := agt.Generate(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("mend: agent execution failed: %w", err)
	}
	return out.Content, nil
}

func (a *Assistant) applyDefaults() {
	if a.MaxSteps <= 0 {
		a.MaxSteps = defaultMaxSteps
	}
	if a.Model == "" {
		a.Model = ModelGPT4o
	}
}

// setupTracing installs the cozeloop callback when credentials are present
// in the environment; otherwise it is a no-op. The returned func flushes
// and closes the trace client.
func setupTracing(ctx context.Context) (func(), error) {
	token := strings.TrimSpace(os.Getenv("COZELOOP_API_TOKEN"))
	workspaceID := strings.TrimSpace(os.Getenv("COZELOOP_WORKSPACE_ID"))
	if token == "" || workspaceID == "" {
		return func() {}, nil
	}

	client, err := cozeloop.NewClient(
		cozeloop.WithAPIToken(token),
		cozeloop.WithWorkspaceID(workspaceID),
	)
	if err != nil {
		return nil, fmt.Errorf("mend: create cozeloop client: %w", err)
	}
	callbacks.AppendGlobalHandlers(ccb.NewLoopHandler(client))
	return func() { client.Close(ctx) }, nil
}

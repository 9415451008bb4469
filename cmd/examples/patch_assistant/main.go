// Command patch_assistant mirrors the classic apply-patch demo: the agent
// creates tasks.md in a scratch workspace, then is fed the file back and
// asked to update it. Requires OPENAI_API_KEY (or OAI_MY_KEY) in the
// environment or a .env file.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/stumble/mend"
	"github.com/stumble/mend/editor"
)

func main() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	ctx := context.Background()

	workspace, err := os.MkdirTemp("", "patch-assistant-")
	if err != nil {
		log.Fatalf("failed to create workspace: %v", err)
	}
	defer os.RemoveAll(workspace)
	fmt.Printf("[info] workspace root: %s\n", workspace)

	opts := []mend.AssistantOption{mend.WithModel(mend.ModelGPT4o)}
	if os.Getenv("MEND_AUTO_APPROVE") == "1" {
		opts = append(opts, mend.WithAutoApprove())
	} else {
		opts = append(opts, mend.WithApprovalFunc(promptApproval))
	}

	assistant, err := mend.NewAssistant(workspace, opts...)
	if err != nil {
		log.Fatalf("failed to create assistant: %v", err)
	}

	fmt.Println("[run] creating tasks.md")
	answer, err := assistant.Ask(ctx, "Create tasks.md with a shopping checklist of 5 entries.")
	if err != nil {
		log.Fatalf("first run failed: %v", err)
	}
	fmt.Printf("[run] final response #1:\n%s\n\n", answer)
	printFile(workspace, "tasks.md")

	fmt.Println("[run] updating tasks.md")
	answer, err = assistant.Ask(ctx, "Check off the last two items from tasks.md.")
	if err != nil {
		log.Fatalf("second run failed: %v", err)
	}
	fmt.Printf("[run] final response #2:\n%s\n\n", answer)
	printFile(workspace, "tasks.md")
}

func promptApproval(op editor.Operation, displayPath string) bool {
	fmt.Printf("\n[apply_patch] approval required\n- type: %s\n- path: %s\n", op.Type, displayPath)
	if op.Diff != "" {
		preview := op.Diff
		if len(preview) > 400 {
			preview = preview[:400] + "…"
		}
		fmt.Printf("- diff preview:\n%s\n", preview)
	}
	fmt.Print("Proceed? [y/N] ")
	answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func printFile(workspace, name string) {
	content, err := os.ReadFile(filepath.Join(workspace, name))
	if err != nil {
		log.Fatalf("%s was not created by the apply_patch tool: %v", name, err)
	}
	fmt.Printf("[file] %s:\n%s\n", name, content)
}

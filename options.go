package mend

import (
	"github.com/stumble/mend/editor"
)

type AssistantOption func(*Assistant) error

func WithModel(model ModelName) AssistantOption {
	return func(a *Assistant) error {
		a.Model = model
		return nil
	}
}

func WithMaxSteps(maxSteps int) AssistantOption {
	return func(a *Assistant) error {
		a.MaxSteps = maxSteps
		return nil
	}
}

// WithAutoApprove lets every patch operation through without confirmation.
func WithAutoApprove() AssistantOption {
	return func(a *Assistant) error {
		a.workspaceOpts = append(a.workspaceOpts, editor.WithAutoApprove())
		return nil
	}
}

// WithApprovalFunc installs the confirmation callback consulted before each
// not-yet-approved patch operation.
func WithApprovalFunc(f editor.ApprovalFunc) AssistantOption {
	return func(a *Assistant) error {
		a.workspaceOpts = append(a.workspaceOpts, editor.WithApprovalFunc(f))
		return nil
	}
}

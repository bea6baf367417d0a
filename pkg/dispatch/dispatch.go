package dispatch

import (
	"context"
	"fmt"

	"github.com/google/go-github/v60/github"
)

// DispatchError indicates a workflow dispatch request was not accepted.
type DispatchError struct {
	Workflow string
	Tag      string
	Err      error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s for tag %q: %v", e.Workflow, e.Tag, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// WorkflowDispatcher triggers a GitHub Actions workflow run for one tag.
// Dispatch is fire-and-forget: only acceptance of the request is observed,
// never completion. The dispatched run executes with its own credentials and
// workspace, decoupled from the caller.
type WorkflowDispatcher struct {
	client   *github.Client
	owner    string
	repo     string
	workflow string
	ref      string
}

func NewWorkflowDispatcher(client *github.Client, owner, repo, workflow, ref string) *WorkflowDispatcher {
	return &WorkflowDispatcher{
		client:   client,
		owner:    owner,
		repo:     repo,
		workflow: workflow,
		ref:      ref,
	}
}

func (d *WorkflowDispatcher) Dispatch(ctx context.Context, tag string) error {
	req := github.CreateWorkflowDispatchEventRequest{
		Ref: d.ref,
		Inputs: map[string]interface{}{
			"tag": tag,
		},
	}
	if _, err := d.client.Actions.CreateWorkflowDispatchEventByFileName(ctx, d.owner, d.repo, d.workflow, req); err != nil {
		return &DispatchError{Workflow: d.workflow, Tag: tag, Err: err}
	}
	return nil
}

package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/google/go-github/v60/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *github.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := github.NewClient(nil)
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	client.BaseURL = base
	return client
}

func TestDispatch_SendsTagInput(t *testing.T) {
	var gotPath string
	var gotBody struct {
		Ref    string            `json:"ref"`
		Inputs map[string]string `json:"inputs"`
	}

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusNoContent)
	}))

	d := NewWorkflowDispatcher(client, "example", "fork", "sync-tag.yml", "main")
	require.NoError(t, d.Dispatch(context.Background(), "v2"))

	assert.Equal(t, "/repos/example/fork/actions/workflows/sync-tag.yml/dispatches", gotPath)
	assert.Equal(t, "main", gotBody.Ref)
	assert.Equal(t, map[string]string{"tag": "v2"}, gotBody.Inputs)
}

func TestDispatch_RejectionIsDispatchError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"Resource not accessible by integration"}`, http.StatusForbidden)
	}))

	d := NewWorkflowDispatcher(client, "example", "fork", "sync-tag.yml", "main")
	err := d.Dispatch(context.Background(), "v2")

	var dispatchErr *DispatchError
	require.ErrorAs(t, err, &dispatchErr)
	assert.Equal(t, "v2", dispatchErr.Tag)
	assert.Equal(t, "sync-tag.yml", dispatchErr.Workflow)
}

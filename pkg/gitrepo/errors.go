package gitrepo

import "fmt"

// CloneError indicates the initial clone of a repository failed.
type CloneError struct {
	URL string
	Err error
}

func (e *CloneError) Error() string {
	return fmt.Sprintf("clone %s: %v", Redact(e.URL), e.Err)
}

func (e *CloneError) Unwrap() error { return e.Err }

// RefNotFoundError indicates a requested tag or ref does not exist in the
// repository.
type RefNotFoundError struct {
	Ref string
}

func (e *RefNotFoundError) Error() string {
	return fmt.Sprintf("ref %q not found", e.Ref)
}

// BranchExistsError indicates a branch with the requested name is already
// present.
type BranchExistsError struct {
	Name string
}

func (e *BranchExistsError) Error() string {
	return fmt.Sprintf("branch %q already exists", e.Name)
}

// NothingToCommitError indicates the working tree was unchanged when a commit
// was requested. Callers overlaying files treat this as benign: the files
// were already present and identical.
type NothingToCommitError struct{}

func (e *NothingToCommitError) Error() string {
	return "nothing to commit, working tree unchanged"
}

// AuthError indicates the remote refused our credentials.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// RemoteRejectedError indicates the remote refused a ref update.
// AlreadyExists is set when the rejection was the remote's duplicate-tag
// guard, which callers publishing a tag exactly once treat as proof the tag
// is already there.
type RemoteRejectedError struct {
	Tag           string
	AlreadyExists bool
	Err           error
}

func (e *RemoteRejectedError) Error() string {
	if e.AlreadyExists {
		return fmt.Sprintf("remote rejected tag %q: already exists", e.Tag)
	}
	return fmt.Sprintf("remote rejected tag %q: %v", e.Tag, e.Err)
}

func (e *RemoteRejectedError) Unwrap() error { return e.Err }

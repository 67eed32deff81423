// internal/errors/errors.go
package errors

import (
	stderrors "errors"
	"fmt"
)

// NotFoundError is returned when a project, user, cached file or remote object does not exist.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// AuthorizationError is returned when the acting user does not own the resource.
type AuthorizationError struct {
	UserID   string
	Resource string
	ID       string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("user %q is not authorized to access %s %q", e.UserID, e.Resource, e.ID)
}

// CredentialError means there is no usable OAuth credential for the user.
// Callers surface it as "reconnect required".
type CredentialError struct {
	UserID string
	Reason string
	Err    error
}

func (e *CredentialError) Error() string {
	msg := fmt.Sprintf("github credential unusable for user %q: %s", e.UserID, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CredentialError) Unwrap() error { return e.Err }

// RemoteAuthError is returned when the remote provider rejects a token.
type RemoteAuthError struct {
	Op  string
	Err error
}

func (e *RemoteAuthError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: remote rejected credentials", e.Op)
	}
	return fmt.Sprintf("%s: remote rejected credentials: %v", e.Op, e.Err)
}

func (e *RemoteAuthError) Unwrap() error { return e.Err }

// RemoteAPIError wraps any other remote HTTP or network failure.
// StatusCode is 0 for transport-level failures.
type RemoteAPIError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *RemoteAPIError) Error() string {
	msg := e.Op
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s: status %d", msg, e.StatusCode)
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RemoteAPIError) Unwrap() error { return e.Err }

// TransformError is returned for a malformed flat tree listing.
type TransformError struct {
	Path   string
	Reason string
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("malformed tree entry %q: %s", e.Path, e.Reason)
}

// ErrSyncInProgress is returned when a sync is requested for a project that already has one running.
type ErrSyncInProgress struct {
	ProjectID string
}

func (e *ErrSyncInProgress) Error() string {
	return fmt.Sprintf("a sync is already in progress for project %q", e.ProjectID)
}

// ErrInvalidRepositoryID is returned when a repository id is not a positive integer.
type ErrInvalidRepositoryID struct {
	Value string
}

func (e *ErrInvalidRepositoryID) Error() string {
	return fmt.Sprintf("invalid repository id: %q, expected a numeric GitHub repository id", e.Value)
}

// IsNotFound reports whether err is, or wraps, a NotFoundError or a remote 404.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	if stderrors.As(err, &nf) {
		return true
	}
	var apiErr *RemoteAPIError
	return stderrors.As(err, &apiErr) && apiErr.StatusCode == 404
}

// IsRemoteAuth reports whether err is, or wraps, a RemoteAuthError.
func IsRemoteAuth(err error) bool {
	var authErr *RemoteAuthError
	return stderrors.As(err, &authErr)
}

// IsCredential reports whether err is, or wraps, a CredentialError.
func IsCredential(err error) bool {
	var credErr *CredentialError
	return stderrors.As(err, &credErr)
}

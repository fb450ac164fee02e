package objectstore

import "github.com/igualparatodos/multiwoven/internal/core"

// Object store failure codes. Retryable ones surface as retryable activity
// errors.
const (
	CodeEndpointUnreachable = "E_ENDPOINT_UNREACHABLE"
	CodeAuthInvalid         = "E_AUTH_INVALID"
	CodeBucketNotFound      = "E_BUCKET_NOT_FOUND"
	CodeObjectNotFound      = "E_OBJECT_NOT_FOUND"
	CodePermissionDenied    = "E_PERMISSION_DENIED"
	CodeTimeout             = "E_TIMEOUT"
	CodeWriteFailed         = "E_OBJECT_WRITE_FAILED"
)

// Error is the coded error every store method returns.
type Error = core.Error

func wrapError(code string, retryable bool, err error) *Error {
	return core.NewError(code, retryable, err)
}

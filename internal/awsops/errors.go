package awsops

import (
	"errors"

	"github.com/aws/smithy-go"
)

// APIErrorCode extracts the remote service error code, or "" when the error
// is not a modeled API error (network failures, context cancellation).
func APIErrorCode(err error) string {
	var ae smithy.APIError
	if errors.As(err, &ae) {
		return ae.ErrorCode()
	}
	return ""
}

// IsExpectedInaccessible reports whether an error code means the region is
// simply not reachable for this account: not authorized, or never opted in.
// These are routine in multi-account scans and logged at debug, not warn.
func IsExpectedInaccessible(code string) bool {
	return code == "UnauthorizedOperation" || code == "OptInRequired"
}

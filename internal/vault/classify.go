package vault

import (
	"errors"
	"net/http"

	"fieldsync/internal/fieldsync"

	"github.com/aws/smithy-go"
	"github.com/minio/minio-go/v7"
)

// kindForCode maps S3-compatible API error codes to failure kinds.
func kindForCode(code string) fieldsync.Kind {
	switch code {
	case "NoSuchBucket", "NoSuchKey", "NotFound":
		return fieldsync.KindNotFound
	case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch",
		"ExpiredToken", "InvalidToken", "AllAccessDisabled":
		return fieldsync.KindPermission
	case "QuotaExceeded", "EntityTooLarge", "XMinioStorageFull", "StorageFull":
		return fieldsync.KindStorageQuota
	case "SlowDown", "RequestTimeout", "ServiceUnavailable", "InternalError", "XMinioServerNotInitialized":
		return fieldsync.KindConnectivity
	case "OperationAborted", "PreconditionFailed", "ConditionalRequestConflict":
		return fieldsync.KindConflict
	}
	return fieldsync.KindUnknown
}

// kindForStatus is the fallback when a response carries no usable code.
func kindForStatus(status int) fieldsync.Kind {
	switch {
	case status == http.StatusNotFound:
		return fieldsync.KindNotFound
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return fieldsync.KindPermission
	case status == http.StatusConflict, status == http.StatusPreconditionFailed:
		return fieldsync.KindConflict
	case status == http.StatusRequestEntityTooLarge, status == http.StatusInsufficientStorage:
		return fieldsync.KindStorageQuota
	case status >= 500:
		return fieldsync.KindConnectivity
	}
	return fieldsync.KindUnknown
}

// classifyS3 wraps an aws-sdk error with its failure kind.
func classifyS3(op string, err error) error {
	kind := fieldsync.KindOf(err)
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if k := kindForCode(apiErr.ErrorCode()); k != fieldsync.KindUnknown {
			kind = k
		}
	}
	return fieldsync.NewError(kind, op, err)
}

// classifyMinio wraps a minio-go error with its failure kind.
func classifyMinio(op string, err error) error {
	kind := fieldsync.KindOf(err)
	resp := minio.ToErrorResponse(err)
	if k := kindForCode(resp.Code); k != fieldsync.KindUnknown {
		kind = k
	} else if resp.Code != "" {
		if k := kindForStatus(resp.StatusCode); k != fieldsync.KindUnknown {
			kind = k
		}
	}
	return fieldsync.NewError(kind, op, err)
}

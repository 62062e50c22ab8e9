package adapter

import (
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// classifyS3Error converts an S3 SDK error for op on path into an *Error
// of the matching kind.
func classifyS3Error(op, path string, err error) error {
	if err == nil {
		return nil
	}

	var ae *Error
	if errors.As(err, &ae) {
		return err
	}

	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		e := NotFound(op, path)
		e.Err = err
		return e
	}

	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return &Error{Kind: KindConfiguration, Op: op, Path: path, Message: "bucket does not exist", Err: err}
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch code := apiErr.ErrorCode(); code {
		case "NoSuchKey", "NotFound":
			e := NotFound(op, path)
			e.Err = err
			return e
		case "PreconditionFailed":
			e := Conflict(op, path)
			e.Err = err
			return e
		case "NoSuchBucket":
			return &Error{Kind: KindConfiguration, Op: op, Path: path, Message: "bucket does not exist", Err: err}
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch":
			return &Error{Kind: KindAdapter, Op: op, Path: path, Message: fmt.Sprintf("s3 rejected the request (code: %s)", code), Err: err}
		default:
			return &Error{Kind: KindAdapter, Op: op, Path: path, Message: fmt.Sprintf("s3 request failed (code: %s)", code), Err: err}
		}
	}

	return Wrap(op, path, err)
}

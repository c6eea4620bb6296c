package blobstore_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"telecine/internal/blobstore"
)

func TestIsNotFoundMatchesTypedErrors(t *testing.T) {
	wrapped := fmt.Errorf("get bucket/key: %w", &types.NoSuchKey{})
	if !blobstore.IsNotFound(wrapped) {
		t.Fatal("expected NoSuchKey to count as not found")
	}
	if !blobstore.IsNotFound(&types.NotFound{}) {
		t.Fatal("expected NotFound to count as not found")
	}
}

func TestIsNotFoundMatchesGenericAPICodes(t *testing.T) {
	err := &smithy.GenericAPIError{Code: "NoSuchUpload", Message: "gone"}
	if !blobstore.IsNotFound(fmt.Errorf("abort: %w", err)) {
		t.Fatal("expected NoSuchUpload code to count as not found")
	}
	denied := &smithy.GenericAPIError{Code: "AccessDenied", Message: "nope"}
	if blobstore.IsNotFound(denied) {
		t.Fatal("AccessDenied must not count as not found")
	}
	if blobstore.IsNotFound(errors.New("plain failure")) {
		t.Fatal("plain errors must not count as not found")
	}
	if blobstore.IsNotFound(nil) {
		t.Fatal("nil must not count as not found")
	}
}

func TestErrorCodeExtractsServiceCode(t *testing.T) {
	err := fmt.Errorf("put: %w", &smithy.GenericAPIError{Code: "SlowDown", Message: "throttle"})
	if got := blobstore.ErrorCode(err); got != "SlowDown" {
		t.Fatalf("expected SlowDown, got %q", got)
	}
	if got := blobstore.ErrorCode(errors.New("x")); got != "" {
		t.Fatalf("expected empty code for plain error, got %q", got)
	}
}

package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// CreateIfAbsent writes content to a GCS object only if it doesn't already exist.
// It reports whether this call created the object; losing the race to another
// writer is not an error.
func CreateIfAbsent(ctx context.Context, bucket *storage.BucketHandle, objectName, contentType string, content io.Reader) (bool, error) {
	writer := bucket.Object(objectName).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	writer.ContentType = contentType

	if _, err := io.Copy(writer, content); err != nil {
		_ = writer.Close()
		if IsPreconditionFailed(err) {
			slog.Debug("Object already exists, skipping create.", "gcsObject", objectName)
			return false, nil
		}
		return false, fmt.Errorf("failed to write to GCS: %w", err)
	}

	if err := writer.Close(); err != nil {
		if IsPreconditionFailed(err) {
			slog.Debug("Object already exists, skipping create.", "gcsObject", objectName)
			return false, nil
		}
		return false, fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return true, nil
}

// IsPreconditionFailed reports whether err is a 412 from a Google API.
func IsPreconditionFailed(err error) bool {
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed
}

// IsNotFound reports whether err is a 404 from a Google API or a missing GCS object.
func IsNotFound(err error) bool {
	if errors.Is(err, storage.ErrObjectNotExist) {
		return true
	}
	var gerr *googleapi.Error
	return errors.As(err, &gerr) && gerr.Code == http.StatusNotFound
}

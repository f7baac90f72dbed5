package gcp

import (
	"context"
	"fmt"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// NewDriveService creates a Drive v3 client scoped to full drive access.
// An empty credentialsFile falls back to application default credentials.
func NewDriveService(ctx context.Context, credentialsFile string, opts ...option.ClientOption) (*drive.Service, error) {
	opts = append([]option.ClientOption{option.WithScopes(drive.DriveScope)}, opts...)
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Drive service: %w", err)
	}
	return svc, nil
}

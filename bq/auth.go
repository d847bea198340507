package bq

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
)

const readOnlyScope = "https://www.googleapis.com/auth/cloud-platform.read-only"

// FindDefaultCredentials looks up Application Default Credentials with the
// scopes needed to query and list projects.
func FindDefaultCredentials(ctx context.Context) (*google.Credentials, error) {
	creds, err := google.FindDefaultCredentials(ctx, bigquery.Scope, readOnlyScope)
	if err != nil {
		return nil, fmt.Errorf("no application default credentials (run 'gcloud auth application-default login'): %w", err)
	}
	return creds, nil
}

// NewClient creates a BigQuery client billed to projectID. Extra options
// are appended after the credentials.
func NewClient(ctx context.Context, projectID string, opts ...option.ClientOption) (*bigquery.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("bigquery client: empty project")
	}
	creds, err := FindDefaultCredentials(ctx)
	if err != nil {
		return nil, err
	}
	opts = append([]option.ClientOption{option.WithCredentials(creds)}, opts...)
	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("bigquery client: %w", err)
	}
	return client, nil
}

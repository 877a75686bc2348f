// Package firestore mirrors completed import runs into Cloud Firestore so that other
// services can follow import activity without reading the SQLite database.
package firestore

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/blaug210/budget-app/internal/domain"
	"github.com/blaug210/budget-app/internal/transform"
)

// ImportsCollection holds one document per import tracker
const ImportsCollection = "budget-imports"

// listLimit caps ListImports results
const listLimit = 50

// Client wraps Firestore client with import-audit operations
type Client struct {
	Firestore *firestore.Client
	app       *firebase.App
	projectID string
}

// NewClient creates a new Firestore client.
// Application Default Credentials are used unless credentialsFile is set.
func NewClient(ctx context.Context, projectID, credentialsFile string) (*Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project ID cannot be empty")
	}
	conf := &firebase.Config{ProjectID: projectID}

	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	app, err := firebase.NewApp(ctx, conf, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}

	firestoreClient, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return &Client{
		Firestore: firestoreClient,
		app:       app,
		projectID: projectID,
	}, nil
}

// Auth returns a Firebase Auth client for the same project, used to verify ID tokens
func (c *Client) Auth(ctx context.Context) (*auth.Client, error) {
	client, err := c.app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firebase Auth client: %w", err)
	}
	return client, nil
}

// Close closes the Firestore client
func (c *Client) Close() error {
	return c.Firestore.Close()
}

// ImportRecord is the Firestore mirror of one import tracker
type ImportRecord struct {
	ID              string    `firestore:"id"`
	BudgetID        string    `firestore:"budgetId"`
	FileName        string    `firestore:"fileName"`
	FileSlug        string    `firestore:"fileSlug"`
	FileType        string    `firestore:"fileType"`
	SourceName      string    `firestore:"sourceName"`
	ItemsImported   int       `firestore:"itemsImported"`
	DuplicatesFound int       `firestore:"duplicatesFound"`
	Errors          int       `firestore:"errors"`
	SuccessRate     float64   `firestore:"successRate"`
	Success         bool      `firestore:"success"`
	ImportedAt      time.Time `firestore:"importedAt"`
}

// NewImportRecord builds the mirror document of a finished import
func NewImportRecord(tracker *domain.ImportTracker, errors int, success bool) (*ImportRecord, error) {
	if tracker == nil {
		return nil, fmt.Errorf("tracker cannot be nil")
	}

	slug, err := transform.Slugify(tracker.FileName)
	if err != nil {
		// Names without letters or digits still get a stable slug
		slug = tracker.ID
	}

	rec := &ImportRecord{
		ID:              tracker.ID,
		BudgetID:        tracker.BudgetID,
		FileName:        tracker.FileName,
		FileSlug:        slug,
		FileType:        string(tracker.FileType),
		SourceName:      tracker.SourceName,
		ItemsImported:   tracker.ItemsImported,
		DuplicatesFound: tracker.DuplicatesFound,
		Errors:          errors,
		SuccessRate:     tracker.SuccessRate(),
		Success:         success,
		ImportedAt:      tracker.ImportDate,
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

// Validate checks if the ImportRecord has valid data
func (r *ImportRecord) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("import ID is required")
	}
	if r.BudgetID == "" {
		return fmt.Errorf("budget ID is required")
	}
	if !domain.ValidateFileType(domain.FileType(r.FileType)) {
		return fmt.Errorf("invalid file type: %s", r.FileType)
	}
	if r.ItemsImported < 0 || r.DuplicatesFound < 0 || r.Errors < 0 {
		return fmt.Errorf("counts cannot be negative")
	}
	if r.ImportedAt.IsZero() {
		return fmt.Errorf("import time is required")
	}
	return nil
}

// PublishImport creates or replaces the mirror document of an import
func (c *Client) PublishImport(ctx context.Context, rec *ImportRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid import record: %w", err)
	}
	if _, err := c.Firestore.Collection(ImportsCollection).Doc(rec.ID).Set(ctx, rec); err != nil {
		return fmt.Errorf("failed to publish import %s: %w", rec.ID, err)
	}
	return nil
}

// GetImport retrieves an import record by tracker ID
func (c *Client) GetImport(ctx context.Context, id string) (*ImportRecord, error) {
	doc, err := c.Firestore.Collection(ImportsCollection).Doc(id).Get(ctx)
	if err != nil {
		return nil, err
	}

	var rec ImportRecord
	if err := doc.DataTo(&rec); err != nil {
		return nil, fmt.Errorf("failed to parse import record: %w", err)
	}
	return &rec, nil
}

// ListImports retrieves the most recent import records of a budget
func (c *Client) ListImports(ctx context.Context, budgetID string) ([]*ImportRecord, error) {
	iter := c.Firestore.Collection(ImportsCollection).
		Where("budgetId", "==", budgetID).
		OrderBy("importedAt", firestore.Desc).
		Limit(listLimit).
		Documents(ctx)
	defer iter.Stop()

	var records []*ImportRecord
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate imports for budget %s: %w", budgetID, err)
		}

		var rec ImportRecord
		if err := doc.DataTo(&rec); err != nil {
			return nil, fmt.Errorf("failed to parse import record: %w", err)
		}
		records = append(records, &rec)
	}

	return records, nil
}

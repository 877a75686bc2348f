package firestore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blaug210/budget-app/internal/domain"
)

func testTracker() *domain.ImportTracker {
	return &domain.ImportTracker{
		ID:              "tracker-1",
		BudgetID:        "budget-1",
		ImportDate:      time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		FileName:        "May Statement.csv",
		FileType:        domain.FileTypeCSV,
		ItemsImported:   3,
		DuplicatesFound: 1,
		SourceName:      "Bulk Upload: May Statement.csv",
	}
}

func TestNewImportRecord(t *testing.T) {
	rec, err := NewImportRecord(testTracker(), 2, true)
	require.NoError(t, err)

	assert.Equal(t, "tracker-1", rec.ID)
	assert.Equal(t, "budget-1", rec.BudgetID)
	assert.Equal(t, "may-statement-csv", rec.FileSlug)
	assert.Equal(t, "csv", rec.FileType)
	assert.Equal(t, "Bulk Upload: May Statement.csv", rec.SourceName)
	assert.Equal(t, 3, rec.ItemsImported)
	assert.Equal(t, 1, rec.DuplicatesFound)
	assert.Equal(t, 2, rec.Errors)
	assert.InDelta(t, 75.0, rec.SuccessRate, 0.001)
	assert.True(t, rec.Success)
	assert.Equal(t, testTracker().ImportDate, rec.ImportedAt)
}

func TestNewImportRecord_SlugFallsBackToTrackerID(t *testing.T) {
	tracker := testTracker()
	tracker.FileName = "___"

	rec, err := NewImportRecord(tracker, 0, true)
	require.NoError(t, err)
	assert.Equal(t, "tracker-1", rec.FileSlug)
}

func TestNewImportRecord_Nil(t *testing.T) {
	_, err := NewImportRecord(nil, 0, true)
	assert.Error(t, err)
}

func TestImportRecord_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*ImportRecord)
		wantErr string
	}{
		{name: "valid", mutate: func(*ImportRecord) {}},
		{name: "missing id", mutate: func(r *ImportRecord) { r.ID = "" }, wantErr: "import ID is required"},
		{name: "missing budget", mutate: func(r *ImportRecord) { r.BudgetID = "" }, wantErr: "budget ID is required"},
		{name: "bad file type", mutate: func(r *ImportRecord) { r.FileType = "pdf" }, wantErr: "invalid file type"},
		{name: "negative count", mutate: func(r *ImportRecord) { r.Errors = -1 }, wantErr: "counts cannot be negative"},
		{name: "zero time", mutate: func(r *ImportRecord) { r.ImportedAt = time.Time{} }, wantErr: "import time is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := NewImportRecord(testTracker(), 0, true)
			require.NoError(t, err)
			tt.mutate(rec)

			err = rec.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewClient_EmptyProject(t *testing.T) {
	_, err := NewClient(context.Background(), "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "project ID cannot be empty")
}

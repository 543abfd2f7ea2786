package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"reportwatch/internal/watch"
)

func TestAppendInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "catalog_entries")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	entry := watch.CatalogEntry{
		ID:               "uuid-v7",
		Title:            "Vendor advisory",
		Summary:          "Something broke",
		SourceURL:        "https://exampleorg.example/advisory/1",
		Severity:         "high",
		IsDomainSpecific: true,
		BlobURI:          "file:///archive/abc.txt",
		FirstSeenAt:      now,
	}

	mock.ExpectExec("INSERT INTO catalog_entries").
		WithArgs(
			entry.ID,
			entry.Title,
			entry.Summary,
			entry.SourceURL,
			entry.Severity,
			entry.IsDomainSpecific,
			entry.BlobURI,
			entry.FirstSeenAt,
			entry.IsRead,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Append(context.Background(), entry))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAppendRequiresID(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "catalog_entries")
	require.NoError(t, err)

	require.Error(t, store.Append(context.Background(), watch.CatalogEntry{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListScansRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "catalog_entries")
	require.NoError(t, err)

	now := time.Unix(1700000000, 0).UTC()
	rows := pgxmock.NewRows([]string{
		"id", "title", "summary", "source_url", "severity",
		"is_domain_specific", "blob_uri", "first_seen_at", "is_read",
	}).
		AddRow("a", "Title A", "Summary A", "https://x.example/1", "low", false, "", now, false).
		AddRow("b", "Title B", "Summary B", "https://x.example/2", "high", true, "file:///b.txt", now.Add(time.Minute), true)

	mock.ExpectQuery("SELECT id, title, summary").WillReturnRows(rows)

	got, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "a", got[0].ID)
	require.Equal(t, "https://x.example/2", got[1].SourceURL)
	require.True(t, got[1].IsRead)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetRead(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewWithPool(mock, "catalog_entries")
	require.NoError(t, err)

	mock.ExpectExec("UPDATE catalog_entries SET is_read").
		WithArgs("a", true).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, store.SetRead(context.Background(), "a", true))

	mock.ExpectExec("UPDATE catalog_entries SET is_read").
		WithArgs("missing", false).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.Error(t, store.SetRead(context.Background(), "missing", false))
	require.NoError(t, mock.ExpectationsWereMet())
}

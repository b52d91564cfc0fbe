package finreport

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestServiceCreateStoresPendingReport(t *testing.T) {
	store := newMemStore(Template{ID: 1, Name: "Monthly", FileRef: "monthly.docx", Tenant: " HeadOffice ", IsActive: true})
	svc := NewService(store, nil)

	rep, err := svc.Create(context.Background(), CreateRequest{
		TemplateID: 1, Month: "6", Year: 2024, Branch: "hq", Ledger: "main",
		Metadata: map[string]any{"note": "board"},
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, rep.Status)
	require.Equal(t, "headoffice", rep.Tenant)
	require.Equal(t, "06", rep.Month)
	require.Equal(t, "HQ", rep.Branch)
	require.Equal(t, "Monthly", rep.Metadata["template"])
	require.Equal(t, "board", rep.Metadata["note"])
}

func TestServiceCreateRejectsUnusableTemplates(t *testing.T) {
	store := newMemStore(
		Template{ID: 1, FileRef: "a.docx", Tenant: "standard"},
		Template{ID: 2, Tenant: "standard", IsActive: true},
		Template{ID: 3, FileRef: "c.docx", Tenant: "acme", IsActive: true},
	)
	svc := NewService(store, nil)
	ctx := context.Background()
	req := func(id int64) CreateRequest {
		return CreateRequest{TemplateID: id, Month: "06", Year: 2024, Ledger: "MAIN"}
	}

	_, err := svc.Create(ctx, req(1))
	require.ErrorIs(t, err, ErrValidation)
	_, err = svc.Create(ctx, req(2))
	require.ErrorIs(t, err, ErrConfiguration)
	_, err = svc.Create(ctx, req(3))
	require.ErrorIs(t, err, ErrConfiguration)
	_, err = svc.Create(ctx, req(9))
	require.ErrorIs(t, err, ErrTemplateNotFound)
	_, err = svc.Create(ctx, CreateRequest{TemplateID: 1})
	require.ErrorIs(t, err, ErrValidation)

	reports, err := svc.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Empty(t, reports)
}

func TestServiceMarkFailedDefaultsMessage(t *testing.T) {
	store := newMemStore(testTemplate())
	svc := NewService(store, nil)
	ctx := context.Background()
	rep, err := svc.Create(ctx, CreateRequest{TemplateID: 1, Month: "06", Year: 2024, Ledger: "MAIN"})
	require.NoError(t, err)

	require.NoError(t, svc.MarkFailed(ctx, rep.ID, "  "))
	got, err := svc.Get(ctx, rep.ID)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, got.Status)
	require.Equal(t, "unknown error", got.ErrorMessage)

	// failed reports may be picked up again
	require.NoError(t, svc.MarkInProgress(ctx, rep.ID))
	require.ErrorIs(t, svc.MarkInProgress(ctx, rep.ID), ErrInvalidStatus)
}

package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lalitmahajn/BMR-OCR/internal/extract"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func seedPage(t *testing.T, st *Store, ctx context.Context) (*Document, *Page) {
	t.Helper()
	doc, err := st.CreateDocument(ctx, "bmr-scan.pdf", "abc123")
	require.NoError(t, err)
	page := &Page{
		DocumentID: doc.ID,
		Number:     1,
		PageType:   "QC_TEST_REPORT",
		TypeScore:  0.97,
		Status:     PageExtracted,
	}
	require.NoError(t, st.CreatePage(ctx, page, "Batch No: 10012601674"))
	return doc, page
}

func TestStore_DocumentLifecycle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	doc, page := seedPage(t, st, ctx)
	assert.Equal(t, DocProcessing, doc.Status)

	got, err := st.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "bmr-scan.pdf", got.Filename)
	assert.Equal(t, 1, got.PageCount)

	require.NoError(t, st.SetDocumentStatus(ctx, doc.ID, DocCompleted))
	got, err = st.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, DocCompleted, got.Status)

	pages, err := st.ListPages(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, page.ID, pages[0].ID)
	assert.Equal(t, "QC_TEST_REPORT", pages[0].PageType)
}

func TestStore_GetDocumentNotFound(t *testing.T) {
	st := newTestStore(t)
	_, err := st.GetDocument(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_SaveAndListResults(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	_, page := seedPage(t, st, ctx)

	results := []extract.Result{
		{FieldID: "BATCH_NO", Section: extract.SectionHeader, RawValue: "10012601674",
			Method: extract.MethodLabelRegex, Confidence: 0.975},
		{FieldID: "T1_R1_RESULT", Section: extract.SectionTable, RawValue: "7.1",
			Method: extract.MethodTableCell, Confidence: 0.85, RowIndex: 1, ColumnRole: extract.RoleResult},
	}
	require.NoError(t, st.SaveResults(ctx, page.ID, results))

	got, err := st.ListResults(ctx, page.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)

	byID := make(map[string]FieldResult, len(got))
	for _, r := range got {
		byID[r.FieldID] = r
	}
	assert.Equal(t, "10012601674", byID["BATCH_NO"].RawValue)
	assert.Nil(t, byID["BATCH_NO"].VerifiedValue)
	assert.Equal(t, 1, byID["T1_R1_RESULT"].RowIndex)
	assert.Equal(t, string(extract.RoleResult), byID["T1_R1_RESULT"].ColumnRole)
}

func TestStore_VerifyRequiresVerifier(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	_, page := seedPage(t, st, ctx)
	require.NoError(t, st.SaveResults(ctx, page.ID, []extract.Result{
		{FieldID: "BATCH_NO", Section: extract.SectionHeader, RawValue: "10012601674",
			Method: extract.MethodLabelOnly, Confidence: 0.9},
	}))
	results, err := st.ListResults(ctx, page.ID)
	require.NoError(t, err)

	_, err = st.Verify(ctx, results[0].ID, "10012601675", "", "typo fix")
	assert.ErrorIs(t, err, ErrVerifierRequired)
}

func TestStore_VerifyNeverMutatesResult(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	_, page := seedPage(t, st, ctx)
	require.NoError(t, st.SaveResults(ctx, page.ID, []extract.Result{
		{FieldID: "BATCH_NO", Section: extract.SectionHeader, RawValue: "10012601674",
			Method: extract.MethodLabelRegex, Confidence: 0.975},
	}))
	results, err := st.ListResults(ctx, page.ID)
	require.NoError(t, err)
	resultID := results[0].ID

	v, err := st.Verify(ctx, resultID, "10012601675", "qa.lead", "digit misread")
	require.NoError(t, err)
	assert.Equal(t, "qa.lead", v.VerifiedBy)

	// Second verification supersedes the first in the join; the raw
	// machine value stays untouched through both.
	_, err = st.Verify(ctx, resultID, "10012601676", "qa.manager", "second review")
	require.NoError(t, err)

	got, err := st.ListResults(ctx, page.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "10012601674", got[0].RawValue)
	assert.Equal(t, 0.975, got[0].Confidence)
	require.NotNil(t, got[0].VerifiedValue)
	assert.Equal(t, "10012601676", *got[0].VerifiedValue)
	require.NotNil(t, got[0].VerifiedBy)
	assert.Equal(t, "qa.manager", *got[0].VerifiedBy)
}

func TestStore_VerifyUnknownResult(t *testing.T) {
	st := newTestStore(t)
	_, err := st.Verify(context.Background(), "missing", "x", "someone", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ListDocumentResults(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	doc, page := seedPage(t, st, ctx)

	page2 := &Page{DocumentID: doc.ID, Number: 2, PageType: "PACKING_DETAILS", Status: PageExtracted}
	require.NoError(t, st.CreatePage(ctx, page2, "packing text"))

	require.NoError(t, st.SaveResults(ctx, page.ID, []extract.Result{
		{FieldID: "BATCH_NO", Section: extract.SectionHeader, RawValue: "1", Method: extract.MethodLabelOnly},
	}))
	require.NoError(t, st.SaveResults(ctx, page2.ID, []extract.Result{
		{FieldID: "NET_WT", Section: extract.SectionHeader, RawValue: "25 kg", Method: extract.MethodLabelOnly},
		{FieldID: "GROSS_WT", Section: extract.SectionHeader, RawValue: "26 kg", Method: extract.MethodLabelOnly},
	}))

	byPage, err := st.ListDocumentResults(ctx, doc.ID)
	require.NoError(t, err)
	assert.Len(t, byPage[page.ID], 1)
	assert.Len(t, byPage[page2.ID], 2)
}

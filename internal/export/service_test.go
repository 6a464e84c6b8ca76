package export

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/lalitmahajn/BMR-OCR/internal/extract"
	"github.com/lalitmahajn/BMR-OCR/internal/store"
)

func TestDocumentXLSX(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	doc, err := st.CreateDocument(ctx, "bmr-scan.pdf", "abc123")
	require.NoError(t, err)
	page := &store.Page{
		DocumentID: doc.ID,
		Number:     1,
		PageType:   "QC_TEST_REPORT",
		TypeScore:  0.95,
		Status:     store.PageExtracted,
	}
	require.NoError(t, st.CreatePage(ctx, page, "Batch No: 10012601674"))
	require.NoError(t, st.SaveResults(ctx, page.ID, []extract.Result{
		{FieldID: "BATCH_NO", Section: extract.SectionHeader, RawValue: "10012601674",
			Method: extract.MethodLabelRegex, Confidence: 0.975},
	}))

	results, err := st.ListResults(ctx, page.ID)
	require.NoError(t, err)
	_, err = st.Verify(ctx, results[0].ID, "10012601675", "qa.lead", "digit misread")
	require.NoError(t, err)

	svc := NewService(st, nil)
	data, err := svc.DocumentXLSX(ctx, doc.ID)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	const sheet = "Extraction"
	assert.Contains(t, f.GetSheetList(), sheet)

	rows, err := f.GetRows(sheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, reportHeader, rows[0][:len(reportHeader)])

	assert.Equal(t, "1", rows[1][0])
	assert.Equal(t, "QC_TEST_REPORT", rows[1][1])
	assert.Equal(t, "BATCH_NO", rows[1][2])
	assert.Equal(t, "10012601674", rows[1][4])
	assert.Equal(t, "label_regex", rows[1][5])
	assert.Equal(t, "10012601675", rows[1][9])
	assert.Equal(t, "qa.lead", rows[1][10])
}

func TestDocumentXLSX_UnknownDocument(t *testing.T) {
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	svc := NewService(st, nil)
	_, err = svc.DocumentXLSX(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDocumentXLSX_EmptyDocument(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	doc, err := st.CreateDocument(ctx, "empty.pdf", "feed")
	require.NoError(t, err)

	data, err := NewService(st, nil).DocumentXLSX(ctx, doc.ID)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Extraction")
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

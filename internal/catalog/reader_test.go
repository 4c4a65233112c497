package catalog

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/shamanpi/BAD-Mutations/internal/domain"
	"github.com/shamanpi/BAD-Mutations/mocks"
	obmocks "github.com/shamanpi/BAD-Mutations/shared/observability/mocks"
)

const listing = `<?xml version="1.0" encoding="UTF-8"?>
<organismDownloads name="PhytozomeV10">
  <folder name="PhytozomeV10">
    <folder name="species1">
      <folder name="annotation">
        <file label="cds" filename="species1.cds.fa.gz" url="/PhytozomeV10/download/_JAMO/1/species1.cds.fa.gz" md5="abc123"/>
        <file label="protein" filename="species1.protein.fa.gz" url="/PhytozomeV10/download/_JAMO/1/species1.protein.fa.gz" md5="def456"/>
      </folder>
    </folder>
    <folder name="species2">
      <file filename="species2.txt.gz" url="/PhytozomeV10/download/_JAMO/2/species2.txt.gz" md5="0000"/>
    </folder>
  </folder>
</organismDownloads>`

func readAll(t *testing.T, doc string, allow AllowList) (domain.WorkList, error) {
	t.Helper()
	return Parse(context.Background(), strings.NewReader(doc), ".cds.fa.gz", allow, obmocks.NewPermissiveLogger())
}

func TestParse_SuffixAndAllowList(t *testing.T) {
	worklist, err := readAll(t, listing, NewAllowList("species1"))
	require.NoError(t, err)

	require.Len(t, worklist, 1)
	assert.Equal(t, domain.RemoteEntry{
		RemotePath:       "/PhytozomeV10/download/_JAMO/1/species1.cds.fa.gz",
		ExpectedChecksum: "abc123",
		LocalFilename:    "species1.cds.fa.gz",
		Entity:           "species1",
	}, worklist[0])
}

func TestParse_EntityNotAllowed(t *testing.T) {
	doc := `<root>
  <file url="/P/Athaliana_167_TAIR10.cds.fa.gz" md5="11"/>
  <file url="/P/Zmays_284_6a.cds.fa.gz" md5="22"/>
</root>`

	worklist, err := readAll(t, doc, NewAllowList("Zmays"))
	require.NoError(t, err)
	require.Len(t, worklist, 1)
	assert.Equal(t, "Zmays", worklist[0].Entity)
}

func TestParse_DocumentOrderAndChecksumNormalized(t *testing.T) {
	doc := `<root>
  <folder><file url="/P/Zmays_284_6a.cds.fa.gz" md5=" ABCDEF "/></folder>
  <file url="/P/Athaliana_167_TAIR10.cds.fa.gz" md5="123"/>
</root>`

	worklist, err := readAll(t, doc, NewAllowList("Zmays", "Athaliana"))
	require.NoError(t, err)
	require.Len(t, worklist, 2)
	assert.Equal(t, "Zmays", worklist[0].Entity)
	assert.Equal(t, "abcdef", worklist[0].ExpectedChecksum)
	assert.Equal(t, "Athaliana", worklist[1].Entity)
}

func TestParse_EmptyIsValid(t *testing.T) {
	worklist, err := readAll(t, `<organismDownloads name="PhytozomeV10"/>`, NewAllowList("species1"))
	require.NoError(t, err)
	assert.NotNil(t, worklist)
	assert.Empty(t, worklist)
}

func TestParse_SkipsEntriesMissingAttributes(t *testing.T) {
	logger := obmocks.NewPermissiveLogger()
	doc := `<root>
  <file filename="no-url.cds.fa.gz" md5="1"/>
  <file url="/P/species1.cds.fa.gz"/>
</root>`

	worklist, err := Parse(context.Background(), strings.NewReader(doc), ".cds.fa.gz", NewAllowList("species1"), logger)
	require.NoError(t, err)
	assert.Empty(t, worklist)
	logger.AssertCalled(t, "Warn", mock.Anything, "Catalog entry has no md5, skipping", mock.Anything)
}

func TestParse_MalformedNameFailsFast(t *testing.T) {
	doc := `<root>
  <file url="/P/species1.cds.fa.gz" md5="1"/>
  <file url="/P/_nameless.cds.fa.gz" md5="2"/>
</root>`

	worklist, err := readAll(t, doc, NewAllowList("species1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrMalformedName)
	assert.Nil(t, worklist)
}

func TestParse_SyntaxError(t *testing.T) {
	_, err := readAll(t, `<root><file url="/P/species1.cds.fa.gz" md5="1">`, NewAllowList("species1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCatalogParse)
}

func TestReader_ListTargets(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		portal := &mocks.MockPortalClient{}
		mockLogger := &obmocks.MockLogger{}
		mockMetrics := &obmocks.MockMetrics{}

		mockLogger.On("Info", mock.Anything, "Fetching catalog", mock.Anything).Return()
		mockLogger.On("Info", mock.Anything, "Catalog listed", mock.Anything).Return()

		mockMetrics.On("StartOperation", "list_targets").Return()
		mockMetrics.On("EndOperation", "list_targets").Return()
		mockMetrics.On("RecordDuration", "list_targets", mock.AnythingOfType("float64")).Return()
		mockMetrics.On("RecordSuccess", "list_targets").Return()

		portal.On("GetCatalog", mock.Anything, Query("PhytozomeV10")).
			Return(io.NopCloser(strings.NewReader(listing)), nil)

		reader := NewReader(portal, ".cds.fa.gz", NewAllowList("species1"), mockLogger, mockMetrics)
		worklist, err := reader.ListTargets(context.Background(), Query("PhytozomeV10"))

		require.NoError(t, err)
		assert.Len(t, worklist, 1)
		portal.AssertExpectations(t)
		mockLogger.AssertExpectations(t)
		mockMetrics.AssertExpectations(t)
	})

	t.Run("fetch failure", func(t *testing.T) {
		portal := &mocks.MockPortalClient{}
		mockLogger := &obmocks.MockLogger{}
		mockMetrics := &obmocks.MockMetrics{}

		mockLogger.On("Info", mock.Anything, "Fetching catalog", mock.Anything).Return()
		mockLogger.On("Error", mock.Anything, "Failed to fetch catalog", mock.Anything, mock.Anything).Return()

		mockMetrics.On("StartOperation", "list_targets").Return()
		mockMetrics.On("EndOperation", "list_targets").Return()
		mockMetrics.On("RecordDuration", "list_targets", mock.AnythingOfType("float64")).Return()
		mockMetrics.On("RecordError", "list_targets", "fetch").Return()

		portal.On("GetCatalog", mock.Anything, mock.Anything).
			Return(nil, errors.New("unexpected status code: 503"))

		reader := NewReader(portal, ".cds.fa.gz", NewAllowList("species1"), mockLogger, mockMetrics)
		_, err := reader.ListTargets(context.Background(), Query("PhytozomeV10"))

		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrCatalogFetch)
		mockLogger.AssertExpectations(t)
		mockMetrics.AssertExpectations(t)
	})

	t.Run("malformed name", func(t *testing.T) {
		portal := &mocks.MockPortalClient{}
		portal.On("GetCatalog", mock.Anything, mock.Anything).
			Return(io.NopCloser(strings.NewReader(`<r><file url="/_x.cds.fa.gz" md5="1"/></r>`)), nil)

		mockMetrics := obmocks.NewPermissiveMetrics()
		reader := NewReader(portal, ".cds.fa.gz", DefaultAllowList(), obmocks.NewPermissiveLogger(), mockMetrics)
		_, err := reader.ListTargets(context.Background(), Query("PhytozomeV10"))

		assert.ErrorIs(t, err, domain.ErrMalformedName)
		mockMetrics.AssertCalled(t, "RecordError", "list_targets", "malformed_name")
	})
}

func TestAllowList(t *testing.T) {
	t.Run("default list is embedded", func(t *testing.T) {
		allow := DefaultAllowList()
		assert.True(t, allow.Contains("Athaliana"))
		assert.True(t, allow.Contains("Zmays"))
		assert.False(t, allow.Contains("species1"))
	})

	t.Run("load from file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "species.yaml")
		require.NoError(t, os.WriteFile(path, []byte("species:\n  - species1\n  - ' Zmays '\n  - ''\n"), 0o644))

		allow, err := LoadAllowList(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"Zmays", "species1"}, allow.Entities())
	})

	t.Run("empty path uses default", func(t *testing.T) {
		allow, err := LoadAllowList("")
		require.NoError(t, err)
		assert.Equal(t, DefaultAllowList(), allow)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadAllowList(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)
	})

	t.Run("no species", func(t *testing.T) {
		_, err := ParseAllowList([]byte("species: []\n"))
		assert.Error(t, err)
	})
}

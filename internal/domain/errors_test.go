package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
)

func TestDomainError_Error(t *testing.T) {
	err := NewDomainError("DOWNLOAD_FAILED", "Failed to download file", errors.New("unexpected status code: 503"), true)
	assert.Equal(t, "DOWNLOAD_FAILED: Failed to download file - unexpected status code: 503", err.Error())

	assert.Equal(t, "TOOL_NOT_FOUND: Required executable not found", ErrToolNotFound.Error())
}

func TestDomainError_IsMatchesByCode(t *testing.T) {
	cause := errors.New("exit status 2")
	err := fmt.Errorf("convert a.cds.fa.gz: %w", NewDomainError(ErrConversionFailed.Code, "makeblastdb failed", cause, false))

	assert.ErrorIs(t, err, ErrConversionFailed)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrVerificationFailed)
}

func TestDomainError_ThroughMultierror(t *testing.T) {
	var merr *multierror.Error
	merr = multierror.Append(merr, NewDomainError(ErrVerificationFailed.Code, "a.cds.fa.gz", nil, false))
	merr = multierror.Append(merr, errors.New("unrelated"))

	assert.ErrorIs(t, merr.ErrorOrNil(), ErrVerificationFailed)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(fmt.Errorf("wrapped: %w", ErrDownloadFailed)))
	assert.False(t, IsRetryable(ErrInvalidCredentials))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.False(t, IsRetryable(nil))
}

func TestIsAuthError(t *testing.T) {
	assert.True(t, IsAuthError(ErrInvalidCredentials))
	assert.True(t, IsAuthError(fmt.Errorf("sign on: %w", ErrExpiredAccount)))
	assert.False(t, IsAuthError(ErrSignOnFailed))
}

func TestChangedFiles(t *testing.T) {
	changed := NewChangedFiles()
	assert.Equal(t, 0, changed.Len())

	assert.True(t, changed.Add("/data/Athaliana/a.cds.fa.gz"))
	assert.True(t, changed.Add("/data/Zmays/z.cds.fa.gz"))
	assert.False(t, changed.Add("/data/Athaliana/a.cds.fa.gz"))

	assert.Equal(t, []string{"/data/Athaliana/a.cds.fa.gz", "/data/Zmays/z.cds.fa.gz"}, changed.Paths())
	assert.True(t, changed.Contains("/data/Zmays/z.cds.fa.gz"))
	assert.Equal(t, 2, changed.Len())

	paths := changed.Paths()
	paths[0] = "mutated"
	assert.Equal(t, "/data/Athaliana/a.cds.fa.gz", changed.Paths()[0])

	var zero ChangedFiles
	assert.True(t, zero.Add("/x"))

	var nilSet *ChangedFiles
	assert.Equal(t, 0, nilSet.Len())
	assert.Nil(t, nilSet.Paths())
}

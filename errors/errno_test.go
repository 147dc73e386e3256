package errors_test

import (
	stderrors "errors"
	"testing"

	"github.com/kestrelfs/fat32sd/errors"
	"github.com/stretchr/testify/assert"
)

func TestFat32ErrorWithMessage(t *testing.T) {
	newErr := errors.ErrOpenNotFound.WithMessage("HELLO.TXT")
	assert.Equal(t, "open: file not found: HELLO.TXT", newErr.Error())
	assert.ErrorIs(t, newErr, errors.ErrOpenNotFound)
}

func TestFat32ErrorWrap(t *testing.T) {
	originalErr := stderrors.New("disk read failed")
	newErr := errors.ErrIOFailed.WrapError(originalErr)

	assert.Equal(t, "block provider I/O failure: disk read failed", newErr.Error())
	assert.ErrorIs(t, newErr, originalErr)
}

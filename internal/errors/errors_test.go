package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapKeepsCode(t *testing.T) {
	base := ConfigInvalid("dose count mismatch")
	wrapped := Wrap(base, "load design")

	assert.Equal(t, CodeConfigInvalid, GetCode(wrapped))
	assert.Equal(t, "load design: dose count mismatch", wrapped.Error())
	assert.True(t, stderrors.Is(wrapped, base))
}

func TestWrapForeignError(t *testing.T) {
	cause := fmt.Errorf("boom")
	wrapped := Wrapf(cause, "stage %d", 3)

	assert.Equal(t, CodeInternalError, GetCode(wrapped))
	assert.Equal(t, cause, stderrors.Unwrap(wrapped))
	assert.Nil(t, Wrap(nil, "nothing"))
}

func TestInvalidInputAndWrapfCoded(t *testing.T) {
	err := WithCode(CodeInvalidInput, Wrapf(fmt.Errorf("no such preset"), "design %q", "wide"))
	assert.Equal(t, CodeInvalidInput, GetCode(err))
	assert.Equal(t, `design "wide": no such preset`, err.Error())

	in := InvalidInput("unknown calibration kind")
	assert.Equal(t, CodeInvalidInput, GetCode(in))
	assert.Equal(t, "unknown calibration kind", in.Error())
}

func TestWithCode(t *testing.T) {
	err := WithCode(CodeNumericFault, fmt.Errorf("NaN in draw 12"))
	_, ok := err.(*AppError)
	assert.True(t, ok)
	assert.Equal(t, CodeNumericFault, GetCode(err))
	assert.Equal(t, "UNKNOWN", GetCode(fmt.Errorf("plain")))
}

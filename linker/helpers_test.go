package linker

import (
	stderrors "errors"

	"github.com/wippyai/lazyjit/errors"
)

func asError(err error, target **errors.Error) bool {
	return stderrors.As(err, target)
}

func errorsIsCause(err, cause error) bool {
	return stderrors.Is(err, cause)
}

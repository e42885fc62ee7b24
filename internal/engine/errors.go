package engine

import (
	"errors"
	"fmt"

	"github.com/calvinalkan/docbase/internal/document"
	"github.com/calvinalkan/docbase/internal/store"
)

// ErrForbidden reports an anti-forgery token mismatch. Boundaries return it
// before calling into the engine.
var ErrForbidden = errors.New("anti-forgery token mismatch")

// ErrImportMalformed reports import input that is not a JSON array.
var ErrImportMalformed = fmt.Errorf("%w: import is not a JSON array of documents", document.ErrValidation)

// Kind is the user-facing class of an error.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindAuthorization
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindAuthorization:
		return "authorization"
	case KindStorage:
		return "storage"
	default:
		return "internal"
	}
}

// Classify maps err to its [Kind]. A nil error is KindInternal; callers check
// for nil first.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrForbidden):
		return KindAuthorization
	case errors.Is(err, document.ErrValidation):
		return KindValidation
	case errors.Is(err, document.ErrNotFound):
		return KindNotFound
	case errors.Is(err, store.ErrStorage):
		return KindStorage
	default:
		return KindInternal
	}
}

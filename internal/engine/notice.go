package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/calvinalkan/docbase/internal/document"
	"github.com/calvinalkan/docbase/internal/store"
)

// Action names a mutation. The values double as metric labels and as the
// HTTP form's action field where one exists.
type Action string

const (
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionRestore Action = "restore-version"
	ActionImport  Action = "bulk-import"
	ActionSeed    Action = "seed"
)

// Notice types.
const (
	NoticeSuccess = "success"
	NoticeInfo    = "info"
	NoticeError   = "error"
)

// StorageFailureMessage is all an end user ever sees of a storage error.
const StorageFailureMessage = "could not save changes"

// Notice is the single user-visible outcome of a mutation request.
type Notice struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Success reports whether the notice describes a completed mutation.
func (n Notice) Success() bool {
	return n.Type != NoticeError
}

// NoticeFor builds the notification for action. imported is only read for
// [ActionImport].
func NoticeFor(action Action, imported int, err error) Notice {
	if err != nil {
		return errorNotice(err)
	}

	switch action {
	case ActionCreate:
		return Notice{Type: NoticeSuccess, Message: "New page created."}
	case ActionUpdate:
		return Notice{Type: NoticeSuccess, Message: "Document updated."}
	case ActionDelete:
		return Notice{Type: NoticeInfo, Message: "Document deleted."}
	case ActionRestore:
		return Notice{Type: NoticeSuccess, Message: "Version restored."}
	case ActionImport:
		return Notice{Type: NoticeSuccess, Message: fmt.Sprintf("%d documents imported.", imported)}
	case ActionSeed:
		return Notice{Type: NoticeInfo, Message: "Welcome page created."}
	default:
		return Notice{Type: NoticeSuccess, Message: "Done."}
	}
}

func errorNotice(err error) Notice {
	var msg string

	var dup *store.DuplicateIDError

	switch Classify(err) {
	case KindStorage:
		msg = StorageFailureMessage
		if errors.As(err, &dup) {
			msg += fmt.Sprintf(", document id %s is stored more than once, delete one copy", dup.ID)
		}
	case KindAuthorization:
		msg = "request could not be verified, reload the page and try again"
	case KindInternal:
		msg = "unexpected error"
	default:
		msg = strings.TrimPrefix(err.Error(), document.ErrValidation.Error()+": ")
	}

	return Notice{Type: NoticeError, Message: "Error: " + capitalize(msg)}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}

	return strings.ToUpper(s[:1]) + s[1:]
}

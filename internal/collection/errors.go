package collection

import (
	"errors"
	"fmt"

	"github.com/lehigh-university-libraries/librarian/internal/circulation"
	"github.com/lehigh-university-libraries/librarian/internal/metrics"
	"github.com/lehigh-university-libraries/librarian/internal/validation"
)

var (
	ErrBookNotFound   = errors.New("book not found")
	ErrPersonNotFound = errors.New("person not found")
)

// RemoteFailure wraps a transport or server error from the remote store.
// The cache is unchanged when it is returned, so the call can be retried.
type RemoteFailure struct {
	Op  string
	Err error
}

func (e *RemoteFailure) Error() string {
	return fmt.Sprintf("remote %s failed: %v", e.Op, e.Err)
}

func (e *RemoteFailure) Unwrap() error { return e.Err }

// IsRemoteFailure reports whether err is (or wraps) a RemoteFailure.
func IsRemoteFailure(err error) bool {
	var rf *RemoteFailure
	return errors.As(err, &rf)
}

func outcome(err error) string {
	var (
		conflict *circulation.StateConflict
		verrs    validation.Errors
	)
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.As(err, &verrs):
		return metrics.OutcomeInvalid
	case errors.As(err, &conflict), errors.Is(err, circulation.ErrUnknownPerson):
		return metrics.OutcomeConflict
	case errors.Is(err, ErrBookNotFound), errors.Is(err, ErrPersonNotFound):
		return metrics.OutcomeNotFound
	default:
		return metrics.OutcomeRemoteFail
	}
}

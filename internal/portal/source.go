package portal

import (
	"context"
	"errors"

	"shiftwatch/internal/shifts"
)

// ErrCredentialsRejected reports that the portal refused the login.
// Anything else returned by the client is a transient failure: the
// caller skips the cycle and retries on the next tick.
var ErrCredentialsRejected = errors.New("portal rejected credentials")

// Source is the collaborator the watcher polls. The HTTP client below
// implements it; tests substitute fakes.
type Source interface {
	// ValidateCredentials returns (false, nil) when the portal rejects
	// the login and a non-nil error only when validation could not run.
	ValidateCredentials(ctx context.Context, identifier, secret string) (bool, error)
	FetchShifts(ctx context.Context, identifier, secret string) (shifts.Batch, error)
}

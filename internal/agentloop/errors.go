package agentloop

import (
	"errors"

	"github.com/agentruntime/core/internal/runtimeerr"
)

// Sentinel errors for Run's own precondition checks, grounded on the
// teacher's errors.go sentinel-error style (ErrNoProvider, ErrMaxIterations).
var (
	ErrNoModelClient = errors.New("agentloop: no ModelClient configured")
	ErrNilSession    = errors.New("agentloop: session is nil")
	ErrMaxTurns      = errors.New("agentloop: reached max turns")
)

// newPreconditionErr wraps err as a runtimeerr.InvalidArgument failure
// for Run's own argument checks, distinct from errors surfaced by
// collaborators (Store, ModelClient), which already carry their own Kind.
func newPreconditionErr(op string, err error) error {
	return runtimeerr.New(op, runtimeerr.InvalidArgument, err)
}

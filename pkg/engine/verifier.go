package engine

import (
	"context"
	"strings"

	"github.com/planwalk/planwalk/pkg/domain"
	"github.com/planwalk/planwalk/pkg/engine/runtime"
)

// DefaultFailureMarkers is the marker set consulted by exit_code_zero
// verification when the host configures nothing else.
var DefaultFailureMarkers = []string{"error", "exit code"}

// Verifier maps (verification spec, execution output) to pass/fail. It
// never returns an error: an unverifiable result must not be silently
// treated as success, so every malformed or absent input fails closed.
type Verifier struct {
	// FailureMarkers configures exit_code_zero checks. Empty selects
	// DefaultFailureMarkers.
	FailureMarkers []string
	// External answers external verification specs. A nil External fails
	// every external check closed.
	External runtime.ExternalCheck
}

// Verify judges one piece of evidence against a verification spec.
func (v *Verifier) Verify(ctx context.Context, spec domain.VerificationSpec, evidence runtime.Evidence) bool {
	// Manual checks pass without evidence: they record that no automated
	// check occurred.
	if spec.Type == domain.VerifyManual {
		return true
	}
	if !evidence.Present {
		return false
	}

	output := evidence.Output
	lower := strings.ToLower(output)

	switch spec.Type {
	case domain.VerifyAnyOutput:
		return strings.TrimSpace(output) != ""
	case domain.VerifyContains:
		return strings.Contains(lower, strings.ToLower(spec.Value))
	case domain.VerifyNotContains:
		return !strings.Contains(lower, strings.ToLower(spec.Value))
	case domain.VerifyExitCodeZero:
		markers := v.FailureMarkers
		if len(markers) == 0 {
			markers = DefaultFailureMarkers
		}
		for _, marker := range markers {
			if strings.Contains(lower, strings.ToLower(marker)) {
				return false
			}
		}
		return true
	case domain.VerifyExternal:
		if v.External == nil {
			return false
		}
		ok, err := v.External.Check(ctx, spec, output)
		if err != nil {
			// The predicate's answer is final; failing to answer is a fail.
			return false
		}
		return ok
	default:
		return false
	}
}

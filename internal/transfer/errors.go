package transfer

import (
	"errors"
	"fmt"
)

// Sentinel errors for the transfer taxonomy. Handlers classify outcomes with
// errors.Is before deciding what to surface to the user.
var (
	// ErrSourceUnreachable means the acquisition leg could not obtain bytes;
	// nothing was transformed or delivered.
	ErrSourceUnreachable = errors.New("source unreachable")

	// ErrDeliveryFailed means the destination rejected the artifact or the
	// transport dropped mid-upload. Transfers are not retried automatically.
	ErrDeliveryFailed = errors.New("delivery failed")

	// ErrCancelled means the user cancelled the transfer; cleanup already
	// ran.
	ErrCancelled = errors.New("transfer cancelled")
)

// maxDiagnosticLen bounds external tool output carried in errors so it stays
// safe to show in a chat message.
const maxDiagnosticLen = 500

// TransformError reports a failed external transform with the tool's
// diagnostic output, truncated to a display-safe length.
type TransformError struct {
	Tool       string
	Diagnostic string
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform failed (%s): %s", e.Tool, e.Diagnostic)
}

func newTransformError(tool string, diagnostic string) *TransformError {
	return &TransformError{Tool: tool, Diagnostic: truncateDiagnostic(diagnostic)}
}

func truncateDiagnostic(s string) string {
	if len(s) <= maxDiagnosticLen {
		return s
	}
	return s[:maxDiagnosticLen] + "…"
}

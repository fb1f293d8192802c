package reflection

import (
	"context"

	"selfcall-platform/internal/snapshots"
)

// Extractor turns a raw transcript into a structured reflection.
//
// Extraction is best-effort from the orchestrator's point of view: callers
// consume the two-outcome Result and fall back to a generic prompt, they do
// not treat an extractor error as fatal.
type Extractor interface {
	Extract(ctx context.Context, transcript string) (Result, error)
}

// Result is the explicit two-outcome type consumed by prompt construction:
// either a personalized reflection was extracted, or the generic framing is
// used. It is never both.
type Result struct {
	Personalized bool
	Data         snapshots.Reflection
}

// Personalized wraps extracted data.
func Personalized(data snapshots.Reflection) Result {
	return Result{Personalized: true, Data: data}
}

// Generic is the degraded outcome used when transcription or extraction
// failed, or the transcript was empty.
func Generic() Result {
	return Result{}
}

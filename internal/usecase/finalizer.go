package usecase

import (
	"context"

	"lingualive/internal/domain"
	"lingualive/internal/ports"
	"lingualive/internal/transcript"
)

type transcriptFinalizer struct {
	ledger     *transcript.Ledger
	clipboard  ports.Clipboard
	events     ports.EventSink
	copyOnStop bool
}

func newTranscriptFinalizer(ledger *transcript.Ledger, clipboard ports.Clipboard, events ports.EventSink, copyOnStop bool) transcriptFinalizer {
	return transcriptFinalizer{ledger: ledger, clipboard: clipboard, events: events, copyOnStop: copyOnStop}
}

// Finalize builds the stop result from the frozen ledger. A clipboard
// failure only changes the reason.
func (f transcriptFinalizer) Finalize(ctx context.Context) (domain.StopResult, domain.SessionStateReason) {
	summary := f.ledger.Summary()
	if summary.EntryCount == 0 {
		return domain.StopResult{Summary: summary}, domain.SessionReasonNoTranscript
	}

	result := domain.StopResult{
		Summary:    summary,
		Transcript: f.ledger.Text(),
	}
	if !f.copyOnStop || f.clipboard == nil {
		return result, domain.SessionReasonSessionSaved
	}

	if err := f.clipboard.SetText(ctx, result.Transcript); err != nil {
		f.events.SessionError(domain.ErrorCodeClipboard, "transcript saved but clipboard write failed")
		return result, domain.SessionReasonClipboardFailed
	}
	result.Copied = true
	return result, domain.SessionReasonTranscriptCopied
}

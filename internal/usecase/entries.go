package usecase

import (
	"context"
	"strings"

	"lingualive/internal/domain"
	"lingualive/internal/transcript"
)

// reliableLanguage is the detection confidence above which a recognizer's
// language replaces the configured source language.
const reliableLanguage = 0.8

// dispatchUtterance finalizes utt in the background unless the session has
// stopped accepting results. The sequencer records the result in utterance
// order.
func (c *SessionController) dispatchUtterance(active *activeSession, utt domain.Utterance) bool {
	if !active.track() {
		return false
	}
	c.finalizeUtterance(active, utt)
	return true
}

// finalizeUtterance runs an utterance already registered with inflight.
func (c *SessionController) finalizeUtterance(active *activeSession, utt domain.Utterance) {
	c.metrics.RecordUtterance()
	go func() {
		defer active.inflight.Done()
		entry, ok := c.translateUtterance(active, utt)
		if !ok {
			active.sequencer.Skip(utt.Seq)
			return
		}
		active.sequencer.Submit(utt.Seq, entry)
	}()
}

func (c *SessionController) sourceLanguage(utt domain.Utterance) string {
	if utt.Language != "" && (utt.LanguageConfidence == 0 || utt.LanguageConfidence > reliableLanguage) {
		return utt.Language
	}
	return c.cfg.SourceLanguage
}

// translateUtterance punctuates and translates one utterance. Failures
// produce a fallback entry carrying the original text. It reports false when
// nothing is left to record once fillers are stripped.
func (c *SessionController) translateUtterance(active *activeSession, utt domain.Utterance) (transcript.NewEntry, bool) {
	language := c.sourceLanguage(utt)
	text := c.punctuator.Punctuate(utt.Text, language)
	if strings.TrimSpace(text) == "" {
		active.log.Debug().Int("seq", utt.Seq).Msg("utterance held only fillers; skipping")
		return transcript.NewEntry{}, false
	}

	entry := transcript.NewEntry{
		UtteranceSeq:   utt.Seq,
		OriginalText:   text,
		SourceLanguage: language,
		TargetLanguage: c.cfg.TargetLanguage,
		Confidence:     utt.Confidence,
	}

	ctx, cancel := context.WithTimeout(active.ctx, c.cfg.TranslationTimeout)
	defer cancel()

	req := domain.TranslationRequest{
		Text:              text,
		SourceLanguage:    language,
		TargetLanguage:    c.cfg.TargetLanguage,
		EnablePunctuation: c.cfg.EnablePunctuation,
	}
	var (
		result domain.TranslationResult
		err    error
	)
	if c.cfg.AutoDetect {
		result, err = c.translator.TranslateWithDetection(ctx, req)
	} else {
		result, err = c.translator.Translate(ctx, req)
	}
	if err != nil {
		entry.TranslatedText = text
		entry.TranslationError = err.Error()
		if !active.isDiscarded() {
			active.log.Warn().Err(err).Int("seq", utt.Seq).Msg("translation failed; recording original text")
			c.events.SessionError(domain.ErrorCodeTranslation, err.Error())
		}
		return entry, true
	}

	entry.TranslatedText = result.TranslatedText
	if strings.TrimSpace(entry.TranslatedText) == "" {
		entry.TranslatedText = text
	}
	if c.cfg.AutoDetect && result.SourceLanguage != "" {
		entry.SourceLanguage = result.SourceLanguage
	}
	return entry, true
}

// recordEntry appends a sequenced entry unless its session was discarded
// or replaced.
func (c *SessionController) recordEntry(active *activeSession, entry transcript.NewEntry) {
	if active.isDiscarded() {
		return
	}
	recorded, err := c.ledger.AddEntryFor(active.id, entry)
	if err != nil {
		active.log.Debug().Err(err).Int("seq", entry.UtteranceSeq).Msg("dropping entry")
		return
	}
	c.metrics.RecordEntry(entry.TranslationError != "")
	c.events.EntryRecorded(recorded)

	if err := c.publisher.PublishEntry(context.WithoutCancel(active.ctx), active.id, recorded); err != nil {
		active.log.Debug().Err(err).Str("entryId", recorded.ID).Msg("failed to publish entry")
	}
}

func (c *SessionController) handleFragment(active *activeSession, fragment domain.TranscriptFragment) {
	if active.isDiscarded() {
		return
	}
	if fragment.IsFinal {
		if utt, ok := active.utterances.Final(fragment); ok && !c.dispatchUtterance(active, utt) {
			active.log.Debug().Int("resultIndex", fragment.ResultIndex).Msg("dropping final after stop")
		}
		return
	}

	active.utterances.Interim(fragment)
	c.events.InterimTranscript(fragment)
	if err := c.publisher.PublishInterim(active.ctx, active.id, fragment); err != nil {
		active.log.Debug().Err(err).Int("resultIndex", fragment.ResultIndex).Msg("failed to publish interim")
	}
}

package ai

import (
	"context"

	"taskhive/internal/apperr"
	"taskhive/internal/note"
	"taskhive/internal/user"
)

// Transcribe runs speech-to-text on a voice note. Pro only; 5 credits per
// started minute; a recording over the hard cutoff yields a partial
// transcript flagged as such.
func (s *Service) Transcribe(ctx context.Context, userID, noteID string) (*TranscriptResult, error) {
	owner, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if owner.Tier != user.TierPro {
		return nil, apperr.TierRequired("voice transcription")
	}
	n, err := s.notes.Get(ctx, userID, noteID)
	if err != nil {
		return nil, err
	}
	if n.VoiceURL == nil || n.VoiceSeconds == nil {
		return nil, apperr.Validation("note has no voice recording")
	}
	seconds := *n.VoiceSeconds
	if seconds > transcribeMaxSecs {
		seconds = transcribeMaxSecs
	}

	cost := transcriptionCost(seconds)
	consumed, err := s.credits.Consume(ctx, userID, cost, "ai_transcribe:"+noteID)
	if err != nil {
		return nil, err
	}

	text, partial, err := s.vendor.Transcribe(ctx, *n.VoiceURL, transcribeMaxSecs)
	if err != nil {
		if serr := s.notes.SetTranscription(ctx, s.db, userID, noteID, note.TranscriptionFailed, ""); serr != nil {
			s.logger.Error("mark transcription failed: %v", serr)
		}
		return nil, s.refundAndWrap(ctx, userID, consumed, "ai_transcribe", err)
	}
	if *n.VoiceSeconds > transcribeMaxSecs {
		partial = true
	}

	if err := s.notes.SetTranscription(ctx, s.db, userID, noteID, note.TranscriptionCompleted, text); err != nil {
		return nil, err
	}

	result := &TranscriptResult{
		Text:        text,
		Partial:     partial,
		CreditsUsed: cost,
		Balance:     consumed.Balance,
	}
	if partial {
		result.Signal = string(apperr.CodeMaxDurationExceeded)
	}
	return result, nil
}

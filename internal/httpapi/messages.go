package httpapi

import "lingualive/internal/domain"

func sessionReasonMessage(reason domain.SessionStateReason) string {
	switch reason {
	case domain.SessionReasonReady:
		return "Ready"
	case domain.SessionReasonRecordingStarted:
		return "Recording started"
	case domain.SessionReasonRecognizerRestarting:
		return "Speech recognition interrupted; reconnecting..."
	case domain.SessionReasonRecognizerResumed:
		return "Speech recognition resumed"
	case domain.SessionReasonStopping:
		return "Recording stopped. Finishing translations..."
	case domain.SessionReasonSessionSaved:
		return "Session saved"
	case domain.SessionReasonTranscriptCopied:
		return "Transcript copied to clipboard"
	case domain.SessionReasonClipboardFailed:
		return "Session saved (clipboard write failed)"
	case domain.SessionReasonNoTranscript:
		return "No speech captured"
	case domain.SessionReasonRecordingDiscarded:
		return "Recording discarded"
	case domain.SessionReasonRecognizerFailed:
		return "Speech recognition failed"
	case domain.SessionReasonMicrophoneLost:
		return "Microphone disconnected. Start recording again when it is back."
	case domain.SessionReasonStartFailed:
		return "Could not start recording"
	case domain.SessionReasonProviderSwitched:
		return "Speech provider changed"
	case domain.SessionReasonForceReset:
		return "Audio and recognition reset"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	switch code {
	case domain.ErrorCodeStartup:
		return "Startup failed"
	case domain.ErrorCodePermissionDenied:
		return "Microphone access denied. Allow microphone access and try again."
	case domain.ErrorCodeDeviceUnavailable:
		return "No microphone available. Connect a microphone or check the input device."
	case domain.ErrorCodeUnsupportedFormat:
		return "Audio format not supported on this device"
	case domain.ErrorCodeAudioStop:
		return "Audio stop issue"
	case domain.ErrorCodeAudioStream:
		return "Audio streaming issue"
	case domain.ErrorCodeTranscription:
		return "Speech recognition error"
	case domain.ErrorCodeTranslation:
		return "Translation error"
	case domain.ErrorCodeClipboard:
		return "Clipboard write failed"
	case domain.ErrorCodePublish:
		return "Event publishing failed"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
}

package usecase

import (
	"github.com/rs/zerolog"
)

type audioSink interface {
	SendAudio(frame []byte) error
}

// pumpAudioFrames forwards capture frames to the recognizer until the
// capture closes its frame channel.
func pumpAudioFrames(frames <-chan []byte, sink audioSink, log zerolog.Logger, done chan struct{}) {
	defer close(done)

	if frames == nil {
		return
	}
	failures := 0
	for frame := range frames {
		if err := sink.SendAudio(frame); err != nil {
			// The recognizer reports stream failures itself and restarts.
			failures++
			if failures == 1 {
				log.Debug().Err(err).Msg("failed to forward audio frame")
			}
			continue
		}
		failures = 0
	}
}

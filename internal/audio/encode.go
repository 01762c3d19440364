package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/orcaman/writerseeker"
)

const (
	FormatWAV = "audio/wav"
	FormatL16 = "audio/L16"
)

// encoders lists the container formats this package can produce from raw
// little-endian 16-bit PCM, in default preference order.
var encoders = []struct {
	format string
	encode func(pcm []byte, sampleRate, channels int) ([]byte, error)
}{
	{format: FormatWAV, encode: EncodeWAV},
	{format: FormatL16, encode: encodeRawPCM},
}

// NegotiateFormat picks the first preferred format that can be encoded.
// Parameters after ';' are ignored when matching. An empty preference list
// selects the default.
func NegotiateFormat(preferences []string) (string, error) {
	if len(preferences) == 0 {
		return encoders[0].format, nil
	}
	for _, preference := range preferences {
		base, _, _ := strings.Cut(preference, ";")
		for _, enc := range encoders {
			if strings.EqualFold(strings.TrimSpace(base), enc.format) {
				return enc.format, nil
			}
		}
	}
	return "", fmt.Errorf("%w: none of %v", ErrUnsupportedFormat, preferences)
}

// Encode wraps pcm in the given negotiated format.
func Encode(format string, pcm []byte, sampleRate, channels int) ([]byte, error) {
	for _, enc := range encoders {
		if enc.format == format {
			return enc.encode(pcm, sampleRate, channels)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
}

// EncodeWAV wraps little-endian 16-bit PCM in a RIFF/WAV container.
func EncodeWAV(pcm []byte, sampleRate, channels int) ([]byte, error) {
	if sampleRate <= 0 || channels <= 0 {
		return nil, fmt.Errorf("invalid wav format: rate=%d channels=%d", sampleRate, channels)
	}

	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[2*i:])))
	}

	out := &writerseeker.WriterSeeker{}
	encoder := wav.NewEncoder(out, sampleRate, 16, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := encoder.Write(buf); err != nil {
		_ = encoder.Close()
		return nil, fmt.Errorf("encoder write buffer: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("encoder close: %w", err)
	}

	encoded, err := io.ReadAll(out.Reader())
	if err != nil {
		return nil, fmt.Errorf("reading wav into memory: %w", err)
	}
	return encoded, nil
}

func encodeRawPCM(pcm []byte, _, _ int) ([]byte, error) {
	return append([]byte(nil), pcm...), nil
}

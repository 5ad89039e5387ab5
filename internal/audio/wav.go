package audio

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"
	"time"
)

// riffHeader is the fixed 44 byte prefix of a PCM WAV file as written by
// EncodeWAV: a RIFF chunk holding one "fmt " and one "data" subchunk.
type riffHeader struct {
	Riff       [4]byte
	FileSize   uint32 // total length minus the 8 byte RIFF preamble
	Wave       [4]byte
	FmtID      [4]byte
	FmtSize    uint32
	Encoding   uint16
	Channels   uint16
	SampleRate uint32
	ByteRate   uint32
	BlockAlign uint16
	BitDepth   uint16
	DataID     [4]byte
	DataSize   uint32
}

const (
	wavHeaderSize  = 44
	bytesPerSample = 2
	pcmEncoding    = 1
)

// EncodeWAV encodes interleaved PCM-16 samples into a WAV file
func EncodeWAV(samples []int16, sampleRate, channels int) ([]byte, error) {
	switch {
	case len(samples) == 0:
		return nil, fmt.Errorf("no samples to encode")
	case sampleRate <= 0:
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	case channels < 1 || channels > 2:
		return nil, fmt.Errorf("channels must be 1 or 2, got %d", channels)
	}

	frameSize := uint16(channels * bytesPerSample)
	pcm := uint32(len(samples) * bytesPerSample)

	h := riffHeader{
		Riff:       [4]byte{'R', 'I', 'F', 'F'},
		FileSize:   wavHeaderSize - 8 + pcm,
		Wave:       [4]byte{'W', 'A', 'V', 'E'},
		FmtID:      [4]byte{'f', 'm', 't', ' '},
		FmtSize:    16,
		Encoding:   pcmEncoding,
		Channels:   uint16(channels),
		SampleRate: uint32(sampleRate),
		ByteRate:   uint32(sampleRate) * uint32(frameSize),
		BlockAlign: frameSize,
		BitDepth:   8 * bytesPerSample,
		DataID:     [4]byte{'d', 'a', 't', 'a'},
		DataSize:   pcm,
	}

	out := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+int(pcm)))
	if err := binary.Write(out, binary.LittleEndian, h); err != nil {
		return nil, fmt.Errorf("write wav header: %w", err)
	}
	out.Write(BytesFromSamples(samples))
	return out.Bytes(), nil
}

// DecodeWAV decodes a PCM-16 WAV file back to samples.
// It returns the samples, the sample rate and the channel count.
func DecodeWAV(data []byte) ([]int16, int, int, error) {
	h, err := parseHeader(data)
	if err != nil {
		return nil, 0, 0, err
	}

	if h.Encoding != pcmEncoding || h.BitDepth != 8*bytesPerSample {
		return nil, 0, 0, fmt.Errorf("unsupported wav encoding %d at %d bits, want 16 bit PCM", h.Encoding, h.BitDepth)
	}

	n := int(h.DataSize) / bytesPerSample
	if n == 0 {
		return nil, 0, 0, fmt.Errorf("wav has an empty data chunk")
	}
	body := data[wavHeaderSize:]
	if len(body) < n*bytesPerSample {
		return nil, 0, 0, fmt.Errorf("wav truncated: data chunk declares %d bytes, %d present", h.DataSize, len(body))
	}

	return SamplesFromBytes(body[:n*bytesPerSample]), int(h.SampleRate), int(h.Channels), nil
}

// ValidateWAV checks the RIFF/WAVE markers without decoding audio data
func ValidateWAV(data []byte) error {
	_, err := parseHeader(data)
	return err
}

// WAVInfo describes a WAV payload
type WAVInfo struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Samples    int // across all channels
	DataBytes  int
	Duration   time.Duration
}

// InspectWAV reads the format and length of a WAV file
func InspectWAV(data []byte) (*WAVInfo, error) {
	h, err := parseHeader(data)
	if err != nil {
		return nil, err
	}
	if h.SampleRate == 0 || h.BitDepth < 8 || h.Channels == 0 {
		return nil, fmt.Errorf("wav header has a zero sample rate, bit depth or channel count")
	}

	samples := int(h.DataSize) / int(h.BitDepth/8)
	frames := samples / int(h.Channels)

	return &WAVInfo{
		SampleRate: int(h.SampleRate),
		Channels:   int(h.Channels),
		BitDepth:   int(h.BitDepth),
		Samples:    samples,
		DataBytes:  int(h.DataSize),
		Duration:   time.Duration(frames) * time.Second / time.Duration(h.SampleRate),
	}, nil
}

func parseHeader(data []byte) (riffHeader, error) {
	var h riffHeader
	if len(data) < wavHeaderSize {
		return h, fmt.Errorf("wav too short: %d bytes, header needs %d", len(data), wavHeaderSize)
	}
	if err := binary.Read(bytes.NewReader(data[:wavHeaderSize]), binary.LittleEndian, &h); err != nil {
		return h, fmt.Errorf("read wav header: %w", err)
	}

	for _, marker := range []struct {
		got  [4]byte
		want string
	}{
		{h.Riff, "RIFF"},
		{h.Wave, "WAVE"},
		{h.FmtID, "fmt "},
		{h.DataID, "data"},
	} {
		if string(marker.got[:]) != marker.want {
			return h, fmt.Errorf("not a wav file: expected %q marker, found %q", marker.want, string(marker.got[:]))
		}
	}
	return h, nil
}

// SamplesFromBytes converts little-endian PCM-16 bytes to samples.
// A trailing odd byte is dropped.
func SamplesFromBytes(data []byte) []int16 {
	samples := make([]int16, len(data)/bytesPerSample)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*bytesPerSample:]))
	}
	return samples
}

// BytesFromSamples converts samples to little-endian PCM-16 bytes
func BytesFromSamples(samples []int16) []byte {
	data := make([]byte, len(samples)*bytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*bytesPerSample:], uint16(s))
	}
	return data
}

// EncodePayload base64 encodes audio for the voting API. The result never
// carries a data URI prefix.
func EncodePayload(audio []byte) string {
	return base64.StdEncoding.EncodeToString(audio)
}

// DecodePayload decodes a base64 audio payload, accepting and stripping an
// optional "data:<mime>;base64," prefix.
func DecodePayload(payload string) ([]byte, error) {
	if strings.HasPrefix(payload, "data:") {
		idx := strings.Index(payload, ",")
		if idx < 0 {
			return nil, fmt.Errorf("malformed data URI: missing comma")
		}
		payload = payload[idx+1:]
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode audio payload: %w", err)
	}
	return data, nil
}

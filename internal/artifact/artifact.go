package artifact

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	bytesPerSample = 2 // 16-bit PCM
	bitsPerSample  = 16
	wavPCMFormat   = 1 // WAV PCM format tag

	// MediaTypeWAV is the media type every assembled artifact carries
	MediaTypeWAV = "audio/wav"
)

// Artifact is one assembled recording: the container bytes plus a
// dereferenceable locator the UI can bind to a playback element.
type Artifact struct {
	ID         uuid.UUID
	Data       []byte
	MediaType  string
	SampleRate int
	Channels   int
	CreatedAt  time.Time
}

// Locator returns the HTTP path the artifact is served at
func (a *Artifact) Locator() string {
	return "/artifacts/" + a.ID.String()
}

// Size returns the artifact size in bytes
func (a *Artifact) Size() int {
	return len(a.Data)
}

// Duration returns the playback duration of the contained audio
func (a *Artifact) Duration() time.Duration {
	bps := a.SampleRate * a.Channels * bytesPerSample
	if bps == 0 || len(a.Data) < wavHeaderSize {
		return 0
	}
	pcmLen := len(a.Data) - wavHeaderSize
	return time.Duration(float64(pcmLen) / float64(bps) * float64(time.Second))
}

const wavHeaderSize = 44

// Assemble concatenates the delivered chunks in order into a single WAV
// artifact. The chunk sequence is used exactly once, with no duplication or
// reordering.
func Assemble(chunks [][]byte, sampleRate, channels int) (*Artifact, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("invalid sample rate: %d", sampleRate)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("invalid channel count: %d", channels)
	}

	total := 0
	for _, c := range chunks {
		total += len(c)
	}

	pcm := make([]byte, 0, total)
	for _, c := range chunks {
		pcm = append(pcm, c...)
	}

	return &Artifact{
		ID:         uuid.New(),
		Data:       EncodeWAV(pcm, sampleRate, channels),
		MediaType:  MediaTypeWAV,
		SampleRate: sampleRate,
		Channels:   channels,
		CreatedAt:  time.Now(),
	}, nil
}

// EncodeWAV wraps raw little-endian 16-bit PCM in a RIFF/WAVE container
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	var buf bytes.Buffer
	bps := sampleRate * channels * bytesPerSample

	buf.Write([]byte("RIFF"))
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.Write([]byte("WAVE"))

	buf.Write([]byte("fmt "))
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(wavPCMFormat))
	binary.Write(&buf, binary.LittleEndian, uint16(channels))
	binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(&buf, binary.LittleEndian, uint32(bps))
	binary.Write(&buf, binary.LittleEndian, uint16(channels*bytesPerSample))
	binary.Write(&buf, binary.LittleEndian, uint16(bitsPerSample))

	buf.Write([]byte("data"))
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}

// PCM returns the raw sample bytes of the artifact, without the container
// header.
func (a *Artifact) PCM() []byte {
	if len(a.Data) < wavHeaderSize {
		return nil
	}
	return a.Data[wavHeaderSize:]
}

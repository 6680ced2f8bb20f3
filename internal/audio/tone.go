package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"sync"
)

// FallbackToneURI names the synthesized tone. Loaders resolve it without any
// I/O.
const FallbackToneURI = "embedded:tone"

const (
	toneSampleRate = 8000
	toneFrequency  = 880
	toneDuration   = 0.4 // seconds
)

var (
	toneOnce sync.Once
	toneWAV  []byte
)

// FallbackTone returns the synthesized beep as an 8-bit mono PCM WAV clip.
func FallbackTone() []byte {
	toneOnce.Do(func() {
		toneWAV = synthesize(toneSampleRate, toneFrequency, toneDuration)
	})
	out := make([]byte, len(toneWAV))
	copy(out, toneWAV)
	return out
}

func synthesize(rate, freq int, seconds float64) []byte {
	n := int(float64(rate) * seconds)
	pcm := make([]byte, n)
	fade := rate / 100 // 10ms ramps avoid clicks
	for i := range pcm {
		amp := 1.0
		if i < fade {
			amp = float64(i) / float64(fade)
		} else if i > n-fade {
			amp = float64(n-i) / float64(fade)
		}
		v := math.Sin(2 * math.Pi * float64(freq) * float64(i) / float64(rate))
		pcm[i] = byte(128 + int(100*amp*v))
	}

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+n))
	buf.WriteString("WAVEfmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))   // fmt chunk size
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))    // PCM
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))    // mono
	_ = binary.Write(&buf, binary.LittleEndian, uint32(rate)) // sample rate
	_ = binary.Write(&buf, binary.LittleEndian, uint32(rate)) // byte rate
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))    // block align
	_ = binary.Write(&buf, binary.LittleEndian, uint16(8))    // bits per sample
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(n))
	buf.Write(pcm)
	return buf.Bytes()
}

var errUnknownFormat = errors.New("unrecognized audio header")

// Sniff identifies a clip by its header. Anything other than a RIFF/WAVE or
// MP3 (ID3 tag or MPEG frame sync) payload is a decode error.
func Sniff(data []byte) (Format, error) {
	switch {
	case len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WAVE")):
		return FormatWAV, nil
	case len(data) >= 3 && bytes.Equal(data[0:3], []byte("ID3")):
		return FormatMP3, nil
	case len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return FormatMP3, nil
	}
	return "", errUnknownFormat
}

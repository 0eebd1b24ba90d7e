package cloud

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
)

const (
	wavSampleRate = 48000
	wavChannels   = 1
	wavBits       = 16
)

// WriteSilentWAV writes a 16-bit mono PCM file of the given length.
func WriteSilentWAV(path string, seconds float64) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	samples := uint32(math.Round(seconds * wavSampleRate))
	blockAlign := uint16(wavChannels * wavBits / 8)
	dataSize := samples * uint32(blockAlign)

	w := bufio.NewWriter(f)
	header := []any{
		[4]byte{'R', 'I', 'F', 'F'}, uint32(36 + dataSize), [4]byte{'W', 'A', 'V', 'E'},
		[4]byte{'f', 'm', 't', ' '}, uint32(16), uint16(1), uint16(wavChannels),
		uint32(wavSampleRate), uint32(wavSampleRate) * uint32(blockAlign), blockAlign, uint16(wavBits),
		[4]byte{'d', 'a', 't', 'a'}, dataSize,
	}
	for _, v := range header {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			f.Close()
			return err
		}
	}
	zeros := make([]byte, 4096)
	for remaining := int(dataSize); remaining > 0; remaining -= len(zeros) {
		if _, err := w.Write(zeros[:min(remaining, len(zeros))]); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Cue is one subtitle entry in absolute seconds.
type Cue struct {
	Start float64
	End   float64
	Text  string
}

// WriteSRT writes cues as a SubRip file.
func WriteSRT(path string, cues []Cue) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	var b strings.Builder
	for i, c := range cues {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1, SRTTimestamp(c.Start), SRTTimestamp(c.End), strings.TrimSpace(c.Text))
	}
	return os.WriteFile(path, []byte(b.String()), 0644)
}

// SRTTimestamp formats seconds as HH:MM:SS,mmm.
func SRTTimestamp(sec float64) string {
	ms := int64(math.Round(max(0, sec) * 1000))
	h := ms / 3_600_000
	m := ms / 60_000 % 60
	s := ms / 1000 % 60
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms%1000)
}

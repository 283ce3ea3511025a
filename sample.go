package riffline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// SampleData is a decoded audio sample ready for preview playback:
// interleaved float32 frames at the engine sample rate.
type SampleData struct {
	ID          string
	Name        string
	FilePath    string
	NumChannels int
	SampleRate  int
	Samples     []float32
}

// FrameCount returns the length of the sample in frames.
func (s *SampleData) FrameCount() int {
	if s.NumChannels == 0 {
		return 0
	}
	return len(s.Samples) / s.NumChannels
}

// LoadSample reads a .wav file and converts it to the engine sample
// rate. Mono and stereo files are accepted; the channel count is kept.
func LoadSample(path string, engineSampleRate int) (*SampleData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading sample %v failed: %w", path, err)
	}
	samples, numChannels, fileRate, err := ParseWav(data)
	if err != nil {
		return nil, fmt.Errorf("parsing sample %v failed: %w", path, err)
	}
	if numChannels > 2 {
		return nil, fmt.Errorf("sample %v has %d channels, only mono and stereo are supported", path, numChannels)
	}
	if fileRate != engineSampleRate {
		samples = Resample(samples, numChannels, fileRate, engineSampleRate)
	}
	return &SampleData{
		ID:          uuid.New().String(),
		Name:        filepath.Base(path),
		FilePath:    path,
		NumChannels: numChannels,
		SampleRate:  engineSampleRate,
		Samples:     samples,
	}, nil
}

// Resample converts interleaved samples from one rate to another with
// linear interpolation. Good enough for preview playback; rendering
// pipelines should resample offline with something better.
func Resample(samples []float32, numChannels, fromRate, toRate int) []float32 {
	if fromRate == toRate || numChannels == 0 {
		return samples
	}
	inFrames := len(samples) / numChannels
	if inFrames == 0 {
		return nil
	}
	outFrames := int(int64(inFrames) * int64(toRate) / int64(fromRate))
	out := make([]float32, outFrames*numChannels)
	ratio := float64(fromRate) / float64(toRate)
	for frame := 0; frame < outFrames; frame++ {
		srcPos := float64(frame) * ratio
		src := int(srcPos)
		frac := float32(srcPos - float64(src))
		next := src + 1
		if next >= inFrames {
			next = inFrames - 1
		}
		for ch := 0; ch < numChannels; ch++ {
			a := samples[src*numChannels+ch]
			b := samples[next*numChannels+ch]
			out[frame*numChannels+ch] = a + (b-a)*frac
		}
	}
	return out
}

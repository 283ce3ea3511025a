package riffline

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Wav wraps an interleaved sample buffer into a .wav file, either as
// 16-bit PCM or as 32-bit IEEE float.
func Wav(buffer []float32, sampleRate, numChannels int, pcm16 bool) ([]byte, error) {
	buf := new(bytes.Buffer)
	wavHeader(len(buffer), sampleRate, numChannels, pcm16, buf)
	err := rawToBuffer(buffer, pcm16, buf)
	if err != nil {
		return nil, fmt.Errorf("Wav failed: %v", err)
	}
	return buf.Bytes(), nil
}

// Raw converts an interleaved sample buffer into headerless sample data,
// either as 16-bit PCM or as 32-bit IEEE float.
func Raw(buffer []float32, pcm16 bool) ([]byte, error) {
	buf := new(bytes.Buffer)
	err := rawToBuffer(buffer, pcm16, buf)
	if err != nil {
		return nil, fmt.Errorf("Raw failed: %v", err)
	}
	return buf.Bytes(), nil
}

func rawToBuffer(data []float32, pcm16 bool, buf *bytes.Buffer) error {
	var err error
	if pcm16 {
		int16data := make([]int16, len(data))
		for i, v := range data {
			int16data[i] = int16(clamp(int(v*math.MaxInt16), math.MinInt16, math.MaxInt16))
		}
		err = binary.Write(buf, binary.LittleEndian, int16data)
	} else {
		err = binary.Write(buf, binary.LittleEndian, data)
	}
	if err != nil {
		return fmt.Errorf("could not binary write data to binary buffer: %v", err)
	}
	return nil
}

// wavHeader writes a wave header for either float32 or int16 .wav file
// into the bytes.Buffer. bufferLength is the total number of samples
// across all channels. If pcm16 = true, then the header is for int16
// audio; pcm16 = false means the header is for float32 audio.
func wavHeader(bufferLength, sampleRate, numChannels int, pcm16 bool, buf *bytes.Buffer) {
	// Refer to: http://www-mmsp.ece.mcgill.ca/Documents/AudioFormats/WAVE/WAVE.html
	var bytesPerSample, chunkSize, fmtChunkSize, waveFormat int
	var factChunk bool
	if pcm16 {
		bytesPerSample = 2
		chunkSize = 36 + bytesPerSample*bufferLength
		fmtChunkSize = 16
		waveFormat = 1 // PCM
		factChunk = false
	} else {
		bytesPerSample = 4
		chunkSize = 50 + bytesPerSample*bufferLength
		fmtChunkSize = 18
		waveFormat = 3 // IEEE float
		factChunk = true
	}
	buf.Write([]byte("RIFF"))
	binary.Write(buf, binary.LittleEndian, uint32(chunkSize))
	buf.Write([]byte("WAVE"))
	buf.Write([]byte("fmt "))
	binary.Write(buf, binary.LittleEndian, uint32(fmtChunkSize))
	binary.Write(buf, binary.LittleEndian, uint16(waveFormat))
	binary.Write(buf, binary.LittleEndian, uint16(numChannels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*numChannels*bytesPerSample)) // avgBytesPerSec
	binary.Write(buf, binary.LittleEndian, uint16(numChannels*bytesPerSample))            // blockAlign
	binary.Write(buf, binary.LittleEndian, uint16(8*bytesPerSample))                      // bits per sample
	if fmtChunkSize > 16 {
		binary.Write(buf, binary.LittleEndian, uint16(0)) // size of extension
	}
	if factChunk {
		buf.Write([]byte("fact"))
		binary.Write(buf, binary.LittleEndian, uint32(4))            // fact chunk size
		binary.Write(buf, binary.LittleEndian, uint32(bufferLength)) // sample length
	}
	buf.Write([]byte("data"))
	binary.Write(buf, binary.LittleEndian, uint32(bytesPerSample*bufferLength))
}

// ParseWav parses a .wav file, accepting the two encodings Wav writes
// (16-bit PCM and 32-bit IEEE float). It returns the interleaved
// samples as float32, the number of channels and the sample rate.
func ParseWav(data []byte) (samples []float32, numChannels, sampleRate int, err error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, 0, errors.New("not a RIFF WAVE file")
	}
	var waveFormat, bitsPerSample int
	var sampleData []byte
	pos := 12
	for pos+8 <= len(data) {
		chunkID := string(data[pos : pos+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := data[pos+8:]
		if chunkSize > len(body) {
			chunkSize = len(body)
		}
		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return nil, 0, 0, errors.New("fmt chunk too short")
			}
			waveFormat = int(binary.LittleEndian.Uint16(body[0:2]))
			numChannels = int(binary.LittleEndian.Uint16(body[2:4]))
			sampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			bitsPerSample = int(binary.LittleEndian.Uint16(body[14:16]))
		case "data":
			sampleData = body[:chunkSize]
		}
		pos += 8 + chunkSize
		if chunkSize%2 == 1 {
			pos++ // chunks are word aligned
		}
	}
	if sampleData == nil || numChannels == 0 {
		return nil, 0, 0, errors.New("missing fmt or data chunk")
	}
	switch {
	case waveFormat == 1 && bitsPerSample == 16:
		samples = make([]float32, len(sampleData)/2)
		for i := range samples {
			v := int16(binary.LittleEndian.Uint16(sampleData[2*i : 2*i+2]))
			samples[i] = float32(v) / math.MaxInt16
		}
	case waveFormat == 3 && bitsPerSample == 32:
		samples = make([]float32, len(sampleData)/4)
		for i := range samples {
			bits := binary.LittleEndian.Uint32(sampleData[4*i : 4*i+4])
			samples[i] = math.Float32frombits(bits)
		}
	default:
		return nil, 0, 0, fmt.Errorf("unsupported wave format %d with %d bits per sample", waveFormat, bitsPerSample)
	}
	return samples, numChannels, sampleRate, nil
}

func clamp(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

// Package audio holds the PCM and WAV plumbing shared by the capture
// pipeline, playback, and the HTTP layer. The voice layer's contract fixes
// the format: 48 kHz, stereo, 16-bit little-endian PCM.
package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	SampleRate = 48000
	Channels   = 2

	// FrameSamples is the per-channel sample count of one 20 ms Opus frame.
	FrameSamples = 960
)

var ErrNotWAV = errors.New("not a RIFF/WAVE container")

// EncodeWAV wraps raw s16le PCM in a WAV container so the bytes are
// decodable by anything downstream.
func EncodeWAV(pcm []byte) []byte {
	const headerSize = 44
	buf := make([]byte, headerSize+len(pcm))

	byteRate := SampleRate * Channels * 2
	blockAlign := Channels * 2

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+len(pcm)))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], Channels)
	binary.LittleEndian.PutUint32(buf[24:28], SampleRate)
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], 16)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(len(pcm)))
	copy(buf[headerSize:], pcm)

	return buf
}

// DecodeWAV extracts the PCM payload from a WAV container. It returns
// ErrNotWAV when the bytes carry no RIFF header, so callers can fall back to
// treating the input as raw PCM.
func DecodeWAV(data []byte) ([]byte, error) {
	if len(data) < 12 ||
		string(data[0:4]) != "RIFF" ||
		string(data[8:12]) != "WAVE" {
		return nil, ErrNotWAV
	}

	// Walk the chunk list; "fmt " and "data" can be separated by other
	// chunks (LIST, fact) depending on the encoder.
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8

		if body+size > len(data) {
			size = len(data) - body
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("malformed fmt chunk (%d bytes)", size)
			}
			format := binary.LittleEndian.Uint16(data[body : body+2])
			if format != 1 {
				return nil, fmt.Errorf("unsupported WAV format code %d", format)
			}
		case "data":
			return data[body : body+size], nil
		}

		// Chunks are word-aligned.
		off = body + size
		if size%2 == 1 {
			off++
		}
	}

	return nil, errors.New("WAV container has no data chunk")
}

// Int16Frames chops s16le PCM into frames of frameSamples total samples,
// padding the final frame with silence, the shape the Opus encoder wants.
func Int16Frames(pcm []byte, frameSamples int) [][]int16 {
	samples := make([]int16, len(pcm)/2)
	for i := 0; i+1 < len(pcm); i += 2 {
		samples[i/2] = int16(pcm[i]) | int16(pcm[i+1])<<8
	}

	var frames [][]int16
	for start := 0; start < len(samples); start += frameSamples {
		end := start + frameSamples
		if end > len(samples) {
			frame := make([]int16, frameSamples)
			copy(frame, samples[start:])
			frames = append(frames, frame)
			break
		}
		frames = append(frames, samples[start:end])
	}
	return frames
}

// Int16ToBytes converts decoded PCM samples back to the s16le byte layout
// the per-speaker accumulators store.
func Int16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

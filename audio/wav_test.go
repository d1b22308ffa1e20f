package audio

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeDecodeWAV(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}

	wav := EncodeWAV(pcm)

	if got := string(wav[0:4]); got != "RIFF" {
		t.Fatalf("expected RIFF header, got %q", got)
	}

	decoded, err := DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}
	if !bytes.Equal(decoded, pcm) {
		t.Errorf("round trip mismatch: expected %v, got %v", pcm, decoded)
	}
}

func TestDecodeWAVRejectsRaw(t *testing.T) {
	_, err := DecodeWAV([]byte{0x00, 0x01, 0x02, 0x03})
	if !errors.Is(err, ErrNotWAV) {
		t.Errorf("expected ErrNotWAV, got %v", err)
	}
}

func TestDecodeWAVSkipsExtraChunks(t *testing.T) {
	pcm := []byte{0xAA, 0xBB}
	wav := EncodeWAV(pcm)

	// Splice a LIST chunk between fmt and data.
	extra := append([]byte("LIST"), 0x04, 0x00, 0x00, 0x00, 'I', 'N', 'F', 'O')
	spliced := append([]byte{}, wav[:36]...)
	spliced = append(spliced, extra...)
	spliced = append(spliced, wav[36:]...)

	decoded, err := DecodeWAV(spliced)
	if err != nil {
		t.Fatalf("DecodeWAV failed on extra chunk: %v", err)
	}
	if !bytes.Equal(decoded, pcm) {
		t.Errorf("expected %v, got %v", pcm, decoded)
	}
}

func TestInt16FramesPadsFinalFrame(t *testing.T) {
	// Five samples, frame size four: expect two frames, second padded.
	pcm := Int16ToBytes([]int16{1, 2, 3, 4, 5})

	frames := Int16Frames(pcm, 4)

	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	for _, frame := range frames {
		if len(frame) != 4 {
			t.Errorf("expected frame of 4 samples, got %d", len(frame))
		}
	}
	if frames[1][0] != 5 || frames[1][1] != 0 {
		t.Errorf("final frame not padded with silence: %v", frames[1])
	}
}

func TestInt16FramesEmpty(t *testing.T) {
	if frames := Int16Frames(nil, FrameSamples); frames != nil {
		t.Errorf("expected no frames for empty input, got %d", len(frames))
	}
}

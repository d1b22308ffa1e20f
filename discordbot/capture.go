package discordbot

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"penny.bot/audio"
	"penny.bot/bus"
)

// pcmDecoder turns one Opus packet into 48 kHz stereo PCM samples.
// *gopus.Decoder satisfies it through the adapter in discord.go; tests
// substitute a pass-through.
type pcmDecoder interface {
	DecodePacket(opus []byte) ([]int16, error)
}

// speakerBuffer accumulates one participant's decoded audio between
// utterances. Created lazily on their first packet, reset on flush, removed
// when they leave.
type speakerBuffer struct {
	pcm      bytes.Buffer
	lastSeen time.Time
	decoder  pcmDecoder
	username string
}

// capture is the per-speaker segmentation state machine. The flush
// transition has two triggers: the explicit speaking-stopped signal from the
// voice gateway is the primary one, and the silence timeout sweep is the
// fallback for when that signal never arrives.
type capture struct {
	mu       sync.Mutex
	speakers map[uint32]*speakerBuffer // by SSRC
	ssrcFor  map[string]uint32         // userID -> SSRC

	bus *bus.Bus
	log *log.Logger

	flushAfter        time.Duration
	transcribeTimeout time.Duration

	newDecoder func() (pcmDecoder, error)
	now        func() time.Time
}

func newCapture(
	b *bus.Bus,
	logger *log.Logger,
	flushAfter time.Duration,
	transcribeTimeout time.Duration,
	newDecoder func() (pcmDecoder, error),
) *capture {
	return &capture{
		speakers:          make(map[uint32]*speakerBuffer),
		ssrcFor:           make(map[string]uint32),
		bus:               b,
		log:               logger,
		flushAfter:        flushAfter,
		transcribeTimeout: transcribeTimeout,
		newDecoder:        newDecoder,
		now:               time.Now,
	}
}

// Ingest appends one Opus packet's worth of audio to the speaker's buffer.
func (c *capture) Ingest(ssrc uint32, opus []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sb, ok := c.speakers[ssrc]
	if !ok {
		decoder, err := c.newDecoder()
		if err != nil {
			return err
		}
		sb = &speakerBuffer{decoder: decoder}
		c.speakers[ssrc] = sb
	}

	samples, err := sb.decoder.DecodePacket(opus)
	if err != nil {
		return err
	}
	sb.pcm.Write(audio.Int16ToBytes(samples))
	sb.lastSeen = c.now()
	return nil
}

// SetSpeaker records the SSRC-to-user mapping from a speaking update, and
// treats the speaking-stopped edge as an end-of-utterance signal.
func (c *capture) SetSpeaker(ssrc uint32, userID, username string, speaking bool) {
	c.mu.Lock()
	sb, ok := c.speakers[ssrc]
	if !ok {
		decoder, err := c.newDecoder()
		if err != nil {
			c.mu.Unlock()
			c.log.Error("create opus decoder", "error", err, "ssrc", ssrc)
			return
		}
		sb = &speakerBuffer{decoder: decoder}
		c.speakers[ssrc] = sb
	}
	sb.username = username
	c.ssrcFor[userID] = ssrc
	c.mu.Unlock()

	if !speaking {
		c.Flush(ssrc)
	}
}

// Flush hands the accumulated buffer off for transcription and resets it.
// An empty buffer short-circuits: nothing was captured, nothing is sent.
// Segmentation never blocks on the transcription result; the speaker may
// start talking again immediately.
func (c *capture) Flush(ssrc uint32) {
	c.mu.Lock()
	sb, ok := c.speakers[ssrc]
	if !ok || sb.pcm.Len() == 0 {
		c.mu.Unlock()
		return
	}

	pcm := make([]byte, sb.pcm.Len())
	copy(pcm, sb.pcm.Bytes())
	sb.pcm.Reset()
	speaker := sb.username
	if speaker == "" {
		// Sweep can fire before any speaking update mapped the SSRC to a
		// user; label the segment by its stream rather than nobody.
		speaker = fmt.Sprintf("ssrc-%d", ssrc)
	}
	c.mu.Unlock()

	go c.transcribeAndBroadcast(speaker, audio.EncodeWAV(pcm))
}

func (c *capture) transcribeAndBroadcast(speaker string, wav []byte) {
	reply := bus.NewFuture[string]()
	c.bus.Publish(context.Background(), bus.TranscriptionRequest{
		Audio: wav,
		Reply: reply,
	})

	ctx, cancel := context.WithTimeout(
		context.Background(),
		c.transcribeTimeout,
	)
	defer cancel()

	text, err := reply.Await(ctx)
	if err != nil {
		// Timeout and handler failure are both a silent no-broadcast
		// outcome for the pipeline, not a crash.
		c.log.Warn(
			"transcription yielded no result",
			"speaker", speaker,
			"error", err,
		)
		return
	}
	if strings.TrimSpace(text) == "" {
		return
	}

	c.bus.Publish(context.Background(), bus.TranscriptBroadcast{
		Speaker: speaker,
		Text:    text,
	})
}

// Sweep flushes every speaker whose buffer has been silent for longer than
// the configured timeout. This is the fallback flush trigger.
func (c *capture) Sweep() {
	c.mu.Lock()
	var stale []uint32
	cutoff := c.now().Add(-c.flushAfter)
	for ssrc, sb := range c.speakers {
		if sb.pcm.Len() > 0 && sb.lastSeen.Before(cutoff) {
			stale = append(stale, ssrc)
		}
	}
	c.mu.Unlock()

	for _, ssrc := range stale {
		c.Flush(ssrc)
	}
}

// DropUser discards a departing participant's buffer without flushing it.
func (c *capture) DropUser(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ssrc, ok := c.ssrcFor[userID]
	if !ok {
		return
	}
	delete(c.ssrcFor, userID)
	delete(c.speakers, ssrc)
}

// Buffered reports how many PCM bytes are pending for an SSRC.
func (c *capture) Buffered(ssrc uint32) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sb, ok := c.speakers[ssrc]; ok {
		return sb.pcm.Len()
	}
	return 0
}

package discordbot

import (
	"context"
	"errors"

	"github.com/bwmarrin/discordgo"
	"layeh.com/gopus"

	"penny.bot/audio"
	"penny.bot/bus"
)

// handlePlaybackRequest starts streaming the requested audio into the voice
// channel, replacing any playback already in progress. The reply settles as
// soon as streaming has been initiated; completion is not awaited. With no
// active voice connection the request fails immediately rather than queuing.
func (bot *Bot) handlePlaybackRequest(ctx context.Context, ev bus.Event) {
	req := ev.(bus.PlaybackRequest)

	vc := bot.currentVoiceConn()
	if vc == nil || !vc.Ready {
		req.Reply.Fail(ErrNotConnected)
		return
	}

	pcm, err := audio.DecodeWAV(req.Audio)
	if errors.Is(err, audio.ErrNotWAV) {
		// Raw s16le is accepted as-is.
		pcm = req.Audio
	} else if err != nil {
		req.Reply.Fail(err)
		return
	}

	playCtx := bot.replacePlayback()

	go bot.streamPCM(playCtx, vc, pcm)

	req.Reply.Resolve(struct{}{})
}

// replacePlayback cancels any in-flight playback and installs the next
// one's cancel func in one critical section, so two racing requests cannot
// orphan a stream whose cancel was overwritten before it fired.
func (bot *Bot) replacePlayback() context.Context {
	bot.playbackMu.Lock()
	defer bot.playbackMu.Unlock()
	if bot.playbackCancel != nil {
		bot.playbackCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	bot.playbackCancel = cancel
	return ctx
}

func (bot *Bot) stopPlayback() {
	bot.playbackMu.Lock()
	defer bot.playbackMu.Unlock()
	if bot.playbackCancel != nil {
		bot.playbackCancel()
		bot.playbackCancel = nil
	}
}

func (bot *Bot) streamPCM(
	ctx context.Context,
	vc *discordgo.VoiceConnection,
	pcm []byte,
) {
	encoder, err := gopus.NewEncoder(
		audio.SampleRate,
		audio.Channels,
		gopus.Audio,
	)
	if err != nil {
		bot.log.Error("failed to create opus encoder", "error", err)
		return
	}

	if err := vc.Speaking(true); err != nil {
		bot.log.Warn("set speaking state", "error", err)
	}
	defer func() {
		if err := vc.Speaking(false); err != nil {
			bot.log.Warn("clear speaking state", "error", err)
		}
	}()

	frames := audio.Int16Frames(pcm, audio.FrameSamples*audio.Channels)
	for _, frame := range frames {
		opusData, err := encoder.Encode(frame, audio.FrameSamples, 128000)
		if err != nil {
			bot.log.Error("failed to encode pcm frame", "error", err)
			continue
		}

		select {
		case <-ctx.Done():
			return
		case vc.OpusSend <- opusData:
		}
	}

	bot.log.Info("playback completed", "frames", len(frames))
}

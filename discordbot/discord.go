// Package discordbot is the voice-chat collaborator: it feeds per-speaker
// audio from a Discord voice channel into the bus and plays requested audio
// back into the channel.
package discordbot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/charmbracelet/log"
	"layeh.com/gopus"

	"penny.bot/audio"
	"penny.bot/bus"
)

var ErrNotConnected = errors.New("not connected to a voice channel")

const sweepInterval = 250 * time.Millisecond

// VoiceCall is the state of one active voice connection.
type VoiceCall struct {
	Conn      *discordgo.VoiceConnection
	GuildID   string
	ChannelID string

	// 3 seconds of 20ms packets; drop on overflow rather than stall the
	// gateway reader.
	InboundAudioPackets chan *discordgo.Packet
}

type Bot struct {
	mu        sync.Mutex
	log       *log.Logger
	bus       *bus.Bus
	discord   *discordgo.Session
	guildID   string
	channelID string

	voiceCall *VoiceCall
	capture   *capture

	playbackMu     sync.Mutex
	playbackCancel context.CancelFunc

	done chan struct{}
}

type Config struct {
	Token             string
	GuildID           string
	VoiceChannelID    string
	FlushSilence      time.Duration
	TranscribeTimeout time.Duration
}

func NewBot(cfg Config, b *bus.Bus, logger *log.Logger) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}

	bot := &Bot{
		log:       logger,
		bus:       b,
		discord:   session,
		guildID:   cfg.GuildID,
		channelID: cfg.VoiceChannelID,
		done:      make(chan struct{}),
	}
	bot.capture = newCapture(
		b,
		logger,
		cfg.FlushSilence,
		cfg.TranscribeTimeout,
		newGopusDecoder,
	)

	session.AddHandler(bot.handleVoiceStateUpdate)

	return bot, nil
}

// Start registers the playback handler, opens the gateway connection, and
// joins the configured voice channel.
func (bot *Bot) Start(ctx context.Context) error {
	bot.bus.Subscribe(bus.TypePlaybackRequest, bot.handlePlaybackRequest)

	if err := bot.discord.Open(); err != nil {
		return fmt.Errorf("open discord connection: %w", err)
	}

	if err := bot.joinVoiceCall(bot.guildID, bot.channelID); err != nil {
		return err
	}

	bot.bus.Publish(ctx, bus.LogNotice{
		Message: fmt.Sprintf("joined voice channel %s", bot.channelID),
		Level:   bus.LevelInfo,
	})
	return nil
}

func (bot *Bot) joinVoiceCall(guildID, channelID string) error {
	bot.mu.Lock()
	defer bot.mu.Unlock()

	if bot.voiceCall != nil {
		if err := bot.voiceCall.Conn.Disconnect(); err != nil {
			return fmt.Errorf(
				"disconnect from previous voice channel: %w",
				err,
			)
		}
	}

	vc, err := bot.discord.ChannelVoiceJoin(guildID, channelID, false, false)
	if err != nil {
		return fmt.Errorf("join voice channel: %w", err)
	}

	bot.log.Info("joined", "channel", channelID)

	bot.voiceCall = &VoiceCall{
		Conn:                vc,
		GuildID:             guildID,
		ChannelID:           channelID,
		InboundAudioPackets: make(chan *discordgo.Packet, 3*1000/20),
	}

	vc.AddHandler(bot.handleVoiceSpeakingUpdate)

	go bot.acceptInboundAudioPackets(bot.voiceCall)
	go bot.processInboundAudioPackets(bot.voiceCall)
	go bot.sweepLoop()

	return nil
}

func (bot *Bot) acceptInboundAudioPackets(call *VoiceCall) {
	for packet := range call.Conn.OpusRecv {
		select {
		case call.InboundAudioPackets <- packet:
		default:
			bot.log.Warn(
				"voice packet channel full, dropping packet",
				"channelID", call.ChannelID,
			)
		}
	}
	close(call.InboundAudioPackets)
}

func (bot *Bot) processInboundAudioPackets(call *VoiceCall) {
	for packet := range call.InboundAudioPackets {
		if err := bot.capture.Ingest(packet.SSRC, packet.Opus); err != nil {
			bot.log.Error(
				"failed to ingest voice packet",
				"error", err,
				"ssrc", packet.SSRC,
			)
		}
	}
}

func (bot *Bot) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-bot.done:
			return
		case <-ticker.C:
			bot.capture.Sweep()
		}
	}
}

func (bot *Bot) handleVoiceSpeakingUpdate(
	_ *discordgo.VoiceConnection,
	v *discordgo.VoiceSpeakingUpdate,
) {
	bot.log.Debug(
		"speaking update",
		"speaking", v.Speaking,
		"userID", v.UserID,
		"ssrc", v.SSRC,
	)
	bot.capture.SetSpeaker(
		uint32(v.SSRC),
		v.UserID,
		bot.usernameFor(v.UserID),
		v.Speaking,
	)
}

func (bot *Bot) handleVoiceStateUpdate(
	_ *discordgo.Session,
	v *discordgo.VoiceStateUpdate,
) {
	// Someone leaving the channel mid-utterance gets their buffer
	// discarded, not flushed.
	if v.ChannelID == "" {
		bot.capture.DropUser(v.UserID)
		bot.log.Info("participant left, buffer discarded", "userID", v.UserID)
	}
}

func (bot *Bot) usernameFor(userID string) string {
	user, err := bot.discord.User(userID)
	if err != nil {
		bot.log.Warn("failed to resolve username", "userID", userID, "error", err)
		return userID
	}
	return user.Username
}

func (bot *Bot) currentVoiceConn() *discordgo.VoiceConnection {
	bot.mu.Lock()
	defer bot.mu.Unlock()
	if bot.voiceCall == nil {
		return nil
	}
	return bot.voiceCall.Conn
}

// Close stops playback and the sweep loop, leaves the voice channel, and
// closes the gateway session. Audio stops being accepted once the voice
// connection is gone.
func (bot *Bot) Close() error {
	close(bot.done)
	bot.stopPlayback()

	bot.mu.Lock()
	vc := bot.voiceCall
	bot.voiceCall = nil
	bot.mu.Unlock()

	if vc != nil {
		if err := vc.Conn.Disconnect(); err != nil {
			bot.log.Warn("voice disconnect failed", "error", err)
		}
	}
	return bot.discord.Close()
}

// gopusDecoder adapts *gopus.Decoder to the capture pipeline's contract.
type gopusDecoder struct {
	dec *gopus.Decoder
}

func newGopusDecoder() (pcmDecoder, error) {
	dec, err := gopus.NewDecoder(audio.SampleRate, audio.Channels)
	if err != nil {
		return nil, fmt.Errorf("create opus decoder: %w", err)
	}
	return &gopusDecoder{dec: dec}, nil
}

func (g *gopusDecoder) DecodePacket(opus []byte) ([]int16, error) {
	return g.dec.Decode(opus, audio.FrameSamples, false)
}

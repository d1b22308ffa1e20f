package stt

import (
	"bytes"
	"context"
	"fmt"

	listenapi "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/rest"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/interfaces"
	listen "github.com/deepgram/deepgram-go-sdk/pkg/client/listen"
)

// Deepgram transcribes pre-recorded clips through the Deepgram REST API.
type Deepgram struct {
	api *listenapi.Client
}

func NewDeepgram(apiKey string) *Deepgram {
	c := listen.NewREST(apiKey, &interfaces.ClientOptions{})
	return &Deepgram{api: listenapi.New(c)}
}

func (d *Deepgram) Transcribe(
	ctx context.Context,
	wav []byte,
) (string, error) {
	options := &interfaces.PreRecordedTranscriptionOptions{
		Model:       "nova-2",
		SmartFormat: true,
		Punctuate:   true,
	}

	res, err := d.api.FromStream(ctx, bytes.NewReader(wav), options)
	if err != nil {
		return "", fmt.Errorf("deepgram request: %w", err)
	}

	if res == nil || len(res.Results.Channels) == 0 ||
		len(res.Results.Channels[0].Alternatives) == 0 {
		return "", nil
	}

	return res.Results.Channels[0].Alternatives[0].Transcript, nil
}

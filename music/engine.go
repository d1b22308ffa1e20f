package music

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RemoteEngine drives a MusicGen inference server over HTTP. The server
// takes a JSON prompt and answers with a WAV body.
type RemoteEngine struct {
	baseURL    string
	httpClient *http.Client
}

func NewRemoteEngine(baseURL string) *RemoteEngine {
	return &RemoteEngine{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Minute},
	}
}

type generatePayload struct {
	Prompt   string `json:"prompt"`
	Duration int    `json:"duration"`
}

func (e *RemoteEngine) Generate(
	ctx context.Context,
	prompt string,
	seconds int,
) ([]byte, error) {
	body, err := json.Marshal(generatePayload{
		Prompt:   prompt,
		Duration: seconds,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		e.baseURL+"/generate",
		bytes.NewReader(body),
	)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inference server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf(
			"inference server returned %d: %s",
			resp.StatusCode,
			bytes.TrimSpace(msg),
		)
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read generated audio: %w", err)
	}
	return wav, nil
}

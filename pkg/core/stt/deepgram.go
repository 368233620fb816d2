package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

const deepgramBaseURL = "https://api.deepgram.com/v1"

// DeepgramProvider implements the STT Provider interface using Deepgram's
// prerecorded transcription API. Deepgram accepts raw mu-law, so telephony
// utterances can be submitted without transcoding.
type DeepgramProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewDeepgram creates a new Deepgram STT provider.
func NewDeepgram(apiKey string) *DeepgramProvider {
	return &DeepgramProvider{
		apiKey:     apiKey,
		baseURL:    deepgramBaseURL,
		httpClient: &http.Client{},
	}
}

// NewDeepgramWithClient creates a Deepgram provider with a custom HTTP
// client and base URL, used by tests.
func NewDeepgramWithClient(apiKey, baseURL string, client *http.Client) *DeepgramProvider {
	return &DeepgramProvider{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: client,
	}
}

// Name returns the provider identifier.
func (d *DeepgramProvider) Name() string { return "deepgram" }

// Transcribe submits the audio buffer to Deepgram.
func (d *DeepgramProvider) Transcribe(ctx context.Context, audio io.Reader, opts TranscribeOptions) (*Transcript, error) {
	u, err := url.Parse(d.baseURL + "/listen")
	if err != nil {
		return nil, fmt.Errorf("deepgram url: %w", err)
	}
	q := u.Query()
	model := opts.Model
	if model == "" {
		model = "nova-2"
	}
	q.Set("model", model)
	language := opts.Language
	if language == "" {
		language = "en"
	}
	q.Set("language", language)
	if opts.Format == "mulaw" {
		q.Set("encoding", "mulaw")
		rate := opts.SampleRate
		if rate == 0 {
			rate = 8000
		}
		q.Set("sample_rate", fmt.Sprintf("%d", rate))
	}
	q.Set("punctuate", "true")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "POST", u.String(), audio)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+d.apiKey)
	contentType := "audio/wav"
	if opts.Format == "mulaw" {
		contentType = "audio/mulaw"
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deepgram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &httpStatusError{provider: "deepgram", status: resp.StatusCode, body: string(body)}
	}

	var dgResp deepgramResponse
	if err := json.NewDecoder(resp.Body).Decode(&dgResp); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	t := &Transcript{Language: language}
	if dgResp.Metadata != nil {
		t.Duration = dgResp.Metadata.Duration
	}
	if len(dgResp.Results.Channels) > 0 && len(dgResp.Results.Channels[0].Alternatives) > 0 {
		alt := dgResp.Results.Channels[0].Alternatives[0]
		t.Text = alt.Transcript
		t.Confidence = alt.Confidence
	}
	return t, nil
}

type deepgramResponse struct {
	Metadata *struct {
		Duration float64 `json:"duration"`
	} `json:"metadata"`
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// httpStatusError carries the HTTP status so the retrying client can
// distinguish transient provider failures from permanent ones.
type httpStatusError struct {
	provider string
	status   int
	body     string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("%s error %d: %s", e.provider, e.status, e.body)
}

// Transient reports whether the status is worth retrying.
func (e *httpStatusError) Transient() bool {
	return e.status == http.StatusTooManyRequests || e.status >= 500
}

package tryon

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tryon-server-go/internal/platform/config"
	"tryon-server-go/internal/platform/errors"
	"tryon-server-go/internal/platform/logging"
)

// Client talks to the try-on inference API. One instance is shared across
// requests; per-call deadlines come from context, not the http.Client.
type Client struct {
	http      *http.Client
	baseURL   string
	apiKey    string
	modelName string

	submitTimeout time.Duration
	pollTimeout   time.Duration
	fetchTimeout  time.Duration

	logger *logging.Logger
}

func NewClient(cfg config.InferenceConfig, logger *logging.Logger) *Client {
	return &Client{
		http:          &http.Client{},
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:        cfg.APIKey,
		modelName:     cfg.ModelName,
		submitTimeout: cfg.SubmitTimeout,
		pollTimeout:   cfg.PollTimeout,
		fetchTimeout:  cfg.FetchTimeout,
		logger:        logger,
	}
}

type submitRequest struct {
	ModelName string       `json:"model_name"`
	Inputs    submitInputs `json:"inputs"`
}

type submitInputs struct {
	ModelImage   string `json:"model_image"`
	GarmentImage string `json:"garment_image"`
}

type submitResponse struct {
	ID string `json:"id"`
}

type statusResponse struct {
	Status   string   `json:"status"`
	Progress int      `json:"progress"`
	Output   []string `json:"output"`
	Error    *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Submit starts a try-on job from two data-URI encoded images and returns
// the remote job id.
func (c *Client) Submit(ctx context.Context, modelImage, garmentImage string) (string, error) {
	const op = "tryon.Submit"

	body, err := json.Marshal(submitRequest{
		ModelName: c.modelName,
		Inputs:    submitInputs{ModelImage: modelImage, GarmentImage: garmentImage},
	})
	if err != nil {
		return "", errors.Wrap(errors.KindSubmission, op, "encode request", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.submitTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/run", bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(errors.KindSubmission, op, "build request", err)
	}
	c.authorize(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", errors.Wrap(errors.KindSubmission, op, "send request", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", errors.Wrap(errors.KindSubmission, op, "read response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := apiErrorMessage(payload, fmt.Sprintf("API error: %d", resp.StatusCode))
		c.logger.WarnTag("Inference", "submit rejected: status=%d msg=%s", resp.StatusCode, msg)
		return "", errors.New(errors.KindSubmission, op, msg)
	}

	var out submitResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return "", errors.Wrap(errors.KindSubmission, op, "decode response", err)
	}
	if out.ID == "" {
		return "", errors.New(errors.KindSubmission, op, "no job id returned")
	}
	return scrub(out.ID), nil
}

// PollOnce fetches the current state of a job. Authentication and rate
// limit rejections come back as their own kinds so the caller can stop
// polling; any other non-2xx answer is transient.
func (c *Client) PollOnce(ctx context.Context, jobID string) (Snapshot, error) {
	const op = "tryon.PollOnce"

	ctx, cancel := context.WithTimeout(ctx, c.pollTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status/"+jobID, nil)
	if err != nil {
		return Snapshot{}, errors.Wrap(errors.KindTransient, op, "build request", err)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return Snapshot{}, errors.Wrap(errors.KindTransient, op, "poll failed", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Snapshot{}, errors.Wrap(errors.KindTransient, op, "read response", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Snapshot{}, errors.New(errors.KindAuth, op, apiErrorMessage(payload, "authentication failed"))
	case resp.StatusCode == http.StatusTooManyRequests:
		return Snapshot{}, errors.New(errors.KindRateLimit, op, apiErrorMessage(payload, "rate limited"))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return Snapshot{}, errors.New(errors.KindTransient, op,
			fmt.Sprintf("status endpoint returned %d", resp.StatusCode))
	}

	var out statusResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return Snapshot{}, errors.Wrap(errors.KindTransient, op, "decode response", err)
	}

	snap := Snapshot{
		Status:     ParseJobStatus(scrub(out.Status)),
		RawStatus:  scrub(out.Status),
		Progress:   clampProgress(out.Progress),
		OutputURLs: out.Output,
	}
	for i, u := range snap.OutputURLs {
		snap.OutputURLs[i] = scrub(u)
	}
	if out.Error != nil {
		snap.ErrorMessage = scrub(out.Error.Message)
	}
	return snap, nil
}

// FetchOutput downloads the finished image from the URL the status endpoint
// reported.
func (c *Client) FetchOutput(ctx context.Context, url string) ([]byte, error) {
	const op = "tryon.FetchOutput"

	ctx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Wrap(errors.KindFetch, op, "build request", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.KindFetch, op, "download failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.New(errors.KindFetch, op,
			fmt.Sprintf("result download returned %d", resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, errors.Wrap(errors.KindFetch, op, "read body", err)
	}
	if len(data) == 0 {
		return nil, errors.New(errors.KindFetch, op, "empty result body")
	}
	return data, nil
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
}

// apiErrorMessage extracts the API's own error text from a failure
// response body. The API reports errors either as a top-level string
// ({"error": "..."}), a nested object ({"error": {"message": "..."}}), or a
// bare {"message": "..."}; fallback is used when none is present.
func apiErrorMessage(payload []byte, fallback string) string {
	var body struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(payload, &body); err == nil {
		var flat string
		if json.Unmarshal(body.Error, &flat) == nil && flat != "" {
			return scrub(flat)
		}
		var nested struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(body.Error, &nested) == nil && nested.Message != "" {
			return scrub(nested.Message)
		}
		if body.Message != "" {
			return scrub(body.Message)
		}
	}
	return fallback
}

// scrub strips newlines from API-supplied strings before they reach logs
// or the single-line SSE frames.
func scrub(s string) string {
	if !strings.ContainsAny(s, "\r\n") {
		return s
	}
	s = strings.ReplaceAll(s, "\r", " ")
	return strings.ReplaceAll(s, "\n", " ")
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// Package collaborator talks to the external storage service that owns study
// definitions and collected responses.
package collaborator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"reading-study-service/internal/domain"
)

// DefaultCSRFHeader is the anti-forgery header the collaborator expects.
const DefaultCSRFHeader = "X-CSRFToken"

// Config describes where the collaborator lives.
type Config struct {
	BaseURL        string
	DefinitionPath string
	SubmissionPath string
	CSRFHeader     string
	Timeout        time.Duration
}

// Client implements both the definition loader and the submission gateway.
type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config, httpClient *http.Client) *Client {
	if cfg.DefinitionPath == "" {
		cfg.DefinitionPath = "/api/study"
	}
	if cfg.SubmissionPath == "" {
		cfg.SubmissionPath = "/api/responses"
	}
	if cfg.CSRFHeader == "" {
		cfg.CSRFHeader = DefaultCSRFHeader
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{cfg: cfg, http: httpClient}
}

// LoadDefinition fetches the study definition. The endpoint takes no
// parameters; when it returns a list, the first definition is used.
func (c *Client) LoadDefinition(ctx context.Context, studyID string) (domain.StudyDefinition, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(c.cfg.DefinitionPath), nil)
	if err != nil {
		return domain.StudyDefinition{}, fmt.Errorf("build definition request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.StudyDefinition{}, fmt.Errorf("fetch definition: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.StudyDefinition{}, fmt.Errorf("fetch definition %s: %w", studyID, domain.ErrStudyNotFound)
	}
	if resp.StatusCode/100 != 2 {
		return domain.StudyDefinition{}, fmt.Errorf("fetch definition: unexpected status %d: %s", resp.StatusCode, readSnippet(resp.Body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.StudyDefinition{}, fmt.Errorf("read definition: %w", err)
	}
	return decodeDefinition(body)
}

func decodeDefinition(body []byte) (domain.StudyDefinition, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []domain.StudyDefinition
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return domain.StudyDefinition{}, fmt.Errorf("decode definition list: %w", err)
		}
		if len(list) == 0 {
			return domain.StudyDefinition{}, fmt.Errorf("decode definition list: %w", domain.ErrStudyNotFound)
		}
		return list[0], nil
	}
	var def domain.StudyDefinition
	if err := json.Unmarshal(trimmed, &def); err != nil {
		return domain.StudyDefinition{}, fmt.Errorf("decode definition: %w", err)
	}
	return def, nil
}

// Submit posts the assembled payload once. The response body is only used for error messages.
func (c *Client) Submit(ctx context.Context, env domain.Envelope) error {
	payload, err := json.Marshal(env.Submission)
	if err != nil {
		return fmt.Errorf("marshal submission: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(c.cfg.SubmissionPath), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build submission request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if env.CSRFToken != "" {
		req.Header.Set(c.cfg.CSRFHeader, env.CSRFToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post submission: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("post submission: unexpected status %d: %s", resp.StatusCode, readSnippet(resp.Body))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) url(path string) string {
	return strings.TrimSuffix(c.cfg.BaseURL, "/") + "/" + strings.TrimPrefix(path, "/")
}

func readSnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return strings.TrimSpace(string(b))
}

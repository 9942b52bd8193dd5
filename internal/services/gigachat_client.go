package services

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/edulight/edulight-backend/internal/apperr"
	"github.com/edulight/edulight-backend/internal/logger"
	"github.com/edulight/edulight-backend/internal/utils"
)

// GigaChatClient is the outbound model-provider surface the pipeline depends
// on: one embedding call per text chunk and one completion call per quiz
// prompt. Both are capped by a shared in-flight semaphore so a large lecture
// cannot flood the provider.
type GigaChatClient interface {
	Embed(ctx context.Context, input string) ([]float32, error)
	Complete(ctx context.Context, prompt string) (string, error)
}

type gigaChatClient struct {
	log        *logger.Logger
	baseURL    string
	authURL    string
	authKey    string
	scope      string
	model      string
	embedModel string
	httpClient *http.Client

	maxRetries int
	inflight   *semaphore.Weighted

	tokenMu     sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewGigaChatClient(log *logger.Logger) (GigaChatClient, error) {
	svcLog := log.With("service", "GigaChatClient")

	authKey := utils.GetEnv("GIGACHAT_AUTH_KEY", "", svcLog)
	if authKey == "" {
		return nil, fmt.Errorf("%w: missing GIGACHAT_AUTH_KEY", apperr.ErrConfiguration)
	}

	baseURL := utils.GetEnv("GIGACHAT_BASE_URL", "https://gigachat.devices.sberbank.ru/api/v1", svcLog)
	authURL := utils.GetEnv("GIGACHAT_AUTH_URL", "https://ngw.devices.sberbank.ru:9443/api/v2/oauth", svcLog)
	scope := utils.GetEnv("GIGACHAT_SCOPE", "GIGACHAT_API_PERS", svcLog)
	model := utils.GetEnv("GIGACHAT_MODEL", "GigaChat", svcLog)
	embedModel := utils.GetEnv("GIGACHAT_EMBED_MODEL", "Embeddings", svcLog)

	timeoutSec := utils.GetEnvAsInt("GIGACHAT_TIMEOUT_SECONDS", 120, svcLog)
	maxRetries := utils.GetEnvAsInt("GIGACHAT_MAX_RETRIES", 3, svcLog)
	maxInflight := utils.GetEnvAsInt("GIGACHAT_MAX_CONCURRENT", 10, svcLog)
	if maxInflight < 1 {
		maxInflight = 1
	}

	transport := http.DefaultTransport
	if utils.GetEnvAsBool("GIGACHAT_INSECURE_TLS", false, svcLog) {
		// The provider's gateway ships a non-public root CA in some regions.
		transport = &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}
	}

	return &gigaChatClient{
		log:        svcLog,
		baseURL:    strings.TrimRight(baseURL, "/"),
		authURL:    authURL,
		authKey:    authKey,
		scope:      scope,
		model:      model,
		embedModel: embedModel,
		httpClient: &http.Client{
			Timeout:   time.Duration(timeoutSec) * time.Second,
			Transport: transport,
		},
		maxRetries: maxRetries,
		inflight:   semaphore.NewWeighted(int64(maxInflight)),
	}, nil
}

type gigaChatHTTPError struct {
	StatusCode int
	Body       string
}

func (e *gigaChatHTTPError) Error() string {
	return fmt.Sprintf("gigachat http %d: %s", e.StatusCode, e.Body)
}

func isRetryableHTTP(code int) bool {
	if code == 408 || code == 429 {
		return true
	}
	return code >= 500 && code <= 599
}

func isRetryableErr(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var httpErr *gigaChatHTTPError
	if errors.As(err, &httpErr) {
		return isRetryableHTTP(httpErr.StatusCode)
	}
	return false
}

func jitterSleep(base time.Duration) time.Duration {
	// +/- 20%
	if base <= 0 {
		return 0
	}
	delta := base.Seconds() * 0.2
	low := base.Seconds() - delta
	high := base.Seconds() + delta
	v := low + rand.Float64()*(high-low)
	return time.Duration(v * float64(time.Second))
}

type oauthResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"` // unix millis
}

// token returns a cached OAuth access token, refreshing it when it is within
// a minute of expiry. The provider issues 30-minute tokens.
func (c *gigaChatClient) token(ctx context.Context) (string, error) {
	c.tokenMu.Lock()
	defer c.tokenMu.Unlock()

	if c.accessToken != "" && time.Until(c.tokenExpiry) > time.Minute {
		return c.accessToken, nil
	}

	form := url.Values{"scope": {c.scope}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Basic "+c.authKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("RqUID", uuid.New().String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: gigachat oauth: %v", apperr.ErrExternal, err)
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return "", readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: gigachat oauth http %d: %s", apperr.ErrExternal, resp.StatusCode, string(raw))
	}

	var parsed oauthResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("gigachat oauth decode: %w", err)
	}
	if parsed.AccessToken == "" {
		return "", fmt.Errorf("%w: gigachat oauth returned empty token", apperr.ErrExternal)
	}

	c.accessToken = parsed.AccessToken
	if parsed.ExpiresAt > 0 {
		c.tokenExpiry = time.UnixMilli(parsed.ExpiresAt)
	} else {
		c.tokenExpiry = time.Now().Add(25 * time.Minute)
	}
	return c.accessToken, nil
}

func (c *gigaChatClient) invalidateToken() {
	c.tokenMu.Lock()
	c.accessToken = ""
	c.tokenMu.Unlock()
}

func (c *gigaChatClient) doOnce(ctx context.Context, path string, body any) (*http.Response, []byte, error) {
	tok, err := c.token(ctx)
	if err != nil {
		return nil, nil, err
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}

	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.invalidateToken()
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &gigaChatHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

func (c *gigaChatClient) do(ctx context.Context, path string, body any, out any) error {
	if err := c.inflight.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.inflight.Release(1)

	// exponential backoff: 1s, 2s, 4s (cap 10s)
	backoff := 1 * time.Second

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resp, raw, err := c.doOnce(ctx, path, body)
		if err == nil {
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return fmt.Errorf("gigachat decode error: %w; raw=%s", uErr, string(raw))
			}
			return nil
		}

		retryable := isRetryableErr(err)
		var httpErr *gigaChatHTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusUnauthorized {
			// token was invalidated above; one fresh-token retry is worth it
			retryable = true
		}
		if !retryable || attempt == c.maxRetries {
			return fmt.Errorf("%w: %v", apperr.ErrExternal, err)
		}

		sleepFor := backoff
		if resp != nil {
			if ra := strings.TrimSpace(resp.Header.Get("Retry-After")); ra != "" {
				if secs, parseErr := strconv.Atoi(ra); parseErr == nil && secs > 0 {
					sleepFor = time.Duration(secs) * time.Second
				}
			}
		}
		if sleepFor > 10*time.Second {
			sleepFor = 10 * time.Second
		}
		sleepFor = jitterSleep(sleepFor)

		c.log.Warn("GigaChat request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleepFor):
		}
		backoff *= 2
	}

	return fmt.Errorf("unreachable retry loop")
}

// ---- Embeddings ----

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (c *gigaChatClient) Embed(ctx context.Context, input string) ([]float32, error) {
	req := embeddingsRequest{
		Model: c.embedModel,
		Input: []string{input},
	}
	var resp embeddingsResponse
	if err := c.do(ctx, "/embeddings", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: gigachat returned no embedding data", apperr.ErrExternal)
	}
	vec := make([]float32, len(resp.Data[0].Embedding))
	for i, f := range resp.Data[0].Embedding {
		vec[i] = float32(f)
	}
	return vec, nil
}

// ---- Chat completions ----

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *gigaChatClient) Complete(ctx context.Context, prompt string) (string, error) {
	req := chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: 0.7,
	}
	var resp chatResponse
	if err := c.do(ctx, "/chat/completions", req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: gigachat returned no choices", apperr.ErrExternal)
	}
	return resp.Choices[0].Message.Content, nil
}

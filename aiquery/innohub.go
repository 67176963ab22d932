package aiquery

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cenkalti/backoff/v5"
)

const innohubPath = "/t2n_rasa_response/"

type InnohubConfig struct {
	BaseURL   string
	APIKey    string
	Assistant string
	Timeout   time.Duration
	// MaxTries bounds the attempts per question; zero means 3.
	MaxTries uint
	// RetryInterval is the first backoff delay; zero keeps the library default.
	RetryInterval time.Duration
}

// InnohubClient asks the Innohub text-to-numbers service.
type InnohubClient struct {
	conf   InnohubConfig
	client *http.Client
}

func NewInnohubClient(conf InnohubConfig) *InnohubClient {
	if conf.Assistant == "" {
		conf.Assistant = "Smarty"
	}
	if conf.MaxTries == 0 {
		conf.MaxTries = 3
	}
	if conf.Timeout <= 0 {
		conf.Timeout = 30 * time.Second
	}
	return &InnohubClient{
		conf:   conf,
		client: &http.Client{Timeout: conf.Timeout},
	}
}

type innohubResponse struct {
	Response string `json:"response"`
}

// statusError is a non-2xx reply.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("innohub status %d: %s", e.code, e.body)
}

func (c *InnohubClient) Answer(ctx context.Context, q *Question) (string, error) {
	endpoint := strings.TrimRight(c.conf.BaseURL, "/") + innohubPath
	params := url.Values{}
	params.Set("user_message", q.Text)
	params.Set("assistant", c.conf.Assistant)
	params.Set("scope", q.Scope)

	b := backoff.NewExponentialBackOff()
	if c.conf.RetryInterval > 0 {
		b.InitialInterval = c.conf.RetryInterval
	}
	answer, err := backoff.Retry(ctx, func() (string, error) {
		return c.do(ctx, endpoint+"?"+params.Encode())
	}, backoff.WithBackOff(b), backoff.WithMaxTries(c.conf.MaxTries))
	if err != nil {
		return "", fmt.Errorf("innohub: %w", err)
	}
	return answer, nil
}

func (c *InnohubClient) do(ctx context.Context, endpoint string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", backoff.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", c.conf.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		slog.Warn("Innohub request failed", "error", err)
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		serr := &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(body))}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			slog.Warn("Innohub unavailable", "status", resp.StatusCode)
			return "", serr
		}
		return "", backoff.Permanent(serr)
	}

	var out innohubResponse
	if err := sonic.Unmarshal(body, &out); err != nil {
		return "", backoff.Permanent(fmt.Errorf("decode response: %w", err))
	}
	if strings.TrimSpace(out.Response) == "" {
		return "", backoff.Permanent(ErrEmptyResponse)
	}
	return out.Response, nil
}

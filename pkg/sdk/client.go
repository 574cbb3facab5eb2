package sdk

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 << 10

// Client is the qanoneed API entry point. It is safe for concurrent use.
type Client struct {
	baseURL *url.URL
	apiKey  string
	http    *http.Client
	obs     *observer
}

// New creates a Client for the API at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("qanoneed: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("qanoneed: base url must be http or https, got %q", baseURL)
	}

	cfg := &clientConfig{timeout: DefaultTimeout}
	for _, o := range opts {
		o.apply(cfg)
	}

	hc := cfg.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.timeout}
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	return &Client{baseURL: u, apiKey: cfg.apiKey, http: hc, obs: obs}, nil
}

type questionRequest struct {
	Question string `json:"question"`
}

type answerResponse struct {
	Answer string `json:"answer"`
}

// Chat asks a legal question and returns the reviewed answer.
func (c *Client) Chat(ctx context.Context, question string) (string, error) {
	return c.ask(ctx, "/chat", question)
}

// Roadmap returns a procedural roadmap (HTML) for the question.
func (c *Client) Roadmap(ctx context.Context, question string) (string, error) {
	return c.ask(ctx, "/roadmap", question)
}

func (c *Client) ask(ctx context.Context, path, question string) (answer string, err error) {
	start := time.Now()
	defer func() { c.obs.observe(path, start, err) }()

	var resp answerResponse
	if err = c.do(ctx, http.MethodPost, path, nil, questionRequest{Question: question}, &resp); err != nil {
		return "", err
	}
	return resp.Answer, nil
}

// Stream asks a question over the SSE endpoint and calls fn once per event.
// event is empty for data events and StreamEventError for failures.
func (c *Client) Stream(ctx context.Context, question string, fn func(event, data string)) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("/chat/stream", start, err) }()

	req, err := c.newRequest(ctx, http.MethodGet, "/chat/stream", url.Values{"question": {question}}, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("qanoneed: stream: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode/100 != 2 {
		return decodeAPIError(resp)
	}
	return readEvents(resp.Body, fn)
}

// readEvents parses a text/event-stream body. Data lines of one event are
// joined with newlines; comments and unknown fields are skipped.
func readEvents(r io.Reader, fn func(event, data string)) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), 8<<20)

	var (
		event string
		data  []string
	)
	dispatch := func() {
		if len(data) > 0 {
			fn(event, strings.Join(data, "\n"))
		}
		event, data = "", nil
	}

	for sc.Scan() {
		line := strings.TrimSuffix(sc.Text(), "\r")
		switch {
		case line == "":
			dispatch()
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("qanoneed: read stream: %w", err)
	}
	dispatch()
	return nil
}

type virtualRequest struct {
	UserQuery any `json:"user_query"`
}

type virtualResponse struct {
	Result json.RawMessage `json:"result"`
}

// Virtual predicts a ruling for a case description. userQuery may be a
// string or any JSON-encodable value. A 200 response that carries an
// error message is returned as *VirtualError.
func (c *Client) Virtual(ctx context.Context, userQuery any) (res *JudgmentResult, err error) {
	start := time.Now()
	defer func() { c.obs.observe("/virtual", start, err) }()

	var resp virtualResponse
	if err = c.do(ctx, http.MethodPost, "/virtual", nil, virtualRequest{UserQuery: userQuery}, &resp); err != nil {
		return nil, err
	}

	var failure struct {
		Error *string `json:"error"`
	}
	if err = json.Unmarshal(resp.Result, &failure); err != nil {
		return nil, fmt.Errorf("qanoneed: decode virtual result: %w", err)
	}
	if failure.Error != nil {
		return nil, &VirtualError{Message: *failure.Error}
	}

	var out JudgmentResult
	if err = json.Unmarshal(resp.Result, &out); err != nil {
		return nil, fmt.Errorf("qanoneed: decode virtual result: %w", err)
	}
	return &out, nil
}

// Classify returns the legal domain label of a question.
func (c *Client) Classify(ctx context.Context, question string) (label string, err error) {
	start := time.Now()
	defer func() { c.obs.observe("/classify", start, err) }()

	var resp struct {
		Domain string `json:"domain"`
	}
	if err = c.do(ctx, http.MethodPost, "/classify", nil, questionRequest{Question: question}, &resp); err != nil {
		return "", err
	}
	return resp.Domain, nil
}

// Usage returns the generation token budget report. An empty period means day.
func (c *Client) Usage(ctx context.Context, period UsagePeriod) (rep UsageReport, err error) {
	start := time.Now()
	defer func() { c.obs.observe("/usage", start, err) }()

	var q url.Values
	if period != "" {
		q = url.Values{"period": {string(period)}}
	}
	err = c.do(ctx, http.MethodGet, "/usage", q, nil, &rep)
	return rep, err
}

// Health checks liveness.
func (c *Client) Health(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("/health", start, err) }()

	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}

// Ready returns the readiness report. A degraded server answers 503; the
// report is still returned along with the *APIError.
func (c *Client) Ready(ctx context.Context) (st ReadyStatus, err error) {
	start := time.Now()
	defer func() { c.obs.observe("/ready", start, err) }()

	req, err := c.newRequest(ctx, http.MethodGet, "/ready", nil, nil)
	if err != nil {
		return st, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return st, fmt.Errorf("qanoneed: ready: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return st, fmt.Errorf("qanoneed: read ready: %w", err)
	}
	if jsonErr := json.Unmarshal(body, &st); jsonErr != nil {
		return st, fmt.Errorf("qanoneed: decode ready: %w", jsonErr)
	}
	if resp.StatusCode/100 != 2 {
		return st, &APIError{StatusCode: resp.StatusCode, Detail: st.Status}
	}
	return st, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, q url.Values, body any) (*http.Request, error) {
	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	if q != nil {
		u.RawQuery = q.Encode()
	}

	var r io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("qanoneed: encode request: %w", err)
		}
		r = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), r)
	if err != nil {
		return nil, fmt.Errorf("qanoneed: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

// do sends a JSON request and decodes the JSON response into out (if non-nil).
func (c *Client) do(ctx context.Context, method, path string, q url.Values, body, out any) error {
	req, err := c.newRequest(ctx, method, path, q, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("qanoneed: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode/100 != 2 {
		return decodeAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("qanoneed: decode %s: %w", path, err)
	}
	return nil
}

// decodeAPIError reads {detail} from an error response. A body that is not
// JSON becomes the detail verbatim.
func decodeAPIError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{StatusCode: resp.StatusCode}
	if err != nil {
		return apiErr
	}

	var payload struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Detail != "" {
		apiErr.Detail = payload.Detail
	} else {
		apiErr.Detail = strings.TrimSpace(string(body))
	}
	return apiErr
}

// IsStatus reports whether err is an *APIError with the given status code.
func IsStatus(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == code
}

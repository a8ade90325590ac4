// Package genai is a small client for Gemini-style generateContent APIs.
// It covers content generation, multipart/related file uploads and
// downloading generated images, with optional HTTP or SOCKS5 proxies.
package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"golang.org/x/net/proxy"
)

const (
	// UserAgent PuckRelay 的 User-Agent
	UserAgent = "PuckRelay/1.0"

	// Auth methods
	AuthQuery  = "query"
	AuthHeader = "header"
	AuthBearer = "bearer"

	apiKeyHeader = "x-goog-api-key"
)

var (
	// ErrInvalidURL is returned when an endpoint cannot be built from the configuration.
	ErrInvalidURL = errors.New("genai: invalid url")
	// ErrMissingAPIKey is returned before any request when no key is configured.
	ErrMissingAPIKey = errors.New("genai: missing api key")
	// ErrNoFileURI is returned when the upload response carries no file uri.
	ErrNoFileURI = errors.New("genai: upload response has no file uri")
)

// Config describes one provider endpoint.
type Config struct {
	BaseURL    string
	UploadURL  string
	AuthMethod string
	APIKey     string
	ProxyURL   string
}

// Client talks to one provider. It is safe for concurrent use.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient 创建 provider 客户端（支持代理）
// 超时由调用方的 context 控制，http.Client 本身不设超时。
func NewClient(cfg Config) (*Client, error) {
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	if cfg.AuthMethod == "" {
		cfg.AuthMethod = AuthHeader
	}

	httpClient, err := newHTTPClient(cfg.ProxyURL)
	if err != nil {
		return nil, err
	}
	return &Client{cfg: cfg, httpClient: httpClient}, nil
}

// HasAPIKey reports whether a key is configured.
func (c *Client) HasAPIKey() bool {
	return c.cfg.APIKey != ""
}

// GenerateContent posts req to {baseURL}/models/{model}:generateContent and
// returns the raw 2xx body. Non-2xx responses are returned as *StatusError.
func (c *Client) GenerateContent(ctx context.Context, model string, req *GenerateContentRequest) ([]byte, error) {
	if !c.HasAPIKey() {
		return nil, ErrMissingAPIKey
	}
	endpoint, err := c.generateEndpoint(model)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.authorize(httpReq)

	return c.do(httpReq)
}

// UploadFile sends data to the file API as multipart/related and returns the file uri.
func (c *Client) UploadFile(ctx context.Context, data []byte, mimeType string) (string, error) {
	if !c.HasAPIKey() {
		return "", ErrMissingAPIKey
	}
	endpoint, err := c.uploadEndpoint()
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	meta, err := json.Marshal(UploadMetadata{File: UploadFileInfo{DisplayName: "puckrelay-" + uuid.NewString()}})
	if err != nil {
		return "", fmt.Errorf("failed to encode upload metadata: %w", err)
	}
	metaPart, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {"application/json; charset=UTF-8"}})
	if err != nil {
		return "", fmt.Errorf("failed to create metadata part: %w", err)
	}
	if _, err := metaPart.Write(meta); err != nil {
		return "", fmt.Errorf("failed to write metadata part: %w", err)
	}

	dataPart, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {mimeType}})
	if err != nil {
		return "", fmt.Errorf("failed to create media part: %w", err)
	}
	if _, err := dataPart.Write(data); err != nil {
		return "", fmt.Errorf("failed to write media part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("failed to close multipart body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	httpReq.Header.Set("Content-Type", "multipart/related; boundary="+mw.Boundary())
	httpReq.Header.Set("X-Goog-Upload-Protocol", "multipart")
	c.authorize(httpReq)

	respBody, err := c.do(httpReq)
	if err != nil {
		return "", err
	}

	var resp UploadResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("failed to decode upload response: %w", err)
	}
	if resp.File.URI == "" {
		return "", ErrNoFileURI
	}
	return resp.File.URI, nil
}

// Download fetches a generated asset. The provider key is attached only when
// the asset lives on the provider's own host.
func (c *Client) Download(ctx context.Context, rawURL string) ([]byte, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, "", fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if base, err := url.Parse(c.cfg.BaseURL); err == nil && base.Host == u.Host {
		c.authorize(httpReq)
	} else {
		httpReq.Header.Set("User-Agent", UserAgent)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", parseStatusError(resp.StatusCode, body)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseStatusError(resp.StatusCode, body)
	}
	return body, nil
}

func (c *Client) generateEndpoint(model string) (string, error) {
	if model == "" {
		return "", fmt.Errorf("%w: empty model", ErrInvalidURL)
	}
	base, err := url.Parse(c.cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("%w: base url %q", ErrInvalidURL, c.cfg.BaseURL)
	}
	return fmt.Sprintf("%s/models/%s:generateContent", c.cfg.BaseURL, url.PathEscape(model)), nil
}

func (c *Client) uploadEndpoint() (string, error) {
	u, err := url.Parse(c.cfg.UploadURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: upload url %q", ErrInvalidURL, c.cfg.UploadURL)
	}
	q := u.Query()
	q.Set("uploadType", "multipart")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// authorize 按配置的鉴权方式附加 API Key
func (c *Client) authorize(req *http.Request) {
	req.Header.Set("User-Agent", UserAgent)
	switch c.cfg.AuthMethod {
	case AuthQuery:
		q := req.URL.Query()
		q.Set("key", c.cfg.APIKey)
		req.URL.RawQuery = q.Encode()
	case AuthBearer:
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	default:
		req.Header.Set(apiKeyHeader, c.cfg.APIKey)
	}
}

// parseStatusError peeks at {"error":{"message","status"}} without a full decode.
func parseStatusError(statusCode int, body []byte) *StatusError {
	se := &StatusError{StatusCode: statusCode}
	if gjson.ValidBytes(body) {
		se.Message = gjson.GetBytes(body, "error.message").String()
		se.Status = gjson.GetBytes(body, "error.status").String()
	}
	if se.Message == "" {
		se.Message = strings.TrimSpace(string(body))
	}
	if se.Message == "" {
		se.Message = http.StatusText(statusCode)
	}
	return se
}

// newHTTPClient 创建 HTTP 客户端（支持 socks5 / http 代理）
func newHTTPClient(proxyURL string) (*http.Client, error) {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if proxyURL != "" {
		parsed, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}

		switch parsed.Scheme {
		case "socks5", "socks5h":
			dialer, err := newSOCKS5Dialer(parsed)
			if err != nil {
				return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
			}
			if cd, ok := dialer.(proxy.ContextDialer); ok {
				transport.DialContext = cd.DialContext
			} else {
				transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
					return dialer.Dial(network, addr)
				}
			}
		case "http", "https":
			transport.Proxy = http.ProxyURL(parsed)
		default:
			return nil, fmt.Errorf("unsupported proxy scheme: %s (supported: socks5, http, https)", parsed.Scheme)
		}
	}

	return &http.Client{Transport: transport}, nil
}

func newSOCKS5Dialer(parsed *url.URL) (proxy.Dialer, error) {
	var auth *proxy.Auth
	if parsed.User != nil {
		password, _ := parsed.User.Password()
		auth = &proxy.Auth{
			User:     parsed.User.Username(),
			Password: password,
		}
	}

	host := parsed.Host
	if parsed.Port() == "" {
		host = net.JoinHostPort(parsed.Hostname(), "1080") // SOCKS5 默认端口
	}
	return proxy.SOCKS5("tcp", host, auth, proxy.Direct)
}

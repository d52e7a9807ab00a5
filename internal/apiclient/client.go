// Package apiclient implements resource.Service against a remote gateway's
// HTTP API. It backs the MCP server in proxy mode.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tonimelisma/sharepoint-gateway/internal/fault"
	"github.com/tonimelisma/sharepoint-gateway/internal/resource"
)

const (
	defaultUserAgent = "sharepoint-gateway-proxy/0.1"
	healthTimeout    = 5 * time.Second

	// maxErrorBody bounds how much of an error response is read.
	maxErrorBody = 64 << 10
)

// Client talks to a gateway's /api surface with a caller token.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
	userAgent  string
}

var _ resource.Service = (*Client)(nil)

// New returns a Client for the gateway at baseURL.
func New(baseURL, token string, httpClient *http.Client, logger *slog.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fault.New(fault.Configuration, "apiclient", fmt.Sprintf("invalid gateway URL %q", baseURL))
	}

	if token == "" {
		return nil, fault.New(fault.Configuration, "apiclient", "gateway API token is required")
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimRight(u.String(), "/"),
		token:      token,
		httpClient: httpClient,
		logger:     logger,
		userAgent:  defaultUserAgent,
	}, nil
}

// HTTPError is a non-2xx response from the gateway.
type HTTPError struct {
	StatusCode int
	Code       string // the response's "error" field
	Message    string
}

func (e *HTTPError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}

	return fmt.Sprintf("gateway returned %d: %s", e.StatusCode, msg)
}

// kindForStatus maps gateway statuses back onto fault kinds so errors keep
// their classification across the proxy hop.
func kindForStatus(status int) fault.Kind {
	switch status {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return fault.Validation
	case http.StatusUnauthorized, http.StatusForbidden:
		return fault.Authorization
	case http.StatusNotFound:
		return fault.NotFound
	case http.StatusServiceUnavailable, http.StatusTooManyRequests:
		return fault.Unavailable
	default:
		return fault.RemoteStore
	}
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// do sends one request. body, when non-nil, is encoded as JSON; out, when
// non-nil, receives the decoded 2xx response.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader

	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("apiclient: encoding request: %w", err)
		}

		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("apiclient: creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("gateway request", slog.String("method", method), slog.String("path", path))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fault.Wrap(fault.Unavailable, "apiclient", fmt.Errorf("%s %s: %w", method, path, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return c.statusError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)

		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("apiclient: decoding %s %s response: %w", method, path, err)
	}

	return nil
}

func (c *Client) statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	httpErr := &HTTPError{StatusCode: resp.StatusCode}

	var eb errorBody
	if json.Unmarshal(raw, &eb) == nil {
		httpErr.Code = eb.Error
		httpErr.Message = eb.Message
	}

	if resp.StatusCode == http.StatusUnauthorized {
		httpErr.Message = "authentication failed - check API token"
	}

	c.logger.Warn("gateway request failed",
		slog.Int("status", resp.StatusCode),
		slog.String("error", httpErr.Code),
	)

	return fault.Wrap(kindForStatus(resp.StatusCode), "apiclient", httpErr)
}

// encodePath escapes each segment of a slash-separated path.
func encodePath(p string) string {
	segments := strings.Split(strings.Trim(p, "/"), "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}

	return strings.Join(segments, "/")
}

// documentPath joins folder and name into an /api/document/... path.
func documentPath(folder, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fault.New(fault.Validation, "apiclient", "fileName is required")
	}

	full := name
	if f := strings.Trim(folder, "/"); f != "" {
		full = f + "/" + name
	}

	return "/api/document/" + encodePath(full), nil
}

// ListFolders calls GET /api/folders.
func (c *Client) ListFolders(ctx context.Context, parent string) (resource.ListResult, error) {
	q := url.Values{}
	if parent != "" {
		q.Set("parentFolder", parent)
	}

	var out resource.ListResult
	err := c.do(ctx, http.MethodGet, "/api/folders", q, nil, &out)

	return out, err
}

// ListDocuments calls GET /api/documents.
func (c *Client) ListDocuments(ctx context.Context, folder string) (resource.ListResult, error) {
	q := url.Values{}
	q.Set("folderName", folder)

	var out resource.ListResult
	err := c.do(ctx, http.MethodGet, "/api/documents", q, nil, &out)

	return out, err
}

// GetDocumentContent calls GET /api/document/{folder}/{name}/content.
func (c *Client) GetDocumentContent(ctx context.Context, folder, name string) (resource.ContentResult, error) {
	p, err := documentPath(folder, name)
	if err != nil {
		return resource.ContentResult{}, err
	}

	var out resource.ContentResult
	err = c.do(ctx, http.MethodGet, p+"/content", nil, nil, &out)

	return out, err
}

// GetFolderTree calls GET /api/tree.
func (c *Client) GetFolderTree(ctx context.Context, parent string, maxDepth int) (resource.TreeResult, error) {
	q := url.Values{}
	if parent != "" {
		q.Set("folderPath", parent)
	}

	q.Set("maxDepth", strconv.Itoa(maxDepth))

	var out resource.TreeResult
	err := c.do(ctx, http.MethodGet, "/api/tree", q, nil, &out)

	return out, err
}

// CreateFolder calls POST /api/folder.
func (c *Client) CreateFolder(ctx context.Context, parent, name string) (resource.MutationResult, error) {
	body := map[string]string{"folderName": name, "parentPath": parent}

	var out resource.MutationResult
	err := c.do(ctx, http.MethodPost, "/api/folder", nil, body, &out)

	return out, err
}

type uploadRequest struct {
	FileName   string `json:"fileName"`
	Content    string `json:"content"`
	FolderPath string `json:"folderPath"`
	IsBase64   bool   `json:"isBase64"`
}

// UploadDocument calls POST /api/upload.
func (c *Client) UploadDocument(ctx context.Context, folder, name, content string, isBase64 bool) (resource.MutationResult, error) {
	body := uploadRequest{FileName: name, Content: content, FolderPath: folder, IsBase64: isBase64}

	var out resource.MutationResult
	err := c.do(ctx, http.MethodPost, "/api/upload", nil, body, &out)

	return out, err
}

type updateRequest struct {
	Content  string `json:"content"`
	IsBase64 bool   `json:"isBase64"`
}

// UpdateDocument calls PUT /api/document/{folder}/{name}.
func (c *Client) UpdateDocument(ctx context.Context, folder, name, content string, isBase64 bool) (resource.MutationResult, error) {
	p, err := documentPath(folder, name)
	if err != nil {
		return resource.MutationResult{}, err
	}

	var out resource.MutationResult
	err = c.do(ctx, http.MethodPut, p, nil, updateRequest{Content: content, IsBase64: isBase64}, &out)

	return out, err
}

var errEmptyPath = fault.New(fault.Validation, "apiclient", "path is required")

// DeleteItem calls DELETE /api/item/{path}.
func (c *Client) DeleteItem(ctx context.Context, path string) (resource.MutationResult, error) {
	if strings.Trim(path, "/ ") == "" {
		return resource.MutationResult{}, errEmptyPath
	}

	var out resource.MutationResult
	err := c.do(ctx, http.MethodDelete, "/api/item/"+encodePath(path), nil, nil, &out)

	return out, err
}

type healthResponse struct {
	Status            string `json:"status"`
	StoreConnectivity string `json:"storeConnectivity"`
}

// Connectivity reports the remote gateway's store connectivity, or
// disconnected when the gateway itself is unreachable.
func (c *Client) Connectivity(ctx context.Context) string {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	var out healthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, nil, &out); err != nil {
		c.logger.Warn("gateway health check failed", slog.String("error", fault.Message(err)))

		return resource.Disconnected
	}

	if out.StoreConnectivity == "" {
		return resource.Disconnected
	}

	return out.StoreConnectivity
}

// Validate checks the configured token against /api/auth/validate.
func (c *Client) Validate(ctx context.Context) error {
	err := c.do(ctx, http.MethodGet, "/api/auth/validate", nil, nil, nil)

	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusUnauthorized {
		return fault.New(fault.Authorization, "apiclient", httpErr.Message)
	}

	return err
}

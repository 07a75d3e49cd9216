package seedr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/italolelis/seedr_tray/internal/logctx"
	"golang.org/x/oauth2"
)

const (
	DefaultBaseURL  = "https://www.seedr.cc"
	DefaultClientID = "seedr_xbmc"

	resourcePath = "/oauth_test/resource.php"

	// maxErrorBody caps how much of an error response is kept in NetworkError.
	maxErrorBody = 1024
)

// Client talks to the Seedr device API and resource endpoint. Each data call
// asks the token source for an access token first, under the call's context
// when the source implements ContextTokenSource.
type Client struct {
	baseURL    string
	clientID   string
	httpClient *http.Client
	tokens     oauth2.TokenSource
}

type Option func(*Client)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func NewClient(baseURL, clientID string, tokens oauth2.TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		clientID:   clientID,
		httpClient: http.DefaultClient,
		tokens:     tokens,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// RequestDeviceCode starts the device authorization flow.
func (c *Client) RequestDeviceCode(ctx context.Context) (*DeviceCode, error) {
	logger := logctx.LoggerFromContext(ctx)

	query := url.Values{}
	query.Set("client_id", c.clientID)

	var code DeviceCode
	if _, err := getJSON(ctx, c.httpClient, c.baseURL+"/api/device/code?"+query.Encode(), "request_device_code", &code); err != nil {
		logger.ErrorContext(ctx, "failed to request device code", "err", err)

		return nil, err
	}

	logger.InfoContext(ctx, "device code issued")

	return &code, nil
}

type folderListResponse struct {
	Folders []Folder `json:"folders"`
}

// ListFolders returns the user's top-level folders. A non-success HTTP status
// yields an empty list and no error.
func (c *Client) ListFolders(ctx context.Context) ([]Folder, error) {
	const op = "list_folders"

	logger := logctx.LoggerFromContext(ctx)

	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("access_token", token)

	var resp folderListResponse

	_, err = getJSON(ctx, c.httpClient, c.baseURL+"/api/folder?"+query.Encode(), op, &resp)
	if err != nil {
		var netErr *NetworkError
		if errors.As(err, &netErr) && netErr.StatusCode > 0 {
			logger.WarnContext(ctx, "folder listing rejected, treating as empty", "status", netErr.StatusCode)

			return []Folder{}, nil
		}

		logger.ErrorContext(ctx, "failed to list folders", "err", err)

		return nil, err
	}

	if resp.Folders == nil {
		resp.Folders = []Folder{}
	}

	logger.DebugContext(ctx, "folders listed", "folder_count", len(resp.Folders))

	return resp.Folders, nil
}

type resourceRef struct {
	Type string `json:"type"`
	ID   int64  `json:"id"`
}

func folderRefs(folderID int64) (string, error) {
	b, err := json.Marshal([]resourceRef{{Type: "folder", ID: folderID}})
	if err != nil {
		return "", err
	}

	return string(b), nil
}

// CreateArchive asks Seedr to pack a folder into a zip and returns its URL.
// Every call creates a new archive.
func (c *Client) CreateArchive(ctx context.Context, folderID int64) (*Archive, error) {
	const op = "create_archive"

	logger := logctx.LoggerFromContext(ctx).With("folder_id", folderID)

	refs, err := folderRefs(folderID)
	if err != nil {
		return nil, fmt.Errorf("failed to encode archive request: %w", err)
	}

	resp, err := c.postResource(ctx, op, "create_empty_archive", formField{"archive_arr", refs})
	if err != nil {
		logger.ErrorContext(ctx, "failed to create archive", "err", err)

		return nil, err
	}
	defer resp.Body.Close()

	var archive Archive
	if err := decodeJSON(resp, op, &archive); err != nil {
		logger.ErrorContext(ctx, "failed to create archive", "err", err)

		return nil, err
	}

	logger.InfoContext(ctx, "archive created", "archive_id", archive.ID, "result", archive.Success)

	return &archive, nil
}

// FetchFile returns a direct download link for a single file.
func (c *Client) FetchFile(ctx context.Context, fileID int64) (*FetchedFile, error) {
	const op = "fetch_file"

	logger := logctx.LoggerFromContext(ctx).With("file_id", fileID)

	resp, err := c.postResource(ctx, op, "fetch_file", formField{"folder_file_id", strconv.FormatInt(fileID, 10)})
	if err != nil {
		logger.ErrorContext(ctx, "failed to fetch file", "err", err)

		return nil, err
	}
	defer resp.Body.Close()

	var file FetchedFile
	if err := decodeJSON(resp, op, &file); err != nil {
		logger.ErrorContext(ctx, "failed to fetch file", "err", err)

		return nil, err
	}

	return &file, nil
}

// DeleteFolder deletes a folder. The bool reports whether the API answered
// with a success status; err is set only when the request itself failed.
func (c *Client) DeleteFolder(ctx context.Context, folderID int64) (bool, error) {
	const op = "delete_folder"

	logger := logctx.LoggerFromContext(ctx).With("folder_id", folderID)

	refs, err := folderRefs(folderID)
	if err != nil {
		return false, fmt.Errorf("failed to encode delete request: %w", err)
	}

	resp, err := c.postResource(ctx, op, "delete", formField{"delete_arr", refs})
	if err != nil {
		logger.ErrorContext(ctx, "failed to delete folder", "err", err)

		return false, err
	}
	defer drain(resp.Body)

	if !isSuccess(resp.StatusCode) {
		logger.WarnContext(ctx, "folder delete rejected", "status", resp.StatusCode)

		return false, nil
	}

	logger.InfoContext(ctx, "folder deleted")

	return true, nil
}

// AddMagnet queues a magnet link as a new torrent job. The response body is
// not inspected.
func (c *Client) AddMagnet(ctx context.Context, magnet string) error {
	const op = "add_magnet"

	logger := logctx.LoggerFromContext(ctx)

	resp, err := c.postResource(ctx, op, "add_torrent", formField{"torrent_magnet", magnet})
	if err != nil {
		logger.ErrorContext(ctx, "failed to add magnet", "err", err)

		return err
	}
	defer drain(resp.Body)

	logger.InfoContext(ctx, "magnet submitted", "status", resp.StatusCode)

	return nil
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	if c.tokens == nil {
		return "", &AuthenticationError{Operation: "authorize", Err: errors.New("no token source configured")}
	}

	var (
		token *oauth2.Token
		err   error
	)

	if cts, ok := c.tokens.(ContextTokenSource); ok {
		token, err = cts.TokenContext(ctx)
	} else {
		token, err = c.tokens.Token()
	}
	if err != nil {
		return "", err
	}

	return token.AccessToken, nil
}

type formField struct {
	name  string
	value string
}

// postResource sends a multipart form to the resource endpoint. The caller
// must close the response body.
func (c *Client) postResource(ctx context.Context, operation, function string, fields ...formField) (*http.Response, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	var body bytes.Buffer

	w := multipart.NewWriter(&body)

	fields = append([]formField{{"access_token", token}, {"func", function}}, fields...)
	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, fmt.Errorf("failed to write form field %s: %w", f.name, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+resourcePath, &body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Operation: operation, APIMessage: err.Error(), Err: err}
	}

	return resp, nil
}

// getJSON issues a GET and decodes a JSON body. It returns the response status.
func getJSON(ctx context.Context, hc *http.Client, rawURL, operation string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return 0, &NetworkError{Operation: operation, APIMessage: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	return resp.StatusCode, decodeJSON(resp, operation, out)
}

func decodeJSON(resp *http.Response, operation string, out any) error {
	if !isSuccess(resp.StatusCode) {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

		return &NetworkError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			APIMessage: strings.TrimSpace(string(b)),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &InvalidResponseError{Operation: operation, Err: err}
	}

	return nil
}

func isSuccess(status int) bool {
	return status >= http.StatusOK && status < http.StatusMultipleChoices
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	body.Close()
}

var _ API = (*Client)(nil)

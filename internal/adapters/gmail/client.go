// Package gmail implements core.MessageSource against the Gmail REST API.
package gmail

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/finlens/invoice-inbox/internal/core"
	"github.com/finlens/invoice-inbox/internal/domain/model"
	apperrors "github.com/finlens/invoice-inbox/internal/errors"
)

const defaultBaseURL = "https://gmail.googleapis.com/gmail/v1/users/me"

// searchFetchConcurrency bounds parallel metadata fetches during Search.
const searchFetchConcurrency = 4

// ProcessedLabel is applied to messages after successful extraction.
const ProcessedLabel = "ProcessedByAgent"

// Config holds the OAuth credentials for a single mailbox.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// Client talks to the Gmail REST API for one mailbox.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger

	// cached label name -> id from the last labels listing
	labelIDs map[string]string
}

// ClientOptions groups dependencies for Client.
type ClientOptions struct {
	Config Config
	Logger *slog.Logger

	// HTTPClient overrides the token-refreshing client. Used by tests.
	HTTPClient *http.Client
	// BaseURL overrides the Gmail API endpoint. Used by tests.
	BaseURL string
}

// NewClient constructs a Gmail client that refreshes its access token
// from the configured refresh token.
func NewClient(ctx context.Context, opts ClientOptions) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		if opts.Config.ClientID == "" || opts.Config.RefreshToken == "" {
			return nil, apperrors.Validation("gmail client id and refresh token are required")
		}
		conf := &oauth2.Config{
			ClientID:     opts.Config.ClientID,
			ClientSecret: opts.Config.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://accounts.google.com/o/oauth2/auth",
				TokenURL: "https://oauth2.googleapis.com/token",
			},
			Scopes: []string{"https://www.googleapis.com/auth/gmail.modify"},
		}
		httpClient = conf.Client(ctx, &oauth2.Token{RefreshToken: opts.Config.RefreshToken})
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "gmail")
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger,
		labelIDs:   make(map[string]string),
	}, nil
}

var _ core.MessageSource = (*Client)(nil)

// header expressions evaluated against a full message payload.
var (
	exprSubject = "payload.headers[?name=='Subject'].value | [0]"
	exprFrom    = "payload.headers[?name=='From'].value | [0]"
	exprDate    = "payload.headers[?name=='Date'].value | [0]"
)

// Search lists messages matching the Gmail query and returns candidate
// previews with headers and attachment filenames resolved.
func (c *Client) Search(ctx context.Context, query string, max int) ([]*model.CandidateMessage, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("maxResults", fmt.Sprintf("%d", max))

	var listing struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := c.getJSON(ctx, "/messages?"+q.Encode(), &listing); err != nil {
		return nil, err
	}

	// Per-message metadata fetches run concurrently; slots keep API order.
	candidates := make([]*model.CandidateMessage, len(listing.Messages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(searchFetchConcurrency)
	for i, ref := range listing.Messages {
		g.Go(func() error {
			msg, err := c.getMessage(gctx, ref.ID)
			if err != nil {
				return fmt.Errorf("fetch candidate %s: %w", ref.ID, err)
			}
			candidates[i] = candidateFromMessage(ref.ID, msg)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if c.logger != nil {
		c.logger.DebugContext(ctx, "searched mailbox", "query", query, "found", len(candidates))
	}
	return candidates, nil
}

// Fetch retrieves the full message, decodes its text bodies and downloads
// every attachment.
func (c *Client) Fetch(ctx context.Context, messageID string) (*core.RawMessage, error) {
	if strings.TrimSpace(messageID) == "" {
		return nil, apperrors.Validation("message id is required")
	}

	msg, err := c.getMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}

	raw := &core.RawMessage{
		MessageID: messageID,
		Subject:   headerValue(msg.decoded, exprSubject),
		From:      headerValue(msg.decoded, exprFrom),
		Date:      headerValue(msg.decoded, exprDate),
		Raw:       msg.raw,
	}

	var walkErr error
	walkParts(msg.Payload, func(p *messagePart) {
		if walkErr != nil {
			return
		}
		switch {
		case p.Filename != "":
			data, err := c.partData(ctx, messageID, p)
			if err != nil {
				walkErr = fmt.Errorf("attachment %q: %w", p.Filename, err)
				return
			}
			raw.Attachments = append(raw.Attachments, core.RawAttachment{
				Filename: p.Filename,
				MIMEType: p.MIMEType,
				Data:     data,
			})
		case strings.HasPrefix(p.MIMEType, "text/plain") && raw.BodyText == "":
			text, err := decodeBody(p.Body.Data)
			if err != nil {
				walkErr = err
				return
			}
			raw.BodyText = text
		case strings.HasPrefix(p.MIMEType, "text/html") && raw.BodyHTML == "":
			text, err := decodeBody(p.Body.Data)
			if err != nil {
				walkErr = err
				return
			}
			raw.BodyHTML = text
		}
	})
	if walkErr != nil {
		return nil, walkErr
	}
	return raw, nil
}

// Label applies the named label to the message, creating it first when the
// mailbox does not have it yet.
func (c *Client) Label(ctx context.Context, messageID, label string) error {
	if strings.TrimSpace(label) == "" {
		return apperrors.Validation("label name is required")
	}
	labelID, err := c.ensureLabel(ctx, label)
	if err != nil {
		return err
	}

	body := map[string]any{"addLabelIds": []string{labelID}}
	if err := c.postJSON(ctx, "/messages/"+url.PathEscape(messageID)+"/modify", body, nil); err != nil {
		return fmt.Errorf("label message %s: %w", messageID, err)
	}
	if c.logger != nil {
		c.logger.DebugContext(ctx, "labeled message", "message_id", messageID, "label", label)
	}
	return nil
}

func (c *Client) ensureLabel(ctx context.Context, name string) (string, error) {
	if id, ok := c.labelIDs[name]; ok {
		return id, nil
	}

	var listing struct {
		Labels []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"labels"`
	}
	if err := c.getJSON(ctx, "/labels", &listing); err != nil {
		return "", err
	}
	for _, l := range listing.Labels {
		c.labelIDs[l.Name] = l.ID
	}
	if id, ok := c.labelIDs[name]; ok {
		return id, nil
	}

	var created struct {
		ID string `json:"id"`
	}
	req := map[string]any{
		"name":                  name,
		"labelListVisibility":   "labelShow",
		"messageListVisibility": "show",
	}
	if err := c.postJSON(ctx, "/labels", req, &created); err != nil {
		return "", fmt.Errorf("create label %q: %w", name, err)
	}
	c.labelIDs[name] = created.ID
	return created.ID, nil
}

// message is the subset of the Gmail message resource the pipeline reads,
// alongside the raw response bytes and a generic decoding for JMESPath.
type message struct {
	ID      string       `json:"id"`
	Snippet string       `json:"snippet"`
	Payload *messagePart `json:"payload"`

	raw     []byte
	decoded any
}

type messagePart struct {
	MIMEType string       `json:"mimeType"`
	Filename string       `json:"filename"`
	Body     partBody     `json:"body"`
	Parts    []messagePart `json:"parts"`
}

type partBody struct {
	AttachmentID string `json:"attachmentId"`
	Data         string `json:"data"`
	Size         int    `json:"size"`
}

func (c *Client) getMessage(ctx context.Context, id string) (*message, error) {
	raw, err := c.get(ctx, "/messages/"+url.PathEscape(id)+"?format=full")
	if err != nil {
		return nil, err
	}
	msg := &message{raw: raw}
	if err := json.Unmarshal(raw, msg); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "decode message")
	}
	if err := json.Unmarshal(raw, &msg.decoded); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "decode message")
	}
	return msg, nil
}

func candidateFromMessage(id string, msg *message) *model.CandidateMessage {
	cand := &model.CandidateMessage{
		MessageID: id,
		Subject:   headerValue(msg.decoded, exprSubject),
		From:      headerValue(msg.decoded, exprFrom),
		Date:      headerValue(msg.decoded, exprDate),
		Snippet:   msg.Snippet,
	}
	walkParts(msg.Payload, func(p *messagePart) {
		if p.Filename != "" {
			cand.AttachmentFilenames = append(cand.AttachmentFilenames, p.Filename)
		}
	})
	cand.HasAttachment = len(cand.AttachmentFilenames) > 0
	return cand
}

func headerValue(decoded any, expr string) string {
	res, err := jmespath.Search(expr, decoded)
	if err != nil {
		return ""
	}
	s, _ := res.(string)
	return s
}

func walkParts(p *messagePart, fn func(*messagePart)) {
	if p == nil {
		return
	}
	fn(p)
	for i := range p.Parts {
		walkParts(&p.Parts[i], fn)
	}
}

func (c *Client) partData(ctx context.Context, messageID string, p *messagePart) ([]byte, error) {
	if p.Body.Data != "" {
		return base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(p.Body.Data)
	}
	if p.Body.AttachmentID == "" {
		return nil, nil
	}
	var att struct {
		Data string `json:"data"`
	}
	path := "/messages/" + url.PathEscape(messageID) + "/attachments/" + url.PathEscape(p.Body.AttachmentID)
	if err := c.getJSON(ctx, path, &att); err != nil {
		return nil, err
	}
	return base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(att.Data)
}

func decodeBody(data string) (string, error) {
	if data == "" {
		return "", nil
	}
	b, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(data)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeExtraction, "decode message body")
	}
	return string(b), nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	raw, err := c.get(ctx, path)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "decode response")
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "build request")
	}
	return c.do(req)
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "encode request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "build request")
	}
	req.Header.Set("Content-Type", "application/json")

	raw, err := c.do(req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "decode response")
	}
	return nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeTransient, "mail source request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeTransient, "read mail source response")
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, apperrors.Unavailablef("mail source rejected credentials: status %d", resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return nil, apperrors.NotFound("message")
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, apperrors.Transientf("mail source returned status %d", resp.StatusCode)
	default:
		return nil, apperrors.Internalf("mail source returned status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

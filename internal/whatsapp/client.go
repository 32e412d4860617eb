// Package whatsapp is a small client for the WhatsApp Cloud API (Graph API)
// messages and media endpoints.
//
// Every send formats the recipient with FormatPhoneNumber, posts the
// {messaging_product, to, type, <payload>} envelope to
// {APIURL}/{APIVersion}/{PhoneNumberID}/messages with a bearer token, and
// runs under the configured per-call timeout. There are no retries.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tbourn/pst-admin-backend/internal/config"
)

const messagingProduct = "whatsapp"

// DefaultTemplateLanguage is used by SendTemplate when no language is given.
const DefaultTemplateLanguage = "id"

// Client sends messages and uploads media through the Cloud API.
type Client struct {
	httpClient    *http.Client
	apiURL        string
	apiVersion    string
	phoneNumberID string
	token         string
	timeout       time.Duration
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default traced HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// New builds a Client from cfg. The default transport is wrapped with
// otelhttp so each gateway call becomes a client span.
func New(cfg config.WhatsAppConfig, opts ...Option) *Client {
	c := &Client{
		httpClient:    &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		apiURL:        strings.TrimSuffix(cfg.APIURL, "/"),
		apiVersion:    cfg.APIVersion,
		phoneNumberID: cfg.PhoneNumberID,
		token:         cfg.AccessToken,
		timeout:       cfg.Timeout,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Configured reports whether the client has credentials to call the API.
func (c *Client) Configured() bool {
	return c.token != "" && c.phoneNumberID != ""
}

// SendResponse is the body of a successful send.
type SendResponse struct {
	MessagingProduct string `json:"messaging_product"`
	Contacts         []struct {
		Input string `json:"input"`
		WaID  string `json:"wa_id"`
	} `json:"contacts"`
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// MessageID returns the gateway message identifier (wamid), or "".
func (r *SendResponse) MessageID() string {
	if r == nil || len(r.Messages) == 0 {
		return ""
	}
	return r.Messages[0].ID
}

// Media identifies an image, video, audio or document by link or uploaded id.
type Media struct {
	Link     string `json:"link,omitempty"`
	ID       string `json:"id,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// TemplateParameter is one value substituted into a template component.
type TemplateParameter struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Image    *Media `json:"image,omitempty"`
	Document *Media `json:"document,omitempty"`
	Video    *Media `json:"video,omitempty"`
}

// TemplateComponent groups parameters for a header, body or button.
type TemplateComponent struct {
	Type       string              `json:"type"`
	Parameters []TemplateParameter `json:"parameters,omitempty"`
}

type textBody struct {
	Body       string `json:"body"`
	PreviewURL bool   `json:"preview_url,omitempty"`
}

type templateBody struct {
	Name     string `json:"name"`
	Language struct {
		Code string `json:"code"`
	} `json:"language"`
	Components []TemplateComponent `json:"components,omitempty"`
}

// outbound is the message envelope; exactly one payload field is set.
type outbound struct {
	MessagingProduct string        `json:"messaging_product"`
	To               string        `json:"to"`
	Type             string        `json:"type"`
	Text             *textBody     `json:"text,omitempty"`
	Image            *Media        `json:"image,omitempty"`
	Document         *Media        `json:"document,omitempty"`
	Video            *Media        `json:"video,omitempty"`
	Audio            *Media        `json:"audio,omitempty"`
	Template         *templateBody `json:"template,omitempty"`
}

func newOutbound(to, typ string) *outbound {
	return &outbound{MessagingProduct: messagingProduct, To: FormatPhoneNumber(to), Type: typ}
}

// SendText sends a plain text message. Bodies containing a URL get a link
// preview.
func (c *Client) SendText(ctx context.Context, to, body string) (*SendResponse, error) {
	m := newOutbound(to, "text")
	m.Text = &textBody{Body: body, PreviewURL: strings.Contains(body, "http://") || strings.Contains(body, "https://")}
	return c.send(ctx, m)
}

// SendImage sends an image by public link. An empty caption is omitted.
func (c *Client) SendImage(ctx context.Context, to, link, caption string) (*SendResponse, error) {
	m := newOutbound(to, "image")
	m.Image = &Media{Link: link, Caption: caption}
	return c.send(ctx, m)
}

// SendImageByID sends an image previously uploaded with UploadMedia.
func (c *Client) SendImageByID(ctx context.Context, to, mediaID, caption string) (*SendResponse, error) {
	m := newOutbound(to, "image")
	m.Image = &Media{ID: mediaID, Caption: caption}
	return c.send(ctx, m)
}

// SendDocument sends a document by link with a display filename.
func (c *Client) SendDocument(ctx context.Context, to, link, filename, caption string) (*SendResponse, error) {
	m := newOutbound(to, "document")
	m.Document = &Media{Link: link, Filename: filename, Caption: caption}
	return c.send(ctx, m)
}

// SendVideo sends a video by link.
func (c *Client) SendVideo(ctx context.Context, to, link, caption string) (*SendResponse, error) {
	m := newOutbound(to, "video")
	m.Video = &Media{Link: link, Caption: caption}
	return c.send(ctx, m)
}

// SendAudio sends audio either by link or, when isMediaID is set, by an
// uploaded media id.
func (c *Client) SendAudio(ctx context.Context, to, linkOrID string, isMediaID bool) (*SendResponse, error) {
	m := newOutbound(to, "audio")
	if isMediaID {
		m.Audio = &Media{ID: linkOrID}
	} else {
		m.Audio = &Media{Link: linkOrID}
	}
	return c.send(ctx, m)
}

// SendTemplate sends a pre-approved template. lang defaults to
// DefaultTemplateLanguage.
func (c *Client) SendTemplate(ctx context.Context, to, name, lang string, components []TemplateComponent) (*SendResponse, error) {
	if lang == "" {
		lang = DefaultTemplateLanguage
	}
	m := newOutbound(to, "template")
	m.Template = &templateBody{Name: name, Components: components}
	m.Template.Language.Code = lang
	return c.send(ctx, m)
}

// UploadMedia uploads r as a multipart file and returns the media id.
func (c *Client) UploadMedia(ctx context.Context, filename, contentType string, r io.Reader) (string, error) {
	if !c.Configured() {
		sendsTotal.WithLabelValues("media", outcomeNotConfigured).Inc()
		return "", ErrNotConfigured
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("messaging_product", messagingProduct); err != nil {
		return "", err
	}
	if contentType != "" {
		if err := mw.WriteField("type", contentType); err != nil {
			return "", err
		}
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(fw, r); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	var out struct {
		ID string `json:"id"`
	}
	err = c.doRequest(ctx, "/media", mw.FormDataContentType(), &buf, &out)
	if err == nil && out.ID == "" {
		err = fmt.Errorf("whatsapp: media upload returned no id")
	}
	c.count("media", err)
	if err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *Client) send(ctx context.Context, m *outbound) (*SendResponse, error) {
	if !c.Configured() {
		sendsTotal.WithLabelValues(m.Type, outcomeNotConfigured).Inc()
		return nil, ErrNotConfigured
	}
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}
	var resp SendResponse
	err = c.doRequest(ctx, "/messages", "application/json", bytes.NewReader(body), &resp)
	c.count(m.Type, err)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) count(typ string, err error) {
	outcome := outcomeOK
	if err != nil {
		outcome = outcomeError
	}
	sendsTotal.WithLabelValues(typ, outcome).Inc()
}

// doRequest posts body to endpoint under the per-call timeout and decodes a
// 2xx response into out, or the Graph error envelope into *APIError.
func (c *Client) doRequest(ctx context.Context, endpoint, contentType string, body io.Reader, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	url := fmt.Sprintf("%s/%s/%s%s", c.apiURL, c.apiVersion, c.phoneNumberID, endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var env errorEnvelope
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil || env.Error == nil {
			return &APIError{Message: fmt.Sprintf("failed to POST %s", endpoint), HTTPStatus: resp.StatusCode}
		}
		env.Error.HTTPStatus = resp.StatusCode
		return env.Error
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

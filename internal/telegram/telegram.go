// Package telegram is a publish driver backed by the Telegram Bot API.
// Credentials carry the chat ID as the account and the bot token as the
// secret.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/deusflow/worldnews/internal/publish"
	"github.com/deusflow/worldnews/internal/retry"
)

const (
	DefaultBaseURL = "https://api.telegram.org"

	// Bot API upload limit for sendVideo.
	maxUploadBytes = 50 << 20
)

var ErrSessionClosed = errors.New("telegram session closed")

// Launcher opens a session per publish attempt.
type Launcher struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

func NewLauncher(baseURL string, timeout time.Duration, logger *slog.Logger) *Launcher {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Launcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

func (l *Launcher) Launch(ctx context.Context) (publish.Driver, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Session{launcher: l}, nil
}

// Session holds the state of one post until Submit.
type Session struct {
	launcher *Launcher
	token    string
	chatID   string
	botName  string
	video    []byte
	fileName string
	caption  string
	closed   bool
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

// Authenticate checks the token with getMe. It is safe to retry, unlike
// the send methods.
func (s *Session) Authenticate(ctx context.Context, creds publish.Credentials) error {
	if s.closed {
		return ErrSessionClosed
	}
	s.token = creds.Secret
	s.chatID = creds.Account

	var me struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
	}
	err := retry.WithRetry(ctx, retry.RetryConfig{MaxAttempts: 3, Delay: 2 * time.Second, Backoff: true}, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint("getMe"), nil)
		if err != nil {
			return retry.Permanent(err)
		}
		return s.do(req, &me)
	})
	if err != nil {
		return err
	}
	s.botName = me.Username
	s.launcher.logger.Debug("telegram bot authenticated", "bot", me.Username)
	return nil
}

// UploadMedia buffers the video so the file can be deleted before Submit.
func (s *Session) UploadMedia(ctx context.Context, path string) error {
	if s.closed {
		return ErrSessionClosed
	}
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat media: %w", err)
	}
	if fi.Size() > maxUploadBytes {
		return fmt.Errorf("media too large: %d bytes", fi.Size())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read media: %w", err)
	}
	s.video = data
	s.fileName = filepath.Base(path)
	return nil
}

func (s *Session) SetCaption(ctx context.Context, caption string) error {
	if s.closed {
		return ErrSessionClosed
	}
	if strings.TrimSpace(caption) == "" {
		return fmt.Errorf("empty caption")
	}
	s.caption = caption
	return nil
}

// Submit sends the post. It is confirmed only when Telegram answers ok
// with a message ID.
func (s *Session) Submit(ctx context.Context) (publish.Receipt, error) {
	if s.closed {
		return publish.Receipt{}, ErrSessionClosed
	}

	var (
		req *http.Request
		err error
	)
	if len(s.video) > 0 {
		req, err = s.videoRequest(ctx)
	} else {
		req, err = s.messageRequest(ctx)
	}
	if err != nil {
		return publish.Receipt{}, err
	}

	var msg struct {
		MessageID int64 `json:"message_id"`
	}
	if err := s.do(req, &msg); err != nil {
		return publish.Receipt{}, err
	}
	if msg.MessageID == 0 {
		return publish.Receipt{}, nil
	}
	return publish.Receipt{Confirmed: true, PostID: strconv.FormatInt(msg.MessageID, 10)}, nil
}

func (s *Session) Close() error {
	s.closed = true
	s.video = nil
	return nil
}

func (s *Session) endpoint(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", s.launcher.baseURL, s.token, method)
}

func (s *Session) messageRequest(ctx context.Context) (*http.Request, error) {
	payload := map[string]any{
		"chat_id":                  s.chatID,
		"text":                     s.caption,
		"disable_web_page_preview": true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("error make JSON: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint("sendMessage"), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (s *Session) videoRequest(ctx context.Context) (*http.Request, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	fields := map[string]string{
		"chat_id":            s.chatID,
		"caption":            s.caption,
		"supports_streaming": "true",
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, err
		}
	}
	part, err := w.CreateFormFile("video", s.fileName)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(s.video); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint("sendVideo"), &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req, nil
}

func (s *Session) do(req *http.Request, result any) error {
	resp, err := s.launcher.http.Do(req)
	if err != nil {
		return fmt.Errorf("error HTTP request: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			s.launcher.logger.Warn("failed to close response body", "error", err)
		}
	}(resp.Body)

	var out apiResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return fmt.Errorf("telegram API error: status %d", resp.StatusCode)
	}
	if !out.OK {
		err := fmt.Errorf("telegram API error: status %d: %s", resp.StatusCode, out.Description)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return retry.Permanent(err)
		}
		return err
	}
	if result != nil && len(out.Result) > 0 {
		if err := json.Unmarshal(out.Result, result); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}
	return nil
}

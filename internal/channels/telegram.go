package channels

import (
	"bytes"
	"context"
	"encoding/json"
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
	"unicode/utf8"

	"github.com/valetd/valet/internal/bus"
)

const (
	telegramAPI = "https://api.telegram.org"
	// Telegram rejects messages over 4096 characters; chunk below that.
	telegramChunkSize = 4000
)

// TelegramChannel is the Telegram bot transport. It long-polls getUpdates,
// publishes authorized messages to the bus, and delivers replies.
type TelegramChannel struct {
	BaseChannel
	token     string
	allowFrom map[string]bool
	client    *http.Client
	log       *slog.Logger
	tmpDir    string
	cancel    context.CancelFunc
}

// NewTelegramChannel creates the channel. allowFrom lists the Telegram user
// IDs permitted to talk to the bot; everyone else is refused.
func NewTelegramChannel(b *bus.MessageBus, token string, allowFrom []string, log *slog.Logger) *TelegramChannel {
	allowed := make(map[string]bool, len(allowFrom))
	for _, id := range allowFrom {
		if id != "" {
			allowed[id] = true
		}
	}
	if log == nil {
		log = slog.Default()
	}
	return &TelegramChannel{
		BaseChannel: BaseChannel{Bus: b},
		token:       token,
		allowFrom:   allowed,
		// Long poll timeout is 30s; leave headroom.
		client: &http.Client{Timeout: 35 * time.Second},
		log:    log,
		tmpDir: os.TempDir(),
	}
}

func (t *TelegramChannel) Name() string { return "telegram" }

// telegramUpdate is the subset of the Bot API update we consume.
type telegramUpdate struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		From *struct {
			ID int64 `json:"id"`
		} `json:"from"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		Text    string `json:"text"`
		Caption string `json:"caption"`
		Photo   []struct {
			FileID   string `json:"file_id"`
			FileSize int64  `json:"file_size"`
		} `json:"photo"`
	} `json:"message"`
}

type telegramUpdatesResponse struct {
	Ok     bool             `json:"ok"`
	Result []telegramUpdate `json:"result"`
}

// Start runs the long-poll loop until the context is cancelled.
func (t *TelegramChannel) Start(ctx context.Context) error {
	if t.token == "" {
		return fmt.Errorf("telegram bot token missing")
	}
	ctx, t.cancel = context.WithCancel(ctx)

	var offset int64
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		updates, err := t.getUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			t.log.Warn("getUpdates failed", "error", err)
			time.Sleep(3 * time.Second)
			continue
		}
		for _, upd := range updates {
			t.processUpdate(ctx, upd)
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
			}
		}
	}
}

// Stop cancels the poll loop.
func (t *TelegramChannel) Stop() error {
	if t.cancel != nil {
		t.cancel()
	}
	return nil
}

func (t *TelegramChannel) processUpdate(ctx context.Context, upd telegramUpdate) {
	msg := upd.Message
	if msg == nil || msg.From == nil {
		return
	}
	senderID := strconv.FormatInt(msg.From.ID, 10)
	chatID := strconv.FormatInt(msg.Chat.ID, 10)

	if !t.allowFrom[senderID] {
		t.log.Warn("unauthorized sender", "sender", senderID)
		_ = t.sendText(ctx, chatID, "You are not authorized to use this assistant.")
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		text = strings.TrimSpace(msg.Caption)
	}
	// Cap inbound length at the Bot API message limit.
	text = truncateUTF8(text, 4096)

	imagePath := ""
	if len(msg.Photo) > 0 {
		// The last entry is the largest rendition.
		fileID := msg.Photo[len(msg.Photo)-1].FileID
		path, err := t.downloadFile(ctx, fileID)
		if err != nil {
			t.log.Warn("photo download failed", "error", err)
		} else {
			imagePath = path
		}
	}

	t.Bus.PublishInbound(&bus.InboundMessage{
		Channel:   t.Name(),
		SenderID:  senderID,
		ChatID:    chatID,
		Content:   text,
		ImagePath: imagePath,
	})
}

// Send delivers an outbound message, attaching the file when one is set.
// Images go out as photos, everything else as documents.
func (t *TelegramChannel) Send(ctx context.Context, msg *bus.OutboundMessage) error {
	if msg.FilePath != "" {
		method, field := "sendDocument", "document"
		switch strings.ToLower(filepath.Ext(msg.FilePath)) {
		case ".png", ".jpg", ".jpeg", ".gif", ".webp":
			method, field = "sendPhoto", "photo"
		}
		if err := t.sendFile(ctx, method, field, msg.ChatID, msg.FilePath); err != nil {
			return err
		}
	}
	if msg.Content == "" {
		return nil
	}
	for _, chunk := range chunkText(msg.Content, telegramChunkSize) {
		if err := t.sendText(ctx, msg.ChatID, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (t *TelegramChannel) getUpdates(ctx context.Context, offset int64) ([]telegramUpdate, error) {
	payload := map[string]any{
		"offset":          offset,
		"timeout":         30,
		"allowed_updates": []string{"message"},
	}
	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.methodURL("getUpdates"), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return nil, fmt.Errorf("telegram status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	var tr telegramUpdatesResponse
	if err := json.Unmarshal(respBody, &tr); err != nil {
		return nil, err
	}
	if !tr.Ok {
		return nil, fmt.Errorf("telegram returned ok=false")
	}
	return tr.Result, nil
}

func (t *TelegramChannel) sendText(ctx context.Context, chatID, text string) error {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.methodURL("sendMessage"), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return fmt.Errorf("telegram status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return nil
}

func (t *TelegramChannel) sendFile(ctx context.Context, method, field, chatID, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("chat_id", chatID); err != nil {
		return err
	}
	part, err := writer.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.methodURL(method), &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return fmt.Errorf("telegram status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return nil
}

// downloadFile fetches a Telegram file into the temp dir and returns its
// local path.
func (t *TelegramChannel) downloadFile(ctx context.Context, fileID string) (string, error) {
	body, _ := json.Marshal(map[string]any{"file_id": fileID})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.methodURL("getFile"), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var fr struct {
		Ok     bool `json:"ok"`
		Result struct {
			FilePath string `json:"file_path"`
		} `json:"result"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&fr); err != nil {
		return "", err
	}
	if !fr.Ok || fr.Result.FilePath == "" {
		return "", fmt.Errorf("telegram getFile returned no path")
	}

	fileURL := fmt.Sprintf("%s/file/bot%s/%s", telegramAPI, t.token, fr.Result.FilePath)
	fileReq, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return "", err
	}
	fileResp, err := t.client.Do(fileReq)
	if err != nil {
		return "", err
	}
	defer fileResp.Body.Close()
	if fileResp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("telegram file status %d", fileResp.StatusCode)
	}

	local := filepath.Join(t.tmpDir, fmt.Sprintf("valet_tg_%d%s", time.Now().UnixNano(), filepath.Ext(fr.Result.FilePath)))
	out, err := os.Create(local)
	if err != nil {
		return "", err
	}
	defer out.Close()
	if _, err := io.Copy(out, io.LimitReader(fileResp.Body, 20<<20)); err != nil {
		os.Remove(local)
		return "", err
	}
	return local, nil
}

func (t *TelegramChannel) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", telegramAPI, t.token, method)
}

// chunkText splits text into pieces of at most size bytes, preferring to
// break on newlines and never splitting a UTF-8 sequence.
func chunkText(text string, size int) []string {
	if len(text) <= size {
		return []string{text}
	}
	var chunks []string
	for len(text) > size {
		head := truncateUTF8(text, size)
		cut := strings.LastIndex(head, "\n")
		if cut < size/2 {
			cut = len(head)
		}
		chunks = append(chunks, text[:cut])
		text = strings.TrimLeft(text[cut:], "\n")
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

// truncateUTF8 caps s at max bytes, backing off to a rune boundary so the
// result stays valid UTF-8.
func truncateUTF8(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

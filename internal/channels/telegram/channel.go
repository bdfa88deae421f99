// Package telegram is a thin adapter wiring the Telegram Bot API (long
// polling) to the bashclaw message router (§6: "external collaborators,
// interfaces only").
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/bashclaw/bashclaw/internal/bus"
	"github.com/bashclaw/bashclaw/internal/channels"
)

// Config is the subset of channel config telegram.New needs; cmd wiring
// populates it from the config store's channels.telegram.* fields.
type Config struct {
	Token          string
	Proxy          string
	AllowFrom      []string
	DMPolicy       string
	GroupPolicy    string
	RequireMention *bool
}

// Channel connects to Telegram via the Bot API using long polling.
type Channel struct {
	*channels.BaseChannel
	bot            *telego.Bot
	config         Config
	placeholders   sync.Map // chatID string → placeholder messageID
	requireMention bool
	pollCancel     context.CancelFunc
	pollDone       chan struct{}
}

// New creates a new Telegram channel from config.
func New(cfg Config, router *bus.Router) (*Channel, error) {
	var opts []telego.BotOption
	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", cfg.Proxy, err)
		}
		opts = append(opts, telego.WithHTTPClient(&http.Client{
			Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		}))
	}

	bot, err := telego.NewBot(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	base := channels.NewBaseChannel("telegram", router, cfg.AllowFrom)

	requireMention := true
	if cfg.RequireMention != nil {
		requireMention = *cfg.RequireMention
	}

	return &Channel{
		BaseChannel:    base,
		bot:            bot,
		config:         cfg,
		requireMention: requireMention,
	}, nil
}

// Start begins long polling for Telegram updates.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting telegram bot (polling mode)")

	pollCtx, cancel := context.WithCancel(ctx)
	c.pollCancel = cancel
	c.pollDone = make(chan struct{})

	updates, err := c.bot.UpdatesViaLongPolling(pollCtx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("start long polling: %w", err)
	}

	c.SetRunning(true)
	slog.Info("telegram bot connected", "username", c.bot.Username())

	go func() {
		defer close(c.pollDone)
		for {
			select {
			case <-pollCtx.Done():
				return
			case update, ok := <-updates:
				if !ok {
					slog.Info("telegram updates channel closed")
					return
				}
				if update.Message != nil {
					c.handleMessage(update.Message)
				}
			}
		}
	}()

	return nil
}

// Stop shuts down the Telegram bot, waiting for the polling goroutine to
// exit so Telegram releases the getUpdates lock before a restart.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping telegram bot")
	c.SetRunning(false)

	if c.pollCancel != nil {
		c.pollCancel()
	}
	if c.pollDone != nil {
		select {
		case <-c.pollDone:
			slog.Info("telegram bot stopped")
		case <-time.After(10 * time.Second):
			slog.Warn("telegram polling goroutine did not exit within timeout")
		}
	}
	return nil
}

// Send delivers an outbound message to a Telegram chat.
func (c *Channel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("telegram bot not running")
	}

	chatID, err := parseChatID(msg.ChatID)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", msg.ChatID, err)
	}
	chatIDObj := tu.ID(chatID)

	if msg.Content == "" {
		if pID, ok := c.placeholders.LoadAndDelete(msg.ChatID); ok {
			_ = c.bot.DeleteMessage(ctx, &telego.DeleteMessageParams{
				ChatID:    chatIDObj,
				MessageID: pID.(int),
			})
		}
		return nil
	}

	if pID, ok := c.placeholders.LoadAndDelete(msg.ChatID); ok {
		edit := &telego.EditMessageTextParams{
			ChatID:    chatIDObj,
			MessageID: pID.(int),
			Text:      truncateForTelegram(msg.Content),
		}
		if _, editErr := c.bot.EditMessageText(ctx, edit); editErr == nil {
			return nil
		}
	}

	return c.sendChunked(ctx, chatIDObj, msg.Content)
}

const telegramMaxMessageLen = 4096

func truncateForTelegram(s string) string {
	if len(s) <= telegramMaxMessageLen {
		return s
	}
	return s[:telegramMaxMessageLen]
}

func (c *Channel) sendChunked(ctx context.Context, chatID telego.ChatID, content string) error {
	for len(content) > 0 {
		chunk := content
		if len(chunk) > telegramMaxMessageLen {
			cutAt := telegramMaxMessageLen
			if idx := strings.LastIndexByte(content[:telegramMaxMessageLen], '\n'); idx > telegramMaxMessageLen/2 {
				cutAt = idx + 1
			}
			chunk = content[:cutAt]
			content = content[cutAt:]
		} else {
			content = ""
		}
		if _, err := c.bot.SendMessage(ctx, tu.Message(chatID, chunk)); err != nil {
			return fmt.Errorf("send telegram message: %w", err)
		}
	}
	return nil
}

// handleMessage processes an incoming Telegram message update.
func (c *Channel) handleMessage(message *telego.Message) {
	if isServiceMessage(message) {
		return
	}
	user := message.From
	if user == nil {
		return
	}

	userID := fmt.Sprintf("%d", user.ID)
	senderID := userID
	if user.Username != "" {
		senderID = fmt.Sprintf("%s|%s", userID, user.Username)
	}

	isGroup := message.Chat.Type == "group" || message.Chat.Type == "supergroup"
	peerKind := "direct"
	if isGroup {
		peerKind = "group"
	}

	dmPolicy := c.config.DMPolicy
	if dmPolicy == "" {
		dmPolicy = "open"
	}
	if !c.CheckPolicy(peerKind, dmPolicy, c.config.GroupPolicy, senderID) && !c.CheckPolicy(peerKind, dmPolicy, c.config.GroupPolicy, userID) {
		slog.Debug("telegram message rejected by policy", "user_id", userID, "peer_kind", peerKind)
		return
	}

	content := message.Text
	if message.Caption != "" {
		if content != "" {
			content += "\n"
		}
		content += message.Caption
	}
	if content == "" {
		content = "[empty message]"
	}

	senderLabel := user.FirstName
	if user.Username != "" {
		senderLabel = "@" + user.Username
	}

	if isGroup && c.requireMention && !c.detectMention(message) {
		slog.Debug("telegram group message ignored (no mention)", "chat_id", message.Chat.ID)
		return
	}

	chatIDStr := fmt.Sprintf("%d", message.Chat.ID)
	finalContent := content
	if isGroup {
		finalContent = fmt.Sprintf("[From: %s]\n%s", senderLabel, content)
	}

	if !isGroup {
		if pMsg, err := c.bot.SendMessage(context.Background(), tu.Message(tu.ID(message.Chat.ID), "Thinking...")); err == nil {
			c.placeholders.Store(chatIDStr, pMsg.MessageID)
		}
	}

	metadata := map[string]string{
		"message_id": fmt.Sprintf("%d", message.MessageID),
		"user_id":    userID,
		"username":   user.Username,
		"first_name": user.FirstName,
		"is_group":   fmt.Sprintf("%t", isGroup),
	}

	c.HandleMessage(senderID, chatIDStr, finalContent, nil, metadata, peerKind)
}

// detectMention reports whether the bot's username is mentioned in text,
// caption, or an implicit reply-to-bot.
func (c *Channel) detectMention(msg *telego.Message) bool {
	botUsername := c.bot.Username()
	if botUsername == "" {
		return false
	}
	lower := "@" + strings.ToLower(botUsername)
	if msg.Text != "" && strings.Contains(strings.ToLower(msg.Text), lower) {
		return true
	}
	if msg.Caption != "" && strings.Contains(strings.ToLower(msg.Caption), lower) {
		return true
	}
	if msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil && msg.ReplyToMessage.From.Username == botUsername {
		return true
	}
	return false
}

// isServiceMessage reports whether msg carries no user content (member
// added/removed, title changed, etc.).
func isServiceMessage(msg *telego.Message) bool {
	if msg.Text != "" || msg.Caption != "" {
		return false
	}
	return msg.Photo == nil && msg.Audio == nil && msg.Video == nil &&
		msg.Document == nil && msg.Voice == nil && msg.VideoNote == nil &&
		msg.Sticker == nil && msg.Animation == nil && msg.Contact == nil &&
		msg.Location == nil && msg.Venue == nil && msg.Poll == nil
}

func parseChatID(chatIDStr string) (int64, error) {
	var id int64
	_, err := fmt.Sscanf(chatIDStr, "%d", &id)
	return id, err
}

package services

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// PushMessage push уведомление для пользователей
type PushMessage struct {
	Tokens []string
	Title  string
	Body   string
	Data   map[string]string
}

// PushSink доставка push уведомлений. Ошибка одного токена не мешает остальным.
type PushSink interface {
	Name() string
	Push(ctx context.Context, msg PushMessage) []DeliveryResult
}

// TelegramSender часть tgbotapi.BotAPI, нужная для отправки
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramClient push-синк через Telegram Bot API. Токен получателя - chat id.
type TelegramClient struct {
	bot    TelegramSender
	logger *zap.Logger
}

// NewTelegramClient авторизует бота по токену
func NewTelegramClient(token string, logger *zap.Logger) (*TelegramClient, error) {
	if token == "" {
		return nil, fmt.Errorf("не задан токен Telegram бота")
	}

	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Telegram бота: %w", err)
	}
	bot.Debug = false

	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("telegram bot authorized", zap.String("username", bot.Self.UserName))

	return NewTelegramClientWithSender(bot, logger), nil
}

// NewTelegramClientWithSender создает клиент с готовым отправителем
func NewTelegramClientWithSender(sender TelegramSender, logger *zap.Logger) *TelegramClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TelegramClient{bot: sender, logger: logger}
}

func (tc *TelegramClient) Name() string { return "push" }

// Push отправляет сообщение каждому chat id
func (tc *TelegramClient) Push(ctx context.Context, msg PushMessage) []DeliveryResult {
	text := FormatPushText(msg)

	results := make([]DeliveryResult, 0, len(msg.Tokens))
	for _, token := range msg.Tokens {
		if err := ctx.Err(); err != nil {
			results = append(results, DeliveryResult{Target: token, Err: err})
			continue
		}
		if _, err := tc.SendMessage(token, text); err != nil {
			tc.logger.Warn("telegram push failed", zap.String("chat_id", token), zap.Error(err))
			results = append(results, DeliveryResult{Target: token, Err: err})
			continue
		}
		results = append(results, DeliveryResult{Target: token})
	}
	return results
}

// SendMessage отправляет HTML сообщение в чат
func (tc *TelegramClient) SendMessage(chatID string, message string) (*tgbotapi.Message, error) {
	chatIDInt, err := strconv.ParseInt(strings.TrimSpace(chatID), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("неверный chat ID: %s", chatID)
	}

	m := tgbotapi.NewMessage(chatIDInt, message)
	m.ParseMode = tgbotapi.ModeHTML

	sent, err := tc.bot.Send(m)
	if err != nil {
		return nil, fmt.Errorf("ошибка отправки сообщения: %w", err)
	}
	return &sent, nil
}

// FormatPushText собирает текст сообщения: заголовок жирным, тело и ссылка
func FormatPushText(msg PushMessage) string {
	var b strings.Builder
	b.WriteString("<b>")
	b.WriteString(html.EscapeString(msg.Title))
	b.WriteString("</b>\n")
	b.WriteString(html.EscapeString(msg.Body))
	if url := msg.Data["url"]; url != "" {
		fmt.Fprintf(&b, "\n<a href=\"%s\">%s</a>", html.EscapeString(url), html.EscapeString(msg.Data["ticket_code"]))
	}
	return b.String()
}

// LogPushSink пишет уведомления только в лог, когда Telegram выключен
type LogPushSink struct {
	logger *zap.Logger
}

// NewLogPushSink создает синк-заглушку
func NewLogPushSink(logger *zap.Logger) *LogPushSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPushSink{logger: logger}
}

func (s *LogPushSink) Name() string { return "push" }

// Push логирует уведомление для каждого токена
func (s *LogPushSink) Push(_ context.Context, msg PushMessage) []DeliveryResult {
	results := make([]DeliveryResult, 0, len(msg.Tokens))
	for _, token := range msg.Tokens {
		s.logger.Info("push notification (telegram disabled)",
			zap.String("token", token),
			zap.String("title", msg.Title),
			zap.String("body", msg.Body),
		)
		results = append(results, DeliveryResult{Target: token})
	}
	return results
}

package notifier

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Yazan-Dev9/DataSafe/internal/domain"
)

// maxDocumentBytes is the Bot API upload limit for documents.
const maxDocumentBytes = 50 * 1024 * 1024

// Sender is the part of tgbotapi.BotAPI used for delivery.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type TelegramConfig struct {
	BotToken string
	ChatID   int64
	SendFile bool
}

type Telegram struct {
	bot      Sender
	chatID   int64
	sendFile bool
}

func NewTelegram(cfg TelegramConfig) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return NewTelegramWithSender(bot, cfg.ChatID, cfg.SendFile), nil
}

func NewTelegramWithSender(bot Sender, chatID int64, sendFile bool) *Telegram {
	return &Telegram{bot: bot, chatID: chatID, sendFile: sendFile}
}

// Notify posts a summary of record. When file sending is enabled and the
// archive fits the upload limit, the archive itself is sent with the
// summary as caption.
func (t *Telegram) Notify(ctx context.Context, record *domain.BackupRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	text := FormatMessage(record)

	if t.shouldSendFile(record) {
		doc := tgbotapi.NewDocument(t.chatID, tgbotapi.FilePath(record.ArchivePath))
		doc.Caption = text
		if _, err := t.bot.Send(doc); err != nil {
			return fmt.Errorf("failed to send telegram file: %w", err)
		}
		return nil
	}

	if _, err := t.bot.Send(tgbotapi.NewMessage(t.chatID, text)); err != nil {
		return fmt.Errorf("failed to send telegram notification: %w", err)
	}
	return nil
}

func (t *Telegram) shouldSendFile(record *domain.BackupRecord) bool {
	if !t.sendFile || record.CompressionKind == domain.KindNone {
		return false
	}
	info, err := os.Stat(record.ArchivePath)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	return info.Size() <= maxDocumentBytes
}

// FormatMessage renders the human readable summary of a backup record.
func FormatMessage(record *domain.BackupRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ Backup #%d created\n\n", record.ID)
	fmt.Fprintf(&b, "📁 Source: %s\n", record.SourcePath)
	fmt.Fprintf(&b, "📦 Archive: %s\n", record.ArchivePath)
	fmt.Fprintf(&b, "🗜 Compression: %s\n", record.CompressionKind)
	fmt.Fprintf(&b, "📊 Size: %s", sizeText(record.SizeBytes))
	if record.ArchiveSizeBytes != nil {
		fmt.Fprintf(&b, " → %s", humanize.IBytes(uint64(*record.ArchiveSizeBytes)))
	}
	fmt.Fprintf(&b, "\n🕐 Time: %s", record.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	return b.String()
}

func sizeText(size *int64) string {
	if size == nil {
		return "unknown"
	}
	return humanize.IBytes(uint64(*size))
}

// Package notifier sends run-summary and failure alerts to a Telegram chat.
package notifier

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/scwf/prod-scout/pkg/formatter"
	"github.com/scwf/prod-scout/pkg/logger"
)

// Notifier is a thin wrapper over the Telegram bot API for pushing
// operator-facing status messages.
type Notifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	log    logger.Logger
}

// New builds a Notifier. A blank botToken disables notifications: every
// method becomes a no-op rather than an error, since Telegram alerting is
// optional ambient tooling, not a pipeline dependency.
func New(botToken string, chatID int64, log logger.Logger) (*Notifier, error) {
	log = log.WithComponent("notifier")
	if botToken == "" {
		log.Info("no telegram bot token configured, notifications disabled")
		return &Notifier{log: log}, nil
	}
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("notifier: create bot: %w", err)
	}
	return &Notifier{bot: bot, chatID: chatID, log: log}, nil
}

func (n *Notifier) enabled() bool { return n.bot != nil }

func (n *Notifier) send(text string) {
	if !n.enabled() {
		return
	}
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	if _, err := n.bot.Send(msg); err != nil {
		n.log.Error("failed to send telegram message", "error", err)
	}
}

// RunSummary is the subset of coordinator.RunSummary the notifier needs to
// render a run report, kept local to avoid a dependency cycle with
// internal/coordinator.
type RunSummary struct {
	BatchID             string
	CountsBySourceType  map[string]int
	CountsByBucket      map[string]int
	Elapsed             string
}

// NotifyRunComplete reports a successful run: batch ID, elapsed time, and
// per-source-type / per-bucket counts.
func (n *Notifier) NotifyRunComplete(summary RunSummary) {
	title := formatter.EscapeMarkdownV2(fmt.Sprintf("Batch %s complete", summary.BatchID))
	text := fmt.Sprintf("*%s*\nElapsed: %s\n\n", title, formatter.EscapeMarkdownV2(summary.Elapsed))

	text += formatter.EscapeMarkdownV2("By source type:") + "\n"
	for sourceType, count := range summary.CountsBySourceType {
		text += formatter.EscapeMarkdownV2(fmt.Sprintf("- %s: %s", sourceType, formatter.FormatNumber(count))) + "\n"
	}
	text += "\n" + formatter.EscapeMarkdownV2("By bucket:") + "\n"
	for bucket, count := range summary.CountsByBucket {
		text += formatter.EscapeMarkdownV2(fmt.Sprintf("- %s: %s", bucket, formatter.FormatNumber(count))) + "\n"
	}

	n.send(text)
}

// NotifyFatal reports a fatal, run-aborting error.
func (n *Notifier) NotifyFatal(stage string, err error) {
	text := formatter.EscapeMarkdownV2(fmt.Sprintf("Fatal error in %s: %v", stage, err))
	n.send(text)
}

// NotifyPartialFailure reports a run that completed but with an elevated
// share of posts in the excluded bucket.
func (n *Notifier) NotifyPartialFailure(batchID string, errorRate float64) {
	text := formatter.EscapeMarkdownV2(fmt.Sprintf("Batch %s finished with %.1f%% of posts excluded", batchID, errorRate*100))
	n.send(text)
}

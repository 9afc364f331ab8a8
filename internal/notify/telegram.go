package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/bauhaus93/wishlist-scrape/internal/domain"
	"github.com/bauhaus93/wishlist-scrape/internal/reconcile"
	"github.com/bauhaus93/wishlist-scrape/internal/storage"
)

// sender is the part of *tgbot.Bot the notifier needs.
type sender interface {
	SendMessage(ctx context.Context, params *tgbot.SendMessageParams) (*models.Message, error)
}

// Telegram reports reconciliation results to one chat and answers /latest.
// It implements reconcile.Observer.
type Telegram struct {
	bot     *tgbot.Bot
	send    sender
	chatID  int64
	catalog storage.Catalog
	log     logrus.FieldLogger

	mu      sync.Mutex
	created []string
	prices  []string
}

// NewTelegram connects to the bot API with token.
func NewTelegram(token string, chatID int64, catalog storage.Catalog, logger logrus.FieldLogger) (*Telegram, error) {
	log := logger.WithField("component", "telegram")

	b, err := tgbot.New(token)
	if err != nil {
		log.WithError(err).Error("Failed to create Telegram bot instance")
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	t := newTelegram(b, chatID, catalog, log)
	t.bot = b
	b.RegisterHandler(tgbot.HandlerTypeMessageText, "/start", tgbot.MatchTypeExact, t.startHandler)
	b.RegisterHandler(tgbot.HandlerTypeMessageText, "/latest", tgbot.MatchTypeExact, t.latestHandler)
	log.Info("Telegram notifier initialized")
	return t, nil
}

func newTelegram(s sender, chatID int64, catalog storage.Catalog, log logrus.FieldLogger) *Telegram {
	return &Telegram{send: s, chatID: chatID, catalog: catalog, log: log}
}

// Start polls for commands until ctx is cancelled.
func (t *Telegram) Start(ctx context.Context) {
	if t.bot == nil {
		return
	}
	t.log.Info("Starting Telegram bot polling...")
	t.bot.Start(ctx)
	t.log.Info("Telegram bot polling stopped.")
}

func (t *Telegram) ProductCreated(ctx context.Context, p domain.Product) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.created = append(t.created, fmt.Sprintf("%s (%s)", p.Name, formatPrice(p.Price)))
}

func (t *Telegram) ProductUpdated(ctx context.Context, before domain.Product, changes []domain.FieldChange, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ch := range changes {
		if ch.Field != domain.FieldPrice {
			continue
		}
		t.prices = append(t.prices, fmt.Sprintf("%s: %s -> %s", before.Name, minorString(ch.Old), minorString(ch.New)))
	}
}

// CycleCompleted sends one message per cycle, and only when something happened.
func (t *Telegram) CycleCompleted(ctx context.Context, s reconcile.Summary) {
	t.mu.Lock()
	created, prices := t.created, t.prices
	t.created, t.prices = nil, nil
	t.mu.Unlock()

	text := FormatReport(s, created, prices)
	if text == "" {
		return
	}
	if _, err := t.send.SendMessage(ctx, &tgbot.SendMessageParams{ChatID: t.chatID, Text: text}); err != nil {
		t.log.WithError(err).Error("Failed to send cycle report")
	}
}

// FormatReport renders a cycle summary. It returns "" when there is nothing to report.
func FormatReport(s reconcile.Summary, created, prices []string) string {
	if !s.NewSnapshot && len(prices) == 0 {
		return ""
	}
	var b strings.Builder
	if s.NewSnapshot {
		fmt.Fprintf(&b, "Wishlist changed: %d products, value %s\n", s.Scraped, formatPrice(s.Value))
	} else {
		fmt.Fprintf(&b, "Wishlist unchanged, %d product(s) updated\n", s.Updated)
	}
	for _, c := range created {
		fmt.Fprintf(&b, "+ %s\n", c)
	}
	for _, p := range prices {
		fmt.Fprintf(&b, "~ %s\n", p)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (t *Telegram) startHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	_, err := b.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: update.Message.Chat.ID,
		Text:   "Wishlist watcher is running. Send /latest for the most recent snapshot.",
	})
	if err != nil {
		t.log.WithError(err).Error("Failed to send welcome message")
	}
}

func (t *Telegram) latestHandler(ctx context.Context, b *tgbot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	_, err := b.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: update.Message.Chat.ID,
		Text:   t.latestText(ctx),
	})
	if err != nil {
		t.log.WithError(err).Error("Failed to answer /latest")
	}
}

func (t *Telegram) latestText(ctx context.Context) string {
	snap, err := t.catalog.LatestSnapshot(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return "No wishlist snapshot yet."
	}
	if err != nil {
		t.log.WithError(err).Error("Failed to load latest snapshot")
		return "Couldn't load the latest snapshot."
	}
	return fmt.Sprintf("Snapshot of %s: %d products, value %s",
		snap.Timestamp.Format("2006-01-02 15:04"), len(snap.ProductIDs), formatPrice(snap.Value))
}

func formatPrice(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}

func minorString(s string) string {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return s
	}
	return d.Shift(-2).StringFixed(2)
}

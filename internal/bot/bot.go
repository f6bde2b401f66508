package bot

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/ndenisov/calmind/internal/alarm"
	"github.com/ndenisov/calmind/internal/domain"
	"github.com/ndenisov/calmind/internal/repository"
	"github.com/ndenisov/calmind/internal/service"
)

// Bot is the Telegram front end: it renders fired reminders and exposes a
// small command surface over the sync engine.
type Bot struct {
	api      *tgbotapi.BotAPI
	chatID   int64
	sync     *service.SyncService
	timezone *time.Location

	mu       sync.Mutex
	lastList []string // local ids in the order last shown by /list
}

// New creates the bot.
func New(token string, chatID int64, syncSvc *service.SyncService, tz *time.Location) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	log.Printf("Authorized as @%s", api.Self.UserName)

	if tz == nil {
		tz = time.Local
	}
	return &Bot{
		api:      api,
		chatID:   chatID,
		sync:     syncSvc,
		timezone: tz,
	}, nil
}

// SendMessage sends a plain text message to the chat.
func (b *Bot) SendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// Notify renders a fired reminder payload. This is where the scheduling
// core's responsibility ends and delivery begins.
func (b *Bot) Notify(p alarm.Payload) {
	text := fmt.Sprintf("🔔 <b>%s</b>\n%s", p.Title, p.TimeWindow)
	if p.Location != "" {
		text += "\n📍 " + p.Location
	}
	if p.Description != "" {
		text += "\n" + p.Description
	}
	if err := b.SendMessage(b.chatID, text); err != nil {
		log.Printf("Error delivering reminder for event %s: %v", p.EventID, err)
	}
}

// Start runs the long-polling update loop until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := b.api.GetUpdatesChan(u)
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update := <-updates:
			if update.Message == nil || !update.Message.IsCommand() {
				continue
			}
			if update.Message.Chat.ID != b.chatID {
				continue
			}
			b.handleCommand(ctx, update.Message)
		}
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	var reply string
	switch msg.Command() {
	case "today":
		reply = b.cmdToday(ctx)
	case "list":
		reply = b.cmdList(ctx)
	case "add":
		reply = b.cmdAdd(ctx, msg.CommandArguments())
	case "del":
		reply = b.cmdDelete(ctx, msg.CommandArguments())
	case "sync":
		reply = b.cmdSync(ctx)
	case "help", "start":
		reply = helpText
	default:
		reply = "Unknown command. /help"
	}

	if err := b.SendMessage(msg.Chat.ID, reply); err != nil {
		log.Printf("Error replying to %s: %v", msg.Command(), err)
	}
}

const helpText = `📅 <b>calmind</b>

/today — today's events
/list — all upcoming events
/add Title | 02.01.2006 | 09:00 | 09:30 | 15 — add event (last field: reminder minutes, optional)
/del N — delete event number N from /list
/sync — reload from server
/help — this text`

func (b *Bot) cmdToday(ctx context.Context) string {
	if err := b.sync.LoadEvents(ctx); err != nil {
		return "⚠️ " + b.sync.ErrorMessage()
	}
	b.sync.SetSelectedDate(time.Now().In(b.timezone))
	events := b.sync.EventsForSelectedDate()
	if len(events) == 0 {
		return "No events today."
	}

	var sb strings.Builder
	sb.WriteString("📅 <b>Today:</b>\n")
	for _, e := range events {
		sb.WriteString(formatEventLine(e))
	}
	return sb.String()
}

func (b *Bot) cmdList(ctx context.Context) string {
	if err := b.sync.LoadEvents(ctx); err != nil {
		return "⚠️ " + b.sync.ErrorMessage()
	}

	events := b.sync.Events()
	if len(events) == 0 {
		return "No events."
	}
	sort.Slice(events, func(i, j int) bool {
		if !events[i].Date.Equal(events[j].Date) {
			return events[i].Date.Before(events[j].Date)
		}
		return events[i].Start.Before(events[j].Start)
	})

	b.mu.Lock()
	b.lastList = b.lastList[:0]
	for _, e := range events {
		b.lastList = append(b.lastList, e.ID)
	}
	b.mu.Unlock()

	var sb strings.Builder
	var currentDate string
	for i, e := range events {
		if d := e.FormatDate(); d != currentDate {
			if currentDate != "" {
				sb.WriteString("\n")
			}
			sb.WriteString(fmt.Sprintf("📅 <b>%s</b>\n", d))
			currentDate = d
		}
		sb.WriteString(fmt.Sprintf("%d. %s", i+1, formatEventLine(e)))
	}
	return sb.String()
}

// cmdAdd parses "Title | date | start | end | reminder-minutes".
func (b *Bot) cmdAdd(ctx context.Context, args string) string {
	parts := strings.Split(args, "|")
	if len(parts) < 4 {
		return "Usage: /add Title | 02.01.2006 | 09:00 | 09:30 | 15"
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	date, err := time.ParseInLocation("02.01.2006", parts[1], b.timezone)
	if err != nil {
		return "Bad date, expected 02.01.2006"
	}
	start, err := domain.ParseTimeOfDay(parts[2])
	if err != nil {
		return "Bad start time, expected HH:MM"
	}
	end, err := domain.ParseTimeOfDay(parts[3])
	if err != nil {
		return "Bad end time, expected HH:MM"
	}

	fields := repository.EventFields{
		Title: parts[0],
		Date:  date,
		Start: start,
		End:   end,
	}
	if len(parts) >= 5 && parts[4] != "" {
		min, err := strconv.Atoi(parts[4])
		if err != nil || min < 0 {
			return "Bad reminder minutes"
		}
		fields.Reminder = &domain.Offset{Hours: min / 60, Minutes: min % 60}
	}

	res, err := b.sync.CreateEvent(ctx, fields)
	if err != nil {
		return "⚠️ " + domain.ErrorMessage(err)
	}
	if !res.Success {
		return "Server rejected the event: " + res.Message
	}
	return "✅ Added: " + fields.Title
}

func (b *Bot) cmdDelete(ctx context.Context, args string) string {
	n, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil {
		return "Usage: /del N (number from /list)"
	}

	b.mu.Lock()
	var id string
	if n >= 1 && n <= len(b.lastList) {
		id = b.lastList[n-1]
	}
	b.mu.Unlock()
	if id == "" {
		return "No such event number; run /list first"
	}

	res, err := b.sync.DeleteEvent(ctx, id)
	if err != nil {
		return "⚠️ " + domain.ErrorMessage(err)
	}
	if !res.Success {
		return "Server rejected the delete: " + res.Message
	}
	return "🗑 Deleted."
}

func (b *Bot) cmdSync(ctx context.Context) string {
	if err := b.sync.LoadEvents(ctx); err != nil {
		return "⚠️ " + b.sync.ErrorMessage()
	}
	return fmt.Sprintf("🔄 Synced, %d events.", len(b.sync.Events()))
}

func formatEventLine(e *domain.CalendarEvent) string {
	line := fmt.Sprintf("  %s — %s", e.FormatWindow(), e.Title)
	if e.Location != "" {
		line += " 📍" + e.Location
	}
	if e.Reminder != nil {
		line += " 🔔"
	}
	return line + "\n"
}

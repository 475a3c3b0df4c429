package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/digkill/ghola/internal/client"
	"github.com/digkill/ghola/internal/models"
	"github.com/digkill/ghola/internal/ratelimit"
	"github.com/digkill/ghola/internal/subscription"
	"github.com/digkill/ghola/internal/web3forms"
)

const (
	stylePrefix = "style:"
	ratioPrefix = "ratio:"

	genericFailure  = "Failed to generate character. Please try again."
	feedbackFailure = "Failed to send feedback. Please try again."
)

// BotAPI is the part of the Telegram client the shell uses.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Generator runs the two function calls behind a generation.
type Generator interface {
	Prompt(ctx context.Context, req client.PromptRequest) (string, error)
	Image(ctx context.Context, req client.ImageRequest) ([]models.ImageRef, error)
}

type Forms interface {
	Enabled() bool
	Feedback(ctx context.Context, email, message string) error
	RequestAccess(ctx context.Context, email string) error
}

type Bot struct {
	api     BotAPI
	log     *slog.Logger
	gen     Generator
	limiter *ratelimit.Limiter
	gate    *subscription.Gate
	forms   Forms
	state   *StateManager
	wg      sync.WaitGroup
}

func NewBot(api BotAPI, log *slog.Logger, gen Generator, limiter *ratelimit.Limiter, gate *subscription.Gate, forms Forms) *Bot {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Bot{
		api:     api,
		log:     log,
		gen:     gen,
		limiter: limiter,
		gate:    gate,
		forms:   forms,
		state:   NewStateManager(),
	}
}

func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.log.Info("telegram bot started")

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				b.wg.Wait()
				return nil
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.handleUpdate(ctx, update)
			}()
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.wg.Wait()
			return ctx.Err()
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}
	b.generate(ctx, msg.Chat.ID, msg.Text)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "start":
		b.handleStart(ctx, chatID)
	case "generate":
		b.state.Update(chatID, func(s *Session) { s.State = StateAwaitingStyle })
		b.sendStyleKeyboard(ctx, chatID, "Pick a style for your character.")
	case "style":
		b.sendStyleKeyboard(ctx, chatID, "Pick a style.")
	case "ratio":
		b.sendRatioKeyboard(chatID, "Pick an aspect ratio.")
	case "premium":
		b.handlePremium(ctx, chatID, args)
	case "license":
		b.handleLicense(ctx, chatID, args)
	case "status":
		b.handleStatus(ctx, chatID)
	case "feedback":
		b.handleFeedback(ctx, chatID, args)
	default:
		b.sendText(chatID, "Unknown command. Send a character name or use /generate.")
	}
}

func (b *Bot) handleStart(ctx context.Context, chatID int64) {
	key := chatKey(chatID)
	b.state.Reset(chatID)
	if _, err := b.gate.Restore(ctx, key); err != nil {
		b.log.Warn("restore subscription", "chat_id", chatID, "err", err)
	}

	tier := "Free"
	if b.gate.IsPremium(key) {
		tier = "Premium"
	}
	text := fmt.Sprintf(
		"Welcome to Ghola!\n\nSend me any character name and I will bring it to life.\n\nYour plan: %s (%d free generations per day)\n\nCommands:\n/generate - pick style and ratio, then send a name\n/style - change style\n/ratio - change aspect ratio\n/premium <email> - unlock premium with your subscription email\n/license <key> - activate a license key\n/status - plan and remaining generations\n/feedback <email> <message> - send us feedback",
		tier, b.limiter.Quota(),
	)
	b.sendText(chatID, text)
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil || cb.Message.Chat == nil {
		return
	}
	chatID := cb.Message.Chat.ID
	premium := b.premium(ctx, chatKey(chatID))

	switch {
	case strings.HasPrefix(cb.Data, stylePrefix):
		style := models.ParseStyle(strings.TrimPrefix(cb.Data, stylePrefix))
		if style != models.StyleRealistic && !premium {
			b.ack(cb.ID, "Premium style")
			b.sendText(chatID, fmt.Sprintf("%s style is a premium feature. Use /premium <email> or /license <key> to unlock it.", style.Label()))
			return
		}
		var next SessionState
		b.state.Update(chatID, func(s *Session) {
			s.Style = style
			if s.State == StateAwaitingStyle {
				s.State = StateAwaitingRatio
			}
			next = s.State
		})
		b.ack(cb.ID, style.Label()+" selected")
		if next == StateAwaitingRatio {
			b.sendRatioKeyboard(chatID, "Now pick an aspect ratio.")
			return
		}
		b.sendText(chatID, fmt.Sprintf("Style set to %s.", style.Label()))
	case strings.HasPrefix(cb.Data, ratioPrefix):
		ratio := models.ParseAspectRatio(strings.TrimPrefix(cb.Data, ratioPrefix))
		b.state.Update(chatID, func(s *Session) {
			s.AspectRatio = ratio
			s.State = StateAwaitingName
		})
		b.ack(cb.ID, string(ratio)+" selected")
		b.sendText(chatID, "Now send me a character name.")
	default:
		b.ack(cb.ID, "Unknown choice")
	}
}

// generate runs the full flow for one character name.
func (b *Bot) generate(ctx context.Context, chatID int64, name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		b.sendText(chatID, "Please enter a character name")
		return
	}
	if !b.state.TryBegin(chatID) {
		b.sendText(chatID, "A generation is already in progress. Please wait.")
		return
	}
	defer b.state.Finish(chatID)

	key := chatKey(chatID)
	premium := b.premium(ctx, key)
	session := b.state.Get(chatID)
	style := session.Style
	if !premium {
		style = models.StyleRealistic
	}

	if !premium {
		decision := b.limiter.Admit(ctx, key)
		if !decision.Allowed {
			b.sendText(chatID, "Rate limit reached. Try again in "+formatReset(decision.ResetSeconds))
			return
		}
		b.limiter.Record(ctx, key)
	}

	b.sendText(chatID, "Generating character description...")
	enriched, err := b.gen.Prompt(ctx, client.PromptRequest{
		Prompt:      name,
		AspectRatio: string(session.AspectRatio),
		Style:       string(style),
	})
	if err != nil {
		b.log.Error("prompt call failed", "chat_id", chatID, "err", err)
		b.sendText(chatID, userMessage(err))
		return
	}

	b.sendText(chatID, "Creating character image...")
	images, err := b.gen.Image(ctx, client.ImageRequest{
		Prompt:      enriched,
		Premium:     premium,
		AspectRatio: string(session.AspectRatio),
		Style:       string(style),
		Character:   name,
		Email:       b.gate.Email(ctx, key),
	})
	if err != nil {
		b.log.Error("image call failed", "chat_id", chatID, "err", err)
		b.sendText(chatID, userMessage(err))
		return
	}

	caption := fmt.Sprintf("%s\nStyle: %s", name, style.Label())
	if !premium {
		d := b.limiter.Admit(ctx, key)
		caption += fmt.Sprintf("\nFree generations used: %d/%d", d.Used, b.limiter.Quota())
	}
	b.sendImage(chatID, images[0], caption)
}

func (b *Bot) handlePremium(ctx context.Context, chatID int64, email string) {
	if email == "" {
		b.sendText(chatID, "Usage: /premium you@example.com")
		return
	}
	out, err := b.gate.Submit(ctx, chatKey(chatID), email)
	if errors.Is(err, subscription.ErrEmailRequired) {
		b.sendText(chatID, "Please enter your email")
		return
	}
	if err != nil {
		b.sendText(chatID, "Could not verify your subscription right now. You can keep generating on the free plan.")
		return
	}
	if out.IsPremium() {
		b.sendText(chatID, "Premium activated! Enjoy HD images and unlimited generations")
		return
	}

	if b.forms != nil && b.forms.Enabled() {
		if err := b.forms.RequestAccess(ctx, out.Email); err != nil {
			b.log.Warn("premium access request", "chat_id", chatID, "err", err)
		}
	}
	text := "No active subscription found for " + out.Email + "."
	if out.CheckoutURL != "" {
		text += "\n\nGet premium here: " + out.CheckoutURL
	}
	text += "\n\nAfter checkout send /premium " + out.Email + " again to unlock premium."
	b.sendText(chatID, text)
}

func (b *Bot) handleLicense(ctx context.Context, chatID int64, licenseKey string) {
	out, err := b.gate.ActivateLicense(ctx, chatKey(chatID), licenseKey)
	switch {
	case errors.Is(err, subscription.ErrLicenseKeyRequired):
		b.sendText(chatID, "Usage: /license YOUR-LICENSE-KEY")
	case errors.Is(err, subscription.ErrLicenseCheck):
		b.sendText(chatID, "Failed to validate license key. Please try again.")
	case err != nil:
		b.log.Error("activate license", "chat_id", chatID, "err", err)
		b.sendText(chatID, "License activation is not available right now.")
	case out.IsPremium():
		b.sendText(chatID, "License validated successfully! You've unlocked Unlimited HD generations")
	default:
		b.sendText(chatID, out.Message)
	}
}

func (b *Bot) handleStatus(ctx context.Context, chatID int64) {
	key := chatKey(chatID)
	session := b.state.Get(chatID)
	var sb strings.Builder
	if b.premium(ctx, key) {
		sb.WriteString("Plan: Premium (unlimited generations)")
	} else {
		d := b.limiter.Admit(ctx, key)
		fmt.Fprintf(&sb, "Plan: Free\nGenerations used: %d/%d", d.Used, b.limiter.Quota())
		if !d.Allowed {
			sb.WriteString("\nNext generation in " + formatReset(d.ResetSeconds))
		}
	}
	if email := b.gate.Email(ctx, key); email != "" {
		sb.WriteString("\nEmail: " + email)
	}
	fmt.Fprintf(&sb, "\nStyle: %s\nAspect ratio: %s", session.Style.Label(), session.AspectRatio)
	b.sendText(chatID, sb.String())
}

func (b *Bot) handleFeedback(ctx context.Context, chatID int64, args string) {
	email, message, _ := strings.Cut(args, " ")
	message = strings.TrimSpace(message)
	if email == "" || message == "" {
		b.sendText(chatID, "Please fill in all fields: /feedback <email> <message>")
		return
	}
	if b.forms == nil || !b.forms.Enabled() {
		b.sendText(chatID, "Feedback is not available right now.")
		return
	}
	if err := b.forms.Feedback(ctx, email, message); err != nil {
		b.log.Warn("send feedback", "chat_id", chatID, "err", err)
		text := feedbackFailure
		var rejected *web3forms.RejectedError
		if errors.As(err, &rejected) && rejected.Message != "" {
			text = rejected.Message
		}
		b.sendText(chatID, text)
		return
	}
	b.sendText(chatID, "Feedback sent successfully!")
}

func (b *Bot) sendStyleKeyboard(ctx context.Context, chatID int64, text string) {
	premium := b.premium(ctx, chatKey(chatID))
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for _, style := range models.Styles {
		label := style.Label()
		if style != models.StyleRealistic && !premium {
			label += " (premium)"
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, stylePrefix+string(style)))
		if len(row) == 2 {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	b.sendKeyboard(chatID, text, tgbotapi.NewInlineKeyboardMarkup(rows...))
}

func (b *Bot) sendRatioKeyboard(chatID int64, text string) {
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Landscape", ratioPrefix+string(models.AspectLandscape)),
			tgbotapi.NewInlineKeyboardButtonData("Portrait", ratioPrefix+string(models.AspectPortrait)),
			tgbotapi.NewInlineKeyboardButtonData("Square", ratioPrefix+string(models.AspectSquare)),
		),
	)
	b.sendKeyboard(chatID, text, keyboard)
}

func (b *Bot) sendKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = keyboard
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send keyboard", "err", err)
	}
}

func (b *Bot) sendImage(chatID int64, img models.ImageRef, caption string) {
	var file tgbotapi.RequestFileData
	if img.IsInline() {
		file = tgbotapi.FileBytes{Name: "ghola" + extensionFor(img.MimeType), Bytes: img.Data}
	} else {
		file = tgbotapi.FileURL(img.URL)
	}
	photo := tgbotapi.NewPhoto(chatID, file)
	photo.Caption = caption
	if _, err := b.api.Send(photo); err != nil {
		b.log.Error("send image", "err", err)
		if !img.IsInline() {
			b.sendText(chatID, caption+"\n"+img.URL)
		}
	}
}

func (b *Bot) sendText(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send text", "err", err)
	}
}

func (b *Bot) ack(callbackID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		b.log.Error("callback ack", "err", err)
	}
}

// premium reports the chat's tier. A chat the gate has not seen yet is restored
// from its cached email first, so returning subscribers are recognised without /start.
func (b *Bot) premium(ctx context.Context, key string) bool {
	if b.gate.State(key) == subscription.StateUnchecked {
		if _, err := b.gate.Restore(ctx, key); err != nil {
			b.log.Warn("restore subscription", "key", key, "err", err)
		}
	}
	return b.gate.IsPremium(key)
}

func chatKey(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}

// userMessage shows backend error strings as-is and hides transport details.
func userMessage(err error) string {
	var respErr *client.ResponseError
	switch {
	case errors.As(err, &respErr):
		return respErr.Message
	case errors.Is(err, client.ErrNoPrompt):
		return "No enhanced prompt in the response"
	case errors.Is(err, client.ErrNoImage):
		return "No image data in the response"
	default:
		return genericFailure
	}
}

// formatReset renders seconds as H:MM:SS.
func formatReset(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d:%02d", seconds/3600, seconds%3600/60, seconds%60)
}

func extensionFor(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}

package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"family-planner/internal/config"
	"family-planner/internal/service"
	"family-planner/internal/storage"
	"family-planner/internal/syncqueue"
)

// telegramAPI is the part of *tgbotapi.BotAPI the bot uses.
type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type conversationStage int

const (
	stageNone conversationStage = iota
	stageName
	stageSubject
	stageDate
	stageTime
	stageRepeat
)

type conversationState struct {
	stage conversationStage
	input service.TaskInput
}

type confirmationAction int

const (
	actionToggle confirmationAction = iota
	actionDelete
)

type confirmationRequest struct {
	taskID string
	action confirmationAction
}

// Bot aggregates Telegram API with services.
type Bot struct {
	api         telegramAPI
	taskSvc     *service.TaskService
	familySvc   *service.FamilyService
	reminderSvc *service.ReminderService
	queue       *syncqueue.Queue
	slots       storage.Slots
	config      *config.Config
	now         func() time.Time

	conversations map[int64]*conversationState
	confirmations map[int64]confirmationRequest
	// chats receive the daily report; persisted in storage.SlotChats.
	chats map[int64]struct{}
	mu    sync.Mutex
}

func New(token string, taskSvc *service.TaskService, familySvc *service.FamilyService, reminderSvc *service.ReminderService, queue *syncqueue.Queue, slots storage.Slots, cfg *config.Config) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	log.Printf("[info] bot authorized on account %s", api.Self.UserName)
	return newBot(api, taskSvc, familySvc, reminderSvc, queue, slots, cfg), nil
}

func newBot(api telegramAPI, taskSvc *service.TaskService, familySvc *service.FamilyService, reminderSvc *service.ReminderService, queue *syncqueue.Queue, slots storage.Slots, cfg *config.Config) *Bot {
	if cfg == nil {
		cfg = &config.Config{}
	}
	if slots == nil {
		slots = storage.NewMemorySlots()
	}
	return &Bot{
		api:           api,
		taskSvc:       taskSvc,
		familySvc:     familySvc,
		reminderSvc:   reminderSvc,
		queue:         queue,
		slots:         slots,
		config:        cfg,
		now:           time.Now,
		conversations: make(map[int64]*conversationState),
		confirmations: make(map[int64]confirmationRequest),
		chats:         loadChats(slots),
	}
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	log.Println("[info] start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
				log.Printf("handle callback: %v", err)
			}
		case update.Message != nil:
			if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
				continue
			}
			if err := b.handleMessage(ctx, update.Message); err != nil {
				log.Printf("handle message: %v", err)
			}
		}
	}

	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}
	b.rememberChat(msg.Chat.ID)

	if !msg.IsCommand() && isCancelDialogInput(msg.Text) {
		b.clearConversation(msg.From.ID)
		b.clearConfirmation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "⏪ Input cancelled. Start again whenever you like.")
	}

	if !msg.IsCommand() {
		if handled, err := b.handleMenuAlias(ctx, msg); handled {
			return err
		}
	}

	if msg.IsCommand() {
		log.Printf("[info] command from %d: /%s %s", msg.From.ID, msg.Command(), msg.CommandArguments())
		return b.handleCommand(ctx, msg)
	}

	if pending, ok := b.getConfirmation(msg.From.ID); ok {
		return b.handleConfirmationResponse(ctx, msg, pending)
	}

	if b.hasConversation(msg.From.ID) {
		log.Printf("[info] conversation step %d from %d", b.getConversation(msg.From.ID).stage, msg.From.ID)
		return b.handleConversation(ctx, msg)
	}

	return b.sendText(msg.Chat.ID, "I didn't get that. Use /newtask to add a task, /plan to paste a whole plan, or /help.")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		return b.handleStart(msg)
	case "help":
		return b.handleHelp(msg)
	case "newtask":
		return b.startNewTaskConversation(msg)
	case "tasks":
		return b.handleListTasks(msg)
	case "done":
		return b.handleDone(ctx, msg)
	case "delete":
		return b.handleDelete(ctx, msg)
	case "plan":
		return b.handlePlan(ctx, msg)
	case "family":
		return b.handleFamily(ctx, msg)
	case "newfamily":
		return b.handleNewFamily(ctx, msg)
	case "join":
		return b.handleJoin(ctx, msg)
	case "leave":
		return b.handleLeave(msg)
	case "sync":
		return b.handleSync(ctx, msg)
	case "status":
		return b.handleStatus(msg)
	case "report":
		return b.handleReport(msg)
	case "cancel":
		b.clearConversation(msg.From.ID)
		b.clearConfirmation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "⏪ Input cancelled.")
	default:
		return b.sendText(msg.Chat.ID, "Unknown command. See /help.")
	}
}

// SendDailyReports sends the day's summary to every chat the bot has seen
// and to the active family's members.
func (b *Bot) SendDailyReports(ctx context.Context) error {
	recipients := b.knownChats()
	if _, ok := b.familySvc.Current(); ok {
		members, err := b.familySvc.Members(ctx)
		if err != nil {
			log.Printf("list family members for report: %v", err)
		}
		for _, m := range members {
			if m.TelegramID != 0 {
				recipients[m.TelegramID] = struct{}{}
			}
		}
	}

	text := b.reminderSvc.DailySummary(b.today())
	for chatID := range recipients {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := b.sendText(chatID, text); err != nil {
			log.Printf("send summary to %d: %v", chatID, err)
		}
	}
	return nil
}

func (b *Bot) today() time.Time {
	return b.now().In(b.config.Location())
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = mainMenuKeyboard()
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendTextWithRemove(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendWithReplyMarkup(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) ackCallback(id string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(id, "")); err != nil {
		log.Printf("callback ack: %v", err)
	}
}

func loadChats(slots storage.Slots) map[int64]struct{} {
	chats := make(map[int64]struct{})
	data, err := slots.Get(storage.SlotChats)
	if err != nil {
		if !errors.Is(err, storage.ErrEmptySlot) {
			log.Printf("read report chats: %v", err)
		}
		return chats
	}
	var ids []int64
	if err := json.Unmarshal(data, &ids); err != nil {
		log.Printf("decode report chats: %v", err)
		return chats
	}
	for _, id := range ids {
		chats[id] = struct{}{}
	}
	return chats
}

func (b *Bot) rememberChat(chatID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.chats[chatID]; ok {
		return
	}
	b.chats[chatID] = struct{}{}

	ids := make([]int64, 0, len(b.chats))
	for id := range b.chats {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	data, err := json.Marshal(ids)
	if err == nil {
		err = b.slots.Put(storage.SlotChats, data)
	}
	if err != nil {
		log.Printf("save report chats: %v", err)
	}
}

func (b *Bot) knownChats() map[int64]struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[int64]struct{}, len(b.chats))
	for id := range b.chats {
		out[id] = struct{}{}
	}
	return out
}

func (b *Bot) getConfirmation(userID int64) (confirmationRequest, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	req, ok := b.confirmations[userID]
	return req, ok
}

func (b *Bot) setConfirmation(userID int64, req confirmationRequest) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.confirmations[userID] = req
}

func (b *Bot) clearConfirmation(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.confirmations, userID)
}

func (b *Bot) setConversation(userID int64, state *conversationState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conversations[userID] = state
}

func (b *Bot) getConversation(userID int64) *conversationState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conversations[userID]
}

func (b *Bot) hasConversation(userID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.conversations[userID]
	return ok
}

func (b *Bot) clearConversation(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.conversations, userID)
}

func (b *Bot) handleMenuAlias(ctx context.Context, msg *tgbotapi.Message) (bool, error) {
	text := strings.TrimSpace(strings.ToLower(msg.Text))
	switch text {
	case strings.ToLower(menuLabelNewTask):
		return true, b.startNewTaskConversation(msg)
	case strings.ToLower(menuLabelTasks):
		return true, b.handleListTasks(msg)
	case strings.ToLower(menuLabelSync):
		return true, b.handleSync(ctx, msg)
	case strings.ToLower(menuLabelHelp):
		return true, b.handleHelp(msg)
	default:
		return false, nil
	}
}

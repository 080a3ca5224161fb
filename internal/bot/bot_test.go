package bot

import (
	"context"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"family-planner/internal/config"
	"family-planner/internal/family"
	"family-planner/internal/localstore"
	"family-planner/internal/model"
	"family-planner/internal/repository"
	"family-planner/internal/service"
	"family-planner/internal/storage"
	"family-planner/internal/syncqueue"
)

const chatID int64 = 42

type sentMessage struct {
	chatID int64
	text   string
	markup interface{}
}

type fakeAPI struct {
	mu        sync.Mutex
	sent      []sentMessage
	callbacks int
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, sentMessage{chatID: msg.ChatID, text: msg.Text, markup: msg.ReplyMarkup})
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := c.(tgbotapi.CallbackConfig); ok {
		f.callbacks++
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(chan tgbotapi.Update)
}

func (f *fakeAPI) StopReceivingUpdates() {}

func (f *fakeAPI) last() sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return sentMessage{}
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeAPI) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fixture struct {
	bot     *Bot
	api     *fakeAPI
	store   *localstore.Store
	session *family.Session
	slots   *storage.MemorySlots
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	quiet := log.New(io.Discard, "", 0)
	slots := storage.NewMemorySlots()
	store := localstore.New(slots, quiet)
	session := family.Open(slots, quiet)
	queue := syncqueue.New(syncqueue.NewStore(slots, quiet), repository.NewTaskGateway(nil), syncqueue.DefaultConfig(), quiet)
	require.NoError(t, queue.Load(context.Background()))

	tasks := service.NewTaskService(store, queue, session, quiet)
	families := service.NewFamilyService(repository.NewFamilyRepository(nil), repository.NewMemberRepository(nil), session)
	reminders := service.NewReminderService(store, queue)

	api := &fakeAPI{}
	b := newBot(api, tasks, families, reminders, queue, slots, &config.Config{Timezone: "UTC"})
	b.now = func() time.Time { return time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC) }
	return fixture{bot: b, api: api, store: store, session: session, slots: slots}
}

func textMessage(text string) *tgbotapi.Message {
	return &tgbotapi.Message{
		From: &tgbotapi.User{ID: 7, FirstName: "Mia"},
		Chat: &tgbotapi.Chat{ID: chatID, Type: "private"},
		Text: text,
	}
}

func command(text string) *tgbotapi.Message {
	msg := textMessage(text)
	name := strings.Fields(text)[0]
	msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}}
	return msg
}

func (f fixture) send(t *testing.T, msg *tgbotapi.Message) sentMessage {
	t.Helper()
	require.NoError(t, f.bot.handleMessage(context.Background(), msg))
	return f.api.last()
}

func TestNewTaskConversation(t *testing.T) {
	f := newFixture(t)

	reply := f.send(t, command("/newtask"))
	assert.Contains(t, reply.text, "Step 1")

	reply = f.send(t, textMessage("Read chapter 3"))
	assert.Contains(t, reply.text, "Step 2")

	reply = f.send(t, textMessage("Reading"))
	assert.Contains(t, reply.text, "Step 3")

	reply = f.send(t, textMessage("not a date at all"))
	assert.Contains(t, reply.text, "can't read that date")

	reply = f.send(t, textMessage("2025-03-12"))
	assert.Contains(t, reply.text, "Step 4")

	reply = f.send(t, textMessage("16:00-16:45"))
	assert.Contains(t, reply.text, "Step 5")

	f.send(t, textMessage("Weekly"))
	assert.False(t, f.bot.hasConversation(7))

	tasks := f.store.List("")
	require.Len(t, tasks, 4)
	first := f.store.List("2025-03-12")
	require.Len(t, first, 1)
	assert.Equal(t, "Read chapter 3", first[0].Name)
	assert.Equal(t, "Reading", first[0].Subject)
	assert.Equal(t, 45, first[0].Duration)
	assert.Equal(t, 5, first[0].Points)
	assert.Equal(t, "16:00", first[0].StartTime)
	assert.Len(t, f.store.List("2025-04-02"), 1)
}

func TestConversationCancel(t *testing.T) {
	f := newFixture(t)

	f.send(t, command("/newtask"))
	f.send(t, textMessage("Piano"))
	reply := f.send(t, textMessage(btnCancelDialog))

	assert.Contains(t, reply.text, "cancelled")
	assert.False(t, f.bot.hasConversation(7))
	assert.Empty(t, f.store.List(""))
}

func TestPlanCommand(t *testing.T) {
	f := newFixture(t)

	reply := f.send(t, command("/plan\n16:00-16:45 Math homework\nPiano 20 min\n16:00-15:00 broken"))

	assert.Contains(t, reply.text, "Added 2 task(s)")
	assert.Contains(t, reply.text, "Skipped")
	tasks := f.store.List("2025-03-10")
	require.Len(t, tasks, 2)
}

func TestDoneByID(t *testing.T) {
	f := newFixture(t)
	f.send(t, command("/plan\nPiano 20 min"))

	reply := f.send(t, command("/done 1"))
	assert.Contains(t, reply.text, "done")
	assert.Contains(t, reply.text, "+2 points")

	task, ok := f.store.Get("1")
	require.True(t, ok)
	assert.True(t, task.Completed)

	reply = f.send(t, command("/done 99"))
	assert.Contains(t, reply.text, "No task with id 99")
}

func TestDeleteThroughCallbackConfirmation(t *testing.T) {
	f := newFixture(t)
	f.send(t, command("/plan\nPiano 20 min"))

	cb := &tgbotapi.CallbackQuery{
		ID:      "cb-1",
		From:    &tgbotapi.User{ID: 7},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID, Type: "private"}},
		Data:    cbDeletePrefix + "1",
	}
	require.NoError(t, f.bot.handleCallback(context.Background(), cb))
	assert.Equal(t, 1, f.api.callbacks)
	assert.Contains(t, f.api.last().text, "Delete «Piano»?")

	reply := f.send(t, textMessage("what"))
	assert.Contains(t, reply.text, "Confirm or cancel")

	reply = f.send(t, textMessage(btnConfirm))
	assert.Contains(t, reply.text, "deleted")
	_, ok := f.store.Get("1")
	assert.False(t, ok)
}

func TestToggleCallbackCancelled(t *testing.T) {
	f := newFixture(t)
	f.send(t, command("/plan\nPiano 20 min"))

	cb := &tgbotapi.CallbackQuery{
		ID:      "cb-2",
		From:    &tgbotapi.User{ID: 7},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID, Type: "private"}},
		Data:    cbTogglePrefix + "1",
	}
	require.NoError(t, f.bot.handleCallback(context.Background(), cb))

	reply := f.send(t, textMessage(btnCancel))
	assert.Contains(t, reply.text, "Nothing changed")
	task, _ := f.store.Get("1")
	assert.False(t, task.Completed)
}

func TestTaskListHasInlineButtons(t *testing.T) {
	f := newFixture(t)
	f.send(t, command("/plan\nPiano 20 min"))

	reply := f.send(t, command("/tasks"))
	assert.Contains(t, reply.text, "Tasks for 2025-03-10")
	markup, ok := reply.markup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, markup.InlineKeyboard, 1)
	require.NotNil(t, markup.InlineKeyboard[0][0].CallbackData)
	assert.Equal(t, cbTogglePrefix+"1", *markup.InlineKeyboard[0][0].CallbackData)

	reply = f.send(t, command("/tasks tomorrow"))
	assert.Contains(t, reply.text, "Nothing planned for 2025-03-11")
}

func TestFamilyCommands(t *testing.T) {
	f := newFixture(t)

	reply := f.send(t, command("/family"))
	assert.Contains(t, reply.text, "this device only")

	reply = f.send(t, command("/newfamily The Lees"))
	assert.Contains(t, reply.text, "Can't reach the family server")

	require.NoError(t, f.session.Set(family.State{FamilyID: "fam-1", FamilyName: "Lees", InviteCode: "AB12CD34", MemberID: "m-1"}))
	reply = f.send(t, command("/family"))
	assert.Contains(t, reply.text, "Lees")
	assert.Contains(t, reply.text, "AB12CD34")
	assert.Contains(t, reply.text, "unavailable while offline")

	reply = f.send(t, command("/leave"))
	assert.Contains(t, reply.text, "Left the family")
	assert.False(t, f.session.HasActiveFamily())
}

func TestSyncAndStatus(t *testing.T) {
	f := newFixture(t)

	reply := f.send(t, command("/sync"))
	assert.Contains(t, reply.text, "Offline")

	reply = f.send(t, command("/status"))
	assert.Contains(t, reply.text, "Pending changes: 0")
}

func TestSendDailyReports(t *testing.T) {
	f := newFixture(t)
	f.send(t, command("/plan\nPiano 20 min"))
	before := f.api.count()

	require.NoError(t, f.bot.SendDailyReports(context.Background()))

	assert.Equal(t, before+1, f.api.count())
	last := f.api.last()
	assert.Equal(t, chatID, last.chatID)
	assert.Contains(t, last.text, "Piano")
}

func TestDailyReportRecipientsSurviveRestart(t *testing.T) {
	f := newFixture(t)
	f.send(t, command("/plan\nPiano 20 min"))

	api := &fakeAPI{}
	restarted := newBot(api, f.bot.taskSvc, f.bot.familySvc, f.bot.reminderSvc, f.bot.queue, f.slots, f.bot.config)
	restarted.now = f.bot.now
	require.NoError(t, restarted.SendDailyReports(context.Background()))

	require.Equal(t, 1, api.count())
	assert.Equal(t, chatID, api.last().chatID)
	assert.Contains(t, api.last().text, "Piano")
}

func TestApplyTimeInput(t *testing.T) {
	tests := []struct {
		text     string
		start    string
		end      string
		duration int
		wantErr  bool
	}{
		{text: "16:00-16:45", start: "16:00", end: "16:45", duration: 45},
		{text: "9:30 - 10:00", start: "09:30", end: "10:00", duration: 30},
		{text: "16:00 45", start: "16:00", duration: 45},
		{text: "40 min", duration: 40},
		{text: "25", duration: 25},
		{text: "17:00-16:00", wantErr: true},
		{text: "0", wantErr: true},
		{text: "soon", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			var input service.TaskInput
			err := applyTimeInput(&input, tt.text)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.start, input.StartTime)
			assert.Equal(t, tt.end, input.EndTime)
			assert.Equal(t, tt.duration, input.Duration)
		})
	}
}

func TestParseRepeat(t *testing.T) {
	repeat, ok := parseRepeat("Every 2 weeks")
	assert.True(t, ok)
	assert.Equal(t, model.RepeatBiweekly, repeat)

	repeat, ok = parseRepeat("monthly")
	assert.True(t, ok)
	assert.Equal(t, model.RepeatMonthly, repeat)

	repeat, ok = parseRepeat(btnSkip)
	assert.True(t, ok)
	assert.Equal(t, model.RepeatOnce, repeat)

	_, ok = parseRepeat("sometimes")
	assert.False(t, ok)
}

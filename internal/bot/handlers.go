package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"family-planner/internal/model"
	"family-planner/internal/planparse"
	"family-planner/internal/service"
)

const (
	cbTogglePrefix = "toggle:"
	cbDeletePrefix = "delete:"
)

func (b *Bot) handleStart(msg *tgbotapi.Message) error {
	name := strings.TrimSpace(msg.From.FirstName)
	if name == "" {
		name = "there"
	}

	text := fmt.Sprintf(
		"👋 Hi, %s!\n<b>I keep the family study plan, even when you're offline.</b>\n\n"+
			"• /newtask - add a task step by step\n"+
			"• /plan - paste a whole plan, one task per line\n"+
			"• /tasks [date] - show the day's tasks\n"+
			"• /family - family sharing\n"+
			"• /help - all commands",
		escape(name),
	)
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	text := "ℹ️ <b>Commands</b>\n" +
		"• /newtask - add a task step by step\n" +
		"• /plan &lt;lines&gt; - e.g. <code>16:00-16:45 Math homework</code> or <code>Piano 20 min</code>\n" +
		"• /tasks [date] - today, tomorrow, next monday or 2025-03-14\n" +
		"• /done &lt;id&gt; - mark a task done (or undone)\n" +
		"• /delete &lt;id&gt; - delete a task\n" +
		"• /family - current family and members\n" +
		"• /newfamily &lt;name&gt; - create a family and share tasks\n" +
		"• /join &lt;code&gt; - join a family with its invite code\n" +
		"• /leave - stop sharing new tasks\n" +
		"• /sync - push pending changes now\n" +
		"• /status - sync queue details\n" +
		"• /report - today's summary\n" +
		"• /cancel - cancel the current input"
	return b.sendText(msg.Chat.ID, text)
}

func (b *Bot) handleReport(msg *tgbotapi.Message) error {
	return b.sendText(msg.Chat.ID, b.reminderSvc.DailySummary(b.today()))
}

func (b *Bot) handleListTasks(msg *tgbotapi.Message) error {
	date, ok := planparse.ResolveDate(msg.CommandArguments(), b.today())
	if !ok {
		return b.sendText(msg.Chat.ID, "I can't read that date. Try <code>tomorrow</code> or <code>2025-03-14</code>.")
	}
	log.Printf("[info] list tasks date=%s", date)
	return b.sendTaskList(msg.Chat.ID, date)
}

func (b *Bot) sendTaskList(chatID int64, date string) error {
	tasks := b.taskSvc.ListTasks(date)
	if len(tasks) == 0 {
		return b.sendText(chatID, fmt.Sprintf("Nothing planned for %s. Add something with /newtask.", date))
	}
	sortTasks(tasks)

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("📋 <b>Tasks for %s</b>\n", date))
	builder.WriteString("Tap a task to mark it done, or 🗑 to delete it.\n\n")

	var buttons [][]tgbotapi.InlineKeyboardButton
	for _, task := range tasks {
		builder.WriteString(formatTask(task))
		label := "✅"
		if task.Completed {
			label = "↩️"
		}
		buttons = append(buttons, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("%s %s", label, shortTitle(task.Name, 24)), cbTogglePrefix+task.ID),
			tgbotapi.NewInlineKeyboardButtonData("🗑", cbDeletePrefix+task.ID),
		))
	}

	msg := tgbotapi.NewMessage(chatID, strings.TrimSpace(builder.String()))
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(buttons...)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) handleDone(ctx context.Context, msg *tgbotapi.Message) error {
	task, err := b.resolveTask(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, escape(err.Error()))
	}
	return b.toggleTask(ctx, msg.Chat.ID, task.ID)
}

func (b *Bot) handleDelete(ctx context.Context, msg *tgbotapi.Message) error {
	task, err := b.resolveTask(msg.CommandArguments())
	if err != nil {
		return b.sendText(msg.Chat.ID, escape(err.Error()))
	}
	return b.deleteTask(ctx, msg.Chat.ID, task.ID)
}

func (b *Bot) toggleTask(ctx context.Context, chatID int64, id string) error {
	task, ok, err := b.taskSvc.ToggleComplete(ctx, id)
	if err != nil {
		return b.sendText(chatID, fmt.Sprintf("Couldn't update the task: %s", escape(err.Error())))
	}
	if !ok {
		return b.sendText(chatID, "Task not found or already deleted.")
	}
	log.Printf("[info] task toggled id=%s completed=%t", task.ID, task.Completed)
	if task.Completed {
		return b.sendText(chatID, fmt.Sprintf("✅ «%s» done. ⭐ +%d points", escape(task.Name), task.Points))
	}
	return b.sendText(chatID, fmt.Sprintf("↩️ «%s» is open again.", escape(task.Name)))
}

func (b *Bot) deleteTask(ctx context.Context, chatID int64, id string) error {
	task, found := b.taskSvc.GetTask(id)
	result, err := b.taskSvc.DeleteTask(ctx, id)
	if err != nil {
		return b.sendText(chatID, fmt.Sprintf("Couldn't delete the task: %s", escape(err.Error())))
	}
	if !found {
		return b.sendText(chatID, "Task was already deleted.")
	}
	log.Printf("[info] task deleted id=%s success=%t", result.ID, result.Success)
	return b.sendText(chatID, fmt.Sprintf("🗑 «%s» deleted.", escape(task.Name)))
}

// resolveTask accepts a full id or a unique prefix of one.
func (b *Bot) resolveTask(arg string) (model.Task, error) {
	arg = strings.TrimPrefix(strings.TrimSpace(arg), "#")
	if arg == "" {
		return model.Task{}, errors.New("Give me the task id, e.g. /done 3")
	}
	if task, ok := b.taskSvc.GetTask(arg); ok {
		return task, nil
	}
	var matches []model.Task
	for _, task := range b.taskSvc.ListTasks("") {
		if strings.HasPrefix(task.ID, arg) {
			matches = append(matches, task)
		}
	}
	switch len(matches) {
	case 0:
		return model.Task{}, fmt.Errorf("No task with id %s.", arg)
	case 1:
		return matches[0], nil
	default:
		return model.Task{}, fmt.Errorf("Id %s matches %d tasks, use more characters.", arg, len(matches))
	}
}

func (b *Bot) handlePlan(ctx context.Context, msg *tgbotapi.Message) error {
	text := msg.CommandArguments()
	if strings.TrimSpace(text) == "" {
		return b.sendText(msg.Chat.ID, "Paste the plan after /plan, one task per line:\n<code>/plan\n16:00-16:45 Math homework\nPiano 20 min\nSpelling tomorrow</code>")
	}

	var created []model.Task
	var skipped []string
	for _, res := range planparse.Parse(text, b.today()) {
		if !res.OK {
			skipped = append(skipped, fmt.Sprintf("• %s - %s", escape(res.Line), escape(res.Reason)))
			continue
		}
		task, err := b.taskSvc.CreateTask(ctx, res.Input)
		if err != nil {
			skipped = append(skipped, fmt.Sprintf("• %s - %s", escape(res.Line), escape(err.Error())))
			continue
		}
		created = append(created, task)
	}
	log.Printf("[info] plan imported created=%d skipped=%d", len(created), len(skipped))

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("🗒 <b>Added %d task(s)</b>\n", len(created)))
	for _, task := range created {
		builder.WriteString(formatTask(task))
	}
	if len(skipped) > 0 {
		builder.WriteString("\n⚠️ <b>Skipped</b>\n")
		builder.WriteString(strings.Join(skipped, "\n"))
	}
	return b.sendText(msg.Chat.ID, strings.TrimSpace(builder.String()))
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil {
		return nil
	}
	b.ackCallback(cb.ID)

	data := cb.Data
	switch {
	case strings.HasPrefix(data, cbTogglePrefix):
		id := strings.TrimPrefix(data, cbTogglePrefix)
		log.Printf("[info] callback toggle request user=%d task=%s", cb.From.ID, id)
		return b.askConfirmation(cb.Message.Chat.ID, cb.From.ID, id, actionToggle)
	case strings.HasPrefix(data, cbDeletePrefix):
		id := strings.TrimPrefix(data, cbDeletePrefix)
		log.Printf("[info] callback delete request user=%d task=%s", cb.From.ID, id)
		return b.askConfirmation(cb.Message.Chat.ID, cb.From.ID, id, actionDelete)
	default:
		return nil
	}
}

func (b *Bot) askConfirmation(chatID, userID int64, id string, action confirmationAction) error {
	task, ok := b.taskSvc.GetTask(id)
	if !ok {
		return b.sendText(chatID, "Task not found or already deleted.")
	}

	var text string
	switch {
	case action == actionDelete:
		text = fmt.Sprintf("Delete «%s»?", escape(task.Name))
	case task.Completed:
		text = fmt.Sprintf("Mark «%s» as not done?", escape(task.Name))
	default:
		text = fmt.Sprintf("Mark «%s» as done?", escape(task.Name))
	}
	b.setConfirmation(userID, confirmationRequest{taskID: task.ID, action: action})
	return b.sendWithReplyMarkup(chatID, text, confirmKeyboard())
}

func (b *Bot) handleConfirmationResponse(ctx context.Context, msg *tgbotapi.Message, req confirmationRequest) error {
	text := strings.TrimSpace(msg.Text)
	switch {
	case isConfirmInput(text):
		b.clearConfirmation(msg.From.ID)
		if req.action == actionDelete {
			return b.deleteTask(ctx, msg.Chat.ID, req.taskID)
		}
		return b.toggleTask(ctx, msg.Chat.ID, req.taskID)
	case isCancelInput(text):
		b.clearConfirmation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "🔹 Nothing changed.")
	default:
		return b.sendWithReplyMarkup(msg.Chat.ID, "Confirm or cancel, please.", confirmKeyboard())
	}
}

func (b *Bot) handleFamily(ctx context.Context, msg *tgbotapi.Message) error {
	state, ok := b.familySvc.Current()
	if !ok {
		return b.sendText(msg.Chat.ID, "👤 Tasks stay on this device only.\nCreate a family with /newfamily &lt;name&gt; or join one with /join &lt;code&gt;.")
	}

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("👪 <b>%s</b>\n", escape(state.FamilyName)))
	builder.WriteString(fmt.Sprintf("Invite code: <code>%s</code>\n", escape(state.InviteCode)))
	members, err := b.familySvc.Members(ctx)
	if err != nil {
		builder.WriteString("\nMembers are unavailable while offline.")
		return b.sendText(msg.Chat.ID, builder.String())
	}
	builder.WriteString("\n<b>Members</b>\n")
	for _, m := range members {
		marker := ""
		if m.ID == state.MemberID {
			marker = " (you)"
		}
		builder.WriteString(fmt.Sprintf("• %s · %s%s\n", escape(m.DisplayName), m.Role, marker))
	}
	return b.sendText(msg.Chat.ID, strings.TrimSpace(builder.String()))
}

func (b *Bot) handleNewFamily(ctx context.Context, msg *tgbotapi.Message) error {
	name := strings.TrimSpace(msg.CommandArguments())
	if name == "" {
		return b.sendText(msg.Chat.ID, "Name the family: /newfamily The Lees")
	}
	state, err := b.familySvc.CreateFamily(ctx, name, msg.From.ID, displayName(msg.From))
	if err != nil {
		return b.sendText(msg.Chat.ID, familyErrorText(err))
	}
	log.Printf("[info] family created id=%s by=%d", state.FamilyID, msg.From.ID)
	return b.sendText(msg.Chat.ID, fmt.Sprintf("👪 Family «%s» created.\nShare the invite code <code>%s</code> with /join.\nNew tasks are shared from now on.", escape(state.FamilyName), escape(state.InviteCode)))
}

func (b *Bot) handleJoin(ctx context.Context, msg *tgbotapi.Message) error {
	code := strings.TrimSpace(msg.CommandArguments())
	if code == "" {
		return b.sendText(msg.Chat.ID, "Add the invite code: /join 1A2B3C4D")
	}
	state, err := b.familySvc.JoinFamily(ctx, code, msg.From.ID, displayName(msg.From), service.RoleChild)
	if err != nil {
		return b.sendText(msg.Chat.ID, familyErrorText(err))
	}
	log.Printf("[info] family joined id=%s by=%d", state.FamilyID, msg.From.ID)
	return b.sendText(msg.Chat.ID, fmt.Sprintf("👪 Welcome to «%s». New tasks are shared from now on.", escape(state.FamilyName)))
}

func (b *Bot) handleLeave(msg *tgbotapi.Message) error {
	if _, ok := b.familySvc.Current(); !ok {
		return b.sendText(msg.Chat.ID, "You're not in a family.")
	}
	if err := b.familySvc.Leave(); err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("Couldn't leave: %s", escape(err.Error())))
	}
	return b.sendText(msg.Chat.ID, "👋 Left the family. New tasks stay on this device; shared ones keep syncing.")
}

func (b *Bot) handleSync(ctx context.Context, msg *tgbotapi.Message) error {
	if b.queue.Probe(ctx) {
		b.queue.Drain(ctx)
	}
	return b.sendText(msg.Chat.ID, formatStatus(b.queue.Status()))
}

func (b *Bot) handleStatus(msg *tgbotapi.Message) error {
	var builder strings.Builder
	builder.WriteString(formatStatus(b.queue.Status()))
	items := b.queue.Items()
	if len(items) > 0 {
		builder.WriteString("\n\n<b>Pending</b>\n")
		for i, item := range items {
			if i == 10 {
				builder.WriteString(fmt.Sprintf("… and %d more\n", len(items)-i))
				break
			}
			builder.WriteString(fmt.Sprintf("• %s · tries %d\n", item.Operation, item.RetryCount))
		}
	}
	if dead := b.queue.DeadLetters(); len(dead) > 0 {
		builder.WriteString("\n<b>Failed</b>\n")
		for _, item := range dead {
			builder.WriteString(fmt.Sprintf("• %s · %s\n", item.Operation, escape(item.LastError)))
		}
	}
	return b.sendText(msg.Chat.ID, strings.TrimSpace(builder.String()))
}

func familyErrorText(err error) string {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return "No family has that invite code."
	case errors.Is(err, model.ErrRemoteUnavailable):
		return "📴 Can't reach the family server right now. Try again when you're online."
	default:
		return fmt.Sprintf("Something went wrong: %s", escape(err.Error()))
	}
}

func displayName(u *tgbotapi.User) string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName + " " + u.LastName))
	if name == "" {
		name = u.UserName
	}
	return name
}

package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"family-planner/internal/model"
	"family-planner/internal/planparse"
	"family-planner/internal/service"
)

var (
	timeRangeInput = regexp.MustCompile(`^(\d{1,2}:\d{2})\s*-\s*(\d{1,2}:\d{2})$`)
	startDurInput  = regexp.MustCompile(`^(\d{1,2}:\d{2})\s+(\d+)\s*(?:m|min|mins|minutes)?$`)
	minutesInput   = regexp.MustCompile(`^(\d+)\s*(?:m|min|mins|minutes)?$`)
)

func (b *Bot) startNewTaskConversation(msg *tgbotapi.Message) error {
	log.Printf("[info] start new task conversation user=%d", msg.From.ID)
	b.setConversation(msg.From.ID, &conversationState{stage: stageName})
	return b.sendWithReplyMarkup(msg.Chat.ID, "🆕 New task.\n<b>Step 1:</b> what should it be called?", cancelKeyboard())
}

func (b *Bot) handleConversation(ctx context.Context, msg *tgbotapi.Message) error {
	state := b.getConversation(msg.From.ID)
	if state == nil {
		return nil
	}

	text := strings.TrimSpace(msg.Text)
	switch state.stage {
	case stageName:
		if text == "" {
			return b.sendWithReplyMarkup(msg.Chat.ID, "The name can't be empty.", cancelKeyboard())
		}
		state.input.Name = text
		state.stage = stageSubject
		return b.sendWithReplyMarkup(msg.Chat.ID, "📚 <b>Step 2:</b> which subject? Pick one or type your own.", subjectKeyboard())
	case stageSubject:
		if !isSkipInput(text) {
			state.input.Subject = text
		}
		state.stage = stageDate
		return b.sendWithReplyMarkup(msg.Chat.ID, "🗓 <b>Step 3:</b> which day? <code>today</code>, <code>tomorrow</code>, <code>next monday</code> or <code>2025-03-14</code>.", dateKeyboard())
	case stageDate:
		date, ok := planparse.ResolveDate(text, b.today())
		if !ok {
			return b.sendWithReplyMarkup(msg.Chat.ID, "I can't read that date. Try <code>tomorrow</code> or <code>2025-03-14</code>.", dateKeyboard())
		}
		state.input.Date = date
		state.stage = stageTime
		return b.sendWithReplyMarkup(msg.Chat.ID, "⏱ <b>Step 4:</b> when and how long? <code>16:00-16:45</code>, <code>16:00 45</code> or just <code>30</code> minutes.", cancelKeyboard())
	case stageTime:
		if err := applyTimeInput(&state.input, text); err != nil {
			return b.sendWithReplyMarkup(msg.Chat.ID, escape(err.Error()), cancelKeyboard())
		}
		state.stage = stageRepeat
		return b.sendWithReplyMarkup(msg.Chat.ID, "🔁 <b>Step 5:</b> does it repeat?", repeatKeyboard())
	case stageRepeat:
		repeat, ok := parseRepeat(text)
		if !ok {
			return b.sendWithReplyMarkup(msg.Chat.ID, "Pick one of the buttons.", repeatKeyboard())
		}
		state.input.RepeatType = repeat
		err := b.finishTaskCreation(ctx, msg.Chat.ID, state.input)
		b.clearConversation(msg.From.ID)
		return err
	default:
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "Input reset. Start again with /newtask.")
	}
}

func (b *Bot) finishTaskCreation(ctx context.Context, chatID int64, input service.TaskInput) error {
	tasks, err := b.taskSvc.CreateSeries(ctx, input)
	if err != nil {
		return b.sendText(chatID, fmt.Sprintf("Couldn't save the task: %s", escape(err.Error())))
	}
	first := tasks[0]

	var summary strings.Builder
	summary.WriteString("✅ <b>Task saved</b>\n")
	summary.WriteString(fmt.Sprintf("• <b>ID:</b> <code>%s</code>\n", escape(first.ID)))
	summary.WriteString(fmt.Sprintf("• <b>Name:</b> %s\n", escape(first.Name)))
	if first.Subject != "" {
		summary.WriteString(fmt.Sprintf("• <b>Subject:</b> %s\n", escape(first.Subject)))
	}
	summary.WriteString(fmt.Sprintf("• <b>Date:</b> %s\n", first.Date))
	summary.WriteString(fmt.Sprintf("• <b>Duration:</b> %d min · %d pts\n", first.Duration, first.Points))
	if len(tasks) > 1 {
		summary.WriteString(fmt.Sprintf("• <b>Repeats:</b> %s, %d times until %s\n", first.RepeatType, len(tasks), tasks[len(tasks)-1].Date))
	}
	if first.FamilyScoped() {
		summary.WriteString("• 👪 shared with the family\n")
	}

	if err := b.sendTextWithRemove(chatID, strings.TrimSpace(summary.String())); err != nil {
		return err
	}
	return b.sendTaskList(chatID, first.Date)
}

// applyTimeInput fills start, end and duration from the time step's answer.
func applyTimeInput(input *service.TaskInput, text string) error {
	text = strings.ToLower(strings.TrimSpace(text))
	switch {
	case timeRangeInput.MatchString(text):
		m := timeRangeInput.FindStringSubmatch(text)
		start, err := time.Parse(model.TimeLayout, pad(m[1]))
		if err != nil {
			return fmt.Errorf("Can't read start time %s.", m[1])
		}
		end, err := time.Parse(model.TimeLayout, pad(m[2]))
		if err != nil {
			return fmt.Errorf("Can't read end time %s.", m[2])
		}
		if !end.After(start) {
			return errors.New("The end has to be after the start.")
		}
		input.StartTime = start.Format(model.TimeLayout)
		input.EndTime = end.Format(model.TimeLayout)
		input.Duration = int(end.Sub(start).Minutes())
	case startDurInput.MatchString(text):
		m := startDurInput.FindStringSubmatch(text)
		start, err := time.Parse(model.TimeLayout, pad(m[1]))
		if err != nil {
			return fmt.Errorf("Can't read start time %s.", m[1])
		}
		minutes, _ := strconv.Atoi(m[2])
		if minutes <= 0 {
			return errors.New("Duration must be at least one minute.")
		}
		input.StartTime = start.Format(model.TimeLayout)
		input.Duration = minutes
	case minutesInput.MatchString(text):
		minutes, _ := strconv.Atoi(minutesInput.FindStringSubmatch(text)[1])
		if minutes <= 0 {
			return errors.New("Duration must be at least one minute.")
		}
		input.Duration = minutes
	default:
		return errors.New("Use 16:00-16:45, 16:00 45 or a number of minutes.")
	}
	return nil
}

func pad(clock string) string {
	if len(clock) == 4 {
		return "0" + clock
	}
	return clock
}

func parseRepeat(text string) (model.RepeatType, bool) {
	value := strings.ToLower(strings.TrimSpace(text))
	for _, opt := range repeatOptions {
		if value == strings.ToLower(opt.label) || value == string(opt.repeat) {
			return opt.repeat, true
		}
	}
	if value == "no" || value == "-" || isSkipInput(value) {
		return model.RepeatOnce, true
	}
	return "", false
}

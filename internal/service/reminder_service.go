package service

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"family-planner/internal/localstore"
	"family-planner/internal/model"
	"family-planner/internal/syncqueue"
)

// ReminderService builds human-readable summaries for daily notifications.
type ReminderService struct {
	store *localstore.Store
	queue *syncqueue.Queue
}

func NewReminderService(store *localstore.Store, queue *syncqueue.Queue) *ReminderService {
	return &ReminderService{store: store, queue: queue}
}

// TotalPoints sums points over completed tasks.
func (s *ReminderService) TotalPoints() int {
	total := 0
	for _, task := range s.store.List("") {
		if task.Completed {
			total += task.Points
		}
	}
	return total
}

// DailySummary renders the day's plan as Telegram HTML.
func (s *ReminderService) DailySummary(day time.Time) string {
	date := day.Format(model.DateLayout)
	tasks := s.store.List(date)
	sortByStart(tasks)

	var open, done []model.Task
	earned, available := 0, 0
	for _, task := range tasks {
		available += task.Points
		if task.Completed {
			earned += task.Points
			done = append(done, task)
			continue
		}
		open = append(open, task)
	}

	var builder strings.Builder
	builder.WriteString("📋 <b>Study plan</b>\n")
	builder.WriteString(fmt.Sprintf("🗓 %s\n\n", day.Format("Mon 02.01.2006")))

	builder.WriteString("📚 <b>To do</b>\n")
	if len(open) == 0 {
		builder.WriteString("🎉 nothing left\n")
	} else {
		for _, task := range open {
			builder.WriteString(formatTask(task))
		}
	}

	if len(done) > 0 {
		builder.WriteString("\n✅ <b>Done</b>\n")
		for _, task := range done {
			builder.WriteString(formatTask(task))
		}
	}

	builder.WriteString(fmt.Sprintf("\n⭐ Points today: %d/%d · total %d\n", earned, available, s.TotalPoints()))
	if s.queue != nil {
		builder.WriteString(formatSyncLine(s.queue.Status()))
	}

	return strings.TrimSpace(builder.String())
}

func formatTask(task model.Task) string {
	var sb strings.Builder

	icon := "🟢"
	if task.Completed {
		icon = "✔️"
	}
	sb.WriteString(icon)
	if task.StartTime != "" {
		span := task.StartTime
		if task.EndTime != "" {
			span += "–" + task.EndTime
		}
		sb.WriteString(" " + span)
	}
	sb.WriteString(" " + html.EscapeString(strings.TrimSpace(task.Name)))

	if subject := strings.TrimSpace(task.Subject); subject != "" {
		sb.WriteString(fmt.Sprintf(" <i>(%s)</i>", html.EscapeString(subject)))
	}
	sb.WriteString(fmt.Sprintf("\n   ⏱ %d min · %d pts", task.Duration, task.Points))
	if task.RepeatType != "" && task.RepeatType != model.RepeatOnce {
		sb.WriteString(fmt.Sprintf(" · ♻️ %s", task.RepeatType))
	}
	if task.Description != "" {
		sb.WriteString(fmt.Sprintf("\n   📝 %s", html.EscapeString(strings.TrimSpace(task.Description))))
	}

	sb.WriteByte('\n')
	return sb.String()
}

func formatSyncLine(st syncqueue.Status) string {
	state := "🔴 offline"
	if st.Online {
		state = "🟢 online"
	}
	line := fmt.Sprintf("🔄 Sync: %s · %d pending", state, st.QueueLength)
	if st.DeadLetterCount > 0 {
		line += fmt.Sprintf(" · ⚠️ %d failed", st.DeadLetterCount)
	}
	return line + "\n"
}

// sortByStart orders untimed tasks after timed ones.
func sortByStart(tasks []model.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i].StartTime, tasks[j].StartTime
		switch {
		case a == "" && b == "":
			return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
		case a == "":
			return false
		case b == "":
			return true
		default:
			return a < b
		}
	})
}

func daysInMonth(month time.Month, year int) int {
	// Move to next month, roll back a day.
	firstOfMonth := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	firstOfNextMonth := firstOfMonth.AddDate(0, 1, 0)
	lastOfMonth := firstOfNextMonth.AddDate(0, 0, -1)
	return lastOfMonth.Day()
}

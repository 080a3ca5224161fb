package bot

import (
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"family-planner/internal/model"
	"family-planner/internal/syncqueue"
)

const (
	iconOpen      = "🟢"
	iconDone      = "✔️"
	iconRecurring = "♻️"
	iconShared    = "👪"
)

func formatTask(task model.Task) string {
	var b strings.Builder
	icon := iconOpen
	if task.Completed {
		icon = iconDone
	}
	b.WriteString(fmt.Sprintf("%s <code>%s</code> %s", icon, shortID(task.ID), escape(task.Name)))
	if task.Subject != "" {
		b.WriteString(fmt.Sprintf(" <i>(%s)</i>", escape(task.Subject)))
	}
	b.WriteByte('\n')

	b.WriteString("   ⏱ ")
	if task.StartTime != "" {
		b.WriteString(task.StartTime)
		if task.EndTime != "" {
			b.WriteString("–" + task.EndTime)
		}
		b.WriteString(" · ")
	}
	b.WriteString(fmt.Sprintf("%d min · %d pts", task.Duration, task.Points))
	if task.RepeatType != "" && task.RepeatType != model.RepeatOnce {
		b.WriteString(" · " + iconRecurring)
	}
	if task.FamilyScoped() {
		b.WriteString(" · " + iconShared)
	}
	b.WriteByte('\n')
	if task.Description != "" {
		b.WriteString(fmt.Sprintf("   📝 %s\n", escape(task.Description)))
	}
	return b.String()
}

func formatStatus(st syncqueue.Status) string {
	var b strings.Builder
	if st.Online {
		b.WriteString("🟢 <b>Online</b>")
	} else {
		b.WriteString("🔴 <b>Offline</b>")
	}
	if st.Draining {
		b.WriteString(" · syncing…")
	}
	b.WriteString(fmt.Sprintf("\nPending changes: %d", st.QueueLength))
	if st.DeadLetterCount > 0 {
		b.WriteString(fmt.Sprintf("\n⚠️ Failed changes: %d", st.DeadLetterCount))
	}
	if !st.LastSuccessTime.IsZero() {
		b.WriteString(fmt.Sprintf("\nLast synced: %s", st.LastSuccessTime.Format(time.DateTime)))
	}
	if st.LastError != "" {
		b.WriteString(fmt.Sprintf("\nLast error: %s", escape(st.LastError)))
	}
	return b.String()
}

// shortID keeps local counter ids whole and trims uuids to eight characters.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func shortTitle(title string, maxLen int) string {
	clean := strings.TrimSpace(strings.ReplaceAll(title, "\n", " "))
	runes := []rune(clean)
	if len(runes) <= maxLen {
		return clean
	}
	if maxLen <= 1 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-1]) + "…"
}

func sortTasks(tasks []model.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		if a.Completed != b.Completed {
			return !a.Completed
		}
		switch {
		case a.StartTime == "" && b.StartTime != "":
			return false
		case a.StartTime != "" && b.StartTime == "":
			return true
		case a.StartTime != b.StartTime:
			return a.StartTime < b.StartTime
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}

func escape(s string) string {
	return html.EscapeString(s)
}

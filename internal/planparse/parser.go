// Package planparse turns pasted chat text into task inputs, one line per task.
package planparse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"family-planner/internal/model"
	"family-planner/internal/service"
)

// DefaultDuration applies to lines that name a subject but give no time.
const DefaultDuration = 30

// Result is the outcome for one line. Failed lines carry a Reason instead of an Input.
type Result struct {
	Line   string
	Input  service.TaskInput
	OK     bool
	Reason string
}

var (
	bulletRe     = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+`)
	rangeRe      = regexp.MustCompile(`^(\d{1,2}[:.]\d{2})\s*(?:-|–|to)\s*(\d{1,2}[:.]\d{2})\s+(.+)$`)
	startRe      = regexp.MustCompile(`^(\d{1,2}[:.]\d{2})\s+(.+)$`)
	durationRe   = regexp.MustCompile(`(?i)^(.+?)\s+(?:for\s+)?\(?(\d+(?:\.\d+)?)\s*(minutes|minute|mins|min|m|hours|hour|hrs|hr|h)\)?$`)
	subjectRe    = regexp.MustCompile(`^([A-Za-z][A-Za-z ]{0,20}):\s*(.+)$`)
	dateWordRe   = regexp.MustCompile(`(?i)\b(today|tonight|tomorrow|yesterday|day|week|month|mon|tue|wed|thu|fri|sat|sun|jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)|\d+/\d+`)
	danglingRe   = regexp.MustCompile(`(?i)\s+(on|by|at|for|due)$`)
	wordSplitter = regexp.MustCompile(`[^a-z]+`)
)

var subjectKeywords = map[string]string{
	"math":      "Math",
	"maths":     "Math",
	"algebra":   "Math",
	"geometry":  "Math",
	"english":   "English",
	"spelling":  "English",
	"grammar":   "English",
	"chinese":   "Chinese",
	"mandarin":  "Chinese",
	"science":   "Science",
	"biology":   "Science",
	"chemistry": "Science",
	"physics":   "Science",
	"reading":   "Reading",
	"read":      "Reading",
	"writing":   "Writing",
	"essay":     "Writing",
	"music":     "Music",
	"piano":     "Music",
	"violin":    "Music",
	"art":       "Art",
	"drawing":   "Art",
	"pe":        "PE",
	"history":   "History",
	"geography": "Geography",
	"french":    "French",
	"spanish":   "Spanish",
}

// Parser resolves relative dates against a base time.
type Parser struct {
	dates *when.Parser
}

func New() *Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return &Parser{dates: w}
}

var defaultParser = New()

// Parse runs ParseLine over every non-blank line.
func Parse(text string, base time.Time) []Result {
	return defaultParser.Parse(text, base)
}

// ParseLine parses one line with the default parser.
func ParseLine(line string, base time.Time) Result {
	return defaultParser.ParseLine(line, base)
}

func (p *Parser) Parse(text string, base time.Time) []Result {
	var results []Result
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		results = append(results, p.ParseLine(line, base))
	}
	return results
}

func (p *Parser) ParseLine(line string, base time.Time) Result {
	res := Result{Line: strings.TrimSpace(line)}
	text := strings.TrimSpace(bulletRe.ReplaceAllString(line, ""))
	if text == "" {
		res.Reason = "empty line"
		return res
	}

	input := service.TaskInput{Date: base.Format(model.DateLayout)}
	var err error

	switch {
	case rangeRe.MatchString(text):
		m := rangeRe.FindStringSubmatch(text)
		if input.StartTime, err = clock(m[1]); err != nil {
			return fail(res, err)
		}
		if input.EndTime, err = clock(m[2]); err != nil {
			return fail(res, err)
		}
		start, _ := time.Parse(model.TimeLayout, input.StartTime)
		end, _ := time.Parse(model.TimeLayout, input.EndTime)
		if !end.After(start) {
			return fail(res, fmt.Errorf("end %s is not after start %s", input.EndTime, input.StartTime))
		}
		input.Duration = int(end.Sub(start).Minutes())
		text = m[3]
	case startRe.MatchString(text) && durationRe.MatchString(startRe.FindStringSubmatch(text)[2]):
		m := startRe.FindStringSubmatch(text)
		if input.StartTime, err = clock(m[1]); err != nil {
			return fail(res, err)
		}
		if text, input.Duration, err = splitDuration(m[2]); err != nil {
			return fail(res, err)
		}
	case durationRe.MatchString(text):
		if text, input.Duration, err = splitDuration(text); err != nil {
			return fail(res, err)
		}
	case startRe.MatchString(text):
		m := startRe.FindStringSubmatch(text)
		if input.StartTime, err = clock(m[1]); err != nil {
			return fail(res, err)
		}
		text = m[2]
	}

	text, input.Date = p.extractDate(text, base, input.Date)
	input.Name, input.Subject = splitSubject(text)

	if input.Name == "" {
		res.Reason = "no task name"
		return res
	}
	if input.Duration == 0 {
		if input.Subject == "" && input.StartTime == "" {
			res.Reason = "no time, duration or known subject"
			return res
		}
		input.Duration = DefaultDuration
	}

	res.Input = input
	res.OK = true
	return res
}

func fail(res Result, err error) Result {
	res.Reason = err.Error()
	return res
}

// clock normalizes "9:05" or "9.05" to "09:05".
func clock(value string) (string, error) {
	parts := strings.FieldsFunc(value, func(r rune) bool { return r == ':' || r == '.' })
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid time %q", value)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour > 23 {
		return "", fmt.Errorf("invalid time %q", value)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute > 59 {
		return "", fmt.Errorf("invalid time %q", value)
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), nil
}

func splitDuration(text string) (string, int, error) {
	m := durationRe.FindStringSubmatch(text)
	if m == nil {
		return text, 0, nil
	}
	amount, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return text, 0, fmt.Errorf("invalid duration %q", m[2])
	}
	minutes := amount
	if strings.HasPrefix(strings.ToLower(m[3]), "h") {
		minutes = amount * 60
	}
	if minutes < 1 || minutes > 24*60 {
		return text, 0, fmt.Errorf("duration %s%s out of range", m[2], m[3])
	}
	return m[1], int(minutes), nil
}

// extractDate removes a relative or absolute date expression from text.
func (p *Parser) extractDate(text string, base time.Time, fallback string) (string, string) {
	r, err := p.dates.Parse(text, base)
	if err != nil || r == nil || !dateWordRe.MatchString(r.Text) {
		return text, fallback
	}
	if r.Index < 0 || r.Index+len(r.Text) > len(text) {
		return text, fallback
	}
	rest := strings.TrimSpace(text[:r.Index] + " " + text[r.Index+len(r.Text):])
	rest = strings.Join(strings.Fields(rest), " ")
	rest = danglingRe.ReplaceAllString(rest, "")
	return rest, r.Time.Format(model.DateLayout)
}

// splitSubject honours a "Subject: name" prefix, otherwise looks the words up.
func splitSubject(text string) (string, string) {
	text = strings.TrimSpace(text)
	if m := subjectRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[2]), canonicalSubject(strings.TrimSpace(m[1]))
	}
	for _, word := range wordSplitter.Split(strings.ToLower(text), -1) {
		if subject, ok := subjectKeywords[word]; ok {
			return text, subject
		}
	}
	return text, ""
}

func canonicalSubject(prefix string) string {
	if subject, ok := subjectKeywords[strings.ToLower(prefix)]; ok {
		return subject
	}
	return strings.ToUpper(prefix[:1]) + prefix[1:]
}

// ResolveDate accepts YYYY-MM-DD or a relative expression such as
// "tomorrow" or "next monday". Empty text means base's day.
func ResolveDate(text string, base time.Time) (string, bool) {
	return defaultParser.ResolveDate(text, base)
}

func (p *Parser) ResolveDate(text string, base time.Time) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return base.Format(model.DateLayout), true
	}
	if d, err := time.Parse(model.DateLayout, text); err == nil {
		return d.Format(model.DateLayout), true
	}
	r, err := p.dates.Parse(text, base)
	if err != nil || r == nil || !dateWordRe.MatchString(r.Text) {
		return "", false
	}
	return r.Time.Format(model.DateLayout), true
}

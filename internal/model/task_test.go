package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPointsForDuration(t *testing.T) {
	tests := []struct {
		minutes int
		want    int
	}{
		{minutes: 0, want: 0},
		{minutes: 1, want: 1},
		{minutes: 10, want: 1},
		{minutes: 11, want: 2},
		{minutes: 30, want: 3},
		{minutes: 45, want: 5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PointsForDuration(tt.minutes), "minutes=%d", tt.minutes)
	}
}

func TestTaskPatchApply(t *testing.T) {
	name := "Fractions"
	duration := 45
	done := true
	base := Task{ID: "1", Name: "Multiplication", Subject: "Math", Duration: 30, Points: 3}

	got := TaskPatch{Name: &name, Duration: &duration, Completed: &done}.Apply(base)

	assert.Equal(t, "Fractions", got.Name)
	assert.Equal(t, "Math", got.Subject)
	assert.Equal(t, 45, got.Duration)
	assert.Equal(t, 5, got.Points)
	assert.True(t, got.Completed)
	assert.Equal(t, "Multiplication", base.Name, "apply must not mutate the input")
}

func TestTaskPatchEmpty(t *testing.T) {
	assert.True(t, TaskPatch{}.Empty())
	subject := "Art"
	assert.False(t, TaskPatch{Subject: &subject}.Empty())
}

func TestTaskRowRoundTrip(t *testing.T) {
	task := Task{ID: "abc", Name: "Reading", FamilyID: "fam", RepeatType: RepeatWeekly, Duration: 20, Points: 2}
	assert.Equal(t, task, NewTaskRow(task).Task())
}

func TestRepeatTypeValid(t *testing.T) {
	assert.True(t, RepeatBiweekly.Valid())
	assert.False(t, RepeatType("yearly").Valid())
}

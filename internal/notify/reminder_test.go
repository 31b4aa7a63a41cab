package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskhive/internal/apperr"
)

func TestScheduleForBefore(t *testing.T) {
	due := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	offset := 30

	got, err := scheduleFor(ReminderBefore, &offset, nil, &due)
	require.NoError(t, err)
	assert.Equal(t, due.Add(-30*time.Minute), got)
}

func TestScheduleForAfter(t *testing.T) {
	due := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	offset := 45

	got, err := scheduleFor(ReminderAfter, &offset, nil, &due)
	require.NoError(t, err)
	assert.Equal(t, due.Add(45*time.Minute), got)
}

func TestScheduleForAbsolute(t *testing.T) {
	at := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	got, err := scheduleFor(ReminderAbsolute, nil, &at, nil)
	require.NoError(t, err)
	assert.Equal(t, at, got)
}

func TestScheduleForRelativeWithoutDueDate(t *testing.T) {
	offset := 10
	_, err := scheduleFor(ReminderBefore, &offset, nil, nil)
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation))
}

func TestScheduleForRejectsNonPositiveOffset(t *testing.T) {
	due := time.Now()
	zero := 0
	_, err := scheduleFor(ReminderBefore, &zero, nil, &due)
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation))
}

func TestScheduleForUnknownKind(t *testing.T) {
	_, err := scheduleFor(ReminderKind("sometime"), nil, nil, nil)
	assert.True(t, apperr.IsCode(err, apperr.CodeValidation))
}

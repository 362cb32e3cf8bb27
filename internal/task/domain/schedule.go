package domain

import (
	"time"

	"github.com/google/uuid"
)

// ReminderOffsets are the lead times a task may request ahead of its due time.
var ReminderOffsets = map[string]time.Duration{
	"10m": 10 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"1d":  24 * time.Hour,
	"1w":  7 * 24 * time.Hour,
}

func ValidReminderOffset(key string) bool {
	_, ok := ReminderOffsets[key]
	return ok
}

// BuildNotificationSchedule returns unresolved reminder entries for the fixed
// reminder (if any) and each known repeat offset against the due time.
func BuildNotificationSchedule(taskID string, due time.Time, reminder *time.Time, offsets []string) []NotificationSchedule {
	var entries []NotificationSchedule

	if reminder != nil {
		entries = append(entries, newEntry(taskID, *reminder))
	}

	seen := make(map[string]struct{}, len(offsets))
	for _, key := range offsets {
		offset, ok := ReminderOffsets[key]
		if !ok {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		entries = append(entries, newEntry(taskID, due.Add(-offset)))
	}

	return entries
}

func newEntry(taskID string, at time.Time) NotificationSchedule {
	return NotificationSchedule{
		ID:        uuid.New().String(),
		TaskID:    taskID,
		TriggerAt: at.UTC(),
		Kind:      ScheduleKindReminder,
	}
}

// NextDue advances due by one recurrence period. Months are calendar months
// in UTC, so Jan 31 + 1 month normalises to early March like time.AddDate.
func NextDue(due time.Time, schedule RecurringSchedule) (time.Time, bool) {
	due = due.UTC()
	switch schedule {
	case ScheduleDaily:
		return due.AddDate(0, 0, 1), true
	case ScheduleWeekly:
		return due.AddDate(0, 0, 7), true
	case ScheduleMonthly:
		return due.AddDate(0, 1, 0), true
	case ScheduleThreeMonths:
		return due.AddDate(0, 3, 0), true
	}
	return due, false
}

// ShiftSchedule returns fresh unresolved reminder entries for the next cycle,
// each moved by delta. Resolved entries stay with the old cycle.
func ShiftSchedule(taskID string, entries []NotificationSchedule, delta time.Duration) []NotificationSchedule {
	var out []NotificationSchedule
	for _, e := range entries {
		if e.Kind != ScheduleKindReminder {
			continue
		}
		out = append(out, newEntry(taskID, e.TriggerAt.Add(delta)))
	}
	return out
}

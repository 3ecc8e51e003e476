// Package month содержит расчёты периодов подписки в календарных месяцах.
package month

import (
	"time"
)

// End возвращает дату окончания периода длиной months месяцев с начала start.
func End(start time.Time, months int) time.Time {
	return start.AddDate(0, months, 0)
}

// Remaining считает, сколько календарных месяцев подписки ещё не начались
// либо идут в момент at. Неполный текущий месяц считается целым.
func Remaining(subStart time.Time, subMonths int, at time.Time) int {
	subEnd := End(subStart, subMonths)

	if !at.Before(subEnd) {
		return 0
	}
	if !at.After(subStart) {
		return subMonths
	}

	// Полные месяцы, прошедшие с начала подписки
	elapsed := (at.Year()-subStart.Year())*12 + int(at.Month()) - int(subStart.Month())
	if at.Day() < subStart.Day() {
		elapsed--
	}

	remaining := subMonths - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

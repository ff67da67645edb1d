// Package entitlement содержит чистые функции для вычисления статуса
// подписки: активна ли она в данный момент и сколько дней осталось
// до окончания. Окно действия — [BeginDate, BeginDate + Duration дней),
// правая граница не включается.
package entitlement

import (
	"math"
	"time"

	"github.com/avoronkov/device-gate/internal/models"
)

// EndDate возвращает момент окончания действия подписки.
func EndDate(sub *models.Subscription) time.Time {
	return sub.BeginDate.AddDate(0, 0, sub.Duration)
}

// IsActive сообщает, действует ли подписка в момент now.
// Граница строгая: в момент now == BeginDate + Duration подписка уже не активна.
func IsActive(sub *models.Subscription, now time.Time) bool {
	return now.Before(EndDate(sub))
}

// DaysRemaining возвращает число полных дней до окончания подписки.
// Результат округляется вниз и может быть отрицательным, если подписка
// уже истекла; вызывающий код не должен полагаться на неотрицательность.
func DaysRemaining(sub *models.Subscription, now time.Time) int {
	remaining := EndDate(sub).Sub(now)
	return int(math.Floor(remaining.Hours() / 24))
}

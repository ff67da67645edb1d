// Package metrics содержит prometheus-метрики платформы.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Результаты регистрации устройства для метки result.
const (
	ResultSuccess             = "success"
	ResultUserNotFound        = "user_not_found"
	ResultSubscriptionMissing = "subscription_not_found"
	ResultInactive            = "subscription_inactive"
	ResultProjectNotFound     = "project_not_found"
	ResultLimitReached        = "limit_reached"
	ResultStorageError        = "storage_error"
)

// DeviceRegistrations счётчик попыток регистрации устройств по исходам.
var DeviceRegistrations = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "device_registrations_total",
		Help: "Device registration attempts by result.",
	},
	[]string{"result"},
)

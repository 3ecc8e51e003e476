package models

import "time"

// License: привязанное к машине право на запуск приложения на ограниченный срок.
type License struct {
	ID         int       `json:"id"`
	UserUID    string    `json:"user_uid"`
	MachineID  string    `json:"machine_id"`
	Plan       string    `json:"plan"`
	ValidUntil time.Time `json:"valid_until"`
	IsActive   bool      `json:"is_active"`
}

// IsValidAt сообщает, действует ли лицензия в момент now.
// Лицензия действительна, только если она активна и now < ValidUntil.
func (l License) IsValidAt(now time.Time) bool {
	return l.IsActive && now.Before(l.ValidUntil)
}

// LicenseStatus: результат проверки лицензии.
type LicenseStatus struct {
	Valid     bool      `json:"valid"`
	ExpiresAt time.Time `json:"expires"`
}

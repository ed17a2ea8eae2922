package model

import "time"

type SessionSnapshot struct {
	State            string    `json:"state"`
	WarningVisible   bool      `json:"warning_visible"`
	CountdownSeconds int       `json:"countdown_seconds"`
	IdleSeconds      int       `json:"idle_seconds"`
	LastActivity     time.Time `json:"last_activity,omitempty"`
	IdentityID       string    `json:"identity_id,omitempty"`
}

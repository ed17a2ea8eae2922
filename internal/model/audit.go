package model

type AuditActor struct {
	UserID string `json:"user_id,omitempty"`
	Email  string `json:"email,omitempty"`
}

type AuditEntry struct {
	ID         string     `json:"id"`
	Action     string     `json:"action"`
	OccurredAt string     `json:"occurred_at"`
	Actor      AuditActor `json:"actor"`
	Status     string     `json:"status"`
	// Reason says why a login failed, a record was discarded or a session
	// expired.
	Reason string `json:"reason,omitempty"`
	Detail any    `json:"detail,omitempty"`
}

type AuditQuery struct {
	Action     string
	IdentityID string
	Status     string
	Reason     string
	From       string
	To         string
	Page       int
	Limit      int
}

type AuditListData struct {
	Items []AuditEntry `json:"items"`
}

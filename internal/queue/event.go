// Package queue defines the security events exchanged over the message
// broker and the consumer that turns them into an audit log.
package queue

// SecurityWipeEvent is published whenever every refresh token for a user is
// revoked at once: a verifiable-but-unknown refresh token was presented
// (reuse after rotation or store tampering), or the account itself was
// deleted. Downstream consumers can alert or audit without querying the
// primary database.
type SecurityWipeEvent struct {
	UserID        string `json:"user_id"`
	Login         string `json:"login,omitempty"`
	Reason        string `json:"reason"` // expired_unknown | valid_unknown | user_deleted
	TokensRemoved int64  `json:"tokens_removed"`
	OccurredAt    string `json:"occurred_at"`
}

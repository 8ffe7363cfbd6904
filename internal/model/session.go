package model

import (
	"encoding/json"
	"fmt"
)

// SessionKind labels the single pending multi-step operation a user is
// inside, if any. At most one session row exists per (tenant, user); a
// new write always replaces the previous one.
type SessionKind string

const (
	SessionAwaitWithdrawInput SessionKind = "await_withdraw_input"
	SessionAwaitExternalToken SessionKind = "await_external_token"
)

// SessionState is the tagged union of per-user session payloads.
// Each variant carries exactly the data its handler needs.
type SessionState interface {
	Kind() SessionKind
}

// AwaitWithdrawInput means the next free-text message from the user is a
// withdrawal request body.
type AwaitWithdrawInput struct {
	PromptMessageID int `json:"prompt_message_id,omitempty"`
}

func (AwaitWithdrawInput) Kind() SessionKind { return SessionAwaitWithdrawInput }

// AwaitExternalToken means the next free-text message is a credential for
// an external provisioning flow handled outside this process.
type AwaitExternalToken struct {
	RequestedAtUnix int64 `json:"requested_at_unix,omitempty"`
}

func (AwaitExternalToken) Kind() SessionKind { return SessionAwaitExternalToken }

// EncodeSession serializes a session variant for storage.
func EncodeSession(s SessionState) (SessionKind, []byte, error) {
	payload, err := json.Marshal(s)
	if err != nil {
		return "", nil, fmt.Errorf("failed to encode session payload: %w", err)
	}
	return s.Kind(), payload, nil
}

// DecodeSession reconstructs a session variant from its stored form.
// Unknown kinds are rejected so stale rows cannot be misdispatched.
func DecodeSession(kind SessionKind, payload []byte) (SessionState, error) {
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	switch kind {
	case SessionAwaitWithdrawInput:
		var s AwaitWithdrawInput
		if err := json.Unmarshal(payload, &s); err != nil {
			return nil, fmt.Errorf("failed to decode session payload: %w", err)
		}
		return s, nil
	case SessionAwaitExternalToken:
		var s AwaitExternalToken
		if err := json.Unmarshal(payload, &s); err != nil {
			return nil, fmt.Errorf("failed to decode session payload: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown session kind %q", kind)
	}
}

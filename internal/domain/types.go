package domain

import "time"

type SessionID string
type TurnID string

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Timestamp = time.Time

// DiagramTypeAuto lets the model pick the grammar.
const DiagramTypeAuto = "auto"

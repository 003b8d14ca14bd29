package model

import "fmt"

// Role is the part a participant plays in a conversation.
// It is fixed when a backend is constructed.
type Role string

const (
	// RoleInterrogator asks the questions and issues the final verdict.
	RoleInterrogator Role = "interrogator"
	// RoleInterrogated answers and tries to pass as human.
	RoleInterrogated Role = "interrogated"
)

// ParseRole converts a string into a Role.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleInterrogator, RoleInterrogated:
		return Role(s), nil
	default:
		return "", fmt.Errorf("invalid role %q (must be %q or %q)", s, RoleInterrogator, RoleInterrogated)
	}
}

// State selects which interrogator prompt is used for a turn.
type State string

const (
	StateStart  State = "start"
	StateMiddle State = "middle"
	StateEnd    State = "end"
)

// Speaker tags a message in a participant's history.
type Speaker string

const (
	SpeakerSystem    Speaker = "system"
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// Message is one entry of a participant's private history.
type Message struct {
	Speaker Speaker `json:"role"`
	Content string  `json:"content"`
}

// SystemMessage returns a system message.
func SystemMessage(content string) Message {
	return Message{Speaker: SpeakerSystem, Content: content}
}

// UserMessage returns a user message.
func UserMessage(content string) Message {
	return Message{Speaker: SpeakerUser, Content: content}
}

// AssistantMessage returns an assistant message.
func AssistantMessage(content string) Message {
	return Message{Speaker: SpeakerAssistant, Content: content}
}

// Round is one question/answer exchange. Number is 1-based.
type Round struct {
	Number   int    `json:"round"`
	Question string `json:"interrogator_question"`
	Answer   string `json:"interrogated_response"`
}

// Transcript is the ordered record of one conversation: every round plus
// the interrogator's closing verdict.
type Transcript struct {
	Rounds       []Round `json:"rounds"`
	FinalVerdict string  `json:"final_verdict"`
}

// TokenUsage tracks LLM token consumption for a single model call.
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

package models

import (
	"strings"
	"time"
)

// Severity ranks weather alerts: minor < moderate < severe < extreme.
type Severity int

const (
	SeverityMinor Severity = iota
	SeverityModerate
	SeveritySevere
	SeverityExtreme
)

func (s Severity) String() string {
	switch s {
	case SeverityModerate:
		return "moderate"
	case SeveritySevere:
		return "severe"
	case SeverityExtreme:
		return "extreme"
	default:
		return "minor"
	}
}

// ParseSeverity parses a severity name case-insensitively. ok is false for
// unknown values, which rank as minor.
func ParseSeverity(s string) (Severity, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "minor":
		return SeverityMinor, true
	case "moderate":
		return SeverityModerate, true
	case "severe":
		return SeveritySevere, true
	case "extreme":
		return SeverityExtreme, true
	default:
		return SeverityMinor, false
	}
}

// WeatherNotification is an in-app weather alert.
type WeatherNotification struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	Severity     string `json:"severity"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Area         string `json:"area"`
	StartTime    string `json:"startTime"`
	EndTime      string `json:"endTime"`
	Source       string `json:"source"`
	Instructions string `json:"instructions"`
}

// Rank returns the parsed severity of the notification.
func (n WeatherNotification) Rank() Severity {
	s, _ := ParseSeverity(n.Severity)
	return s
}

// ChatMessage is one question/answer exchange with the chat assistant.
type ChatMessage struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	SessionID string    `json:"sessionId"`
	Timestamp time.Time `json:"timestamp"`
}

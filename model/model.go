package model

import "time"

// ChatMessage — нормализованная модель сообщения чата Twitch.
type ChatMessage struct {
	ID            string
	Channel       string
	UserID        string
	Username      string
	DisplayName   string
	Text          string
	Badges        map[string]int
	IsMod         bool
	IsBroadcaster bool
	SentAt        time.Time
}

// CanEditCommands сообщает, может ли отправитель менять команды бота (модератор или владелец канала).
func (m ChatMessage) CanEditCommands() bool {
	return m.IsMod || m.IsBroadcaster
}

// Editor возвращает отображаемое имя автора, а при его отсутствии — логин.
func (m ChatMessage) Editor() string {
	if m.DisplayName != "" {
		return m.DisplayName
	}
	return m.Username
}

// ChangeRecord — запись истории изменений команды для хранилища.
type ChangeRecord struct {
	ID         int64     `json:"id"`
	Channel    string    `json:"channel"`
	Kind       string    `json:"kind"`
	Command    string    `json:"command"`
	Editor     string    `json:"editor,omitempty"`
	Announced  bool      `json:"announced"`
	Old        *Command  `json:"old,omitempty"`
	New        *Command  `json:"new,omitempty"`
	DetectedAt time.Time `json:"detected_at"`
}

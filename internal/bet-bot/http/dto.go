package httpapi

import "time"

type MentionRequest struct {
	SenderHandle string `json:"sender_handle"`
	SenderName   string `json:"sender_name,omitempty"`
	Text         string `json:"text"`
}

type MentionResponse struct {
	Replies []string `json:"replies"`
}

type EventResponse struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Options []string `json:"options"`
	Status  string   `json:"status"`
}

type UserResponse struct {
	ID          string    `json:"id"`
	ChatHandle  string    `json:"chat_handle"`
	DisplayName string    `json:"display_name"`
	Credits     int64     `json:"credits"`
	CreatedAt   time.Time `json:"created_at"`
}

package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

const (
	MessageText  = "text"
	MessageImage = "image"
	MessageVideo = "video"
	MessageAudio = "audio"
	MessageFile  = "file"
)

// Attachment is one uploaded file referenced by a chat or support message.
type Attachment struct {
	URL       string  `json:"url" validate:"required"`
	Type      string  `json:"type" validate:"required"`
	Name      *string `json:"name,omitempty"`
	Size      *int64  `json:"size,omitempty"`
	Thumbnail *string `json:"thumbnail,omitempty"`
}

// Attachments is stored as a JSON column.
type Attachments []Attachment

func (a Attachments) Value() (driver.Value, error) {
	if len(a) == 0 {
		return nil, nil
	}
	b, err := json.Marshal([]Attachment(a))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (a *Attachments) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*a = nil
		return nil
	case []byte:
		return a.unmarshal(v)
	case string:
		return a.unmarshal([]byte(v))
	}
	return fmt.Errorf("attachments: unsupported type %T", src)
}

func (a *Attachments) unmarshal(b []byte) error {
	if len(b) == 0 {
		*a = nil
		return nil
	}
	var out []Attachment
	if err := json.Unmarshal(b, &out); err != nil {
		return err
	}
	*a = out
	return nil
}

// JSONMap is a free-form JSON object column.
type JSONMap map[string]any

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(map[string]any(m))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (m *JSONMap) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("json map: unsupported type %T", src)
	}
	if len(raw) == 0 {
		*m = nil
		return nil
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return err
	}
	*m = out
	return nil
}

// ChatMessage is one row of the global chat log, joined with the sender's
// display data.
type ChatMessage struct {
	ID            uint64      `json:"id"`
	UserID        uint64      `json:"user_id"`
	UserName      *string     `json:"user_name"`
	UserAvatar    *string     `json:"user_avatar"`
	MessageType   string      `json:"message_type"`
	Message       *string     `json:"message"`
	Attachments   Attachments `json:"attachments"`
	ExtraMetadata JSONMap     `json:"extra_metadata"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
	DeletedAt     *time.Time  `json:"deleted_at,omitempty"`
}

// BlockedUser is an entry of a viewer's block list.
type BlockedUser struct {
	UserID    uint64    `json:"user_id"`
	Name      *string   `json:"name"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

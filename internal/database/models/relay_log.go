package models

import "time"

// Relay outcomes recorded in RelayLog.Outcome.
const (
	OutcomeSent       = "sent"
	OutcomeSendFailed = "send_failed"
)

// RelayLog stores information about a post relayed to a destination channel.
type RelayLog struct {
	ID           uint      `gorm:"primaryKey" bson:"-"`
	Source       string    `gorm:"index;not null" bson:"source"`
	Destination  string    `gorm:"not null" bson:"destination"`
	PostID       string    `gorm:"index;not null" bson:"post_id"`
	MessageCount int       `bson:"message_count"`
	MediaCount   int       `bson:"media_count"`
	Caption      string    `bson:"caption,omitempty"`
	Outcome      string    `gorm:"not null" bson:"outcome"`
	ReceivedAt   time.Time `bson:"received_at"`
	PublishedAt  time.Time `bson:"published_at"`
}

// TableName overrides the table name
func (RelayLog) TableName() string {
	return "relay_logs"
}

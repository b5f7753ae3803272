package models

import "time"

// ProcessedPost is one ledger row: a post that has been seen and must not be relayed again.
// Rows are inserted on first sight, never updated, and only removed by the retention sweep.
type ProcessedPost struct {
	Channel     string    `gorm:"primaryKey;column:channel" bson:"channel"`
	PostID      string    `gorm:"primaryKey;column:msg_id" bson:"post_id"`
	ProcessedAt time.Time `gorm:"column:processed_at;index;not null" bson:"processed_at"`
}

// TableName overrides the table name
func (ProcessedPost) TableName() string {
	return "processed"
}

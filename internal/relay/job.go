package relay

import (
	"strconv"
	"time"

	"github.com/mymmrac/telego"

	"telegram-translator/config"
	"telegram-translator/internal/dedup"
)

// Job is one claimed post waiting for the pipeline.
type Job struct {
	ID          string         `json:"id"`
	Source      string         `json:"source"`
	SourceName  string         `json:"source_name,omitempty"`
	Destination string         `json:"destination"`
	PostID      string         `json:"post_id"`
	Trigger     telego.Message `json:"trigger"`
	ReceivedAt  time.Time      `json:"received_at"`
}

// Key returns the dedup key of the job's post.
func (j Job) Key() dedup.PostKey {
	return dedup.PostKey{Source: j.Source, PostID: j.PostID}
}

// DisplaySource returns the source as the channel spells it, for the attribution header.
func (j Job) DisplaySource() string {
	if j.SourceName != "" {
		return j.SourceName
	}
	return j.Source
}

// SourceOf names the source channel of chat: its username when public, else its numeric id.
func SourceOf(chat telego.Chat) string {
	if chat.Username != "" {
		return config.NormalizeSource(chat.Username)
	}
	return strconv.FormatInt(chat.ID, 10)
}

// PostIDOf returns the logical post id of msg: the media group id for albums, else the message id.
func PostIDOf(msg telego.Message) string {
	if msg.MediaGroupID != "" {
		return msg.MediaGroupID
	}
	return strconv.Itoa(msg.MessageID)
}

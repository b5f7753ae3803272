package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"telegram-translator/pkg/telegoapi/mocks"
)

var (
	pngBytes  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01")
	jpegBytes = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00\x01\x01\x00\x00\x01")
	mp4Bytes  = []byte("\x00\x00\x00\x18ftypisom\x00\x00\x02\x00isomiso2mp41")
)

func newTestRelay(t *testing.T) (*Relay, *mocks.MockBot) {
	t.Helper()
	bot := new(mocks.MockBot)
	relay, err := NewRelay(bot, Options{
		Dir:            filepath.Join(t.TempDir(), "media_cache"),
		SendsPerSecond: 1000,
		RetryWait:      5 * time.Millisecond,
	}, nil)
	require.NoError(t, err)
	return relay, bot
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestNewRelayCreatesDirectory(t *testing.T) {
	relay, _ := newTestRelay(t)
	info, err := os.Stat(relay.Dir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestSendTextOnly(t *testing.T) {
	relay, bot := newTestRelay(t)
	bot.On("SendMessage", mock.Anything, mock.MatchedBy(func(p *telego.SendMessageParams) bool {
		return p.ChatID.Username == "@news_ja" && p.Text == "<b>hi</b>" && p.ParseMode == telego.ModeHTML
	})).Return(&telego.Message{MessageID: 1}, nil).Once()

	assert.True(t, relay.Send(context.Background(), "news_ja", nil, "<b>hi</b>"))
	bot.AssertExpectations(t)
}

func TestSendSinglePhoto(t *testing.T) {
	relay, bot := newTestRelay(t)
	path := writeFile(t, relay.Dir(), "a", pngBytes)

	bot.On("SendPhoto", mock.Anything, mock.MatchedBy(func(p *telego.SendPhotoParams) bool {
		return p.ChatID.ID == -100123 && p.Caption == "caption" && p.ParseMode == telego.ModeHTML
	})).Return(&telego.Message{MessageID: 2}, nil).Once()

	assert.True(t, relay.Send(context.Background(), "-100123", []string{path}, "caption"))
	bot.AssertExpectations(t)
}

func TestSendSingleUnknownFileIsDocument(t *testing.T) {
	relay, bot := newTestRelay(t)
	path := writeFile(t, relay.Dir(), "notes.txt", []byte("plain text attachment"))

	bot.On("SendDocument", mock.Anything, mock.Anything).Return(&telego.Message{MessageID: 3}, nil).Once()

	assert.True(t, relay.Send(context.Background(), "@dest", []string{path}, "caption"))
	bot.AssertExpectations(t)
}

func TestSendAlbumCaptionOnFirstItem(t *testing.T) {
	relay, bot := newTestRelay(t)
	paths := []string{
		writeFile(t, relay.Dir(), "1", pngBytes),
		writeFile(t, relay.Dir(), "2", jpegBytes),
		writeFile(t, relay.Dir(), "3", mp4Bytes),
	}

	var sent *telego.SendMediaGroupParams
	bot.On("SendMediaGroup", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).(*telego.SendMediaGroupParams) }).
		Return([]telego.Message{{MessageID: 10}}, nil).Once()

	assert.True(t, relay.Send(context.Background(), "@dest", paths, "album caption"))
	bot.AssertExpectations(t)

	require.NotNil(t, sent)
	require.Len(t, sent.Media, 3)
	first, ok := sent.Media[0].(*telego.InputMediaPhoto)
	require.True(t, ok)
	assert.Equal(t, "album caption", first.Caption)
	assert.Equal(t, telego.ModeHTML, first.ParseMode)
	assert.Empty(t, sent.Media[1].(*telego.InputMediaPhoto).Caption)
	assert.IsType(t, &telego.InputMediaVideo{}, sent.Media[2])
}

func TestSendAlbumWithDocumentSendsDocuments(t *testing.T) {
	relay, bot := newTestRelay(t)
	paths := []string{
		writeFile(t, relay.Dir(), "1", pngBytes),
		writeFile(t, relay.Dir(), "2.txt", []byte("text")),
	}

	bot.On("SendMediaGroup", mock.Anything, mock.MatchedBy(func(p *telego.SendMediaGroupParams) bool {
		for _, m := range p.Media {
			if _, ok := m.(*telego.InputMediaDocument); !ok {
				return false
			}
		}
		return len(p.Media) == 2
	})).Return([]telego.Message{{MessageID: 11}}, nil).Once()

	assert.True(t, relay.Send(context.Background(), "@dest", paths, "caption"))
	bot.AssertExpectations(t)
}

func TestSendLongCaptionFollowsMedia(t *testing.T) {
	relay, bot := newTestRelay(t)
	path := writeFile(t, relay.Dir(), "a", pngBytes)
	caption := strings.Repeat("字", MaxCaptionLength+1)

	bot.On("SendPhoto", mock.Anything, mock.MatchedBy(func(p *telego.SendPhotoParams) bool {
		return p.Caption == ""
	})).Return(&telego.Message{MessageID: 4}, nil).Once()
	bot.On("SendMessage", mock.Anything, mock.MatchedBy(func(p *telego.SendMessageParams) bool {
		return p.Text == caption
	})).Return(&telego.Message{MessageID: 5}, nil).Once()

	assert.True(t, relay.Send(context.Background(), "@dest", []string{path}, caption))
	bot.AssertExpectations(t)
}

func TestCaptionLength(t *testing.T) {
	tests := []struct {
		name    string
		caption string
		want    int
	}{
		{"plain", "abc", 3},
		{"cyrillic", "Привет", 6},
		{"emoji are two units", "🚀🚀", 4},
		{"tags not counted", `<b>hi</b> <a href="https://example.com/long/path">link</a>`, 7},
		{"entities count once", "a &amp; b", 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, captionLength(tt.caption))
		})
	}
}

func TestSendEmojiCaptionFollowsMedia(t *testing.T) {
	relay, bot := newTestRelay(t)
	path := writeFile(t, relay.Dir(), "a", pngBytes)
	// 600 runes, 1200 UTF-16 units.
	caption := strings.Repeat("🚀", 600)

	bot.On("SendPhoto", mock.Anything, mock.MatchedBy(func(p *telego.SendPhotoParams) bool {
		return p.Caption == ""
	})).Return(&telego.Message{MessageID: 4}, nil).Once()
	bot.On("SendMessage", mock.Anything, mock.MatchedBy(func(p *telego.SendMessageParams) bool {
		return p.Text == caption
	})).Return(&telego.Message{MessageID: 5}, nil).Once()

	assert.True(t, relay.Send(context.Background(), "@dest", []string{path}, caption))
	bot.AssertExpectations(t)
}

func TestSendMarkupDoesNotCountTowardCaptionLimit(t *testing.T) {
	relay, bot := newTestRelay(t)
	path := writeFile(t, relay.Dir(), "a", pngBytes)
	caption := strings.Repeat("a", 1000) + `<a href="https://example.com/` + strings.Repeat("p", 100) + `">link</a>`

	bot.On("SendPhoto", mock.Anything, mock.MatchedBy(func(p *telego.SendPhotoParams) bool {
		return p.Caption == caption
	})).Return(&telego.Message{MessageID: 4}, nil).Once()

	assert.True(t, relay.Send(context.Background(), "@dest", []string{path}, caption))
	bot.AssertExpectations(t)
	bot.AssertNotCalled(t, "SendMessage", mock.Anything, mock.Anything)
}

func TestSendFailureReportsFalse(t *testing.T) {
	relay, bot := newTestRelay(t)
	bot.On("SendMessage", mock.Anything, mock.Anything).
		Return(nil, errors.New("telego: sendMessage: api: 403 \"Forbidden: bot is not a member of the channel chat\"")).Once()

	assert.False(t, relay.Send(context.Background(), "@dest", nil, "text"))
	bot.AssertExpectations(t)
}

func TestSendRetriesOnFloodControl(t *testing.T) {
	relay, bot := newTestRelay(t)
	bot.On("SendMessage", mock.Anything, mock.Anything).
		Return(nil, errors.New("telego: sendMessage: api: 429 \"Too Many Requests\"")).Twice()
	bot.On("SendMessage", mock.Anything, mock.Anything).
		Return(&telego.Message{MessageID: 6}, nil).Once()

	assert.True(t, relay.Send(context.Background(), "@dest", nil, "text"))
	bot.AssertNumberOfCalls(t, "SendMessage", 3)
}

func TestSendGivesUpAfterMaxRetries(t *testing.T) {
	relay, bot := newTestRelay(t)
	bot.On("SendMessage", mock.Anything, mock.Anything).
		Return(nil, errors.New("429 Too Many Requests"))

	assert.False(t, relay.Send(context.Background(), "@dest", nil, "text"))
	bot.AssertNumberOfCalls(t, "SendMessage", DefaultMaxSendRetries)
}

func TestFetchDownloadsAndSkipsFailures(t *testing.T) {
	relay, bot := newTestRelay(t)
	relay.download = func(url string) ([]byte, error) {
		if url == "https://files/photo.jpg" {
			return jpegBytes, nil
		}
		return pngBytes, nil
	}

	msgs := []telego.Message{
		{MessageID: 1, Photo: []telego.PhotoSize{
			{FileID: "small", Width: 90, Height: 90},
			{FileID: "large", Width: 1280, Height: 960},
			{FileID: "medium", Width: 320, Height: 240},
		}},
		{MessageID: 2, Text: "no media"},
		{MessageID: 3, Document: &telego.Document{FileID: "broken", FileName: "a.pdf"}},
		{MessageID: 4, Animation: &telego.Animation{FileID: "anim"}},
	}

	bot.On("GetFile", mock.Anything, &telego.GetFileParams{FileID: "large"}).
		Return(&telego.File{FileID: "large", FilePath: "photos/file_1.jpg"}, nil).Once()
	bot.On("GetFile", mock.Anything, &telego.GetFileParams{FileID: "broken"}).
		Return(nil, errors.New("file is too big")).Once()
	bot.On("GetFile", mock.Anything, &telego.GetFileParams{FileID: "anim"}).
		Return(&telego.File{FileID: "anim", FilePath: "animations/noext"}, nil).Once()
	bot.On("FileDownloadURL", "photos/file_1.jpg").Return("https://files/photo.jpg").Once()
	bot.On("FileDownloadURL", "animations/noext").Return("https://files/anim").Once()

	paths := relay.Fetch(context.Background(), `bad/name?`, "777", msgs)
	bot.AssertExpectations(t)

	require.Len(t, paths, 2)
	assert.True(t, strings.HasPrefix(filepath.Base(paths[0]), "badname_777_1_"))
	assert.Equal(t, ".jpg", filepath.Ext(paths[0]))
	assert.True(t, strings.HasPrefix(filepath.Base(paths[1]), "badname_777_4_"))
	assert.Equal(t, ".png", filepath.Ext(paths[1]))

	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Equal(t, jpegBytes, data)

	relay.Cleanup(paths)
	for _, p := range paths {
		_, err := os.Stat(p)
		assert.True(t, os.IsNotExist(err))
	}
}

func TestCleanupIgnoresMissingFiles(t *testing.T) {
	relay, _ := newTestRelay(t)
	assert.NotPanics(t, func() {
		relay.Cleanup([]string{filepath.Join(relay.Dir(), "gone")})
	})
}

func TestParseRetryAfter(t *testing.T) {
	seconds, ok := parseRetryAfter(`telego: sendMediaGroup: api: 429 "Too Many Requests: retry after 5"`)
	assert.True(t, ok)
	assert.Equal(t, 5, seconds)

	_, ok = parseRetryAfter("telego: sendMessage: api: 400 \"Bad Request\"")
	assert.False(t, ok)
}

func TestHasMedia(t *testing.T) {
	assert.False(t, HasMedia(telego.Message{Text: "x"}))
	assert.True(t, HasMedia(telego.Message{Video: &telego.Video{FileID: "v"}}))
}

package relay

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"telegram-translator/config"
	"telegram-translator/internal/database"
	"telegram-translator/internal/dedup"
)

// MockClaimer is a mock implementation of Claimer
type MockClaimer struct {
	mock.Mock
}

func (m *MockClaimer) Claim(ctx context.Context, key dedup.PostKey) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

// MockQueue is a mock implementation of Queue
type MockQueue struct {
	mock.Mock
}

func (m *MockQueue) Enqueue(ctx context.Context, job Job) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

var testMappings = config.ChannelMappings{
	"news":          "@news_ja",
	"-100777000111": "@private_ja",
}

func newTestHandler(t *testing.T, claimer Claimer, queue Queue, metrics *Metrics) *Handler {
	t.Helper()
	h, err := NewHandler(HandlerDeps{
		Mappings: testMappings,
		Dedup:    claimer,
		Queue:    queue,
		Metrics:  metrics,
	})
	require.NoError(t, err)
	return h
}

func TestNewHandlerValidatesDeps(t *testing.T) {
	_, err := NewHandler(HandlerDeps{Dedup: new(MockClaimer), Queue: new(MockQueue)})
	assert.Error(t, err)
	_, err = NewHandler(HandlerDeps{Mappings: testMappings, Queue: new(MockQueue)})
	assert.Error(t, err)
	_, err = NewHandler(HandlerDeps{Mappings: testMappings, Dedup: new(MockClaimer)})
	assert.Error(t, err)
}

func TestHandleEventIgnoresUnmappedChat(t *testing.T) {
	claimer, queue := new(MockClaimer), new(MockQueue)
	h := newTestHandler(t, claimer, queue, nil)

	msg := textPost(1, "hello")
	msg.Chat = telego.Chat{ID: -100999, Username: "someone_else", Type: telego.ChatTypeChannel}

	require.NoError(t, h.HandleEvent(context.Background(), msg))
	claimer.AssertNotCalled(t, "Claim", mock.Anything, mock.Anything)
	queue.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
}

func TestHandleEventEnqueuesClaimedPost(t *testing.T) {
	claimer, queue := new(MockClaimer), new(MockQueue)
	h := newTestHandler(t, claimer, queue, nil)

	msg := textPost(42, "Новость")
	msg.Chat.Username = "News"

	claimer.On("Claim", mock.Anything, dedup.PostKey{Source: "news", PostID: "42"}).Return(true, nil).Once()
	queue.On("Enqueue", mock.Anything, mock.MatchedBy(func(job Job) bool {
		return job.Source == "news" &&
			job.SourceName == "News" &&
			job.Destination == "@news_ja" &&
			job.PostID == "42" &&
			job.ID != "" &&
			job.Trigger.MessageID == 42
	})).Return(nil).Once()

	require.NoError(t, h.HandleEvent(context.Background(), msg))
	claimer.AssertExpectations(t)
	queue.AssertExpectations(t)
}

func TestHandleEventResolvesNumericChatID(t *testing.T) {
	claimer, queue := new(MockClaimer), new(MockQueue)
	h := newTestHandler(t, claimer, queue, nil)

	msg := telego.Message{
		MessageID:    7,
		MediaGroupID: "album-1",
		Chat:         telego.Chat{ID: -100777000111, Type: telego.ChatTypeChannel},
		Caption:      "Фото",
	}

	claimer.On("Claim", mock.Anything, dedup.PostKey{Source: "-100777000111", PostID: "album-1"}).Return(true, nil).Once()
	queue.On("Enqueue", mock.Anything, mock.MatchedBy(func(job Job) bool {
		return job.Destination == "@private_ja" && job.PostID == "album-1"
	})).Return(nil).Once()

	require.NoError(t, h.HandleEvent(context.Background(), msg))
	queue.AssertExpectations(t)
}

func TestHandleEventSkipsDuplicate(t *testing.T) {
	claimer, queue := new(MockClaimer), new(MockQueue)
	metrics := NewMetrics(nil)
	h := newTestHandler(t, claimer, queue, metrics)

	claimer.On("Claim", mock.Anything, mock.Anything).Return(false, nil).Once()

	require.NoError(t, h.HandleEvent(context.Background(), textPost(3, "again")))
	queue.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
	assert.Equal(t, 1.0, outcomeCount(metrics, OutcomeDuplicate))
}

func TestHandleEventPropagatesClaimError(t *testing.T) {
	claimer, queue := new(MockClaimer), new(MockQueue)
	h := newTestHandler(t, claimer, queue, nil)

	claimer.On("Claim", mock.Anything, mock.Anything).Return(false, errors.New("database is locked")).Once()

	err := h.HandleEvent(context.Background(), textPost(4, "text"))
	assert.EqualError(t, err, "database is locked")
	queue.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
}

func TestHandleEventPropagatesEnqueueError(t *testing.T) {
	claimer, queue := new(MockClaimer), new(MockQueue)
	h := newTestHandler(t, claimer, queue, nil)

	claimer.On("Claim", mock.Anything, mock.Anything).Return(true, nil).Once()
	queue.On("Enqueue", mock.Anything, mock.Anything).Return(ErrQueueClosed).Once()

	err := h.HandleEvent(context.Background(), textPost(5, "text"))
	assert.ErrorIs(t, err, ErrQueueClosed)
}

// A post delivered twice, including across a restart, is translated exactly once.
func TestDuplicateEventsTranslateOnce(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "processed_messages.db")

	runSession := func(events ...telego.Message) *MockTranslator {
		store, err := database.OpenSQLite(dbPath)
		require.NoError(t, err)
		defer store.Close(context.Background())

		claims, err := dedup.NewStore(store, nil)
		require.NoError(t, err)

		f := newPipelineFixture(t, nil, 0)
		f.translator.On("Translate", mock.Anything, "Новость").Return("ニュース", nil)
		f.media.On("Fetch", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
		f.media.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(true)
		f.media.On("Cleanup", mock.Anything)
		f.relayLog.On("LogRelayedPost", mock.Anything, mock.Anything).Return(nil)

		queue := NewMemoryQueue(context.Background(), f.pipeline, 0, nil)
		h := newTestHandler(t, claims, queue, nil)
		for _, ev := range events {
			require.NoError(t, h.HandleEvent(context.Background(), ev))
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(t, queue.Shutdown(ctx))
		return f.translator
	}

	post := textPost(42, "Новость")
	first := runSession(post, post, post)
	first.AssertNumberOfCalls(t, "Translate", 1)

	second := runSession(post)
	second.AssertNumberOfCalls(t, "Translate", 0)
}

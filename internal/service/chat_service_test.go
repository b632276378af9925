package service

import (
	"alpha_edu_backend/internal/config"
	"alpha_edu_backend/internal/model"
	"alpha_edu_backend/internal/util"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// fakeChatStore keeps one conversation in memory and records every
// call so tests can assert the order of persistence around the model
// call.
type fakeChatStore struct {
	mu       sync.Mutex
	events   []string
	conv     *model.Conversation
	messages []model.ChatMessage
	usage    int
}

func (f *fakeChatStore) record(event string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeChatStore) eventIndex(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, e := range f.events {
		if e == event {
			return i
		}
	}
	return -1
}

func (f *fakeChatStore) CreateConversation(conv *model.Conversation) error {
	conv.ID = 1
	copied := *conv
	f.conv = &copied
	return nil
}

func (f *fakeChatStore) FindConversation(id, userID uint) (*model.Conversation, error) {
	if f.conv == nil || f.conv.ID != id || f.conv.UserID != userID {
		return nil, nil
	}
	copied := *f.conv
	return &copied, nil
}

func (f *fakeChatStore) ListConversations(userID uint) ([]model.Conversation, error) {
	if f.conv == nil {
		return nil, nil
	}
	return []model.Conversation{*f.conv}, nil
}

func (f *fakeChatStore) UpdateTitle(id uint, title string) error {
	f.record("update_title")
	if f.conv != nil && f.conv.ID == id {
		f.conv.Title = title
	}
	return nil
}

func (f *fakeChatStore) TogglePin(id, userID uint) error { return nil }

func (f *fakeChatStore) Touch(id uint) error {
	f.record("touch")
	return nil
}

func (f *fakeChatStore) DeleteConversation(id, userID uint) error { return nil }

func (f *fakeChatStore) CreateMessage(msg *model.ChatMessage) error {
	f.mu.Lock()
	msg.ID = uint(len(f.messages) + 1)
	f.messages = append(f.messages, *msg)
	f.mu.Unlock()
	f.record("create_message:" + string(msg.Role))
	return nil
}

func (f *fakeChatStore) ListMessages(conversationID uint) ([]model.ChatMessage, error) {
	return f.messages, nil
}

func (f *fakeChatStore) RecentMessages(conversationID uint, n int) ([]model.ChatMessage, error) {
	if len(f.messages) > n {
		return f.messages[len(f.messages)-n:], nil
	}
	return f.messages, nil
}

func (f *fakeChatStore) CountMessages(conversationID uint) (int64, error) {
	return int64(len(f.messages)), nil
}

func (f *fakeChatStore) DailyUsage(ctx context.Context, userID uint) (int, error) {
	return f.usage, nil
}

func (f *fakeChatStore) IncrDailyUsage(ctx context.Context, userID uint) error {
	f.usage++
	f.record("incr_usage")
	return nil
}

func (f *fakeChatStore) usageIncrements() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.events {
		if e == "incr_usage" {
			n++
		}
	}
	return n
}

func newChatFixture(t *testing.T, handler http.HandlerFunc) (*ChatService, *fakeChatStore) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	store := &fakeChatStore{
		conv: &model.Conversation{UserID: 7, Title: model.DefaultConversationTitle},
	}
	store.conv.ID = 1

	ai := NewAIService(testAIConfig(server.URL, "model-a"))
	svc := NewChatService(store, ai, config.ChatConfig{DailyMessageLimit: 20, HistoryWindow: 10})
	return svc, store
}

func TestSendMessagePersistsTurnAroundModelCall(t *testing.T) {
	var store *fakeChatStore
	svc, created := newChatFixture(t, func(w http.ResponseWriter, r *http.Request) {
		store.record("model_call")
		fmt.Fprint(w, sseChunk("أكيد أساعدك"))
	})
	store = created

	reply, err := svc.SendMessage(context.Background(), 7, 1, "إزاي أذاكر؟", func(string) {})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "أكيد أساعدك" {
		t.Fatalf("reply = %q", reply)
	}

	userIdx := store.eventIndex("create_message:user")
	callIdx := store.eventIndex("model_call")
	assistantIdx := store.eventIndex("create_message:assistant")
	if userIdx == -1 || callIdx == -1 || assistantIdx == -1 {
		t.Fatalf("missing events: %v", store.events)
	}
	if userIdx > callIdx {
		t.Fatalf("user message persisted after the model call: %v", store.events)
	}
	if assistantIdx < callIdx {
		t.Fatalf("assistant message persisted before the model call: %v", store.events)
	}

	if n := store.usageIncrements(); n != 1 {
		t.Fatalf("usage incremented %d times, want exactly once", n)
	}
	if store.eventIndex("touch") == -1 {
		t.Fatalf("conversation not touched: %v", store.events)
	}

	last := store.messages[len(store.messages)-1]
	if last.Role != model.RoleAssistant || last.Content != reply {
		t.Fatalf("assistant reply not persisted: %+v", last)
	}
}

func TestSendMessagePersistsApologyFallback(t *testing.T) {
	svc, store := newChatFixture(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	var fragments []string
	reply, err := svc.SendMessage(context.Background(), 7, 1, "إزاي أذاكر؟", func(chunk string) {
		fragments = append(fragments, chunk)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != StreamFallbackMessage {
		t.Fatalf("expected apology fallback, got %q", reply)
	}
	if len(fragments) != 1 || fragments[0] != StreamFallbackMessage {
		t.Fatalf("apology not emitted: %v", fragments)
	}

	last := store.messages[len(store.messages)-1]
	if last.Role != model.RoleAssistant || last.Content != StreamFallbackMessage {
		t.Fatalf("apology not persisted as the assistant turn: %+v", last)
	}
	if n := store.usageIncrements(); n != 1 {
		t.Fatalf("usage incremented %d times, want exactly once", n)
	}
}

func TestSendMessageDailyLimitBlocksBeforePersisting(t *testing.T) {
	svc, store := newChatFixture(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("model must not be called when the quota is spent")
	})
	store.usage = 20

	_, err := svc.SendMessage(context.Background(), 7, 1, "سؤال", func(string) {})
	if !errors.Is(err, util.ErrDailyChatLimit) {
		t.Fatalf("expected ErrDailyChatLimit, got %v", err)
	}
	if len(store.messages) != 0 {
		t.Fatalf("messages persisted past the quota: %v", store.messages)
	}
	if n := store.usageIncrements(); n != 0 {
		t.Fatalf("usage moved on a rejected request: %d", n)
	}
}

func TestSendMessageAutoTitlesFirstMessage(t *testing.T) {
	svc, store := newChatFixture(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, sseChunk("تمام"))
	})

	first := "اشرحلي نظرية فيثاغورس"
	if _, err := svc.SendMessage(context.Background(), 7, 1, first, func(string) {}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.conv.Title != first {
		t.Fatalf("title = %q, want %q", store.conv.Title, first)
	}

	if _, err := svc.SendMessage(context.Background(), 7, 1, "وبعدين؟", func(string) {}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.conv.Title != first {
		t.Fatalf("title rewritten on a later message: %q", store.conv.Title)
	}
}

func TestAutoTitle(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "short stays whole", in: "إزاي أذاكر الفيزيا؟", want: "إزاي أذاكر الفيزيا؟"},
		{name: "exactly fifty runes", in: strings.Repeat("ب", 50), want: strings.Repeat("ب", 50)},
		{name: "long gets truncated", in: strings.Repeat("ب", 60), want: strings.Repeat("ب", 50) + "..."},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := autoTitle(tc.in); got != tc.want {
				t.Fatalf("autoTitle length %d = %q, want %q", len([]rune(tc.in)), got, tc.want)
			}
		})
	}
}

func TestAutoTitleCountsRunesNotBytes(t *testing.T) {
	// 60 Arabic characters are 120 bytes; truncation must happen at
	// the rune boundary, never mid-character.
	in := strings.Repeat("س", 60)
	got := autoTitle(in)
	if !strings.HasSuffix(got, "...") {
		t.Fatalf("expected ellipsis, got %q", got)
	}
	body := strings.TrimSuffix(got, "...")
	if len([]rune(body)) != 50 {
		t.Fatalf("expected 50 runes, got %d", len([]rune(body)))
	}
}

package memory

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/docintel/backend/internal/models"
)

func newTestService(t *testing.T, cfg Config) *Service {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewService(client, nil, nil, cfg)
}

func TestService_AddTurn_AccumulatesAndPersists(t *testing.T) {
	cfg := DefaultConfig()
	svc := newTestService(t, cfg)
	sessionID := uuid.New()
	ctx := context.Background()

	if err := svc.AddTurn(ctx, sessionID, models.MessageRoleUser, "What was revenue last quarter?"); err != nil {
		t.Fatalf("AddTurn: %v", err)
	}
	if err := svc.AddTurn(ctx, sessionID, models.MessageRoleAssistant, "Revenue was $12M."); err != nil {
		t.Fatalf("AddTurn: %v", err)
	}

	w, err := svc.load(ctx, sessionID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(w.Entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(w.Entries))
	}
	if w.TotalTokens <= 0 {
		t.Errorf("expected positive total tokens, got %d", w.TotalTokens)
	}
}

func TestService_Trim_EnforcesMaxEntries(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ShortTermMaxEntries = 2
	cfg.ShortTermMaxTokens = 100000
	svc := newTestService(t, cfg)
	sessionID := uuid.New()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := svc.AddTurn(ctx, sessionID, models.MessageRoleUser, "turn"); err != nil {
			t.Fatalf("AddTurn: %v", err)
		}
	}

	w, err := svc.load(ctx, sessionID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(w.Entries) != 2 {
		t.Errorf("expected trimming to 2 entries, got %d", len(w.Entries))
	}
}

func TestService_Trim_EnforcesMaxTokens(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ShortTermMaxEntries = 1000
	cfg.ShortTermMaxTokens = 5
	svc := newTestService(t, cfg)

	w := window{}
	w.Entries = []Entry{
		{Content: "a", Tokens: 3},
		{Content: "b", Tokens: 3},
		{Content: "c", Tokens: 3},
	}
	w.TotalTokens = 9
	svc.trim(&w)

	if w.TotalTokens > 5 {
		t.Errorf("expected total tokens trimmed to at most 5, got %d", w.TotalTokens)
	}
}

func TestService_Load_MissingSessionReturnsEmptyWindow(t *testing.T) {
	svc := newTestService(t, DefaultConfig())
	w, err := svc.load(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(w.Entries) != 0 {
		t.Errorf("expected an empty window for a missing session, got %d entries", len(w.Entries))
	}
}

func TestLastN(t *testing.T) {
	entries := []Entry{{Content: "1"}, {Content: "2"}, {Content: "3"}, {Content: "4"}}

	t.Run("fewer than n returns all", func(t *testing.T) {
		got := lastN(entries, 10)
		if len(got) != 4 {
			t.Errorf("got %d entries, want 4", len(got))
		}
	})
	t.Run("exactly n from the tail", func(t *testing.T) {
		got := lastN(entries, 2)
		if len(got) != 2 || got[0].Content != "3" || got[1].Content != "4" {
			t.Errorf("got %v", got)
		}
	})
	t.Run("n<=0 returns all", func(t *testing.T) {
		got := lastN(entries, 0)
		if len(got) != 4 {
			t.Errorf("got %d entries, want 4", len(got))
		}
	})
}

func TestDedupKeyFacts(t *testing.T) {
	existing := models.StringList{"Revenue grew 10%", "CEO is Jane Doe"}
	fresh := []string{"revenue grew 10%", "New partnership announced"}

	got := dedupKeyFacts(existing, fresh, 10)
	if len(got) != 3 {
		t.Fatalf("expected 3 deduped facts (case-insensitive match), got %d: %v", len(got), got)
	}
	if got[0] != "revenue grew 10%" {
		t.Errorf("expected fresh facts first, got %v", got)
	}
}

func TestDedupKeyFacts_RespectsMaxCap(t *testing.T) {
	fresh := []string{"a", "b", "c", "d", "e"}
	got := dedupKeyFacts(nil, fresh, 3)
	if len(got) != 3 {
		t.Errorf("expected cap of 3, got %d", len(got))
	}
}

func TestExtractKeyFacts_OnlyUsesUserTurns(t *testing.T) {
	entries := []Entry{
		{Role: models.MessageRoleUser, Content: "What is the margin trend?"},
		{Role: models.MessageRoleAssistant, Content: "Margin has declined."},
		{Role: models.MessageRoleUser, Content: "And revenue?"},
	}
	facts := extractKeyFacts(entries, 10)
	if len(facts) != 2 {
		t.Fatalf("expected 2 user-turn facts, got %d: %v", len(facts), facts)
	}
}

func TestExtractKeyFacts_TruncatesLongContent(t *testing.T) {
	long := ""
	for i := 0; i < 300; i++ {
		long += "x"
	}
	entries := []Entry{{Role: models.MessageRoleUser, Content: long}}
	facts := extractKeyFacts(entries, 10)
	if len(facts[0]) != 200 {
		t.Errorf("expected truncation to 200 chars, got %d", len(facts[0]))
	}
}

func TestExtractKeyFacts_RespectsMax(t *testing.T) {
	entries := make([]Entry, 20)
	for i := range entries {
		entries[i] = Entry{Role: models.MessageRoleUser, Content: "fact"}
	}
	facts := extractKeyFacts(entries, 5)
	if len(facts) != 5 {
		t.Errorf("expected max of 5 facts, got %d", len(facts))
	}
}

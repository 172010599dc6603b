// Package memory implements Conversation Memory (spec §4.10): a Redis-backed
// short-term rolling window and a budget-gated progressive summary
// consolidation against the durable Session record. This package does not
// trim retrieved chunks or compress the summary to fit the final prompt. Adapted
// from the teacher's services/memory/{short_term,consolidation}.go, replacing
// their agent-conversation domain with documentintel sessions.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/docintel/backend/internal/llm"
	"github.com/docintel/backend/internal/models"
	"github.com/docintel/backend/internal/store"
	"github.com/docintel/backend/internal/utils"
)

// Entry is one short-term memory item: a single turn's content plus its
// token estimate, the unit the rolling window trims by.
type Entry struct {
	Role      models.MessageRole `json:"role"`
	Content   string             `json:"content"`
	Tokens    int                `json:"tokens"`
	Timestamp time.Time          `json:"timestamp"`
}

// window is the JSON blob stored under the Redis short-term key.
type window struct {
	Entries     []Entry   `json:"entries"`
	TotalTokens int       `json:"total_tokens"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// summaryCacheEntry is the read-through cache record keyed by
// (session_id, message_count): a cache hit requires the cached count to
// match the session's current count exactly (spec §4.10 step 3, Design
// Notes §9 "cache is a read-through accelerator keyed by
// (session_id, message_count)").
type summaryCacheEntry struct {
	MessageCount int      `json:"message_count"`
	SummaryText  string   `json:"summary_text"`
	KeyFacts     []string `json:"key_facts"`
}

// Config mirrors config.MemoryConfig, trimmed to the fields the rolling
// window and consolidation gate need.
type Config struct {
	ShortTermMaxTokens    int
	ShortTermMaxEntries   int
	ShortTermTTL          time.Duration
	MaxHistoryMessages    int
	VerbatimMessageCount  int
	SummaryTriggerRatio   float64
	MinMessagesForSummary int
	MaxKeyFacts           int
	SummaryMaxChars       int
	ModelInputBudget      int
}

func DefaultConfig() Config {
	return Config{
		ShortTermMaxTokens:    4000,
		ShortTermMaxEntries:   50,
		ShortTermTTL:          24 * time.Hour,
		MaxHistoryMessages:    50,
		VerbatimMessageCount:  6,
		SummaryTriggerRatio:   0.7,
		MinMessagesForSummary: 6,
		MaxKeyFacts:           10,
		SummaryMaxChars:       2000,
		ModelInputBudget:      16000,
	}
}

// Summarizer produces a progressive summary and key facts from conversation
// turns. llm.Provider.SummarizeChunksBatch satisfies this via summarizerAdapter
// below; a fake is substituted in tests.
type Summarizer interface {
	Summarize(ctx context.Context, previousSummary string, newTurns []Entry) (summary string, keyFacts []string, err error)
}

type Service struct {
	redis      *redis.Client
	sessions   *store.SessionStore
	summarizer Summarizer
	cfg        Config
	keyPrefix  string
}

func NewService(redisClient *redis.Client, sessions *store.SessionStore, summarizer Summarizer, cfg Config) *Service {
	return &Service{redis: redisClient, sessions: sessions, summarizer: summarizer, cfg: cfg, keyPrefix: "memory"}
}

func (s *Service) shortTermKey(sessionID uuid.UUID) string {
	return fmt.Sprintf("%s:short_term:%s", s.keyPrefix, sessionID.String())
}

func (s *Service) summaryCacheKey(sessionID uuid.UUID) string {
	return fmt.Sprintf("%s:summary:%s", s.keyPrefix, sessionID.String())
}

// AddTurn appends a turn to the Redis rolling window and trims it to the
// configured token/entry budget. Consolidation is driven separately by
// BuildContext, gated on the budget ratio rather than a fixed turn cadence
// (spec §4.10 step 3).
func (s *Service) AddTurn(ctx context.Context, sessionID uuid.UUID, role models.MessageRole, content string) error {
	w, err := s.load(ctx, sessionID)
	if err != nil {
		return err
	}

	w.Entries = append(w.Entries, Entry{
		Role:      role,
		Content:   content,
		Tokens:    utils.EstimateTokensMax(content),
		Timestamp: time.Now(),
	})
	w.TotalTokens += w.Entries[len(w.Entries)-1].Tokens
	w.UpdatedAt = time.Now()

	s.trim(&w)
	return s.store(ctx, sessionID, w)
}

func (s *Service) trim(w *window) {
	for len(w.Entries) > s.cfg.ShortTermMaxEntries || w.TotalTokens > s.cfg.ShortTermMaxTokens {
		if len(w.Entries) == 0 {
			break
		}
		removed := w.Entries[0]
		w.Entries = w.Entries[1:]
		w.TotalTokens -= removed.Tokens
	}
}

func (s *Service) load(ctx context.Context, sessionID uuid.UUID) (window, error) {
	data, err := s.redis.Get(ctx, s.shortTermKey(sessionID)).Bytes()
	if err == redis.Nil {
		return window{}, nil
	}
	if err != nil {
		return window{}, fmt.Errorf("load short-term memory: %w", err)
	}
	var w window
	if err := json.Unmarshal(data, &w); err != nil {
		return window{}, fmt.Errorf("unmarshal short-term memory: %w", err)
	}
	return w, nil
}

func (s *Service) store(ctx context.Context, sessionID uuid.UUID, w window) error {
	data, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("marshal short-term memory: %w", err)
	}
	return s.redis.Set(ctx, s.shortTermKey(sessionID), data, s.cfg.ShortTermTTL).Err()
}

// Context is what BuildContext returns: the ingredients the Prompt Builder
// needs, plus the token budget ratio that gated consolidation (spec §4.10
// step 2/5).
type Context struct {
	SummaryText     string
	RecentMessages  []Entry
	KeyFacts        []string
	BudgetRatio     float64
	ConsolidationRan bool
}

// BuildContext runs the full procedure spec §4.10 describes:
//  1. load bounded recent history
//  2. estimate (history + user message) tokens against the model's input budget
//  3. consolidate into a progressive summary + key facts if the ratio and
//     history length both clear their gates, honoring the
//     (session_id, message_count) read-through cache before recomputing
//  4. choose the last verbatim_message_count turns to keep verbatim
func (s *Service) BuildContext(ctx context.Context, sessionID uuid.UUID, userMessage string) (*Context, error) {
	w, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	history := w.Entries
	if len(history) > s.cfg.MaxHistoryMessages {
		history = history[len(history)-s.cfg.MaxHistoryMessages:]
	}

	totalTokens := utils.EstimateTokensMax(userMessage)
	for _, e := range history {
		totalTokens += e.Tokens
	}
	budget := s.cfg.ModelInputBudget
	if budget <= 0 {
		budget = 1
	}
	ratio := float64(totalTokens) / float64(budget)

	result := &Context{BudgetRatio: ratio}
	result.RecentMessages = lastN(history, s.cfg.VerbatimMessageCount)

	if ratio >= s.cfg.SummaryTriggerRatio && len(history) >= s.cfg.MinMessagesForSummary {
		summary, facts, err := s.consolidate(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		result.SummaryText = summary
		result.KeyFacts = facts
		result.ConsolidationRan = true
	} else {
		sess, err := s.sessions.Get(ctx, sessionID)
		if err == nil {
			result.SummaryText = sess.LastSummaryText
			result.KeyFacts = sess.LastSummaryKeyFacts
		}
	}

	return result, nil
}

// consolidate implements spec §4.10 step 3: cache hit only if
// cached.message_count == current count; otherwise fall back to the
// persistent session summary; if neither reflects the current history
// (or history grew past last_summarized_index), recompute from the new
// messages and persist to both database and cache.
func (s *Service) consolidate(ctx context.Context, sessionID uuid.UUID) (string, []string, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return "", nil, fmt.Errorf("consolidate: load session: %w", err)
	}

	if cached, ok := s.loadCache(ctx, sessionID); ok && cached.MessageCount == sess.MessageCount {
		return cached.SummaryText, cached.KeyFacts, nil
	}

	if sess.LastSummarizedIndex >= sess.MessageCount-1 && sess.LastSummaryText != "" {
		s.storeCache(ctx, sessionID, summaryCacheEntry{MessageCount: sess.MessageCount, SummaryText: sess.LastSummaryText, KeyFacts: sess.LastSummaryKeyFacts})
		return sess.LastSummaryText, sess.LastSummaryKeyFacts, nil
	}

	newMessages, err := s.sessions.MessagesSince(ctx, sessionID, sess.LastSummarizedIndex)
	if err != nil {
		return "", nil, fmt.Errorf("consolidate: load new messages: %w", err)
	}
	if len(newMessages) == 0 {
		return sess.LastSummaryText, sess.LastSummaryKeyFacts, nil
	}

	entries := make([]Entry, len(newMessages))
	for i, m := range newMessages {
		entries[i] = Entry{Role: m.Role, Content: m.Content, Tokens: utils.EstimateTokensMax(m.Content), Timestamp: m.CreatedAt}
	}

	summary, freshFacts, err := s.summarizer.Summarize(ctx, sess.LastSummaryText, entries)
	if err != nil {
		return "", nil, fmt.Errorf("consolidate: summarize: %w", err)
	}
	if len(summary) > s.cfg.SummaryMaxChars {
		summary = summary[:s.cfg.SummaryMaxChars]
	}
	facts := dedupKeyFacts(sess.LastSummaryKeyFacts, freshFacts, s.cfg.MaxKeyFacts)

	newIndex := sess.MessageCount - 1
	if err := s.sessions.UpdateSummary(ctx, sessionID, summary, facts, newIndex); err != nil {
		return "", nil, fmt.Errorf("consolidate: persist summary: %w", err)
	}
	s.storeCache(ctx, sessionID, summaryCacheEntry{MessageCount: sess.MessageCount, SummaryText: summary, KeyFacts: facts})

	return summary, facts, nil
}

func (s *Service) loadCache(ctx context.Context, sessionID uuid.UUID) (summaryCacheEntry, bool) {
	data, err := s.redis.Get(ctx, s.summaryCacheKey(sessionID)).Bytes()
	if err != nil {
		return summaryCacheEntry{}, false
	}
	var entry summaryCacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return summaryCacheEntry{}, false
	}
	return entry, true
}

func (s *Service) storeCache(ctx context.Context, sessionID uuid.UUID, entry summaryCacheEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	_ = s.redis.Set(ctx, s.summaryCacheKey(sessionID), data, s.cfg.ShortTermTTL).Err()
}

func lastN(entries []Entry, n int) []Entry {
	if n <= 0 || len(entries) <= n {
		return entries
	}
	return entries[len(entries)-n:]
}

// dedupKeyFacts merges new facts with existing ones, case-insensitive,
// keeping at most max, most-recent-first (spec §4.10 step 3).
func dedupKeyFacts(existing models.StringList, fresh []string, max int) []string {
	seen := make(map[string]bool, len(existing)+len(fresh))
	out := make([]string, 0, max)
	add := func(f string) {
		key := strings.ToLower(strings.TrimSpace(f))
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, f)
	}
	for _, f := range fresh {
		add(f)
	}
	for _, f := range existing {
		add(f)
	}
	if len(out) > max {
		out = out[:max]
	}
	return out
}

// summarizerAdapter wraps an llm.Provider's batch summarizer as a
// Summarizer, standing in for the learned consolidation call
// original_source's consolidation.py makes. Key facts are pulled from a
// deterministic scan of user turns (entities/numbers/decisions are left to
// the prompt given to SummarizeChunksBatch rather than a second model call),
// matching the teacher's pattern of minimizing round trips per turn.
type summarizerAdapter struct {
	provider llm.Provider
	model    string
}

func NewLLMSummarizer(provider llm.Provider, model string) Summarizer {
	return &summarizerAdapter{provider: provider, model: model}
}

func (a *summarizerAdapter) Summarize(ctx context.Context, previousSummary string, newTurns []Entry) (string, []string, error) {
	pages := make([]llm.PageText, 0, len(newTurns)+1)
	if previousSummary != "" {
		pages = append(pages, llm.PageText{Page: 0, Text: "Previous summary: " + previousSummary})
	}
	for i, e := range newTurns {
		pages = append(pages, llm.PageText{Page: i + 1, Text: fmt.Sprintf("%s: %s", e.Role, e.Content)})
	}

	summaries, err := a.provider.SummarizeChunksBatch(ctx, pages, a.model)
	if err != nil {
		return "", nil, err
	}
	summary := strings.Join(summaries, " ")
	facts := extractKeyFacts(newTurns, 10)
	return summary, facts, nil
}

// extractKeyFacts is a deterministic fallback/complement scan for
// entities/numbers/decisions in user turns, used when no learned extractor
// is wired (spec §4.10 step 3: "up to 10 key facts").
func extractKeyFacts(entries []Entry, max int) []string {
	facts := make([]string, 0, max)
	for _, e := range entries {
		if e.Role != models.MessageRoleUser {
			continue
		}
		content := strings.TrimSpace(e.Content)
		if content == "" {
			continue
		}
		if len(content) > 200 {
			content = content[:200]
		}
		facts = append(facts, content)
		if len(facts) >= max {
			break
		}
	}
	return facts
}

package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/marshnicholas123/nlq-demo/internal/domain/session"
	"github.com/marshnicholas123/nlq-demo/internal/infrastructure/config"
	infra "github.com/marshnicholas123/nlq-demo/internal/infrastructure/session"
)

// fakeCompleter 记录提示并返回固定输出
type fakeCompleter struct {
	out    string
	err    error
	prompt string
}

func (f *fakeCompleter) Invoke(_ context.Context, prompt, _ string, _ int) (string, error) {
	f.prompt = prompt
	return f.out, f.err
}

func newManager(c *fakeCompleter) *Manager {
	return NewManager(infra.NewMemoryStore(time.Hour), c, &config.AgentConfig{ResolutionMaxTokens: 100})
}

var priorTurn = domain.ChatTurn{
	UserQuery: "How many operational plants are in France?",
	SQL:       "SELECT COUNT(*) FROM nuclear_power_plants WHERE CountryCode = 'FR' AND StatusId = 3",
}

func TestResolveHeuristic(t *testing.T) {
	history := []domain.ChatTurn{priorTurn}

	tests := []struct {
		name    string
		query   string
		history []domain.ChatTurn
		want    string
	}{
		{"empty history unchanged", "Show me the data", nil, "Show me the data"},
		{"follow-up cue", "What about China?", history, priorTurn.UserQuery + ". Additionally: What about China?"},
		{"leading in", "in Japan", history, priorTurn.UserQuery + ". Additionally: in Japan"},
		{"standalone question", "Which reactor types exist?", history, "Which reactor types exist?"},
		{"cue inside word is not a cue", "Inspect all plants", history, "Inspect all plants"},
		{"long query unchanged", "what about the total capacity of every plant built after 1990 in Europe", history,
			"what about the total capacity of every plant built after 1990 in Europe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveHeuristic(tt.query, tt.history))
		})
	}
}

func TestResolveHeuristic_Idempotent(t *testing.T) {
	history := []domain.ChatTurn{priorTurn}

	once := ResolveHeuristic("What about China?", history)
	twice := ResolveHeuristic(once, history)
	assert.Equal(t, once, twice)
	assert.Contains(t, once, "What about China?")
	assert.Contains(t, once, priorTurn.UserQuery)
}

func TestResolveWithLLM(t *testing.T) {
	t.Run("rewrites with recent turns", func(t *testing.T) {
		c := &fakeCompleter{out: "\"How many operational plants are in China?\"\n"}
		m := newManager(c)

		history := make([]domain.ChatTurn, 0, 5)
		for i := 0; i < 5; i++ {
			history = append(history, domain.ChatTurn{UserQuery: fmt.Sprintf("question %d", i), SQL: "SELECT 1"})
		}

		got := m.ResolveWithLLM(context.Background(), "What about China?", history)
		assert.Equal(t, "How many operational plants are in China?", got)
		assert.NotContains(t, c.prompt, "question 1", "只使用最近三轮")
		assert.Contains(t, c.prompt, "question 4")
		assert.Contains(t, c.prompt, "What about China?")
	})

	t.Run("empty history skips model", func(t *testing.T) {
		c := &fakeCompleter{out: "should not be used"}
		got := newManager(c).ResolveWithLLM(context.Background(), "Show me the data", nil)
		assert.Equal(t, "Show me the data", got)
		assert.Empty(t, c.prompt)
	})

	t.Run("model failure keeps query", func(t *testing.T) {
		c := &fakeCompleter{err: errors.New("throttled")}
		got := newManager(c).ResolveWithLLM(context.Background(), "What about China?", []domain.ChatTurn{priorTurn})
		assert.Equal(t, "What about China?", got)
	})

	t.Run("empty output keeps query", func(t *testing.T) {
		c := &fakeCompleter{out: "  "}
		got := newManager(c).ResolveWithLLM(context.Background(), "What about China?", []domain.ChatTurn{priorTurn})
		assert.Equal(t, "What about China?", got)
	})
}

func TestResolve_ModeSelection(t *testing.T) {
	c := &fakeCompleter{out: "rewritten"}
	m := newManager(c)
	history := []domain.ChatTurn{priorTurn}

	assert.Equal(t, "rewritten", m.Resolve(context.Background(), config.ResolverLLM, "What about China?", history))
	assert.Contains(t, m.Resolve(context.Background(), config.ResolverHeuristic, "What about China?", history), "Additionally:")
}

func TestManager_HistoryLifecycle(t *testing.T) {
	m := newManager(&fakeCompleter{})
	ctx := context.Background()

	history, err := m.History(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, history)

	for i := 0; i < 11; i++ {
		require.NoError(t, m.Append(ctx, "s1", domain.ChatTurn{UserQuery: fmt.Sprintf("q%d", i)}))
	}
	history, err = m.History(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, history, domain.MaxTurns)
	assert.Equal(t, "q1", history[0].UserQuery)

	require.NoError(t, m.Clear(ctx, "s1"))
	require.NoError(t, m.Clear(ctx, "never-existed"))
	history, err = m.History(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestManager_LockSerializesSession(t *testing.T) {
	m := newManager(&fakeCompleter{})
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := m.Lock("s")
			defer unlock()
			history, err := m.History(ctx, "s")
			if !assert.NoError(t, err) {
				return
			}
			next := 1
			if len(history) > 0 {
				last, err := strconv.Atoi(strings.TrimPrefix(history[len(history)-1].UserQuery, "seq "))
				if !assert.NoError(t, err) {
					return
				}
				next = last + 1
			}
			// 读写之间让出调度，未串行化时会读到相同的序号
			time.Sleep(time.Millisecond)
			assert.NoError(t, m.Append(ctx, "s", domain.ChatTurn{UserQuery: fmt.Sprintf("seq %d", next)}))
		}()
	}
	wg.Wait()

	history, err := m.History(ctx, "s")
	require.NoError(t, err)
	require.Len(t, history, domain.MaxTurns)
	// 每一轮都看到了前一轮的写入，序号连续递增
	for i, turn := range history {
		assert.Equal(t, fmt.Sprintf("seq %d", workers-domain.MaxTurns+i+1), turn.UserQuery)
	}
}

func TestManager_LockReleasedEntriesArePruned(t *testing.T) {
	m := newManager(&fakeCompleter{})
	ctx := context.Background()

	unlock := m.Lock("a")
	unlockB := m.Lock("b")
	assert.Equal(t, 2, m.activeLocks())
	unlock()
	unlock()
	assert.Equal(t, 1, m.activeLocks(), "重复解锁无副作用")
	unlockB()
	assert.Zero(t, m.activeLocks())

	// 等待者持有引用，释放前不移除
	unlock = m.Lock("c")
	acquired := make(chan func())
	go func() { acquired <- m.Lock("c") }()
	require.Eventually(t, func() bool {
		m.locksMu.Lock()
		defer m.locksMu.Unlock()
		return m.locks["c"] != nil && m.locks["c"].refs == 2
	}, time.Second, time.Millisecond)
	unlock()
	second := <-acquired
	assert.Equal(t, 1, m.activeLocks())
	second()
	assert.Zero(t, m.activeLocks())

	for i := 0; i < 100; i++ {
		id := fmt.Sprintf("s%d", i)
		release := m.Lock(id)
		require.NoError(t, m.Append(ctx, id, domain.ChatTurn{UserQuery: "q"}))
		release()
		require.NoError(t, m.Clear(ctx, id))
	}
	assert.Zero(t, m.activeLocks())
}

func TestConversationContext(t *testing.T) {
	assert.Equal(t, NoHistoryContext, ConversationContext(nil))

	history := make([]domain.ChatTurn, 0, 7)
	for i := 0; i < 7; i++ {
		history = append(history, domain.ChatTurn{UserQuery: fmt.Sprintf("q%d", i), SQL: strings.Repeat("x", 300)})
	}
	history[6].ResolvedQuery = "q6 resolved"

	out := ConversationContext(history)
	assert.NotContains(t, out, "q1\n", "只包含最近五轮")
	assert.Contains(t, out, "q2")
	assert.Contains(t, out, "Interpreted as: q6 resolved")
	assert.Contains(t, out, strings.Repeat("x", 200)+"...")
	assert.NotContains(t, out, strings.Repeat("x", 201))
}

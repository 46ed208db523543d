package memory

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/rcliao/context-memory/internal/model"
	"github.com/rcliao/context-memory/internal/store"
)

const (
	DefaultRecallBudget = 4000 // tokens
	recallCandidates    = 50
	charsPerToken       = 4
	minExcerpt          = 100
)

// RecallParams holds parameters for assembling context.
type RecallParams struct {
	Query      string
	MemoryType string
	Tags       []string
	Budget     int // max tokens in output (rough: 1 token ≈ 4 chars)
}

// RecalledMemory is a scored memory in a recall result.
type RecalledMemory struct {
	ID         int64            `json:"id"`
	MemoryType model.MemoryType `json:"memory_type"`
	Content    string           `json:"content"`
	Context    string           `json:"context,omitempty"`
	Score      float64          `json:"score"`
	Excerpt    bool             `json:"excerpt,omitempty"`
}

// RecallResult is the assembled context.
type RecallResult struct {
	Budget   int              `json:"budget"`
	Used     int              `json:"used"`
	Memories []RecalledMemory `json:"memories"`
}

// Recall finds the memories most useful for query and packs them, best
// first, into the token budget. The last one that does not fit is cut to an
// excerpt if at least 100 characters remain.
func (m *Manager) Recall(ctx context.Context, p RecallParams) (*RecallResult, error) {
	budget := p.Budget
	if budget <= 0 {
		budget = DefaultRecallBudget
	}
	charBudget := budget * charsPerToken

	res, err := m.Search(ctx, SearchParams{
		Query:      p.Query,
		MemoryType: p.MemoryType,
		Tags:       p.Tags,
		Order:      string(store.OrderRelevance),
		Limit:      recallCandidates,
	})
	if err != nil {
		return nil, err
	}

	out := &RecallResult{Budget: budget, Memories: []RecalledMemory{}}
	if len(res.Memories) == 0 {
		return out, nil
	}

	terms := keywords(p.Query, nil)
	now := m.now()
	type scored struct {
		mem   model.Memory
		score float64
	}
	candidates := make([]scored, 0, len(res.Memories))
	for _, mem := range res.Memories {
		relevance := 1.0
		if len(terms) > 0 {
			relevance = float64(matchedTerms(mem.Content, terms)) / float64(len(terms))
		}

		// Exponential decay by age in days.
		age := now.Sub(mem.CreatedAt).Hours() / 24.0
		recency := math.Exp(-0.1 * math.Max(age, 0))

		accessFreq := 0.0
		if mem.AccessCount > 0 {
			accessFreq = math.Min(math.Log(float64(mem.AccessCount)+1)/math.Log(100), 1)
		}

		score := relevance*0.4 + recency*0.2 + accessFreq*0.2 + typeWeight(mem.MemoryType)*0.2
		candidates = append(candidates, scored{mem: mem, score: score})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	used := 0
	for _, c := range candidates {
		content := []rune(c.mem.Content)
		rm := RecalledMemory{
			ID:         c.mem.ID,
			MemoryType: c.mem.MemoryType,
			Content:    c.mem.Content,
			Context:    c.mem.Context,
			Score:      math.Round(c.score*100) / 100,
		}
		if used+len(content) <= charBudget {
			out.Memories = append(out.Memories, rm)
			used += len(content)
			continue
		}
		if remaining := charBudget - used; remaining >= minExcerpt {
			rm.Content = string(content[:remaining]) + "..."
			rm.Excerpt = true
			out.Memories = append(out.Memories, rm)
			used += remaining
		}
		break
	}

	out.Used = used / charsPerToken
	return out, nil
}

func matchedTerms(content string, terms []string) int {
	lower := strings.ToLower(content)
	n := 0
	for _, t := range terms {
		if strings.Contains(lower, t) {
			n++
		}
	}
	return n
}

// typeWeight ranks stated preferences and facts above transcripts.
func typeWeight(t model.MemoryType) float64 {
	switch t {
	case model.TypePreference:
		return 1.0
	case model.TypeFact:
		return 0.75
	case model.TypeNote:
		return 0.5
	case model.TypeConversation:
		return 0.25
	default:
		return 0.5
	}
}

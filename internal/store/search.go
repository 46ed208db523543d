package store

import (
	"context"
	"database/sql"
	"fmt"
	"runtime"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rcliao/context-memory/internal/model"
)

// DefaultLimit is the page size used when SearchParams.Limit is zero.
const DefaultLimit = 20

// Order selects how search results are ranked.
type Order string

const (
	OrderRecent    Order = "recent"
	OrderRelevance Order = "relevance"
	OrderAccess    Order = "access"
)

// ParseOrder validates an order name. Empty means OrderRecent.
func ParseOrder(s string) (Order, error) {
	switch o := Order(strings.ToLower(strings.TrimSpace(s))); o {
	case "":
		return OrderRecent, nil
	case OrderRecent, OrderRelevance, OrderAccess:
		return o, nil
	}
	return "", fmt.Errorf("%w: unknown order %q (valid: recent, relevance, access)", model.ErrInvalidCriteria, s)
}

// SearchParams holds parameters for searching memories. Keywords and tags
// are expected lower-cased.
type SearchParams struct {
	Keywords       []string
	MemoryType     model.MemoryType
	Tags           []string
	MatchAllTags   bool
	DaysBack       int
	MinAccessCount int
	Order          Order
	Limit          int
	Offset         int
}

// SearchResult is one page of ranked matches.
type SearchResult struct {
	Memories   []model.Memory `json:"memories"`
	TotalCount int            `json:"total_count"`
	HasMore    bool           `json:"has_more"`
	// Skipped counts candidates that could not be decrypted or decoded.
	Skipped int `json:"skipped,omitempty"`
}

type candidate struct {
	mem   model.Memory
	score int
}

// Search finds memories matching every given criterion, ranks them and
// returns the requested page. Returned memories have their access recorded.
func (s *SQLiteStore) Search(ctx context.Context, p SearchParams) (res *SearchResult, err error) {
	ctx, span := tracer.Start(ctx, "store.search")
	defer func() { endSpan(span, err) }()

	limit := p.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	rows, err := s.scanCandidates(ctx, p)
	if err != nil {
		return nil, err
	}
	mems, errs, err := s.decodeAll(ctx, rows)
	if err != nil {
		return nil, err
	}

	res = &SearchResult{}
	matches := make([]candidate, 0, len(mems))
	for i, m := range mems {
		if errs[i] != nil {
			res.Skipped++
			s.logger.Warn("skipping unreadable memory", zap.Int64("id", rows[i].id), zap.Error(errs[i]))
			continue
		}
		score := keywordScore(m.Content, p.Keywords)
		if len(p.Keywords) > 0 && score == 0 {
			continue
		}
		matches = append(matches, candidate{mem: m, score: score})
	}

	// Candidates arrive newest first; stable sorts keep that as the tie-break.
	switch p.Order {
	case OrderRelevance:
		sort.SliceStable(matches, func(i, j int) bool { return matches[i].score > matches[j].score })
	case OrderAccess:
		sort.SliceStable(matches, func(i, j int) bool { return matches[i].mem.AccessCount > matches[j].mem.AccessCount })
	}

	res.TotalCount = len(matches)
	start := min(p.Offset, len(matches))
	end := start + min(limit, len(matches)-start)
	res.HasMore = end < len(matches)
	page := make([]model.Memory, 0, end-start)
	for _, c := range matches[start:end] {
		page = append(page, c.mem)
	}

	if res.Memories, err = s.recordAccess(ctx, page); err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("search.total", res.TotalCount),
		attribute.Int("search.returned", len(res.Memories)),
		attribute.Int("search.skipped", res.Skipped))
	return res, nil
}

// scanCandidates runs the SQL prefilter and returns raw rows, newest first.
func (s *SQLiteStore) scanCandidates(ctx context.Context, p SearchParams) ([]row, error) {
	where := []string{"1 = 1"}
	var args []any

	if p.MemoryType != "" {
		where = append(where, "m.memory_type = ?")
		args = append(args, string(p.MemoryType))
	}
	if p.DaysBack > 0 {
		cutoff := s.now().UTC().AddDate(0, 0, -p.DaysBack)
		where = append(where, "m.created_at >= ?")
		args = append(args, formatTime(cutoff))
	}
	if p.MinAccessCount > 0 {
		where = append(where, "m.access_count >= ?")
		args = append(args, p.MinAccessCount)
	}
	if len(p.Tags) > 0 {
		clause := `m.id IN (
			SELECT mt.memory_id FROM memory_tags mt JOIN tags t ON t.id = mt.tag_id
			WHERE t.name IN (` + placeholders(len(p.Tags)) + `)`
		for _, t := range p.Tags {
			args = append(args, t)
		}
		if p.MatchAllTags {
			clause += ` GROUP BY mt.memory_id HAVING COUNT(DISTINCT t.name) = ?`
			args = append(args, len(p.Tags))
		}
		where = append(where, clause+")")
	}
	// Encrypted rows can only be matched after decryption. LIKE folds
	// ASCII case only, so non-ASCII terms skip the prefilter.
	if len(p.Keywords) > 0 && allASCII(p.Keywords) {
		likes := make([]string, len(p.Keywords))
		for i, kw := range p.Keywords {
			likes[i] = `m.content LIKE ? ESCAPE '\'`
			args = append(args, "%"+escapeLike(kw)+"%")
		}
		where = append(where, "(m.encrypted = 1 OR "+strings.Join(likes, " OR ")+")")
	}

	query := fmt.Sprintf(`SELECT m.%s FROM memories m WHERE %s ORDER BY m.created_at DESC, m.id DESC`,
		strings.ReplaceAll(memoryColumns, ", ", ", m."), strings.Join(where, " AND "))

	s.mu.RLock()
	defer s.mu.RUnlock()

	rs, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &model.StorageError{Op: "search", Err: err}
	}
	defer rs.Close()

	var out []row
	for rs.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r, err := scanRow(rs)
		if err != nil {
			return nil, &model.StorageError{Op: "search", Err: err}
		}
		out = append(out, r)
	}
	if err := rs.Err(); err != nil {
		return nil, &model.StorageError{Op: "search", Err: err}
	}
	return out, nil
}

// decodeAll decrypts rows on a bounded pool. Per-row failures are reported
// in errs; only cancellation fails the whole call.
func (s *SQLiteStore) decodeAll(ctx context.Context, rows []row) ([]model.Memory, []error, error) {
	mems := make([]model.Memory, len(rows))
	errs := make([]error, len(rows))
	if s.cipher == nil {
		// Without a key encrypted rows fail fast, so decode inline.
		for i, r := range rows {
			mems[i], errs[i] = s.decode(r)
		}
		return mems, errs, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range rows {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			mems[i], errs[i] = s.decode(rows[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return mems, errs, nil
}

// recordAccess bumps access bookkeeping for mems and refreshes their
// counters from the database. Memories deleted since the scan are dropped.
func (s *SQLiteStore) recordAccess(ctx context.Context, mems []model.Memory) ([]model.Memory, error) {
	if len(mems) == 0 {
		return mems, nil
	}
	ids := make([]any, len(mems))
	for i, m := range mems {
		ids[i] = m.ID
	}
	type access struct {
		count int
		last  sql.NullString
	}
	seen := make(map[int64]access, len(mems))
	now := formatTime(s.now().UTC())
	err := s.withTx(ctx, "record access", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE memories SET access_count = access_count + 1, last_accessed = ?
			 WHERE id IN (`+placeholders(len(ids))+`)`, append([]any{now}, ids...)...); err != nil {
			return err
		}
		rows, err := tx.QueryContext(ctx,
			`SELECT id, access_count, last_accessed FROM memories WHERE id IN (`+placeholders(len(ids))+`)`, ids...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id int64
			var a access
			if err := rows.Scan(&id, &a.count, &a.last); err != nil {
				return err
			}
			seen[id] = a
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	out := mems[:0]
	for _, m := range mems {
		a, ok := seen[m.ID]
		if !ok {
			continue
		}
		m.AccessCount = a.count
		if a.last.Valid {
			t := parseTime(a.last.String)
			m.LastAccessed = &t
		}
		out = append(out, m)
	}
	return out, nil
}

func keywordScore(content string, keywords []string) int {
	if len(keywords) == 0 {
		return 0
	}
	lower := strings.ToLower(content)
	score := 0
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			score++
		}
	}
	return score
}

func allASCII(terms []string) bool {
	for _, t := range terms {
		for i := 0; i < len(t); i++ {
			if t[i] >= 0x80 {
				return false
			}
		}
	}
	return true
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

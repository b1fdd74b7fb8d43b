// Package corpus implements corpus search (C2): querying the indexed
// article table in either FTS or substring mode, with deterministic
// pagination and exact totals.
package corpus

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/newsintel/searchcore/internal/query"
	"github.com/newsintel/searchcore/internal/storage"
)

// Page is one page of Article results plus the exact total element count,
// letting the caller decide whether to continue paginating.
type Page struct {
	Elements      []storage.Article
	PageIndex     int
	PageSize      int
	TotalElements int
}

// Searcher runs NormalizedQuery searches against the Postgres-backed
// article table.
type Searcher struct {
	conn   *storage.Connection
	logger *slog.Logger
}

// NewSearcher wraps conn as a corpus Searcher.
func NewSearcher(conn *storage.Connection) *Searcher {
	return &Searcher{
		conn:   conn,
		logger: slog.New(slog.NewJSONHandler(os.Stdout, nil)),
	}
}

const defaultPageSize = 20

// Search runs query.NormalizedQuery q against the corpus and returns the
// requested page. pageIndex is zero-based; pageSize<=0 falls back to
// defaultPageSize.
func (s *Searcher) Search(ctx context.Context, q query.NormalizedQuery, pageIndex, pageSize int) (Page, error) {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	if pageIndex < 0 {
		pageIndex = 0
	}

	start := time.Now()

	sqlText, args := buildSearchQuery(q, pageIndex, pageSize)

	rows, err := s.conn.QueryContext(ctx, sqlText, args...)
	if err != nil {
		s.logger.Error("corpus search query failed",
			slog.Any("error", err),
			slog.String("mode", string(q.Mode)))

		return Page{}, fmt.Errorf("%w: %w", storage.ErrNotFound, err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var (
		elements []storage.Article
		total    int
	)

	for rows.Next() {
		var article storage.Article

		if err := rows.Scan(
			&article.ID, &article.Title, &article.Content, &article.URL,
			&article.PublishedDate, &article.CollectedAt,
			&article.Signals.Reliability, &article.Signals.Sentiment,
			&article.Signals.Bias, &article.Signals.CommunityScore,
			&total,
		); err != nil {
			return Page{}, fmt.Errorf("failed to scan article row: %w", err)
		}

		elements = append(elements, article)
	}

	if err := rows.Err(); err != nil {
		return Page{}, fmt.Errorf("error iterating article rows: %w", err)
	}

	if elements == nil {
		elements = []storage.Article{}
	}

	s.logger.Debug("corpus search completed",
		slog.Duration("duration", time.Since(start)),
		slog.String("mode", string(q.Mode)),
		slog.Int("result_count", len(elements)),
		slog.Int("total", total))

	return Page{Elements: elements, PageIndex: pageIndex, PageSize: pageSize, TotalElements: total}, nil
}

// buildSearchQuery assembles the SQL text and positional args for q,
// branching on mode (spec.md §4.2): FTS mode ranks by relevance then
// recency; SUBSTRING mode ranks by recency only. Both use `id ASC` as the
// final deterministic tiebreak (SPEC_FULL.md §10).
func buildSearchQuery(q query.NormalizedQuery, pageIndex, pageSize int) (string, []interface{}) {
	var args []interface{}

	paramIndex := 1

	selectCols := `
		id, title, content, url, published_date, collected_at,
		reliability, sentiment, bias, community_score,
		COUNT(*) OVER() AS total_count
	`

	var (
		fromClause  string
		orderClause string
	)

	switch q.Mode {
	case query.ModeFTS:
		args = append(args, q.Q)
		fromClause = fmt.Sprintf(
			"FROM article WHERE search_vector @@ plainto_tsquery('simple', $%d)",
			paramIndex,
		)
		paramIndex++
		orderClause = "ORDER BY ts_rank(search_vector, plainto_tsquery('simple', $1)) DESC, " +
			"coalesce(published_date, collected_at) DESC, id ASC"
	default: // query.ModeSubstring
		args = append(args, "%"+q.Q+"%")
		fromClause = fmt.Sprintf(
			"FROM article WHERE (title ILIKE $%d OR content ILIKE $%d)",
			paramIndex, paramIndex,
		)
		paramIndex++
		orderClause = "ORDER BY coalesce(published_date, collected_at) DESC, id ASC"
	}

	dateFilter, dateArgs, nextParam := buildDateFilter(q.Since, q.Until, paramIndex)
	args = append(args, dateArgs...)
	paramIndex = nextParam

	sqlText := "SELECT " + selectCols + " " + fromClause + dateFilter + " " + orderClause
	sqlText += fmt.Sprintf(" LIMIT $%d OFFSET $%d", paramIndex, paramIndex+1)
	args = append(args, pageSize, pageIndex*pageSize)

	return sqlText, args
}

// buildDateFilter implements spec.md §4.2's date filter: published_date
// within range, OR published_date is null and collected_at within range
// (collected_at is the fallback truth when an article has no publish
// date). Returns an empty string if neither bound is set.
func buildDateFilter(since, until *time.Time, paramIndex int) (string, []interface{}, int) {
	if since == nil && until == nil {
		return "", nil, paramIndex
	}

	var args []interface{}

	publishedCond := "published_date IS NOT NULL"
	collectedCond := "published_date IS NULL"

	if since != nil {
		publishedCond += fmt.Sprintf(" AND published_date >= $%d", paramIndex)
		collectedCond += fmt.Sprintf(" AND collected_at >= $%d", paramIndex)
		args = append(args, *since)
		paramIndex++
	}

	if until != nil {
		publishedCond += fmt.Sprintf(" AND published_date <= $%d", paramIndex)
		collectedCond += fmt.Sprintf(" AND collected_at <= $%d", paramIndex)
		args = append(args, *until)
		paramIndex++
	}

	return fmt.Sprintf(" AND ((%s) OR (%s))", publishedCond, collectedCond), args, paramIndex
}

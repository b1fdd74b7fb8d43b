// Package query implements the search query normalizer (C1): it turns a
// raw query string plus an optional window/date range into a
// NormalizedQuery that downstream corpus search and source fan-out
// consume, deciding up front between substring and full-text search modes.
package query

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Mode selects how the corpus matches a normalized query.
type Mode string

const (
	// ModeSubstring is used for very short queries (≤2 runes) where FTS
	// tokenization would be meaningless; matching is case-insensitive
	// contains over title and content.
	ModeSubstring Mode = "SUBSTRING"
	// ModeFTS is used for queries of 3 or more runes; matching uses a
	// plain, operator-free full-text search tokenization.
	ModeFTS Mode = "FTS"
)

// substringModeMaxRunes is the inclusive upper bound on query length for
// ModeSubstring; spec.md §4.1 fixes it at 2.
const substringModeMaxRunes = 2

// ErrInvalidQuery is returned for an empty (post-trim) query or an
// inverted explicit date range.
var ErrInvalidQuery = errors.New("invalid query")

// NormalizedQuery is the validated, mode-resolved form of a search
// request, consumed by C2 (corpus search) and C3 (source fan-out).
type NormalizedQuery struct {
	Q     string
	Since *time.Time
	Until *time.Time
	Mode  Mode
}

// windowUnitDays is the unit suffix of window tokens of the form "<N>d"
// (e.g. "1d", "7d", "30d"), the only shape spec.md §4.1 names.
var windowUnitDays = "d"

// Normalize validates and normalizes raw to a NormalizedQuery.
//
// Precedence for the lower/upper bound: an explicit [startDate,endDate]
// wins over a window token; if neither is given, the query has no lower
// bound (until defaults to nil, meaning "through now" is left to the
// caller/storage layer).
func Normalize(raw string, window string, startDate, endDate *time.Time) (NormalizedQuery, error) {
	q := strings.TrimSpace(raw)
	if q == "" {
		return NormalizedQuery{}, fmt.Errorf("%w: query cannot be empty", ErrInvalidQuery)
	}

	if startDate != nil && endDate != nil && startDate.After(*endDate) {
		return NormalizedQuery{}, fmt.Errorf("%w: startDate %s is after endDate %s", ErrInvalidQuery, startDate, endDate)
	}

	since, until, err := resolveWindow(window, startDate, endDate)
	if err != nil {
		return NormalizedQuery{}, err
	}

	mode := ModeFTS
	if len([]rune(q)) <= substringModeMaxRunes {
		mode = ModeSubstring
	}

	return NormalizedQuery{
		Q:     q,
		Since: since,
		Until: until,
		Mode:  mode,
	}, nil
}

// resolveWindow implements the precedence rule: explicit range wins; else
// a window token resolves to now-N days through now; else no bound.
func resolveWindow(window string, startDate, endDate *time.Time) (since, until *time.Time, err error) {
	if startDate != nil || endDate != nil {
		return startDate, endDate, nil
	}

	window = strings.TrimSpace(window)
	if window == "" {
		return nil, nil, nil
	}

	days, err := parseWindowDays(window)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: invalid window token %q: %w", ErrInvalidQuery, window, err)
	}

	now := time.Now().UTC()
	since = timePtr(now.AddDate(0, 0, -days))

	return since, nil, nil
}

// parseWindowDays parses an "Nd" token into N. Only the day unit is
// defined by spec.md §4.1.
func parseWindowDays(token string) (int, error) {
	if !strings.HasSuffix(token, windowUnitDays) {
		return 0, fmt.Errorf("unsupported window unit in %q, expected suffix %q", token, windowUnitDays)
	}

	numeric := strings.TrimSuffix(token, windowUnitDays)

	days, err := strconv.Atoi(numeric)
	if err != nil || days <= 0 {
		return 0, fmt.Errorf("window token %q must be a positive integer followed by %q", token, windowUnitDays)
	}

	return days, nil
}

func timePtr(t time.Time) *time.Time {
	return &t
}

package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_EmptyQueryFails(t *testing.T) {
	_, err := Normalize("   ", "", nil, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestNormalize_ShortQueryUsesSubstringMode(t *testing.T) {
	for _, q := range []string{"a", "ai"} {
		nq, err := Normalize(q, "", nil, nil)

		require.NoError(t, err)
		assert.Equal(t, ModeSubstring, nq.Mode)
		assert.Equal(t, q, nq.Q)
	}
}

func TestNormalize_LongQueryUsesFTSMode(t *testing.T) {
	nq, err := Normalize("bitcoin", "7d", nil, nil)

	require.NoError(t, err)
	assert.Equal(t, ModeFTS, nq.Mode)
}

func TestNormalize_TrimsWhitespace(t *testing.T) {
	nq, err := Normalize("  bitcoin  ", "", nil, nil)

	require.NoError(t, err)
	assert.Equal(t, "bitcoin", nq.Q)
}

func TestNormalize_WindowTokenResolvesToNMinusDays(t *testing.T) {
	before := time.Now().UTC()

	nq, err := Normalize("bitcoin", "7d", nil, nil)

	require.NoError(t, err)
	require.NotNil(t, nq.Since)
	assert.Nil(t, nq.Until)

	expectedFloor := before.AddDate(0, 0, -7).Add(-time.Minute)
	expectedCeil := time.Now().UTC().AddDate(0, 0, -7).Add(time.Minute)
	assert.True(t, nq.Since.After(expectedFloor) && nq.Since.Before(expectedCeil))
}

func TestNormalize_ExplicitRangeWinsOverWindow(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)

	nq, err := Normalize("bitcoin", "7d", &start, &end)

	require.NoError(t, err)
	require.NotNil(t, nq.Since)
	require.NotNil(t, nq.Until)
	assert.Equal(t, start, *nq.Since)
	assert.Equal(t, end, *nq.Until)
}

func TestNormalize_NoWindowOrRangeHasNoBound(t *testing.T) {
	nq, err := Normalize("bitcoin", "", nil, nil)

	require.NoError(t, err)
	assert.Nil(t, nq.Since)
	assert.Nil(t, nq.Until)
}

func TestNormalize_InvertedRangeFails(t *testing.T) {
	start := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := Normalize("bitcoin", "", &start, &end)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestNormalize_InvalidWindowTokenFails(t *testing.T) {
	_, err := Normalize("bitcoin", "banana", nil, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestNormalize_PunctuationOnlyQueryDoesNotError(t *testing.T) {
	// Query safety property (spec.md §8): ASCII punctuation must not raise
	// a syntax error; normalization itself never inspects FTS operators.
	nq, err := Normalize(`' " & | ! ( )`, "", nil, nil)

	require.NoError(t, err)
	assert.Equal(t, ModeFTS, nq.Mode)
}

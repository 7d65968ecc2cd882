package billingdate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNext(t *testing.T) {
	cases := []struct {
		name     string
		interval Interval
		count    int
		from     time.Time
		want     time.Time
	}{
		{"month", IntervalMonth, 1, date(2024, time.January, 15), date(2024, time.February, 15)},
		{"month clamps leap year", IntervalMonth, 1, date(2024, time.January, 31), date(2024, time.February, 29)},
		{"month clamps", IntervalMonth, 1, date(2023, time.January, 31), date(2023, time.February, 28)},
		{"three months clamps", IntervalMonth, 3, date(2023, time.November, 30), date(2024, time.February, 29)},
		{"two weeks", IntervalWeek, 2, date(2024, time.March, 1), date(2024, time.March, 15)},
		{"days cross month", IntervalDay, 5, date(2024, time.February, 27), date(2024, time.March, 3)},
		{"leap day year", IntervalYear, 1, date(2024, time.February, 29), date(2025, time.February, 28)},
		{"year wraps december", IntervalMonth, 1, date(2024, time.December, 31), date(2025, time.January, 31)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Next(tc.interval, tc.count, tc.from)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNextTruncatesToMidnightUTC(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*3600)
	from := time.Date(2024, time.January, 15, 3, 30, 0, 0, loc) // 2024-01-14T20:30Z

	got, err := Next(IntervalDay, 1, from)
	require.NoError(t, err)
	assert.Equal(t, date(2024, time.January, 15), got)
	assert.Equal(t, time.UTC, got.Location())
}

func TestNextRejectsBadPolicy(t *testing.T) {
	_, err := Next(Interval("FORTNIGHT"), 1, date(2024, time.January, 1))
	assert.ErrorIs(t, err, ErrInvalidInterval)

	_, err = Next(IntervalMonth, 0, date(2024, time.January, 1))
	assert.ErrorIs(t, err, ErrInvalidIntervalCount)
}

func TestRetry(t *testing.T) {
	now := time.Date(2024, time.May, 30, 18, 45, 0, 0, time.UTC)
	assert.Equal(t, date(2024, time.June, 2), Retry(now, 3))
}

func TestParseInterval(t *testing.T) {
	got, err := ParseInterval(" week ")
	require.NoError(t, err)
	assert.Equal(t, IntervalWeek, got)

	_, err = ParseInterval("hourly")
	assert.ErrorIs(t, err, ErrInvalidInterval)
}

package timeutils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestNextOccurrence_Daily(t *testing.T) {
	tpl := at("2024-01-01T09:30:45Z")

	next, err := NextOccurrence(Daily, nil, tpl, at("2024-03-10T08:00:00Z"), time.UTC)
	require.NoError(t, err)
	assert.Equal(t, at("2024-03-10T09:30:00Z"), next)

	next, err = NextOccurrence(Daily, nil, tpl, at("2024-03-10T09:30:00Z"), time.UTC)
	require.NoError(t, err)
	assert.Equal(t, at("2024-03-11T09:30:00Z"), next, "an exact match is not strictly after")
}

func TestNextOccurrence_Weekly(t *testing.T) {
	tpl := at("2024-01-01T09:00:00Z")
	// 2024-06-03 is a Monday
	cases := []struct {
		after string
		want  string
	}{
		{"2024-06-02T12:00:00Z", "2024-06-03T09:00:00Z"},
		{"2024-06-03T09:00:00Z", "2024-06-05T09:00:00Z"},
		{"2024-06-05T10:00:00Z", "2024-06-10T09:00:00Z"},
		{"2024-06-03T08:59:00Z", "2024-06-03T09:00:00Z"},
	}
	for _, c := range cases {
		next, err := NextOccurrence(Weekly, []int{1, 3}, tpl, at(c.after), time.UTC)
		require.NoError(t, err)
		assert.Equal(t, at(c.want), next, "after %s", c.after)
	}
}

func TestNextOccurrence_WeeklySameDayNextWeek(t *testing.T) {
	tpl := at("2024-01-01T09:00:00Z")
	next, err := NextOccurrence(Weekly, []int{1}, tpl, at("2024-06-03T10:00:00Z"), time.UTC)
	require.NoError(t, err)
	assert.Equal(t, at("2024-06-10T09:00:00Z"), next)
}

func TestNextOccurrence_WeeklyRejectsBadDays(t *testing.T) {
	_, err := NextOccurrence(Weekly, nil, time.Now(), time.Now(), time.UTC)
	assert.Error(t, err)
	_, err = NextOccurrence(Weekly, []int{7}, time.Now(), time.Now(), time.UTC)
	assert.Error(t, err)
}

func TestNextOccurrence_MonthlyClampsShortMonths(t *testing.T) {
	tpl := at("2024-01-31T18:00:00Z")

	next, err := NextOccurrence(Monthly, nil, tpl, at("2024-02-01T00:00:00Z"), time.UTC)
	require.NoError(t, err)
	assert.Equal(t, at("2024-02-29T18:00:00Z"), next)

	next, err = NextOccurrence(Monthly, nil, tpl, next, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, at("2024-03-31T18:00:00Z"), next)

	next, err = NextOccurrence(Monthly, nil, tpl, next, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, at("2024-04-30T18:00:00Z"), next)
}

func TestNextOccurrence_UsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	tpl := time.Date(2024, 1, 1, 9, 0, 0, 0, loc)

	next, err := NextOccurrence(Daily, nil, tpl, at("2024-03-10T13:00:00Z"), loc)
	require.NoError(t, err)
	assert.Equal(t, at("2024-03-10T14:00:00Z"), next.UTC())
}

func TestNextOccurrence_UnknownType(t *testing.T) {
	_, err := NextOccurrence("yearly", nil, time.Now(), time.Now(), time.UTC)
	assert.Error(t, err)
}

func TestParseRecurrenceDays(t *testing.T) {
	days, err := ParseRecurrenceDays(" 1, 3,1 ")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, days)

	_, err = ParseRecurrenceDays("1,x")
	assert.Error(t, err)
	_, err = ParseRecurrenceDays("9")
	assert.Error(t, err)

	days, err = ParseRecurrenceDays("")
	require.NoError(t, err)
	assert.Nil(t, days)
}

package money

import (
	"testing"

	"github.com/cockroachdb/apd/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(t *testing.T, s string) *apd.Decimal {
	t.Helper()
	d, err := Parse(s)
	require.NoError(t, err)
	return d
}

func TestSum(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		total, err := Sum()
		require.NoError(t, err)
		assert.True(t, total.IsZero())
	})

	t.Run("single", func(t *testing.T) {
		total, err := Sum(dec(t, "10.50"))
		require.NoError(t, err)
		assert.Equal(t, "10.50", Format(total))
	})

	t.Run("no float drift", func(t *testing.T) {
		total, err := Sum(dec(t, "1.01"), dec(t, "2.02"), dec(t, "3.03"))
		require.NoError(t, err)
		assert.Equal(t, 0, total.Cmp(dec(t, "6.06")))

		total, err = Sum(dec(t, "0.1"), dec(t, "0.2"))
		require.NoError(t, err)
		assert.Equal(t, "0.3", Format(total))
	})
}

func TestProgressPercent(t *testing.T) {
	tests := []struct {
		name        string
		contributed string
		target      string
		want        string
	}{
		{"half", "50", "100", "50"},
		{"capped at 100", "150", "100", "100"},
		{"zero target", "50", "0", "0"},
		{"zero contributed", "0", "100", "0"},
		{"rounded to cents", "1", "3", "33.33"},
		{"rounds half up", "2", "3", "66.67"},
		{"fully funded", "99.99", "99.99", "100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ProgressPercent(dec(t, tt.contributed), dec(t, tt.target))
			require.NoError(t, err)
			assert.Equal(t, 0, got.Cmp(dec(t, tt.want)), "got %s want %s", got, tt.want)
		})
	}
}

func TestPercentFloat(t *testing.T) {
	pct, err := ProgressPercent(dec(t, "1"), dec(t, "3"))
	require.NoError(t, err)
	assert.InDelta(t, 33.33, PercentFloat(pct), 1e-9)
}

func TestParse(t *testing.T) {
	for _, s := range []string{"0", "10", "10.5", "10.50", "10.500", "-3"} {
		_, err := Parse(s)
		assert.NoError(t, err, s)
	}

	for _, s := range []string{"", "abc", "NaN", "Infinity", "1e"} {
		_, err := Parse(s)
		assert.ErrorIs(t, err, ErrInvalidAmount, s)
	}

	_, err := Parse("10.505")
	assert.ErrorIs(t, err, ErrTooPrecise)
}

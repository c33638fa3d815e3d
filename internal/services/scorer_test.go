package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCVMatchRate(t *testing.T) {
	tests := []struct {
		name   string
		scores CVScores
		want   int
	}{
		{"all fives", CVScores{5, 5, 5, 5}, 100},
		{"all ones", CVScores{1, 1, 1, 1}, 20},
		{"all threes", CVScores{3, 3, 3, 3}, 60},
		// 4*40 + 3*25 + 5*20 + 2*15 = 365 -> 73
		{"mixed", CVScores{4, 3, 5, 2}, 73},
		// 4*40 + 4*25 + 3*20 + 4*15 = 380 -> 76
		{"floors", CVScores{4, 4, 3, 4}, 76},
		// 3*40 + 2*25 + 2*20 + 3*15 = 255 -> 51
		{"truncates fraction", CVScores{3, 2, 2, 3}, 51},
		{"clamps high", CVScores{9, 5, 5, 5}, 100},
		{"clamps low", CVScores{0, -3, 1, 1}, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CVMatchRate(tt.scores)
			assert.Equal(t, tt.want, got)
			assert.GreaterOrEqual(t, got, 0)
			assert.LessOrEqual(t, got, 100)
		})
	}
}

func TestProjectScore(t *testing.T) {
	tests := []struct {
		name   string
		scores ProjectScores
		want   float64
	}{
		{"all fives", ProjectScores{5, 5, 5, 5, 5}, 5},
		{"all ones", ProjectScores{1, 1, 1, 1, 1}, 1},
		// 4*30 + 4*25 + 5*20 + 3*15 + 4*10 = 405
		{"mixed", ProjectScores{4, 4, 5, 3, 4}, 4.05},
		// 3*30 + 4*25 + 3*20 + 4*15 + 2*10 = 330
		{"two decimals", ProjectScores{3, 4, 3, 4, 2}, 3.3},
		{"clamps out of range", ProjectScores{7, 5, 5, 5, 0}, 4.6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ProjectScore(tt.scores)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.GreaterOrEqual(t, got, 1.0)
			assert.LessOrEqual(t, got, 5.0)
		})
	}
}

func TestScoresInRange(t *testing.T) {
	assert.True(t, CVScores{1, 2, 3, 5}.InRange())
	assert.False(t, CVScores{1, 2, 3, 6}.InRange())
	assert.True(t, ProjectScores{1, 2, 3, 4, 5}.InRange())
	assert.False(t, ProjectScores{0, 2, 3, 4, 5}.InRange())
}

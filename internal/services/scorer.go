package services

// Sub-scores are on a 1-5 scale. Weights are integer percentages so the
// aggregates come out exact.
const (
	minSubScore = 1
	maxSubScore = 5
)

type CVScores struct {
	TechnicalSkillsMatch     int
	ExperienceLevel          int
	RelevantAchievements     int
	CulturalCollaborationFit int
}

type ProjectScores struct {
	Correctness   int
	CodeQuality   int
	Resilience    int
	Documentation int
	Creativity    int
}

var (
	cvWeights      = [4]int{40, 25, 20, 15}
	projectWeights = [5]int{30, 25, 20, 15, 10}
)

func (s CVScores) values() [4]int {
	return [4]int{s.TechnicalSkillsMatch, s.ExperienceLevel, s.RelevantAchievements, s.CulturalCollaborationFit}
}

func (s ProjectScores) values() [5]int {
	return [5]int{s.Correctness, s.CodeQuality, s.Resilience, s.Documentation, s.Creativity}
}

// InRange reports whether every sub-score is already within 1-5.
func (s CVScores) InRange() bool {
	for _, v := range s.values() {
		if v != clampSubScore(v) {
			return false
		}
	}
	return true
}

func (s ProjectScores) InRange() bool {
	for _, v := range s.values() {
		if v != clampSubScore(v) {
			return false
		}
	}
	return true
}

// CVMatchRate converts CV sub-scores to a whole percentage in [0, 100].
// All fives give 100 and all ones give 20.
func CVMatchRate(s CVScores) int {
	weighted := 0
	for i, v := range s.values() {
		weighted += clampSubScore(v) * cvWeights[i]
	}

	// weighted/100 is the 1-5 average; divided by 5 and scaled to percent.
	rate := weighted / 5
	return clampInt(rate, 0, 100)
}

// ProjectScore returns the weighted project score on the 1-5 scale with two decimals.
func ProjectScore(s ProjectScores) float64 {
	weighted := 0
	for i, v := range s.values() {
		weighted += clampSubScore(v) * projectWeights[i]
	}

	weighted = clampInt(weighted, minSubScore*100, maxSubScore*100)
	return float64(weighted) / 100
}

func clampSubScore(v int) int {
	return clampInt(v, minSubScore, maxSubScore)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"alfredoptarigan/cv-evaluator-pipeline/internal/apperrors"
)

const validCVResponse = `{
  "technicalSkillsMatch": 4,
  "experienceLevel": 3,
  "relevantAchievements": 5,
  "culturalCollaborationFit": 2,
  "feedback": "Strong backend skills with limited LLM exposure."
}`

const validProjectResponse = `{
  "correctness": 4,
  "codeQuality": 4,
  "resilience": 5,
  "documentation": 3,
  "creativity": 4,
  "feedback": "Retries and chaining are handled well."
}`

func newTestOrchestrator(t *testing.T, gen TextGenerator) *ModelOrchestrator {
	t.Helper()
	o, err := NewModelOrchestrator(gen, quietLogger())
	require.NoError(t, err)
	return o
}

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"upper json fence", "```JSON\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"text fence", "```text\nGood candidate.\n```", "Good candidate."},
		{"surrounding whitespace", "  \n```json {\"a\":1} ```  \n", `{"a":1}`},
		{"only fences", "```json\n```", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripCodeFences(tt.in))
		})
	}
}

func TestModelOrchestrator_EvaluateCV(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything, mock.MatchedBy(func(p string) bool {
		return len(p) > 0
	})).Return("```json\n"+validCVResponse+"\n```", nil).Once()

	o := newTestOrchestrator(t, gen)

	got, err := o.EvaluateCV(context.Background(), "cv text", "job description", "rubric")
	require.NoError(t, err)
	assert.Equal(t, CVScores{4, 3, 5, 2}, got.Scores)
	assert.Equal(t, "Strong backend skills with limited LLM exposure.", got.Feedback)
	gen.AssertExpectations(t)
}

func TestModelOrchestrator_PromptCarriesInputs(t *testing.T) {
	gen := &mockGenerator{}
	var prompt string
	gen.On("Generate", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { prompt = args.String(1) }).
		Return(validProjectResponse, nil).Once()

	o := newTestOrchestrator(t, gen)

	_, err := o.EvaluateProject(context.Background(), "REPORT-BODY", "RUBRIC-BODY")
	require.NoError(t, err)
	assert.Contains(t, prompt, "REPORT-BODY")
	assert.Contains(t, prompt, "RUBRIC-BODY")
	assert.Contains(t, prompt, "codeQuality")
}

func TestModelOrchestrator_EvaluateProject(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything, mock.Anything).Return(validProjectResponse, nil).Once()

	o := newTestOrchestrator(t, gen)

	got, err := o.EvaluateProject(context.Background(), "report", "rubric")
	require.NoError(t, err)
	assert.Equal(t, ProjectScores{4, 4, 5, 3, 4}, got.Scores)
	assert.Equal(t, "Retries and chaining are handled well.", got.Feedback)
}

func TestModelOrchestrator_RoundsFractionalScores(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything, mock.Anything).Return(`{
		"technicalSkillsMatch": 4.5,
		"experienceLevel": 3.2,
		"relevantAchievements": 5,
		"culturalCollaborationFit": 2,
		"feedback": "ok",
		"weighted_average": 3.9
	}`, nil).Once()

	o := newTestOrchestrator(t, gen)

	got, err := o.EvaluateCV(context.Background(), "cv", "jd", "rubric")
	require.NoError(t, err)
	assert.Equal(t, CVScores{5, 3, 5, 2}, got.Scores)
}

func TestModelOrchestrator_HugeScoresStayOnTheirSide(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything, mock.Anything).Return(`{
		"technicalSkillsMatch": 1e20,
		"experienceLevel": -1e20,
		"relevantAchievements": 7,
		"culturalCollaborationFit": 3,
		"feedback": "ok"
	}`, nil).Once()

	o := newTestOrchestrator(t, gen)

	got, err := o.EvaluateCV(context.Background(), "cv", "jd", "rubric")
	require.NoError(t, err)
	assert.Equal(t, CVScores{100, -100, 7, 3}, got.Scores)
	assert.False(t, got.Scores.InRange())
	assert.Equal(t, CVMatchRate(CVScores{5, 1, 5, 3}), CVMatchRate(got.Scores))
}

func TestModelOrchestrator_Errors(t *testing.T) {
	tests := []struct {
		name     string
		response string
		err      error
		code     apperrors.ErrorCode
	}{
		{"empty text", "", nil, apperrors.ErrCodeModelResponseEmpty},
		{"whitespace and fences only", "```json\n   \n```", nil, apperrors.ErrCodeModelResponseEmpty},
		{"not json", "The candidate is great.", nil, apperrors.ErrCodeModelResponseMalformed},
		{"missing field", `{"technicalSkillsMatch": 4, "feedback": "x"}`, nil, apperrors.ErrCodeModelResponseMalformed},
		{"wrong type", `{"technicalSkillsMatch": "four", "experienceLevel": 3, "relevantAchievements": 5, "culturalCollaborationFit": 2, "feedback": "x"}`, nil, apperrors.ErrCodeModelResponseMalformed},
		{"empty feedback", `{"technicalSkillsMatch": 4, "experienceLevel": 3, "relevantAchievements": 5, "culturalCollaborationFit": 2, "feedback": ""}`, nil, apperrors.ErrCodeModelResponseMalformed},
		{"array", `[1, 2, 3]`, nil, apperrors.ErrCodeModelResponseMalformed},
		{"trailing text", validCVResponse + " hope this helps", nil, apperrors.ErrCodeModelResponseMalformed},
		{"transport error", "", errors.New("connection reset"), apperrors.ErrCodeTransientInfra},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &mockGenerator{}
			gen.On("Generate", mock.Anything, mock.Anything).Return(tt.response, tt.err).Once()

			o := newTestOrchestrator(t, gen)

			got, err := o.EvaluateCV(context.Background(), "cv", "jd", "rubric")
			require.Error(t, err)
			assert.Nil(t, got)
			assert.Equal(t, tt.code, apperrors.GetCode(err))
		})
	}
}

func TestModelOrchestrator_Summarize(t *testing.T) {
	gen := &mockGenerator{}
	var prompt string
	gen.On("Generate", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { prompt = args.String(1) }).
		Return("```text\nSolid backend engineer. Needs more LLM work. Recommended.\n```", nil).Once()

	o := newTestOrchestrator(t, gen)

	summary, err := o.Summarize(context.Background(), 73, "cv feedback", 4.05, "project feedback")
	require.NoError(t, err)
	assert.Equal(t, "Solid backend engineer. Needs more LLM work. Recommended.", summary)
	assert.Contains(t, prompt, "73%")
	assert.Contains(t, prompt, "4.05/5")
}

func TestModelOrchestrator_SummarizeEmpty(t *testing.T) {
	gen := &mockGenerator{}
	gen.On("Generate", mock.Anything, mock.Anything).Return("   ", nil).Once()

	o := newTestOrchestrator(t, gen)

	_, err := o.Summarize(context.Background(), 73, "a", 4.05, "b")
	assert.Equal(t, apperrors.ErrCodeModelResponseEmpty, apperrors.GetCode(err))
}

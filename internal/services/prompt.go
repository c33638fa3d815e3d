package services

import (
	"fmt"
	"strings"
)

type PromptBuilder struct{}

func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{}
}

// BuildCVEvaluationPrompt creates prompt for CV evaluation
func (pb *PromptBuilder) BuildCVEvaluationPrompt(cvText, jobDescription, scoringRubric string) string {
	return fmt.Sprintf(`You are an expert HR recruiter evaluating a candidate's CV against a job vacancy.

CANDIDATE CV:
%s

JOB DESCRIPTION:
%s

SCORING RUBRIC:
%s

Your task is to evaluate the candidate's CV against the job description using the CV Match Evaluation rubric.

1. Score the candidate on a scale of 1-5 (whole numbers only) for each parameter:
   - technicalSkillsMatch (Weight: 40%%) - Alignment with job requirements (backend, databases, APIs, cloud, AI/LLM)
   - experienceLevel (Weight: 25%%) - Years of experience and project complexity
   - relevantAchievements (Weight: 20%%) - Impact of past work (scaling, performance, adoption)
   - culturalCollaborationFit (Weight: 15%%) - Communication, learning mindset, teamwork/leadership
2. Provide a concise overall justification for the scores in the "feedback" field.
3. Return ONLY a valid JSON object. Do not include any explanatory text or markdown code fences.

Output format:
{
  "technicalSkillsMatch": <1-5>,
  "experienceLevel": <1-5>,
  "relevantAchievements": <1-5>,
  "culturalCollaborationFit": <1-5>,
  "feedback": "<3-5 sentences on strengths and gaps>"
}`,
		strings.TrimSpace(cvText), strings.TrimSpace(jobDescription), strings.TrimSpace(scoringRubric))
}

// BuildProjectEvaluationPrompt creates prompt for project report evaluation
func (pb *PromptBuilder) BuildProjectEvaluationPrompt(projectText, scoringRubric string) string {
	return fmt.Sprintf(`You are an expert technical evaluator assessing a candidate's project report for a backend take-home assignment.

CANDIDATE'S PROJECT REPORT:
%s

SCORING RUBRIC:
%s

Your task is to evaluate the project report using the Project Deliverable Evaluation rubric.

1. Score the project on a scale of 1-5 (whole numbers only) for each parameter:
   - correctness (Weight: 30%%) - Implements prompt design, LLM chaining, RAG context injection
   - codeQuality (Weight: 25%%) - Clean, modular, reusable, tested
   - resilience (Weight: 20%%) - Handles long jobs, retries, randomness, API failures
   - documentation (Weight: 15%%) - README clarity, setup instructions, trade-off explanations
   - creativity (Weight: 10%%) - Extra features beyond requirements
2. Provide a concise overall justification for the scores in the "feedback" field.
3. Return ONLY a valid JSON object. Do not include any explanatory text or markdown code fences.

Output format:
{
  "correctness": <1-5>,
  "codeQuality": <1-5>,
  "resilience": <1-5>,
  "documentation": <1-5>,
  "creativity": <1-5>,
  "feedback": "<3-5 sentences on what was done well and what could be improved>"
}`,
		strings.TrimSpace(projectText), strings.TrimSpace(scoringRubric))
}

// BuildFinalSummaryPrompt creates prompt for overall summary
func (pb *PromptBuilder) BuildFinalSummaryPrompt(cvMatchRate int, cvFeedback string, projectScore float64, projectFeedback string) string {
	return fmt.Sprintf(`You are an HR evaluation specialist combining a CV evaluation and a project evaluation into one overall summary.

CV EVALUATION RESULTS:
- Match Rate: %d%%
- Feedback: %s

PROJECT EVALUATION RESULTS:
- Score: %.2f/5
- Feedback: %s

Write an overall summary of exactly 3 to 5 sentences that clearly covers:
1. Strengths of the candidate
2. Gaps or areas for improvement
3. A recommendation

Return ONLY the summary text. No JSON, no markdown, no code fences.`,
		cvMatchRate, cvFeedback, projectScore, projectFeedback)
}

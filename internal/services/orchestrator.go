package services

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"regexp"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/sirupsen/logrus"

	"alfredoptarigan/cv-evaluator-pipeline/internal/apperrors"
)

const cvEvaluationSchema = `{
  "type": "object",
  "required": ["technicalSkillsMatch", "experienceLevel", "relevantAchievements", "culturalCollaborationFit", "feedback"],
  "properties": {
    "technicalSkillsMatch": {"type": "number"},
    "experienceLevel": {"type": "number"},
    "relevantAchievements": {"type": "number"},
    "culturalCollaborationFit": {"type": "number"},
    "feedback": {"type": "string", "minLength": 1}
  }
}`

const projectEvaluationSchema = `{
  "type": "object",
  "required": ["correctness", "codeQuality", "resilience", "documentation", "creativity", "feedback"],
  "properties": {
    "correctness": {"type": "number"},
    "codeQuality": {"type": "number"},
    "resilience": {"type": "number"},
    "documentation": {"type": "number"},
    "creativity": {"type": "number"},
    "feedback": {"type": "string", "minLength": 1}
  }
}`

var (
	openingFence = regexp.MustCompile("(?i)^```(json|text)?\\s*")
	closingFence = regexp.MustCompile("\\s*```$")
)

type CVEvaluation struct {
	Scores   CVScores
	Feedback string
}

type ProjectEvaluation struct {
	Scores   ProjectScores
	Feedback string
}

type cvEvaluationResponse struct {
	TechnicalSkillsMatch     float64 `json:"technicalSkillsMatch"`
	ExperienceLevel          float64 `json:"experienceLevel"`
	RelevantAchievements     float64 `json:"relevantAchievements"`
	CulturalCollaborationFit float64 `json:"culturalCollaborationFit"`
	Feedback                 string  `json:"feedback"`
}

type projectEvaluationResponse struct {
	Correctness   float64 `json:"correctness"`
	CodeQuality   float64 `json:"codeQuality"`
	Resilience    float64 `json:"resilience"`
	Documentation float64 `json:"documentation"`
	Creativity    float64 `json:"creativity"`
	Feedback      string  `json:"feedback"`
}

// Orchestrator runs the three model stages of an evaluation.
type Orchestrator interface {
	EvaluateCV(ctx context.Context, cvText, jobDescription, rubric string) (*CVEvaluation, error)
	EvaluateProject(ctx context.Context, projectText, rubric string) (*ProjectEvaluation, error)
	Summarize(ctx context.Context, cvMatchRate int, cvFeedback string, projectScore float64, projectFeedback string) (string, error)
}

// ModelOrchestrator builds prompts, calls the generator once per stage and
// validates what comes back. It never retries; a bad answer fails the stage.
type ModelOrchestrator struct {
	generator     TextGenerator
	promptBuilder *PromptBuilder
	cvSchema      *jsonschema.Schema
	projectSchema *jsonschema.Schema
	log           logrus.FieldLogger
}

func NewModelOrchestrator(generator TextGenerator, log logrus.FieldLogger) (*ModelOrchestrator, error) {
	cvSchema, err := compileSchema("cv_evaluation.json", cvEvaluationSchema)
	if err != nil {
		return nil, err
	}
	projectSchema, err := compileSchema("project_evaluation.json", projectEvaluationSchema)
	if err != nil {
		return nil, err
	}

	return &ModelOrchestrator{
		generator:     generator,
		promptBuilder: NewPromptBuilder(),
		cvSchema:      cvSchema,
		projectSchema: projectSchema,
		log:           log.WithField("component", "orchestrator"),
	}, nil
}

func compileSchema(name, schema string) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(schema)); err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeInternal, "add schema %s", name)
	}
	compiled, err := compiler.Compile(name)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrCodeInternal, "compile schema %s", name)
	}
	return compiled, nil
}

// EvaluateCV implements Orchestrator.
func (o *ModelOrchestrator) EvaluateCV(ctx context.Context, cvText, jobDescription, rubric string) (*CVEvaluation, error) {
	prompt := o.promptBuilder.BuildCVEvaluationPrompt(cvText, jobDescription, rubric)

	var resp cvEvaluationResponse
	if err := o.generateJSON(ctx, "cv_evaluation", prompt, o.cvSchema, &resp); err != nil {
		return nil, err
	}

	return &CVEvaluation{
		Scores: CVScores{
			TechnicalSkillsMatch:     roundScore(resp.TechnicalSkillsMatch),
			ExperienceLevel:          roundScore(resp.ExperienceLevel),
			RelevantAchievements:     roundScore(resp.RelevantAchievements),
			CulturalCollaborationFit: roundScore(resp.CulturalCollaborationFit),
		},
		Feedback: strings.TrimSpace(resp.Feedback),
	}, nil
}

// EvaluateProject implements Orchestrator.
func (o *ModelOrchestrator) EvaluateProject(ctx context.Context, projectText, rubric string) (*ProjectEvaluation, error) {
	prompt := o.promptBuilder.BuildProjectEvaluationPrompt(projectText, rubric)

	var resp projectEvaluationResponse
	if err := o.generateJSON(ctx, "project_evaluation", prompt, o.projectSchema, &resp); err != nil {
		return nil, err
	}

	return &ProjectEvaluation{
		Scores: ProjectScores{
			Correctness:   roundScore(resp.Correctness),
			CodeQuality:   roundScore(resp.CodeQuality),
			Resilience:    roundScore(resp.Resilience),
			Documentation: roundScore(resp.Documentation),
			Creativity:    roundScore(resp.Creativity),
		},
		Feedback: strings.TrimSpace(resp.Feedback),
	}, nil
}

// Summarize implements Orchestrator. The answer is plain text, not JSON.
func (o *ModelOrchestrator) Summarize(ctx context.Context, cvMatchRate int, cvFeedback string, projectScore float64, projectFeedback string) (string, error) {
	prompt := o.promptBuilder.BuildFinalSummaryPrompt(cvMatchRate, cvFeedback, projectScore, projectFeedback)

	text, err := o.generate(ctx, "summary", prompt)
	if err != nil {
		return "", err
	}
	return text, nil
}

func (o *ModelOrchestrator) generate(ctx context.Context, stage, prompt string) (string, error) {
	raw, err := o.generator.Generate(ctx, prompt)
	if err != nil {
		return "", apperrors.Wrapf(err, apperrors.ErrCodeTransientInfra, "%s: model call failed", stage)
	}

	text := StripCodeFences(raw)
	if text == "" {
		return "", apperrors.Newf(apperrors.ErrCodeModelResponseEmpty, "%s: no response text from model", stage)
	}
	return text, nil
}

func (o *ModelOrchestrator) generateJSON(ctx context.Context, stage, prompt string, schema *jsonschema.Schema, target any) error {
	text, err := o.generate(ctx, stage, prompt)
	if err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		o.log.WithField("stage", stage).WithError(err).Warn("❌ Model returned invalid JSON")
		return apperrors.Wrapf(err, apperrors.ErrCodeModelResponseMalformed, "%s: invalid JSON response from model", stage)
	}
	if dec.More() {
		return apperrors.Newf(apperrors.ErrCodeModelResponseMalformed, "%s: trailing content after JSON response", stage)
	}

	if err := schema.Validate(doc); err != nil {
		o.log.WithField("stage", stage).WithError(err).Warn("❌ Model JSON does not match the expected shape")
		return apperrors.Wrapf(err, apperrors.ErrCodeModelResponseMalformed, "%s: unexpected JSON shape from model", stage)
	}

	if err := json.Unmarshal([]byte(text), target); err != nil {
		return apperrors.Wrapf(err, apperrors.ErrCodeModelResponseMalformed, "%s: invalid JSON response from model", stage)
	}
	return nil
}

// StripCodeFences removes a leading ```, ```json or ```text fence and a
// trailing ``` fence, then trims whitespace.
func StripCodeFences(text string) string {
	text = strings.TrimSpace(text)
	text = openingFence.ReplaceAllString(text, "")
	text = closingFence.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// scoreBound keeps absurd model numbers convertible to int. Values past the
// 1-5 scale still come through so the evaluator can report and clamp them.
const scoreBound = 100

func roundScore(v float64) int {
	v = math.Max(-scoreBound, math.Min(scoreBound, v))
	return int(math.Round(v))
}

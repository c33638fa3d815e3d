package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"alfredoptarigan/cv-evaluator-pipeline/internal/apperrors"
	"alfredoptarigan/cv-evaluator-pipeline/internal/models"
	"alfredoptarigan/cv-evaluator-pipeline/internal/queue"
	"alfredoptarigan/cv-evaluator-pipeline/internal/repositories"
)

const defaultLease = 10 * time.Minute

// EvaluatorService executes one queued evaluation per delivery.
type EvaluatorService interface {
	EvaluateCandidate(ctx context.Context, job queue.Job) error
}

type EvaluatorOptions struct {
	Evaluations  repositories.EvaluationRepository
	Documents    repositories.DocumentRepository
	Extractor    DocumentExtractor
	References   ReferenceLookup
	Orchestrator Orchestrator

	// Lease bounds how long a delivery may keep an evaluation PROCESSING
	// before another delivery or the reaper may take it over.
	Lease time.Duration
	Log   logrus.FieldLogger
	Now   func() time.Time
}

type evaluatorService struct {
	evalRepo     repositories.EvaluationRepository
	docRepo      repositories.DocumentRepository
	extractor    DocumentExtractor
	references   ReferenceLookup
	orchestrator Orchestrator
	lease        time.Duration
	log          logrus.FieldLogger
	now          func() time.Time
}

func NewEvaluatorService(opts EvaluatorOptions) EvaluatorService {
	if opts.Lease <= 0 {
		opts.Lease = defaultLease
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}

	return &evaluatorService{
		evalRepo:     opts.Evaluations,
		docRepo:      opts.Documents,
		extractor:    opts.Extractor,
		references:   opts.References,
		orchestrator: opts.Orchestrator,
		lease:        opts.Lease,
		log:          opts.Log.WithField("component", "evaluator"),
		now:          opts.Now,
	}
}

// EvaluateCandidate claims the evaluation, runs the pipeline and records the
// outcome. A pipeline error is returned after FAILED is stored so the queue
// can redeliver; deliveries that have nothing to do return nil.
func (e *evaluatorService) EvaluateCandidate(ctx context.Context, job queue.Job) error {
	log := e.log.WithFields(logrus.Fields{
		"evaluation_id": job.EvaluationID,
		"delivery":      job.Delivery,
	})

	eval, err := e.claim(ctx, job.EvaluationID)
	if err != nil {
		switch {
		case apperrors.IsNotFound(err):
			log.Warn("⚠️  Evaluation no longer exists, dropping job")
			return nil
		case apperrors.IsConflict(err) && eval != nil:
			log.WithField("status", eval.Status).Info("⏭️  Evaluation not claimable, dropping duplicate delivery")
			return nil
		}
		return err
	}

	log = log.WithField("attempt", eval.AttemptsMade)
	log.Info("🔄 Starting evaluation")

	result, err := e.run(ctx, log, eval.ID)

	// The outcome is recorded even if the delivery context is already gone.
	writeCtx := context.WithoutCancel(ctx)

	if err != nil {
		log.WithError(err).WithField("code", apperrors.GetCode(err)).Error("❌ Evaluation failed")

		_, uerr := e.evalRepo.UpdateStatus(writeCtx, eval.ID,
			[]models.EvaluationStatus{models.StatusProcessing},
			repositories.StatusUpdate{Status: models.StatusFailed, ErrorMessage: err.Error()},
		)
		if uerr != nil {
			log.WithError(uerr).Error("❌ Failed to record evaluation failure")
		}
		return err
	}

	// FAILED is accepted too: the reaper may have expired our lease while the
	// model calls were still running.
	_, err = e.evalRepo.UpdateStatus(writeCtx, eval.ID,
		[]models.EvaluationStatus{models.StatusProcessing, models.StatusFailed},
		repositories.StatusUpdate{Status: models.StatusCompleted, Result: result},
	)
	if err != nil {
		if apperrors.IsConflict(err) {
			log.WithError(err).Warn("⚠️  Evaluation changed while running, result discarded")
			return nil
		}
		return err
	}

	log.WithFields(logrus.Fields{
		"cv_match_rate": result.CVMatchRate,
		"project_score": result.ProjectScore,
	}).Info("✅ Evaluation completed")
	return nil
}

// claim moves the evaluation to PROCESSING and counts the attempt in one
// conditional write. PROCESSING rows are only taken over once their lease expired.
func (e *evaluatorService) claim(ctx context.Context, id uuid.UUID) (*models.Evaluation, error) {
	now := e.now().UTC()
	leaseExpiresAt := now.Add(e.lease)

	return e.evalRepo.UpdateStatus(ctx, id,
		[]models.EvaluationStatus{models.StatusQueued, models.StatusFailed},
		repositories.StatusUpdate{
			Status:               models.StatusProcessing,
			IncrementAttempts:    true,
			LeaseExpiresAt:       &leaseExpiresAt,
			ReclaimExpiredBefore: &now,
		},
	)
}

type referenceSet struct {
	jobDescription string
	cvRubric       string
	projectRubric  string
}

func (e *evaluatorService) run(ctx context.Context, log logrus.FieldLogger, id uuid.UUID) (*repositories.EvaluationUpdateData, error) {
	docs, err := e.docRepo.FindByEvaluationID(ctx, id)
	if err != nil {
		return nil, err
	}

	eval := &models.Evaluation{ID: id, Files: docs}
	cvDoc, ok := eval.File(models.DocumentTypeCV)
	if !ok {
		return nil, apperrors.NotFoundf("evaluation %s has no CV file", id)
	}
	projectDoc, ok := eval.File(models.DocumentTypeProject)
	if !ok {
		return nil, apperrors.NotFoundf("evaluation %s has no project file", id)
	}

	log.Debug("📄 Extracting documents")
	cvText, err := e.extractor.Extract(ctx, cvDoc.FilePath)
	if err != nil {
		return nil, err
	}
	projectText, err := e.extractor.Extract(ctx, projectDoc.FilePath)
	if err != nil {
		return nil, err
	}

	refs, err := e.loadReferences(ctx)
	if err != nil {
		return nil, err
	}

	log.Debug("🤖 Evaluating CV and project")
	var (
		cvEval      *CVEvaluation
		projectEval *ProjectEvaluation
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		cvEval, err = e.orchestrator.EvaluateCV(gctx, cvText, refs.jobDescription, refs.cvRubric)
		return err
	})
	g.Go(func() error {
		var err error
		projectEval, err = e.orchestrator.EvaluateProject(gctx, projectText, refs.projectRubric)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if !cvEval.Scores.InRange() {
		log.WithField("scores", cvEval.Scores).Warn("⚠️  CV sub-scores out of range, clamping")
	}
	if !projectEval.Scores.InRange() {
		log.WithField("scores", projectEval.Scores).Warn("⚠️  Project sub-scores out of range, clamping")
	}

	cvMatchRate := CVMatchRate(cvEval.Scores)
	projectScore := ProjectScore(projectEval.Scores)

	log.Debug("🤖 Generating overall summary")
	summary, err := e.orchestrator.Summarize(ctx, cvMatchRate, cvEval.Feedback, projectScore, projectEval.Feedback)
	if err != nil {
		return nil, err
	}

	return &repositories.EvaluationUpdateData{
		CVMatchRate:     cvMatchRate,
		CVFeedback:      cvEval.Feedback,
		ProjectScore:    projectScore,
		ProjectFeedback: projectEval.Feedback,
		OverallSummary:  summary,
	}, nil
}

func (e *evaluatorService) loadReferences(ctx context.Context) (*referenceSet, error) {
	fetch := func(key string) (string, error) {
		text, err := e.references.GetByKey(ctx, key)
		if err != nil {
			return "", apperrors.Wrapf(err, apperrors.ErrCodeTransientInfra, "reference lookup %s", key)
		}
		if text == "" {
			return "", apperrors.Newf(apperrors.ErrCodeMissingReference, "reference document %s not found", key)
		}
		return text, nil
	}

	var (
		refs referenceSet
		err  error
	)
	if refs.jobDescription, err = fetch(ReferenceJobDescription); err != nil {
		return nil, err
	}
	if refs.cvRubric, err = fetch(ReferenceCVRubric); err != nil {
		return nil, err
	}
	if refs.projectRubric, err = fetch(ReferenceProjectRubric); err != nil {
		return nil, err
	}
	return &refs, nil
}

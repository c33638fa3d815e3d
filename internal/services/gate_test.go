package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"alfredoptarigan/cv-evaluator-pipeline/internal/apperrors"
	"alfredoptarigan/cv-evaluator-pipeline/internal/models"
	"alfredoptarigan/cv-evaluator-pipeline/internal/queue"
	"alfredoptarigan/cv-evaluator-pipeline/internal/repositories"
)

func jobFor(id uuid.UUID) interface{} {
	return mock.MatchedBy(func(job queue.Job) bool {
		return job.EvaluationID == id && job.Delivery == 1
	})
}

func TestSubmissionGate_RequestStart(t *testing.T) {
	tests := []struct {
		name     string
		status   models.EvaluationStatus
		attempts int
		admitted bool
	}{
		{"pending", models.StatusPending, 0, true},
		{"failed and exhausted", models.StatusFailed, models.MaxAttempts, true},
		{"failed with retries left", models.StatusFailed, 2, false},
		{"queued", models.StatusQueued, 0, false},
		{"processing", models.StatusProcessing, 1, false},
		{"completed", models.StatusCompleted, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := setupTestDB(t)
			q := &mockQueue{}
			gate := NewSubmissionGate(repositories.NewEvaluationRepository(db), q, quietLogger())

			eval := seedEvaluation(t, db, tt.status, tt.attempts)
			q.On("Enqueue", mock.Anything, jobFor(eval.ID)).Return(nil).Maybe()

			got, err := gate.RequestStart(context.Background(), eval.ID)

			if tt.admitted {
				require.NoError(t, err)
				assert.Equal(t, models.StatusQueued, got.Status)
				assert.Equal(t, tt.attempts, got.AttemptsMade, "admission does not count as an attempt")
				q.AssertNumberOfCalls(t, "Enqueue", 1)
				return
			}

			require.Error(t, err)
			assert.True(t, apperrors.IsConflict(err), "got %v", err)
			assert.Nil(t, got)
			assert.Equal(t, tt.status, reload(t, db, eval).Status)
			q.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
		})
	}
}

func TestSubmissionGate_NotFound(t *testing.T) {
	db := setupTestDB(t)
	q := &mockQueue{}
	gate := NewSubmissionGate(repositories.NewEvaluationRepository(db), q, quietLogger())

	_, err := gate.RequestStart(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
	q.AssertNotCalled(t, "Enqueue", mock.Anything, mock.Anything)
}

func TestSubmissionGate_EnqueueFailureReverts(t *testing.T) {
	db := setupTestDB(t)
	q := &mockQueue{}
	gate := NewSubmissionGate(repositories.NewEvaluationRepository(db), q, quietLogger())

	eval := seedEvaluation(t, db, models.StatusFailed, models.MaxAttempts)
	setColumns(t, db, eval, map[string]interface{}{"error_message": "model timed out"})
	q.On("Enqueue", mock.Anything, mock.Anything).Return(errors.New("broker unreachable"))

	_, err := gate.RequestStart(context.Background(), eval.ID)
	require.Error(t, err)
	assert.True(t, apperrors.IsTransient(err))

	got := reload(t, db, eval)
	assert.Equal(t, models.StatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "model timed out", *got.ErrorMessage)
	assert.True(t, got.Exhausted())
}

func TestSubmissionGate_ConcurrentRequestsEnqueueOnce(t *testing.T) {
	db := setupTestDB(t)
	q := &mockQueue{}
	gate := NewSubmissionGate(repositories.NewEvaluationRepository(db), q, quietLogger())

	eval := seedEvaluation(t, db, models.StatusPending, 0)
	q.On("Enqueue", mock.Anything, jobFor(eval.ID)).Return(nil)

	const callers = 5
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = gate.RequestStart(context.Background(), eval.ID)
		}(i)
	}
	wg.Wait()

	admitted := 0
	for _, err := range errs {
		if err == nil {
			admitted++
			continue
		}
		assert.True(t, apperrors.IsConflict(err), "got %v", err)
	}

	assert.Equal(t, 1, admitted)
	q.AssertNumberOfCalls(t, "Enqueue", 1)
	assert.Equal(t, models.StatusQueued, reload(t, db, eval).Status)
}

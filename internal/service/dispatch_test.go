package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finlens/invoice-inbox/internal/domain/model"
	apperrors "github.com/finlens/invoice-inbox/internal/errors"
)

func newDispatchService(jobs *stubJobRepo, queue *stubQueue) *DispatchService {
	return NewDispatchService(DispatchServiceOptions{Jobs: jobs, Queue: queue})
}

func TestDispatch_QueuesNewMessages(t *testing.T) {
	jobs := newStubJobRepo()
	queue := &stubQueue{}
	svc := newDispatchService(jobs, queue)

	res, err := svc.Dispatch(context.Background(), &DispatchRequest{
		MessageIDs: []string{"msg-1", "msg-2"},
		LabelAfter: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.QueuedCount)
	require.Len(t, res.Jobs, 2)
	assert.Equal(t, model.JobStatusQueued, res.Jobs[0].Status)

	require.Len(t, queue.items, 2)
	assert.Equal(t, "msg-1", queue.items[0].MessageID)
	assert.True(t, queue.items[0].LabelAfter)
	assert.Equal(t, res.Jobs[0].JobID, queue.items[0].JobID)
}

func TestDispatch_CollapsesDuplicateIDs(t *testing.T) {
	jobs := newStubJobRepo()
	queue := &stubQueue{}
	svc := newDispatchService(jobs, queue)

	res, err := svc.Dispatch(context.Background(), &DispatchRequest{
		MessageIDs: []string{"msg-1", "msg-1", " msg-1 "},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.QueuedCount)
	require.Len(t, res.Jobs, 1)
	assert.Len(t, queue.items, 1)
}

func TestDispatch_ReusesSuccessfulJob(t *testing.T) {
	jobs := newStubJobRepo()
	queue := &stubQueue{}
	svc := newDispatchService(jobs, queue)
	ctx := context.Background()

	first, err := svc.Dispatch(ctx, &DispatchRequest{MessageIDs: []string{"msg-done"}})
	require.NoError(t, err)
	jobID := first.Jobs[0].JobID

	_, err = jobs.MarkProcessing(ctx, jobID)
	require.NoError(t, err)
	_, err = jobs.MarkSucceeded(ctx, jobID, &model.JobResult{SummaryText: "ok"})
	require.NoError(t, err)

	// Re-dispatching the processed message returns the finished job and
	// queues nothing.
	second, err := svc.Dispatch(ctx, &DispatchRequest{MessageIDs: []string{"msg-done"}})
	require.NoError(t, err)
	assert.Equal(t, 0, second.QueuedCount)
	require.Len(t, second.Jobs, 1)
	assert.Equal(t, jobID, second.Jobs[0].JobID)
	assert.Equal(t, model.JobStatusSuccess, second.Jobs[0].Status)
	assert.Len(t, queue.items, 1)
}

func TestDispatch_Validation(t *testing.T) {
	svc := newDispatchService(newStubJobRepo(), &stubQueue{})
	ctx := context.Background()

	_, err := svc.Dispatch(ctx, nil)
	assert.True(t, apperrors.IsValidation(err))

	_, err = svc.Dispatch(ctx, &DispatchRequest{})
	assert.True(t, apperrors.IsValidation(err))

	_, err = svc.Dispatch(ctx, &DispatchRequest{MessageIDs: []string{"msg-1", "  "}})
	assert.True(t, apperrors.IsValidation(err))

	tooMany := make([]string, MaxDispatchBatch+1)
	for i := range tooMany {
		tooMany[i] = "msg"
	}
	_, err = svc.Dispatch(ctx, &DispatchRequest{MessageIDs: tooMany})
	assert.True(t, apperrors.IsValidation(err))
}

func TestDispatch_EnqueueFailureRollsBackJob(t *testing.T) {
	jobs := newStubJobRepo()
	queue := &stubQueue{enqueueErr: apperrors.Transient("redis down")}
	svc := newDispatchService(jobs, queue)

	_, err := svc.Dispatch(context.Background(), &DispatchRequest{MessageIDs: []string{"msg-1"}})
	require.Error(t, err)
	assert.True(t, apperrors.IsTransient(err))

	// The rolled-back job must not block a later dispatch.
	listed, err := jobs.List(context.Background(), model.JobListOptions{MessageID: "msg-1"})
	require.NoError(t, err)
	assert.Empty(t, listed)
}

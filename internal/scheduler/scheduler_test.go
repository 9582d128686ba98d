package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diarybot/diarybot/internal/testutil"
)

func TestScheduler_RegisterAndRunNow(t *testing.T) {
	s, err := New(testutil.NewTestLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Stop() })

	calls := 0
	require.NoError(t, s.RegisterTask(TaskConfig{
		ID:   "count",
		Name: "Count",
		Cron: "*/5 * * * *",
		Func: func(ctx context.Context) error {
			_, hasDeadline := ctx.Deadline()
			assert.True(t, hasDeadline)
			calls++
			return nil
		},
	}))

	require.NoError(t, s.RunNow("count"))
	require.NoError(t, s.RunNow("count"))
	assert.Equal(t, 2, calls)

	tasks := s.ListTasks()
	require.Len(t, tasks, 1)
	assert.Equal(t, 2, tasks[0].RunCount)
	assert.NotNil(t, tasks[0].LastRun)
}

func TestScheduler_Errors(t *testing.T) {
	s, err := New(testutil.NewTestLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Stop() })

	boom := errors.New("boom")
	require.NoError(t, s.RegisterTask(TaskConfig{ID: "fail", Cron: "0 3 * * *", Func: func(context.Context) error { return boom }}))

	assert.ErrorIs(t, s.RunNow("fail"), boom)
	assert.ErrorIs(t, s.RunNow("missing"), ErrTaskNotFound)

	err = s.RegisterTask(TaskConfig{ID: "fail", Cron: "0 3 * * *", Func: func(context.Context) error { return nil }})
	assert.Error(t, err)

	err = s.RegisterTask(TaskConfig{ID: "bad-cron", Cron: "not a cron", Func: func(context.Context) error { return nil }})
	assert.Error(t, err)

	err = s.RegisterTask(TaskConfig{ID: "no-func", Cron: "0 3 * * *"})
	assert.Error(t, err)
}

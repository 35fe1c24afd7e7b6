package async

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap_AllSucceed(t *testing.T) {
	keys := []string{"a", "b", "c"}

	results := Map(context.Background(), keys, func(_ context.Context, key string) (string, error) {
		return key + "-done", nil
	})

	require.Len(t, results, 3)
	for _, key := range keys {
		assert.NoError(t, results[key].Err)
		assert.Equal(t, key+"-done", results[key].Value)
	}
}

func TestMap_FailureIsolated(t *testing.T) {
	boom := errors.New("boom")

	results := Map(context.Background(), []string{"good", "bad"}, func(_ context.Context, key string) (int, error) {
		if key == "bad" {
			return 0, boom
		}
		return 42, nil
	})

	assert.NoError(t, results["good"].Err)
	assert.Equal(t, 42, results["good"].Value)
	assert.ErrorIs(t, results["bad"].Err, boom)
	assert.Zero(t, results["bad"].Value)
}

func TestMap_Empty(t *testing.T) {
	results := Map(context.Background(), nil, func(_ context.Context, _ string) (int, error) {
		t.Fatal("fn must not be called")
		return 0, nil
	})
	assert.Empty(t, results)
}

func TestMap_ManyKeys(t *testing.T) {
	var calls atomic.Int32
	keys := make([]string, 100)
	for i := range keys {
		keys[i] = strconv.Itoa(i)
	}

	results := Map(context.Background(), keys, func(_ context.Context, key string) (string, error) {
		calls.Add(1)
		return key, nil
	})

	assert.EqualValues(t, 100, calls.Load())
	require.Len(t, results, 100)
	for _, key := range keys {
		assert.Equal(t, key, results[key].Value)
	}
}

func TestRunParallel_Success(t *testing.T) {
	var count atomic.Int32

	var tasks []Task
	for i := 0; i < 3; i++ {
		tasks = append(tasks, Task{
			Name: fmt.Sprintf("task%d", i),
			Func: func(_ context.Context) error {
				count.Add(1)
				return nil
			},
		})
	}

	require.NoError(t, RunParallel(context.Background(), tasks))
	assert.EqualValues(t, 3, count.Load())
}

func TestRunParallel_EmptyTasks(t *testing.T) {
	assert.NoError(t, RunParallel(context.Background(), nil))
	assert.NoError(t, RunParallel(context.Background(), []Task{}))
}

func TestRunParallel_ErrorReported(t *testing.T) {
	failed := errors.New("task failed")

	tasks := []Task{
		{Name: "ok", Func: func(_ context.Context) error { return nil }},
		{Name: "failing", Func: func(_ context.Context) error { return failed }},
	}

	err := RunParallel(context.Background(), tasks)
	require.Error(t, err)
	assert.ErrorIs(t, err, failed)
	assert.Contains(t, err.Error(), "failing")
}

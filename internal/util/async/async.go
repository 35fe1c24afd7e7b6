// Package async provides utilities for parallel task execution.
//
// This package contains generic helpers for running multiple operations
// concurrently, collecting results, and handling errors. Provider-facing
// fan-out (placement policy creation, bulk instance creation, operation
// polling) goes through these helpers so that one failing call never
// aborts its siblings.
package async

import (
	"context"
	"fmt"
)

// Task represents an asynchronous operation with a name and function.
type Task struct {
	Name string
	Func func(context.Context) error
}

// Result holds the outcome of one keyed task. Err is nil on success;
// when Err is non-nil, Value is the zero value.
type Result[T any] struct {
	Value T
	Err   error
}

// Map runs fn once per key concurrently and returns one Result per key.
// Every key is attempted; a failing call is captured as that key's Result
// and does not affect the others.
func Map[T any](ctx context.Context, keys []string, fn func(ctx context.Context, key string) (T, error)) map[string]Result[T] {
	if len(keys) == 0 {
		return map[string]Result[T]{}
	}

	type keyed struct {
		key string
		res Result[T]
	}

	resultChan := make(chan keyed, len(keys))

	for _, key := range keys {
		go func() {
			value, err := fn(ctx, key)
			resultChan <- keyed{key: key, res: Result[T]{Value: value, Err: err}}
		}()
	}

	results := make(map[string]Result[T], len(keys))
	for range len(keys) {
		kr := <-resultChan
		results[kr.key] = kr.res
	}
	return results
}

// RunParallel executes multiple tasks in parallel and returns the first
// error encountered. All tasks are started concurrently, and the function
// waits for all to complete.
func RunParallel(ctx context.Context, tasks []Task) error {
	if len(tasks) == 0 {
		return nil
	}

	type result struct {
		name string
		err  error
	}

	resultChan := make(chan result, len(tasks))

	for _, task := range tasks {
		go func() {
			err := task.Func(ctx)
			resultChan <- result{name: task.Name, err: err}
		}()
	}

	var firstError error
	for range len(tasks) {
		res := <-resultChan
		if res.err != nil && firstError == nil {
			firstError = fmt.Errorf("%s: %w", res.name, res.err)
		}
	}

	return firstError
}

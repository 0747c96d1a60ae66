package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backend_fleetwatch/metrics"

	"go.uber.org/zap"
)

// ErrExhaustedRetries все попытки операции завершились ошибкой
var ErrExhaustedRetries = errors.New("все попытки исчерпаны")

// ExhaustedRetriesError содержит последнюю ошибку операции после исчерпания попыток
type ExhaustedRetriesError struct {
	Operation string
	Attempts  int
	Last      error
}

func (e *ExhaustedRetriesError) Error() string {
	return fmt.Sprintf("%s: %s (%d попыток), последняя ошибка: %v", e.Operation, ErrExhaustedRetries, e.Attempts, e.Last)
}

func (e *ExhaustedRetriesError) Unwrap() []error {
	return []error{ErrExhaustedRetries, e.Last}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent помечает ошибку как неповторяемую: RetryExecutor вернет её сразу
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent проверяет, помечена ли ошибка как неповторяемая
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// RetryExecutor выполняет операцию с фиксированной задержкой между попытками
type RetryExecutor struct {
	MaxAttempts int
	Delay       time.Duration
	Logger      *zap.Logger
}

// NewRetryExecutor создает executor. maxAttempts меньше 1 трактуется как одна попытка.
func NewRetryExecutor(maxAttempts int, delay time.Duration, logger *zap.Logger) *RetryExecutor {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryExecutor{
		MaxAttempts: maxAttempts,
		Delay:       delay,
		Logger:      logger,
	}
}

// Execute выполняет op до MaxAttempts раз
func (r *RetryExecutor) Execute(ctx context.Context, name string, op func(ctx context.Context) error) error {
	_, err := Retry(ctx, r, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Retry выполняет op с повторами и возвращает её результат
func Retry[T any](ctx context.Context, r *RetryExecutor, name string, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= r.MaxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if IsPermanent(err) {
			return zero, err
		}

		metrics.ProviderRetriesTotal.WithLabelValues(name).Inc()
		r.Logger.Warn("operation attempt failed",
			zap.String("operation", name),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", r.MaxAttempts),
			zap.Error(err),
		)

		if attempt == r.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return zero, fmt.Errorf("%s прервана: %w", name, ctx.Err())
		case <-time.After(r.Delay):
		}
	}

	return zero, &ExhaustedRetriesError{
		Operation: name,
		Attempts:  r.MaxAttempts,
		Last:      lastErr,
	}
}

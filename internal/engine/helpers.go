package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"stoplossbot/internal/exchange"
	"stoplossbot/internal/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const linkPrefix = "slb-"

type retryPolicy struct {
	attempts int
	base     time.Duration
	max      time.Duration
}

var defaultRetry = retryPolicy{attempts: 5, base: 1 * time.Second, max: 30 * time.Second}

func (r retryPolicy) wait(backoff time.Duration, err error) time.Duration {
	wait := backoff
	if isRateLimitError(err) {
		wait = backoff * 4
	}
	if wait > r.max {
		return r.max
	}
	return wait
}

// withRetry calls fn until it succeeds, the context ends or the error is
// one the exchange will keep returning.
func withRetry[T any](ctx context.Context, policy retryPolicy, entry *logrus.Entry, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	backoff := policy.base
	for i := 0; i < policy.attempts; i++ {
		val, err := fn()
		if err == nil {
			return val, nil
		}
		lastErr = err
		if isPermanentError(err) {
			return zero, err
		}
		entry.WithError(err).WithField("attempt", i+1).Warn("Ошибка, повторяем запрос.")
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(policy.wait(backoff, err)):
		}
		backoff *= 2
	}
	return zero, lastErr
}

func (e *Engine) withRetryRules(ctx context.Context) (exchange.InstrumentRules, error) {
	return withRetry(ctx, e.retry, e.logEntry(), func() (exchange.InstrumentRules, error) {
		return e.client.GetInstrumentRules(ctx, e.symbol)
	})
}

func (e *Engine) withRetryOrders(ctx context.Context) ([]models.Order, error) {
	return withRetry(ctx, e.retry, e.logEntry(), func() ([]models.Order, error) {
		return e.client.GetOpenOrders(ctx, e.symbol)
	})
}

func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "Too many visits!") || strings.Contains(msg, "429") || strings.Contains(msg, "10006")
}

func isDuplicateClientOrderID(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "170141") || strings.Contains(msg, "Duplicate clientOrderId")
}

func isOrderNotExistError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "170213") || strings.Contains(msg, "Order does not exist")
}

func isPermanentError(err error) bool {
	return errors.Is(err, exchange.ErrOrderRejected) || isDuplicateClientOrderID(err) || isOrderNotExistError(err) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func newLinkID(side models.OrderSide) string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return fmt.Sprintf("%s%s-%s", linkPrefix, raw[:12], strings.ToLower(string(side)))
}

func isBotLinkID(linkID string) bool {
	return strings.HasPrefix(linkID, linkPrefix)
}

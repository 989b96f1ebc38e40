package asyncredis

import (
	"errors"
	"time"

	"github.com/pior/asyncredis/resp"
	"github.com/sony/gobreaker/v2"
)

// CircuitBreaker guards the commands sent to one server.
//
// Allow is called before leasing a connection; done is called with the outcome
// once the command is resolved. *gobreaker.TwoStepCircuitBreaker implements it,
// the two-step form fitting commands that complete in a callback.
type CircuitBreaker interface {
	Allow() (done func(success bool), err error)
	State() gobreaker.State
	Counts() gobreaker.Counts
}

var _ CircuitBreaker = (*gobreaker.TwoStepCircuitBreaker[resp.Reply])(nil)

// NewCircuitBreakerConfig returns a function that creates circuit breakers for servers.
// This is a helper for common use cases: the breaker trips when at least 60% of
// at least 3 commands failed within the interval.
func NewCircuitBreakerConfig(maxRequests uint32, interval, timeout time.Duration) func(serverAddr string) CircuitBreaker {
	return func(serverAddr string) CircuitBreaker {
		settings := gobreaker.Settings{
			Name:        serverAddr,
			MaxRequests: maxRequests,
			Interval:    interval,
			Timeout:     timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 3 && failureRatio >= 0.6
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				plog.Warningf("circuit breaker for %s: %s -> %s", name, from, to)
			},
		}
		return gobreaker.NewTwoStepCircuitBreaker[resp.Reply](settings)
	}
}

// serverHealthy reports whether a resolved command counts as a success for the
// breaker: every reply the server sent does, error replies included.
func serverHealthy(reply resp.Reply) bool {
	if reply.OK() {
		return true
	}
	var replyErr *resp.ReplyError
	return errors.As(reply.Err, &replyErr)
}

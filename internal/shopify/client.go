package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/smallbiznis/suavescribe/internal/config"
	contractdomain "github.com/smallbiznis/suavescribe/internal/contract/domain"
	"github.com/smallbiznis/suavescribe/internal/observability/metrics"
	"github.com/smallbiznis/suavescribe/internal/observability/tracing"
	"github.com/smallbiznis/suavescribe/internal/ratelimit"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	accessTokenHeader = "X-Shopify-Access-Token"
	maxResponseBytes  = 8 << 20
	maxQueryAttempts  = 3
)

// errMalformedCall marks a request that could not be built. Retrying cannot help.
var errMalformedCall = errors.New("malformed call")

// StatusError is a non-200 answer from the admin API.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

type graphQLError struct {
	Message    string `json:"message"`
	Extensions struct {
		Code string `json:"code"`
	} `json:"extensions"`
}

// GraphQLErrors are top-level errors; the request never reached a resolver.
type GraphQLErrors []graphQLError

func (e GraphQLErrors) Error() string {
	msgs := make([]string, 0, len(e))
	for _, ge := range e {
		msgs = append(msgs, ge.Message)
	}
	return strings.Join(msgs, "; ")
}

func (e GraphQLErrors) throttled() bool {
	for _, ge := range e {
		if ge.Extensions.Code == "THROTTLED" {
			return true
		}
	}
	return false
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors GraphQLErrors   `json:"errors"`
}

type client struct {
	http          *http.Client
	endpoint      string
	token         string
	limiter       ratelimit.Waiter
	policy        *config.BillingPolicyHolder
	metrics       *metrics.SchedulerMetrics
	tracer        trace.Tracer
	retryInterval time.Duration
}

// query runs a read and retries throttling and transient failures.
func (c *client) query(ctx context.Context, op, document string, vars map[string]any, out any) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := c.do(ctx, op, document, vars, out)
		if err != nil && !transient(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(maxQueryAttempts))
	return asTransport(op, err)
}

// mutate runs a write exactly once.
func (c *client) mutate(ctx context.Context, op, document string, vars map[string]any, out any) error {
	return c.do(ctx, op, document, vars, out)
}

func (c *client) do(ctx context.Context, op, document string, vars map[string]any, out any) (err error) {
	start := time.Now()
	ctx, span := c.tracer.Start(ctx, "shopify."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(tracing.SafeAttributes(attribute.String("shopify.operation", op))...),
	)
	defer func() {
		c.metrics.ObserveGatewayCall(op, time.Since(start), err)
		if err != nil {
			span.RecordError(tracing.SafeError(err))
			span.SetStatus(codes.Error, op)
		}
		span.End()
	}()

	ctx, cancel := context.WithTimeout(ctx, c.policy.Get().RemoteTimeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return &contractdomain.TransportError{Op: op, Err: err}
	}

	body, err := json.Marshal(graphQLRequest{Query: document, Variables: vars})
	if err != nil {
		return &contractdomain.TransportError{Op: op, Err: fmt.Errorf("%w: encode: %w", errMalformedCall, err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return &contractdomain.TransportError{Op: op, Err: fmt.Errorf("%w: %w", errMalformedCall, err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(accessTokenHeader, c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return &contractdomain.TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &contractdomain.TransportError{Op: op, Err: err}
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		return &contractdomain.TransportError{Op: op, Err: &StatusError{Code: resp.StatusCode, Body: truncate(string(payload), 512)}}
	}

	var envelope graphQLResponse
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return &contractdomain.TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(envelope.Errors) > 0 {
		return &contractdomain.TransportError{Op: op, Err: envelope.Errors}
	}
	if out == nil || len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return &contractdomain.TransportError{Op: op, Err: fmt.Errorf("decode data: %w", err)}
	}
	return nil
}

func transient(err error) bool {
	if errors.Is(err, errMalformedCall) {
		return false
	}
	var status *StatusError
	if errors.As(err, &status) {
		return status.Code == http.StatusTooManyRequests || status.Code >= 500
	}
	var gqlErrs GraphQLErrors
	if errors.As(err, &gqlErrs) {
		return gqlErrs.throttled()
	}
	var rejected *contractdomain.UserErrors
	if errors.As(err, &rejected) {
		return false
	}
	return true
}

func asTransport(op string, err error) error {
	if err == nil || contractdomain.IsRemoteError(err) {
		return err
	}
	return &contractdomain.TransportError{Op: op, Err: err}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

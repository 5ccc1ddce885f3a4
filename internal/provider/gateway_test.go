package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

// scriptedBackend fails a fixed number of times before succeeding.
type scriptedBackend struct {
	id       string
	failures int // attempts that fail before the first success; -1 fails forever
	calls    int
}

func (b *scriptedBackend) ID() string   { return b.id }
func (b *scriptedBackend) Name() string { return b.id }

func (b *scriptedBackend) Complete(_ context.Context, _ *CompletionRequest) (*CompletionResponse, error) {
	b.calls++
	if b.failures < 0 || b.calls <= b.failures {
		return nil, fmt.Errorf("%s unavailable (call %d)", b.id, b.calls)
	}
	return &CompletionResponse{Content: "from " + b.id, Provider: b.id}, nil
}

func (b *scriptedBackend) Stream(ctx context.Context, req *CompletionRequest) (<-chan *StreamChunk, error) {
	if _, err := b.Complete(ctx, req); err != nil {
		return nil, err
	}
	ch := make(chan *StreamChunk, 2)
	ch <- &StreamChunk{Content: "from " + b.id}
	ch <- &StreamChunk{Done: true}
	close(ch)
	return ch, nil
}

func (b *scriptedBackend) HealthCheck(_ context.Context) error {
	if b.failures < 0 {
		return errors.New("unhealthy")
	}
	return nil
}

func newTestGateway(backends ...Provider) *Gateway {
	return NewGateway(backends, zap.NewNop(), WithRetryDelay(time.Millisecond))
}

func TestGatewayFallbackOrder(t *testing.T) {
	first := &scriptedBackend{id: "first", failures: -1}
	second := &scriptedBackend{id: "second", failures: -1}
	third := &scriptedBackend{id: "third", failures: 1} // succeeds on attempt 2

	gw := newTestGateway(first, second, third)

	resp, err := gw.Complete(context.Background(), &CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "from third" {
		t.Errorf("got %q, want result from third backend", resp.Content)
	}

	// first and second exhaust all retries, third succeeds on its 2nd call
	if first.calls != DefaultRetries {
		t.Errorf("first backend got %d calls, want %d", first.calls, DefaultRetries)
	}
	if second.calls != DefaultRetries {
		t.Errorf("second backend got %d calls, want %d", second.calls, DefaultRetries)
	}
	if third.calls != 2 {
		t.Errorf("third backend got %d calls, want 2", third.calls)
	}
}

func TestGatewaySuccessShortCircuits(t *testing.T) {
	first := &scriptedBackend{id: "first", failures: 0}
	second := &scriptedBackend{id: "second", failures: 0}

	gw := newTestGateway(first, second)

	resp, err := gw.Complete(context.Background(), &CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "from first" {
		t.Errorf("got %q, want result from first backend", resp.Content)
	}
	if second.calls != 0 {
		t.Errorf("second backend was called %d times, want 0", second.calls)
	}
}

func TestGatewayExhaustionAggregatesErrors(t *testing.T) {
	a := &scriptedBackend{id: "alpha", failures: -1}
	b := &scriptedBackend{id: "beta", failures: -1}

	gw := newTestGateway(a, b)

	_, err := gw.Complete(context.Background(), &CompletionRequest{})
	if err == nil {
		t.Fatal("expected error when all backends fail")
	}

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ExhaustedError, got %T: %v", err, err)
	}
	if len(exhausted.Failures) != 2 {
		t.Fatalf("got %d failures, want 2", len(exhausted.Failures))
	}
	for _, id := range []string{"alpha", "beta"} {
		if !strings.Contains(err.Error(), id) {
			t.Errorf("aggregate error missing backend %q: %v", id, err)
		}
	}
}

func TestGatewayRecoversAcrossCalls(t *testing.T) {
	// Exhausted within one call, but the next call tries the backend again.
	b := &scriptedBackend{id: "flaky", failures: DefaultRetries}
	gw := newTestGateway(b)

	if _, err := gw.Complete(context.Background(), &CompletionRequest{}); err == nil {
		t.Fatal("expected first call to fail")
	}
	resp, err := gw.Complete(context.Background(), &CompletionRequest{})
	if err != nil {
		t.Fatalf("second call should succeed after recovery: %v", err)
	}
	if resp.Content != "from flaky" {
		t.Errorf("got %q, want result from recovered backend", resp.Content)
	}
}

func TestGatewayStreamFallback(t *testing.T) {
	first := &scriptedBackend{id: "first", failures: -1}
	second := &scriptedBackend{id: "second", failures: 0}

	gw := newTestGateway(first, second)

	ch, err := gw.Stream(context.Background(), &CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var content string
	for chunk := range ch {
		content += chunk.Content
	}
	if content != "from second" {
		t.Errorf("got %q, want stream from second backend", content)
	}
}

func TestNewGatewayWithFallbackSkipsUnhealthy(t *testing.T) {
	sick := &scriptedBackend{id: "sick", failures: -1}
	well := &scriptedBackend{id: "well", failures: 0}

	gw, err := NewGatewayWithFallback(context.Background(), []Provider{sick, well}, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(gw.Backends()) != 1 || gw.Backends()[0].ID() != "well" {
		t.Errorf("expected only healthy backend to remain, got %d", len(gw.Backends()))
	}

	if _, err := NewGatewayWithFallback(context.Background(), []Provider{sick}, zap.NewNop()); err == nil {
		t.Error("expected error when no backend is healthy")
	}
}

func TestGatewayNoBackends(t *testing.T) {
	gw := newTestGateway()
	if _, err := gw.Complete(context.Background(), &CompletionRequest{}); err == nil {
		t.Error("expected error with no backends configured")
	}
}

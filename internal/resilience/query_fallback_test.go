package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/visionally/pkg/provider/query/mock"
)

func TestQueryFallback_Failover(t *testing.T) {
	t.Parallel()
	primary := &mock.Provider{Err: errTest}
	secondary := &mock.Provider{Response: "a red mug"}

	f := NewQueryFallback(primary, "gemini", FallbackConfig{})
	f.AddFallback("openai", secondary)

	got, err := f.Request(context.Background(), []byte{0xff, 0xd8}, "image/jpeg", "describe")
	if err != nil {
		t.Fatal(err)
	}
	if got != "a red mug" {
		t.Fatalf("got %q", got)
	}
	if primary.CallCount() != 1 || secondary.CallCount() != 1 {
		t.Fatalf("calls = %d/%d, want 1/1", primary.CallCount(), secondary.CallCount())
	}
	c := secondary.Calls()[0]
	if c.MIMEType != "image/jpeg" || c.Prompt != "describe" || len(c.Image) != 2 {
		t.Fatalf("forwarded call = %+v", c)
	}
}

func TestQueryFallback_SingleProviderOpensBreaker(t *testing.T) {
	t.Parallel()
	p := &mock.Provider{Err: errTest}
	f := NewQueryFallback(p, "gemini", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2},
	})

	for range 2 {
		if _, err := f.Request(context.Background(), nil, "image/jpeg", "x"); !errors.Is(err, errTest) {
			t.Fatalf("err = %v, want errTest", err)
		}
	}
	if _, err := f.Request(context.Background(), nil, "image/jpeg", "x"); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
	if p.CallCount() != 2 {
		t.Fatalf("calls = %d, want 2", p.CallCount())
	}
	if f.Breaker("gemini").State() != StateOpen {
		t.Fatal("breaker should be open")
	}
}

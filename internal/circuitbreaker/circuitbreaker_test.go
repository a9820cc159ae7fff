package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
)

func TestRegistryOpensAfterConsecutiveFailures(t *testing.T) {
	var transitions []gobreaker.State
	reg := NewRegistry(2, 50*time.Millisecond, func(key string, from, to gobreaker.State) {
		transitions = append(transitions, to)
	})

	failing := func(ctx context.Context) (any, error) { return nil, errors.New("boom") }

	for i := 0; i < 2; i++ {
		if _, err := reg.Execute(context.Background(), "spareroom:acct1:send", failing); err == nil {
			t.Fatal("expected failure to propagate")
		}
	}

	if reg.State("spareroom:acct1:send") != gobreaker.StateOpen {
		t.Fatalf("expected breaker open after threshold failures, got %v", reg.State("spareroom:acct1:send"))
	}

	_, err := reg.Execute(context.Background(), "spareroom:acct1:send", func(ctx context.Context) (any, error) {
		t.Fatal("fn should not be invoked while breaker is open")
		return nil, nil
	})

	var openErr *ErrOpen
	if !errors.As(err, &openErr) {
		t.Fatalf("expected *ErrOpen, got %v", err)
	}
}

func TestRegistryKeysAreIndependent(t *testing.T) {
	reg := NewRegistry(1, time.Second, nil)
	failing := func(ctx context.Context) (any, error) { return nil, errors.New("boom") }
	succeeding := func(ctx context.Context) (any, error) { return "ok", nil }

	reg.Execute(context.Background(), "spareroom:acct1:send", failing)
	if reg.State("spareroom:acct1:send") != gobreaker.StateOpen {
		t.Fatal("expected acct1 breaker open")
	}

	result, err := reg.Execute(context.Background(), "roomies:acct2:send", succeeding)
	if err != nil {
		t.Fatalf("unexpected error on independent key: %v", err)
	}
	if result != "ok" {
		t.Fatalf("expected ok, got %v", result)
	}
}

func TestRegistryClosesAfterSuccessfulHalfOpenProbe(t *testing.T) {
	reg := NewRegistry(1, 20*time.Millisecond, nil)
	failing := func(ctx context.Context) (any, error) { return nil, errors.New("boom") }
	succeeding := func(ctx context.Context) (any, error) { return "ok", nil }

	reg.Execute(context.Background(), "leasebreak:acct3:send", failing)
	if reg.State("leasebreak:acct3:send") != gobreaker.StateOpen {
		t.Fatal("expected breaker open")
	}

	time.Sleep(30 * time.Millisecond)

	if _, err := reg.Execute(context.Background(), "leasebreak:acct3:send", succeeding); err != nil {
		t.Fatalf("expected half-open probe to succeed: %v", err)
	}
	if reg.State("leasebreak:acct3:send") != gobreaker.StateClosed {
		t.Fatalf("expected breaker closed after successful probe, got %v", reg.State("leasebreak:acct3:send"))
	}
}

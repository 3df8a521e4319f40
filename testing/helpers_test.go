package testing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zoobzio/chainz"
)

func TestMockOperation(t *testing.T) {
	t.Run("Succeeds By Default", func(t *testing.T) {
		mock := NewMockOperation(t, "mock")
		msg := chainz.NewMessage()

		if err := mock.Execute(msg); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if msg.Faulty() {
			t.Error("expected healthy message")
		}
		AssertExecuted(t, mock, 1)
		AssertNotRolledBack(t, mock)
	})

	t.Run("Faults When Configured", func(t *testing.T) {
		mock := NewMockOperation(t, "mock").WithFault("declined")
		msg := chainz.NewMessage()

		_ = mock.Execute(msg)
		if !msg.Faulty() {
			t.Fatal("expected faulty message")
		}
		if msg.FirstError() != "declined" {
			t.Errorf("expected first error 'declined', got %q", msg.FirstError())
		}
	})

	t.Run("Locks When Configured", func(t *testing.T) {
		mock := NewMockOperation(t, "mock").WithLock()
		msg := chainz.NewMessage()

		_ = mock.Execute(msg)
		if !msg.Locked() {
			t.Error("expected locked message")
		}
	})

	t.Run("Returns Configured Error", func(t *testing.T) {
		expected := errors.New("boom")
		mock := NewMockOperation(t, "mock").WithError(expected)

		if err := mock.Execute(chainz.NewMessage()); !errors.Is(err, expected) {
			t.Errorf("expected %v, got %v", expected, err)
		}
	})

	t.Run("Panics When Configured", func(t *testing.T) {
		mock := NewMockOperation(t, "mock").WithPanic("test panic")

		defer func() {
			if r := recover(); r != "test panic" {
				t.Errorf("expected panic 'test panic', got %v", r)
			}
		}()
		_ = mock.Execute(chainz.NewMessage())
	})

	t.Run("Respects Context Cancellation During Delay", func(t *testing.T) {
		mock := NewMockOperation(t, "mock").WithDelay(time.Second)
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		err := mock.ExecuteContext(ctx, chainz.NewMessage())
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", err)
		}
	})

	t.Run("Runs Exec Function", func(t *testing.T) {
		mock := NewMockOperation(t, "mock").WithExec(func(m *chainz.Message) {
			chainz.Put(m, 42)
		})
		msg := chainz.NewMessage()
		_ = mock.Execute(msg)

		if v, _ := chainz.Get[int](msg); v != 42 {
			t.Errorf("expected 42, got %d", v)
		}
	})

	t.Run("Rollback Returns Configured Error", func(t *testing.T) {
		expected := errors.New("compensation failed")
		mock := NewMockOperation(t, "mock").WithRollbackError(expected)

		if err := mock.Rollback(chainz.NewMessage()); !errors.Is(err, expected) {
			t.Errorf("expected %v, got %v", expected, err)
		}
		AssertRolledBack(t, mock, 1)
	})

	t.Run("Required Flag", func(t *testing.T) {
		mock := NewMockOperation(t, "mock").WithRequired(true)
		if !mock.Required() {
			t.Error("expected required")
		}
	})

	t.Run("Reset Clears Counters", func(t *testing.T) {
		mock := NewMockOperation(t, "mock")
		_ = mock.Execute(chainz.NewMessage())
		_ = mock.Rollback(chainz.NewMessage())
		mock.Reset()

		AssertNotExecuted(t, mock)
		AssertNotRolledBack(t, mock)
	})
}

func TestJournal(t *testing.T) {
	journal := NewJournal()
	a := NewMockOperation(t, "a").WithJournal(journal)
	b := NewMockOperation(t, "b").WithJournal(journal)
	msg := chainz.NewMessage()

	_ = a.Execute(msg)
	_ = b.Execute(msg)
	_ = b.Rollback(msg)
	_ = a.Rollback(msg)

	journal.AssertOrder(t, "execute:a", "execute:b", "rollback:b", "rollback:a")

	executed := journal.Executed()
	if len(executed) != 2 || executed[0] != "a" || executed[1] != "b" {
		t.Errorf("expected executed [a b], got %v", executed)
	}
	rolled := journal.RolledBack()
	if len(rolled) != 2 || rolled[0] != "b" || rolled[1] != "a" {
		t.Errorf("expected rolled back [b a], got %v", rolled)
	}

	journal.Reset()
	if len(journal.Entries()) != 0 {
		t.Error("expected empty journal after reset")
	}
}

func TestChaosOperation(t *testing.T) {
	t.Run("No Chaos Passes Through", func(t *testing.T) {
		mock := NewMockOperation(t, "inner")
		chaos := NewChaosOperation(mock, ChaosConfig{Seed: 1})

		for i := 0; i < 20; i++ {
			if err := chaos.Execute(chainz.NewMessage()); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}
		stats := chaos.Stats()
		if stats.TotalCalls != 20 || stats.FailedCalls != 0 || stats.FaultCalls != 0 {
			t.Errorf("unexpected stats: %+v", stats)
		}
		AssertExecuted(t, mock, 20)
	})

	t.Run("Full Failure Rate Always Fails", func(t *testing.T) {
		chaos := NewChaosOperation(NewMockOperation(t, "inner"), ChaosConfig{FailureRate: 1, Seed: 1})

		for i := 0; i < 5; i++ {
			if err := chaos.Execute(chainz.NewMessage()); err == nil {
				t.Fatal("expected error")
			}
		}
		if rate := chaos.Stats().FailureRate(); rate != 1 {
			t.Errorf("expected failure rate 1, got %v", rate)
		}
	})

	t.Run("Full Fault Rate Always Faults", func(t *testing.T) {
		chaos := NewChaosOperation(NewMockOperation(t, "inner"), ChaosConfig{FaultRate: 1, Seed: 1})
		msg := chainz.NewMessage()

		_ = chaos.Execute(msg)
		if !msg.Faulty() {
			t.Error("expected faulty message")
		}
		if rate := chaos.Stats().FaultRate(); rate != 1 {
			t.Errorf("expected fault rate 1, got %v", rate)
		}
	})
}

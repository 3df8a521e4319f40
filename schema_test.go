package chainz

import (
	"encoding/json"
	"testing"
	"time"
)

func TestSchema(t *testing.T) {
	rec := &recorder{}
	p := NewPipeline("checkout",
		newTracked(rec, "validate"),
		NewScope("payment",
			Retry(newTracked(rec, "charge"), 3),
			Timeout(newTracked(rec, "receipt").asRequired(), time.Second),
		).ForceRollbackOnFailure(true),
		When("loyalty", func(*Message) bool { return true }, Handle(newTracked(rec, "points"), nil)),
		Backoff(newTracked(rec, "notify"), 4, 50*time.Millisecond),
	).BreakOnFail(false)

	schema := p.Schema()

	t.Run("Structure", func(t *testing.T) {
		if schema.Root.Kind != KindPipeline || schema.Root.Name != "checkout" {
			t.Fatalf("unexpected root %+v", schema.Root)
		}
		if len(schema.Root.Children) != 4 {
			t.Fatalf("expected 4 children, got %d", len(schema.Root.Children))
		}
		if got := schema.Root.Metadata["break_on_fail"]; got != "false" {
			t.Errorf("expected break_on_fail=false, got %q", got)
		}
		if schema.Count() != 12 {
			t.Errorf("expected 12 nodes, got %d", schema.Count())
		}
	})

	t.Run("Scope", func(t *testing.T) {
		scope := schema.FindByName("payment")
		if scope == nil || scope.Kind != KindScope {
			t.Fatalf("expected scope node, got %+v", scope)
		}
		if scope.Metadata["force_rollback"] != "true" {
			t.Errorf("expected force_rollback, got %v", scope.Metadata)
		}
	})

	t.Run("Decorators", func(t *testing.T) {
		retries := schema.FindByKind(KindRetry)
		if len(retries) != 1 || retries[0].Metadata["max_attempts"] != "3" {
			t.Errorf("unexpected retry nodes %+v", retries)
		}
		timeout := schema.FindByKind(KindTimeout)
		if len(timeout) != 1 || !timeout[0].Required || timeout[0].Metadata["duration"] != "1s" {
			t.Errorf("unexpected timeout nodes %+v", timeout)
		}
		backoff := schema.FindByKind(KindBackoff)
		if len(backoff) != 1 || backoff[0].Metadata["base_delay"] != "50ms" || backoff[0].Metadata["max_attempts"] != "4" {
			t.Errorf("unexpected backoff nodes %+v", backoff)
		}
		when := schema.FindByName("loyalty")
		if when == nil || when.Kind != KindWhen || when.Children[0].Kind != KindHandle {
			t.Errorf("unexpected when node %+v", when)
		}
	})

	t.Run("Missing", func(t *testing.T) {
		if schema.FindByName("absent") != nil {
			t.Error("expected nil for unknown name")
		}
	})

	t.Run("JSON", func(t *testing.T) {
		data, err := schema.JSON()
		if err != nil {
			t.Fatal(err)
		}
		var decoded Schema
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatal(err)
		}
		if decoded.Count() != schema.Count() {
			t.Errorf("expected %d nodes after decode, got %d", schema.Count(), decoded.Count())
		}
	})
}

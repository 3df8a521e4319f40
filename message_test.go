package chainz

import (
	"strings"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
)

type order struct {
	ID    string
	Total int
}

type customer struct {
	Name string
}

func TestContentBag(t *testing.T) {
	t.Run("Round Trip", func(t *testing.T) {
		m := NewMessage()
		Put(m, order{ID: "o-1", Total: 10})

		got, ok := Get[order](m)
		if !ok {
			t.Fatal("expected order present")
		}
		if got.ID != "o-1" || got.Total != 10 {
			t.Errorf("unexpected order %+v", got)
		}
	})

	t.Run("Second Put Replaces", func(t *testing.T) {
		m := NewMessage()
		Put(m, order{ID: "first"})
		Put(m, order{ID: "second"})

		got, _ := Get[order](m)
		if got.ID != "second" {
			t.Errorf("expected latest value, got %q", got.ID)
		}
		if m.Len() != 1 {
			t.Errorf("expected one value, got %d", m.Len())
		}
	})

	t.Run("Missing Is Not An Error", func(t *testing.T) {
		m := NewMessage()
		got, ok := Get[order](m)
		if ok || got.ID != "" {
			t.Errorf("expected zero value and false, got %+v %v", got, ok)
		}
		if Has[order](m) {
			t.Error("expected Has false")
		}
	})

	t.Run("Pointer And Value Types Are Distinct", func(t *testing.T) {
		m := NewMessage()
		Put(m, order{ID: "value"})
		Put(m, &order{ID: "pointer"})

		v, _ := Get[order](m)
		p, _ := Get[*order](m)
		if v.ID != "value" || p.ID != "pointer" {
			t.Errorf("unexpected values %q %q", v.ID, p.ID)
		}
	})

	t.Run("Remove", func(t *testing.T) {
		m := NewMessage()
		Put(m, order{ID: "o"})
		if !Remove[order](m) {
			t.Error("expected removal")
		}
		if Remove[order](m) {
			t.Error("second removal must report false")
		}
		if Has[order](m) {
			t.Error("expected value gone")
		}
	})

	t.Run("Contents In Insertion Order", func(t *testing.T) {
		m := NewMessage()
		Put(m, customer{Name: "ada"})
		Put(m, order{ID: "o"})
		Put(m, customer{Name: "grace"})

		contents := m.Contents()
		if len(contents) != 2 {
			t.Fatalf("expected 2 values, got %d", len(contents))
		}
		if c, ok := contents[0].(customer); !ok || c.Name != "grace" {
			t.Errorf("expected replaced customer first, got %v", contents[0])
		}
		if _, ok := contents[1].(order); !ok {
			t.Errorf("expected order second, got %v", contents[1])
		}
	})

	t.Run("MustGet Panics With Type Name", func(t *testing.T) {
		defer func() {
			r := recover()
			msg, _ := r.(string)
			if !strings.Contains(msg, "chainz.order") {
				t.Errorf("expected type name in panic, got %v", r)
			}
		}()
		_ = MustGet[order](NewMessage())
	})
}

func TestMessageState(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		m := NewMessage()
		if m.Token() == "" {
			t.Error("expected generated token")
		}
		if m.Faulty() || m.Locked() {
			t.Error("expected healthy unlocked message")
		}
		if NewMessage().Token() == m.Token() {
			t.Error("expected distinct tokens")
		}
	})

	t.Run("Fail Records Error Notice", func(t *testing.T) {
		m := NewMessage()
		m.Info("starting")
		m.Failf("bad total %d", 3)
		m.Fail("second")

		if !m.Faulty() {
			t.Error("expected faulty")
		}
		if m.FirstError() != "bad total 3" {
			t.Errorf("unexpected first error %q", m.FirstError())
		}
		if len(m.Errors()) != 2 || len(m.Notices()) != 3 {
			t.Errorf("unexpected notices %v", m.Notices())
		}
	})

	t.Run("Error Notice Does Not Fault", func(t *testing.T) {
		m := NewMessage()
		m.Error("logged only")
		m.Warn("careful")
		if m.Faulty() {
			t.Error("Error must not fault the message")
		}
	})

	t.Run("Notices Are Copied", func(t *testing.T) {
		m := NewMessage()
		m.Info("one")
		notices := m.Notices()
		notices[0].Text = "changed"
		if m.Notices()[0].Text != "one" {
			t.Error("Notices must return a copy")
		}
	})

	t.Run("Notice Timestamps Use Clock", func(t *testing.T) {
		clock := clockz.NewFakeClock()
		m := NewMessage(WithMessageClock(clock))
		m.Info("first")
		clock.Advance(time.Minute)
		m.Info("second")

		notices := m.Notices()
		if got := notices[1].Time.Sub(notices[0].Time); got != time.Minute {
			t.Errorf("expected one minute between notices, got %v", got)
		}
	})

	t.Run("Notice String", func(t *testing.T) {
		n := Notice{Level: LevelWarning, Source: "charge", Text: "slow"}
		if n.String() != "warning [charge]: slow" {
			t.Errorf("unexpected %q", n.String())
		}
		if (Notice{Level: LevelInfo, Text: "hi"}).String() != "info: hi" {
			t.Error("unexpected unsourced notice format")
		}
	})
}

func TestZeroMessage(t *testing.T) {
	var m Message
	Put(&m, order{ID: "o-1"})
	m.Info("created")
	m.SetRunState(runKey{}, 1)

	if got, ok := Get[order](&m); !ok || got.ID != "o-1" {
		t.Errorf("unexpected content %+v", got)
	}
	if len(m.Notices()) != 1 || m.Notices()[0].Time.IsZero() {
		t.Errorf("expected timestamped notice, got %v", m.Notices())
	}

	report, err := NewPipeline("zero", Effect("ok", func(*Message) error { return nil })).Run(&m)
	if err != nil || !report.Succeeded() {
		t.Errorf("unexpected %v %+v", err, report)
	}
}

type runKey struct{}

func TestRunState(t *testing.T) {
	m := NewMessage()
	m.SetRunState(runKey{}, "snapshot")

	if v, ok := m.RunState(runKey{}); !ok || v != "snapshot" {
		t.Errorf("unexpected run state %v %v", v, ok)
	}
	if m.Len() != 0 || len(m.Contents()) != 0 {
		t.Error("run state must stay out of the content bag")
	}

	m.ClearRunState(runKey{})
	if _, ok := m.RunState(runKey{}); ok {
		t.Error("expected run state cleared")
	}
}

package conversation

import (
	"testing"
	"time"
)

func TestCreate_StripsTransientKeys(t *testing.T) {
	s := newStore(time.Minute, 10)
	defer s.Close()

	id := s.Create("chat", map[string]any{
		"prompt":          "hello",
		"continuation_id": "old",
	}, "")

	ctx := s.Get(id)
	if ctx == nil {
		t.Fatal("expected thread")
	}
	if _, ok := ctx.InitialContext["prompt"]; !ok {
		t.Error("real argument lost")
	}
	for _, k := range transientKeys {
		if _, ok := ctx.InitialContext[k]; ok {
			t.Errorf("transient key %q stored", k)
		}
	}
}

func TestAddTurn_OrderAndSnapshot(t *testing.T) {
	s := newStore(time.Minute, 10)
	defer s.Close()

	id := s.Create("chat", nil, "")
	if !s.AddTurn(id, Turn{Role: "user", Content: "q"}) {
		t.Fatal("AddTurn user failed")
	}
	if !s.AddTurn(id, Turn{Role: "assistant", Content: "a", ModelName: "o3"}) {
		t.Fatal("AddTurn assistant failed")
	}

	ctx := s.Get(id)
	if len(ctx.Turns) != 2 || ctx.Turns[0].Role != "user" || ctx.Turns[1].Role != "assistant" {
		t.Fatalf("unexpected turns: %+v", ctx.Turns)
	}
	if ctx.Turns[0].Timestamp.After(ctx.Turns[1].Timestamp) {
		t.Error("timestamps not monotone")
	}

	// Snapshot isolation: mutating the copy must not touch the store.
	ctx.Turns[0].Content = "mutated"
	if s.Get(id).Turns[0].Content != "q" {
		t.Error("snapshot mutation leaked into store")
	}
}

func TestAddTurn_MaxTurnsUnchanged(t *testing.T) {
	s := newStore(time.Minute, 10)
	defer s.Close()

	id := s.Create("debug", nil, "")
	for i := 0; i < MaxTurns; i++ {
		if !s.AddTurn(id, Turn{Role: "user", Content: "x"}) {
			t.Fatalf("append %d refused below the limit", i)
		}
	}
	if s.AddTurn(id, Turn{Role: "user", Content: "overflow"}) {
		t.Error("append beyond MaxTurns must return false")
	}
	if got := len(s.Get(id).Turns); got != MaxTurns {
		t.Errorf("thread mutated by refused append: %d turns", got)
	}
}

func TestGet_TTLExpiry(t *testing.T) {
	s := newStore(time.Minute, 10)
	defer s.Close()

	base := time.Now()
	s.now = func() time.Time { return base }
	id := s.Create("chat", nil, "")

	s.now = func() time.Time { return base.Add(2 * time.Minute) }
	if s.Get(id) != nil {
		t.Error("expected nil after TTL")
	}
	if s.AddTurn(id, Turn{Role: "user", Content: "late"}) {
		t.Error("append to expired thread must fail")
	}
}

func TestCapacityEviction_LRU(t *testing.T) {
	s := newStore(time.Minute, 2)
	defer s.Close()

	base := time.Now()
	step := 0
	s.now = func() time.Time { step++; return base.Add(time.Duration(step) * time.Second) }

	first := s.Create("chat", nil, "")
	second := s.Create("chat", nil, "")
	third := s.Create("chat", nil, "")

	if s.Get(first) != nil {
		t.Error("expected oldest thread evicted")
	}
	if s.Get(second) == nil || s.Get(third) == nil {
		t.Error("newer threads must survive eviction")
	}
}

func TestInheritedModel(t *testing.T) {
	s := newStore(time.Minute, 10)
	defer s.Close()

	id := s.Create("chat", nil, "")
	s.AddTurn(id, Turn{Role: "user", Content: "q1"})
	s.AddTurn(id, Turn{Role: "assistant", Content: "a1", ModelName: "o3", ModelProvider: "openai"})
	s.AddTurn(id, Turn{Role: "user", Content: "q2"})

	model, prov := InheritedModel(s.Get(id))
	if model != "o3" || prov != "openai" {
		t.Errorf("InheritedModel = (%q, %q), want (o3, openai)", model, prov)
	}

	if m, _ := InheritedModel(nil); m != "" {
		t.Error("nil context must inherit nothing")
	}
}

func TestParentThreadChain_OneHop(t *testing.T) {
	s := newStore(time.Minute, 10)
	defer s.Close()

	parent := s.Create("planner", nil, "")
	child := s.Create("planner", nil, parent)

	ctx := s.Get(child)
	if ctx.ParentThreadID != parent {
		t.Errorf("parent id not stored: %q", ctx.ParentThreadID)
	}
	if s.Get(ctx.ParentThreadID) == nil {
		t.Error("manual one-hop traversal failed")
	}
}

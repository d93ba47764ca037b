package consent

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client, 5*time.Second, 10*time.Minute), mr
}

func TestRedisAdmitAndCooldown(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisTestStore(t)
	k := Key{TabID: "t1", Host: "chatgpt.com"}

	v, err := s.Admit(ctx, k)
	if err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if !v.Admitted {
		t.Fatalf("first Admit = %+v, want admitted", v)
	}

	v, err = s.Admit(ctx, k)
	if err != nil {
		t.Fatal(err)
	}
	if v.Admitted || v.Cause != CauseCooldown {
		t.Errorf("Admit inside cooldown = %+v, want cooldown refusal", v)
	}

	mr.FastForward(6 * time.Second)
	v, err = s.Admit(ctx, k)
	if err != nil {
		t.Fatal(err)
	}
	if !v.Admitted {
		t.Errorf("Admit after cooldown = %+v, want admitted", v)
	}
}

func TestRedisGrantAndExpiry(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedisTestStore(t)
	k := Key{TabID: "t1", Host: "chatgpt.com"}

	if _, err := s.Admit(ctx, k); err != nil {
		t.Fatal(err)
	}
	if err := s.Grant(ctx, k); err != nil {
		t.Fatal(err)
	}

	v, err := s.Admit(ctx, k)
	if err != nil {
		t.Fatal(err)
	}
	if v.Admitted || v.Cause != CauseConsent {
		t.Errorf("Admit with live grant = %+v, want consent refusal", v)
	}
	ok, err := s.Allowed(ctx, k)
	if err != nil || !ok {
		t.Errorf("Allowed = %v, %v; want true", ok, err)
	}

	mr.FastForward(11 * time.Minute)
	v, err = s.Admit(ctx, k)
	if err != nil {
		t.Fatal(err)
	}
	if !v.Admitted {
		t.Errorf("Admit after grant expiry = %+v, want admitted", v)
	}
}

func TestRedisResetAndReleaseTab(t *testing.T) {
	ctx := context.Background()
	s, _ := newRedisTestStore(t)
	k1 := Key{TabID: "t1", Host: "chatgpt.com"}
	k2 := Key{TabID: "t2", Host: "claude.ai"}

	for _, k := range []Key{k1, k2} {
		if _, err := s.Admit(ctx, k); err != nil {
			t.Fatal(err)
		}
		if err := s.Grant(ctx, k); err != nil {
			t.Fatal(err)
		}
	}

	if err := s.ReleaseTab(ctx, "t1"); err != nil {
		t.Fatal(err)
	}
	if v, _ := s.Admit(ctx, k1); !v.Admitted {
		t.Error("released tab still refused")
	}
	if ok, _ := s.Allowed(ctx, k2); !ok {
		t.Error("unrelated tab lost its grant on ReleaseTab")
	}

	if err := s.Reset(ctx); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.Allowed(ctx, k2); ok {
		t.Error("grant survived Reset")
	}
	if v, _ := s.Admit(ctx, k2); !v.Admitted {
		t.Error("Admit refused after Reset")
	}
}

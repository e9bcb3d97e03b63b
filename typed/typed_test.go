package typed

import (
	"context"
	"testing"
	"time"

	"github.com/unkn0wn-root/rescache"
	"github.com/unkn0wn-root/rescache/codec"
)

type user struct {
	ID   string `json:"id" msgpack:"id"`
	Name string `json:"name" msgpack:"name"`
}

func newClient(t *testing.T) *rescache.Client {
	t.Helper()
	c, err := rescache.New(context.Background(), rescache.Options{})
	if err != nil {
		t.Fatalf("rescache.New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

func TestRoundTripJSON(t *testing.T) {
	ctx := context.Background()
	v := New(newClient(t), Options[user]{Codec: codec.JSON[user]{}, Prefix: "user"})

	want := user{ID: "1", Name: "Ada"}
	if err := v.Set(ctx, "1", want, 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := v.Get(ctx, "1")
	if err != nil || !ok || got != want {
		t.Fatalf("Get = (%+v, %v, %v), want %+v", got, ok, err, want)
	}
	if _, ok, _ := v.Get(ctx, "2"); ok {
		t.Fatalf("miss reported as hit")
	}
}

func TestRoundTripMsgpack(t *testing.T) {
	ctx := context.Background()
	v := New(newClient(t), Options[user]{Codec: codec.Msgpack[user]{}})

	want := user{ID: "7", Name: "Grace"}
	if err := v.Set(ctx, "u7", want, 30*time.Second); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := v.Get(ctx, "u7")
	if err != nil || !ok || got != want {
		t.Fatalf("Get = (%+v, %v, %v)", got, ok, err)
	}
}

func TestRoundTripCBOR(t *testing.T) {
	ctx := context.Background()
	v := New(newClient(t), Options[user]{Codec: codec.MustCBOR[user](false)})

	want := user{ID: "9", Name: "Edsger"}
	if err := v.Set(ctx, "u9", want, 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := v.Get(ctx, "u9")
	if err != nil || !ok || got != want {
		t.Fatalf("Get = (%+v, %v, %v)", got, ok, err)
	}
}

func TestPrefixIsolation(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)
	users := New(c, Options[user]{Codec: codec.JSON[user]{}, Prefix: "user"})
	orders := New(c, Options[user]{Codec: codec.JSON[user]{}, Prefix: "order"})

	if err := users.Set(ctx, "1", user{ID: "1"}, 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok, _ := orders.Get(ctx, "1"); ok {
		t.Fatalf("prefixes leaked between views")
	}
}

func TestCorruptEntrySelfHeals(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)
	v := New(c, Options[user]{Codec: codec.JSON[user]{}, Prefix: "user"})

	// foreign write under the view's key: not valid JSON for user
	if err := c.Set(ctx, "user:1", "{{{", 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok, err := v.Get(ctx, "1"); ok || err != nil {
		t.Fatalf("corrupt entry: ok=%v err=%v, want miss without error", ok, err)
	}
	// the bad entry must be gone
	if ok, _ := c.Exists(ctx, "user:1"); ok {
		t.Fatalf("corrupt entry not deleted")
	}
}

func TestGetMany(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)
	v := New(c, Options[user]{Codec: codec.JSON[user]{}, Prefix: "user"})

	if err := v.Set(ctx, "1", user{ID: "1", Name: "Ada"}, 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := v.Set(ctx, "2", user{ID: "2", Name: "Bob"}, 0); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, missing, err := v.GetMany(ctx, []string{"1", "2", "3"})
	if err != nil {
		t.Fatalf("GetMany: %v", err)
	}
	if len(got) != 2 || got["1"].Name != "Ada" || got["2"].Name != "Bob" {
		t.Fatalf("GetMany values = %+v", got)
	}
	if len(missing) != 1 || missing[0] != "3" {
		t.Fatalf("missing = %v, want [3]", missing)
	}
}

func TestLimitCodecGuardsDecode(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)
	v := New(c, Options[user]{
		Codec:  codec.Limit[user]{Inner: codec.JSON[user]{}, MaxDecode: 8},
		Prefix: "user",
	})

	// encode path is unrestricted, so this lands a payload above the decode cap
	if err := v.Set(ctx, "1", user{ID: "1", Name: "A very long name indeed"}, 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok, _ := v.Get(ctx, "1"); ok {
		t.Fatalf("oversized payload decoded despite the limit")
	}
}

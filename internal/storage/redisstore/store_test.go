package redisstore

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"universe-server/internal/physics"
	"universe-server/internal/shared/errors"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gonum.org/v1/gonum/spatial/r2"
)

func newTestStore(t *testing.T, ttl time.Duration) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewStore(client, ttl, logger), mr
}

func twoBodies() *physics.Universe {
	u := physics.New()
	u.Add(
		physics.NewBody("cp0", 10, 5000, r2.Vec{X: 1, Y: 2}, r2.Vec{X: 3, Y: 4}),
		physics.NewBody("cp1", 20, 8000, r2.Vec{X: 5, Y: 6}, r2.Vec{}),
	)
	return u
}

func TestSnapshotRoundTrip(t *testing.T) {
	store, mr := newTestStore(t, time.Hour)
	ctx := context.Background()

	if err := store.SaveIterationSnapshot(ctx, 7, 100, twoBodies()); err != nil {
		t.Fatalf("SaveIterationSnapshot: %v", err)
	}
	if !mr.Exists("universe:run:7:iteration:100") {
		t.Fatal("snapshot key missing")
	}
	if ttl := mr.TTL("universe:run:7:iteration:100"); ttl != time.Hour {
		t.Errorf("snapshot ttl = %v, want 1h", ttl)
	}

	u, err := store.LoadIterationSnapshot(ctx, 7, 100)
	if err != nil {
		t.Fatalf("LoadIterationSnapshot: %v", err)
	}
	if u.Len() != 2 {
		t.Fatalf("bodies = %d, want 2", u.Len())
	}
	b := u.Bodies()[0]
	if b.Name != "cp0" || b.Mass != 10 || b.Density != 5000 || b.Vel != (r2.Vec{X: 3, Y: 4}) {
		t.Errorf("body = %+v", b)
	}
}

func TestLoadMissingSnapshot(t *testing.T) {
	store, _ := newTestStore(t, 0)

	_, err := store.LoadIterationSnapshot(context.Background(), 1, 5)
	if !errors.IsNotFound(err) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestListIterationsOrdered(t *testing.T) {
	store, _ := newTestStore(t, 0)
	ctx := context.Background()

	for _, it := range []int{200, 0, 100} {
		if err := store.SaveIterationSnapshot(ctx, 3, it, twoBodies()); err != nil {
			t.Fatalf("save %d: %v", it, err)
		}
	}
	// overwriting keeps a single index entry
	if err := store.SaveIterationSnapshot(ctx, 3, 100, twoBodies()); err != nil {
		t.Fatal(err)
	}

	its, err := store.ListIterations(ctx, 3)
	if err != nil {
		t.Fatalf("ListIterations: %v", err)
	}
	want := []int{0, 100, 200}
	if len(its) != len(want) {
		t.Fatalf("iterations = %v, want %v", its, want)
	}
	for i := range want {
		if its[i] != want[i] {
			t.Fatalf("iterations = %v, want %v", its, want)
		}
	}
}

func TestListIterationsPrunesExpired(t *testing.T) {
	store, mr := newTestStore(t, time.Minute)
	ctx := context.Background()

	if err := store.SaveIterationSnapshot(ctx, 9, 10, twoBodies()); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveIterationSnapshot(ctx, 9, 20, twoBodies()); err != nil {
		t.Fatal(err)
	}
	mr.Del("universe:run:9:iteration:10")

	its, err := store.ListIterations(ctx, 9)
	if err != nil {
		t.Fatalf("ListIterations: %v", err)
	}
	if len(its) != 1 || its[0] != 20 {
		t.Fatalf("iterations = %v, want [20]", its)
	}
	members, _ := mr.ZMembers("universe:run:9:iterations")
	if len(members) != 1 {
		t.Errorf("index members = %v, want one", members)
	}
}

func TestListIterationsEmpty(t *testing.T) {
	store, _ := newTestStore(t, 0)

	its, err := store.ListIterations(context.Background(), 404)
	if err != nil {
		t.Fatalf("ListIterations: %v", err)
	}
	if len(its) != 0 {
		t.Errorf("iterations = %v, want none", its)
	}
}

package handle

import (
	"errors"
	"sync"
	"testing"
)

type mesh struct {
	name     string
	released int
}

func (m *mesh) Release() { m.released++ }

func TestSequentialIDs(t *testing.T) {
	tbl := New[string]("objects")
	for want := int32(0); want < 5; want++ {
		if got := tbl.Add("obj"); got != want {
			t.Fatalf("Add returned %d, want %d", got, want)
		}
	}
	if tbl.Len() != 5 {
		t.Fatalf("Len = %d, want 5", tbl.Len())
	}
}

func TestRemoveTombstones(t *testing.T) {
	tbl := New[*mesh]("objects")
	a, b, c := &mesh{name: "a"}, &mesh{name: "b"}, &mesh{name: "c"}
	tbl.Add(a)
	tbl.Add(b)
	tbl.Add(c)

	id, err := tbl.Remove(1)
	if err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if id != 1 {
		t.Fatalf("Remove returned %d, want 1", id)
	}
	if b.released != 1 {
		t.Fatalf("removed object released %d times, want 1", b.released)
	}

	if _, err := tbl.Get(1); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for removed id, got %v", err)
	}

	d := &mesh{name: "d"}
	if got := tbl.Add(d); got != 3 {
		t.Fatalf("Add after Remove returned %d, want 3", got)
	}
	if obj, err := tbl.Get(1); err == nil || obj == d {
		t.Fatalf("removed id resolved to %v after unrelated Add", obj)
	}

	if got, err := tbl.Get(2); err != nil || got != c {
		t.Fatalf("Get(2) = %v, %v; higher ids must be untouched", got, err)
	}

	if _, err := tbl.Remove(1); !errors.Is(err, ErrInvalid) {
		t.Fatalf("second Remove should fail, got %v", err)
	}
	if b.released != 1 {
		t.Fatalf("double remove released again")
	}
}

func TestGetOutOfRange(t *testing.T) {
	tbl := New[int]("panels")
	tbl.Add(1)
	for _, id := range []int32{-1, -7, 1, 100} {
		if _, err := tbl.Get(id); !errors.Is(err, ErrInvalid) {
			t.Errorf("Get(%d): expected ErrInvalid, got %v", id, err)
		}
	}
}

func TestRemoveAll(t *testing.T) {
	tbl := New[*mesh]("objects")
	ms := []*mesh{{name: "a"}, {name: "b"}, {name: "c"}}
	for _, m := range ms {
		tbl.Add(m)
	}
	if _, err := tbl.Remove(0); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	if n := tbl.RemoveAll(); n != 2 {
		t.Fatalf("RemoveAll returned %d, want 2", n)
	}
	for i, m := range ms {
		if m.released != 1 {
			t.Errorf("mesh %d released %d times", i, m.released)
		}
	}
	for id := int32(0); id < 3; id++ {
		if _, err := tbl.Get(id); !errors.Is(err, ErrInvalid) {
			t.Errorf("Get(%d) after RemoveAll: expected ErrInvalid, got %v", id, err)
		}
	}
	if got := tbl.Add(&mesh{}); got != 3 {
		t.Fatalf("ids must keep counting after RemoveAll, got %d", got)
	}
	if n := tbl.RemoveAll(); n != 1 {
		t.Fatalf("RemoveAll returned %d, want 1", n)
	}
	if n := tbl.RemoveAll(); n != 0 {
		t.Fatalf("RemoveAll on empty table returned %d", n)
	}
}

func TestDefaultSentinel(t *testing.T) {
	mats := New("materials", WithDefault("default"))
	got, err := mats.Get(DefaultID)
	if err != nil {
		t.Fatalf("Get(-1) failed: %v", err)
	}
	if got != "default" {
		t.Fatalf("Get(-1) = %q, want default", got)
	}
	if _, err := mats.Remove(DefaultID); !errors.Is(err, ErrInvalid) {
		t.Fatalf("the default must not be removable, got %v", err)
	}
	if mats.Add("red") != 0 {
		t.Fatal("the default must not occupy id 0")
	}

	plain := New[string]("objects")
	if _, err := plain.Get(DefaultID); !errors.Is(err, ErrInvalid) {
		t.Fatalf("-1 is only special on default tables, got %v", err)
	}
}

func TestReleaseHook(t *testing.T) {
	var released []string
	tbl := New("panels", WithRelease(func(s string) { released = append(released, s) }))
	tbl.Add("root")
	tbl.Add("folder")
	if _, err := tbl.Remove(0); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	tbl.RemoveAll()
	if len(released) != 2 || released[0] != "root" || released[1] != "folder" {
		t.Fatalf("release hook saw %v", released)
	}
}

func TestReleaseHookSeesTombstone(t *testing.T) {
	var tbl *Table[string]
	var lookupErr error
	var after int
	tbl = New("objects", WithRelease(func(string) {
		// reentering the table must not deadlock
		_, lookupErr = tbl.Get(0)
		after = tbl.Len()
	}))
	tbl.Add("mesh")
	if _, err := tbl.Remove(0); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if lookupErr == nil {
		t.Fatal("id still resolved inside the release hook")
	}
	if after != 0 {
		t.Fatalf("Len inside the release hook = %d, want 0", after)
	}
}

func TestEachSkipsTombstones(t *testing.T) {
	tbl := New[string]("objects")
	tbl.Add("a")
	tbl.Add("b")
	tbl.Add("c")
	tbl.Remove(1)
	var ids []int32
	tbl.Each(func(id int32, _ string) { ids = append(ids, id) })
	if len(ids) != 2 || ids[0] != 0 || ids[1] != 2 {
		t.Fatalf("Each visited %v", ids)
	}
}

func TestConcurrentAddUniqueIDs(t *testing.T) {
	tbl := New[int]("objects")
	const workers, per = 8, 100
	ids := make(chan int32, workers*per)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < per; i++ {
				ids <- tbl.Add(i)
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int32]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("id %d handed out twice", id)
		}
		seen[id] = true
	}
	if len(seen) != workers*per {
		t.Fatalf("got %d ids, want %d", len(seen), workers*per)
	}
}

package tscache

import "testing"

func TestInsertAndQueryRange(t *testing.T) {
	c := New(3)
	for _, tms := range []int64{1, 2, 3, 4} {
		c.Insert("k", []byte(`1.0`), tms)
	}

	got := c.Query("k", 0, 10)
	if len(got) != 3 {
		t.Fatalf("expected 3 points after eviction, got %d", len(got))
	}
	want := []int64{2, 3, 4}
	for i, p := range got {
		if p.TimestampMs != want[i] {
			t.Fatalf("point %d: want ts %d, got %d", i, want[i], p.TimestampMs)
		}
	}
}

func TestRingBufferBound(t *testing.T) {
	c := New(5)
	for i := int64(0); i < 100; i++ {
		c.Insert("k", []byte(`1`), i)
	}
	if got := len(c.Query("k", 0, 1000)); got != 5 {
		t.Fatalf("buffer bound violated: want <= 5, got %d", got)
	}
}

func TestQueryUnknownSubject(t *testing.T) {
	c := New(3)
	if got := c.Query("missing", 0, 100); got != nil {
		t.Fatalf("expected nil for unknown subject, got %v", got)
	}
}

func TestLatest(t *testing.T) {
	c := New(3)
	if _, ok := c.Latest("k"); ok {
		t.Fatal("expected no latest point before any insert")
	}
	c.Insert("k", []byte(`"a"`), 1)
	c.Insert("k", []byte(`"b"`), 2)
	p, ok := c.Latest("k")
	if !ok || p.TimestampMs != 2 {
		t.Fatalf("expected latest point ts=2, got %+v ok=%v", p, ok)
	}
}

func TestKeys(t *testing.T) {
	c := New(3)
	c.Insert("a", []byte(`1`), 1)
	c.Insert("b", []byte(`1`), 1)
	keys := c.Keys()
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(keys))
	}
}

func TestOrderPreservedOnNonDecreasingInserts(t *testing.T) {
	c := New(10)
	for _, tms := range []int64{5, 10, 15, 20} {
		c.Insert("k", []byte(`1`), tms)
	}
	got := c.Query("k", 0, 100)
	for i := 1; i < len(got); i++ {
		if got[i].TimestampMs < got[i-1].TimestampMs {
			t.Fatalf("points out of order: %v", got)
		}
	}
}

package clock

import (
	"testing"
	"time"
)

func TestFakeFiresInDeadlineOrder(t *testing.T) {
	t.Parallel()
	start := time.UnixMilli(1_000_000)
	c := NewFake(start)
	var got []string
	var seen []time.Time
	c.AfterFunc(3*time.Second, func() { got = append(got, "c"); seen = append(seen, c.Now()) })
	c.AfterFunc(time.Second, func() { got = append(got, "a"); seen = append(seen, c.Now()) })
	c.AfterFunc(time.Second, func() { got = append(got, "b"); seen = append(seen, c.Now()) })

	c.Advance(2 * time.Second)
	if want := "ab"; join(got) != want {
		t.Fatalf("fired %q, want %q", join(got), want)
	}
	if !seen[0].Equal(start.Add(time.Second)) {
		t.Fatalf("Now() inside callback = %v, want %v", seen[0], start.Add(time.Second))
	}
	if !c.Now().Equal(start.Add(2 * time.Second)) {
		t.Fatalf("Now() = %v, want %v", c.Now(), start.Add(2*time.Second))
	}
	if c.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1", c.Pending())
	}

	c.Advance(time.Second)
	if want := "abc"; join(got) != want {
		t.Fatalf("fired %q, want %q", join(got), want)
	}
}

func TestFakeChainedTimers(t *testing.T) {
	t.Parallel()
	c := NewFake(time.UnixMilli(0))
	fired := 0
	var tick func()
	tick = func() {
		fired++
		c.AfterFunc(time.Second, tick)
	}
	c.AfterFunc(time.Second, tick)

	c.Advance(5 * time.Second)
	if fired != 5 {
		t.Fatalf("fired = %d, want 5", fired)
	}
}

func TestFakeStop(t *testing.T) {
	t.Parallel()
	c := NewFake(time.UnixMilli(0))
	fired := false
	tm := c.AfterFunc(time.Second, func() { fired = true })
	if !tm.Stop() {
		t.Fatal("Stop() = false, want true")
	}
	if tm.Stop() {
		t.Fatal("second Stop() = true, want false")
	}
	c.Advance(time.Minute)
	if fired {
		t.Fatal("stopped timer fired")
	}

	done := c.AfterFunc(-time.Second, func() {})
	c.Advance(0)
	if done.Stop() {
		t.Fatal("Stop() after fire = true, want false")
	}
}

func TestFakeSetNeverMovesBackwards(t *testing.T) {
	t.Parallel()
	c := NewFake(time.UnixMilli(5000))
	c.Set(time.UnixMilli(1000))
	if got := UnixMilli(c); got != 5000 {
		t.Fatalf("UnixMilli = %d, want 5000", got)
	}
}

func join(s []string) string {
	out := ""
	for _, v := range s {
		out += v
	}
	return out
}

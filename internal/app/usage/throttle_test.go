package usage_test

import (
	"testing"
	"time"

	"github.com/PabloGalante/mermaid-agent/internal/app/usage"
	"github.com/PabloGalante/mermaid-agent/internal/domain"
)

func TestDailyLimitAndRollover(t *testing.T) {
	now := time.Date(2026, 5, 1, 23, 0, 0, 0, time.Local)
	th := usage.NewThrottle(3, func() time.Time { return now })

	var got []bool
	for i := 0; i < 4; i++ {
		got = append(got, th.CheckAndIncrement("client"))
	}
	want := []bool{true, true, true, false}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("call %d: got %v, want %v", i+1, got[i], want[i])
		}
	}
	if u := th.Usage("client"); u != (domain.UsageCounter{Date: "2026-05-01", Count: 3}) {
		t.Fatalf("denied call must not be counted, got %+v", u)
	}
	if r := th.Remaining("client"); r != 0 {
		t.Fatalf("expected 0 remaining, got %d", r)
	}

	now = now.Add(2 * time.Hour)
	if !th.CheckAndIncrement("client") {
		t.Fatalf("expected first call of the next day to be allowed")
	}
	if r := th.Remaining("client"); r != 2 {
		t.Fatalf("expected 2 remaining, got %d", r)
	}
}

func TestIdentitiesAreIndependent(t *testing.T) {
	th := usage.NewThrottle(1, nil)

	if !th.CheckAndIncrement("a") || !th.CheckAndIncrement("b") {
		t.Fatalf("each identity gets its own quota")
	}
	if th.CheckAndIncrement("a") {
		t.Fatalf("expected second call for a to be denied")
	}
}

func TestNonPositiveLimitIsUnlimited(t *testing.T) {
	th := usage.NewThrottle(0, nil)
	for i := 0; i < 100; i++ {
		if !th.CheckAndIncrement("x") {
			t.Fatalf("call %d denied with unlimited throttle", i)
		}
	}
	if th.Remaining("x") != -1 {
		t.Fatalf("expected -1 remaining for unlimited throttle")
	}
}

func TestReleaseGivesSlotBack(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.Local)
	th := usage.NewThrottle(1, func() time.Time { return now })

	release, ok := th.Reserve("client")
	if !ok {
		t.Fatalf("expected first reservation to be allowed")
	}
	if _, ok := th.Reserve("client"); ok {
		t.Fatalf("reserved slot must count against the limit")
	}

	release()
	release()
	if u := th.Usage("client"); u.Count != 0 {
		t.Fatalf("expected count 0 after release, got %+v", u)
	}
	if _, ok := th.Reserve("client"); !ok {
		t.Fatalf("released slot should be available again")
	}
}

func TestReleaseAfterRolloverKeepsNewDay(t *testing.T) {
	now := time.Date(2026, 5, 1, 23, 30, 0, 0, time.Local)
	th := usage.NewThrottle(5, func() time.Time { return now })

	release, _ := th.Reserve("client")
	now = now.Add(time.Hour)
	th.CheckAndIncrement("client")

	release()
	if u := th.Usage("client"); u != (domain.UsageCounter{Date: "2026-05-02", Count: 1}) {
		t.Fatalf("release from yesterday must not touch today, got %+v", u)
	}
}

package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	blobmemory "pharmacore/internal/infra/blob/memory"
	"pharmacore/internal/infra/persistence/memory"
	"pharmacore/pkg/domain"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestService(t *testing.T) (*Service, *testClock) {
	t.Helper()
	clock := newTestClock()
	store := memory.NewStore(DefaultRulesEngine())
	store.SetClock(clock.Now)
	svc := NewService(store, blobmemory.New(), WithClock(clock))
	return svc, clock
}

func mustRegisterResident(t *testing.T, svc *Service, username string) User {
	t.Helper()
	u, _, err := svc.RegisterResident(context.Background(), User{
		Username: username,
		Password: "secret",
		FullName: "Test Resident",
	})
	if err != nil {
		t.Fatalf("register resident %s: %v", username, err)
	}
	return u
}

func mustCreateApprovedPharmacy(t *testing.T, svc *Service, name string) Pharmacy {
	t.Helper()
	ctx := context.Background()
	ph, _, err := svc.CreatePharmacy(ctx, Pharmacy{Name: name})
	if err != nil {
		t.Fatalf("create pharmacy %s: %v", name, err)
	}
	approved, _, err := svc.ApprovePharmacy(ctx, ph.ID)
	if err != nil {
		t.Fatalf("approve pharmacy %s: %v", name, err)
	}
	return approved
}

func mustCreateMedicine(t *testing.T, svc *Service, pharmacyID int64, brand string, qty int, price float64) Medicine {
	t.Helper()
	m, _, err := svc.CreateMedicine(context.Background(), Medicine{
		PharmacyID:        pharmacyID,
		BrandName:         brand,
		GenericName:       brand + " Generic",
		Dosage:            "500mg",
		DosageForm:        "Tablet",
		Price:             price,
		QuantityAvailable: qty,
		Category:          "Over-the-Counter",
	})
	if err != nil {
		t.Fatalf("create medicine %s: %v", brand, err)
	}
	return m
}

func TestRunRecordsMetricsAndTraces(t *testing.T) {
	clock := newTestClock()
	store := memory.NewStore(DefaultRulesEngine())
	store.SetClock(clock.Now)
	metrics := NewExpvarMetricsRecorder("")
	tracer := NewJSONTracer(nil)
	svc := NewService(store, blobmemory.New(), WithClock(clock), WithMetrics(metrics), WithTracer(tracer))

	mustRegisterResident(t, svc, "alice")
	if _, _, err := svc.RegisterResident(context.Background(), User{Username: "alice", Password: "x", FullName: "Dup"}); err == nil {
		t.Fatal("duplicate username should fail")
	}

	snap := metrics.Snapshot()
	if snap.Results["register_resident"]["success"] != 1 || snap.Results["register_resident"]["error"] != 1 {
		t.Fatalf("unexpected metrics: %+v", snap.Results)
	}
	entries := tracer.Entries()
	if len(entries) != 2 || entries[0].Status != "success" || entries[1].Status != "error" {
		t.Fatalf("unexpected trace entries: %+v", entries)
	}
}

type recordingLogger struct {
	mu     sync.Mutex
	debugs []string
}

func (l *recordingLogger) Debug(msg string, kv ...any) {
	l.mu.Lock()
	l.debugs = append(l.debugs, fmt.Sprintf("%s %v", msg, kv))
	l.mu.Unlock()
}

func (l *recordingLogger) Info(msg string, kv ...any)  {}
func (l *recordingLogger) Error(msg string, kv ...any) {}

func TestRunLogsCommitsWithViolationCount(t *testing.T) {
	logger := &recordingLogger{}
	clock := newTestClock()
	store := memory.NewStore(DefaultRulesEngine())
	store.SetClock(clock.Now)
	svc := NewService(store, blobmemory.New(), WithClock(clock), WithLogger(logger))

	mustRegisterResident(t, svc, "alice")

	logger.mu.Lock()
	defer logger.mu.Unlock()
	if len(logger.debugs) == 0 {
		t.Fatal("committed operation left no debug log")
	}
	line := logger.debugs[len(logger.debugs)-1]
	if !strings.Contains(line, "register_resident") || !strings.Contains(line, "violations") {
		t.Fatalf("commit log line = %q", line)
	}
}

func TestReferenceNumbersAreUniqueAndWellFormed(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	user := mustRegisterResident(t, svc, "alice")
	ph := mustCreateApprovedPharmacy(t, svc, "Central Pharmacy")
	med := mustCreateMedicine(t, svc, ph.ID, "Biogesic", 1000, 4.5)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		r, _, err := svc.Reserve(ctx, user.ID, med.ID, 1, domain.PayAtStore)
		if err != nil {
			t.Fatalf("reserve %d: %v", i, err)
		}
		ref := r.ReferenceNumber
		if len(ref) != 10 {
			t.Fatalf("reference %q has wrong length", ref)
		}
		for _, c := range ref {
			if !strings.ContainsRune(refAlphabet, c) {
				t.Fatalf("reference %q contains %q outside alphabet", ref, c)
			}
		}
		if seen[ref] {
			t.Fatalf("duplicate reference %q", ref)
		}
		seen[ref] = true
	}
}

func TestSeedDemoDataOnlyRunsOnce(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	if err := svc.SeedDemoData(ctx, nil); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if got := len(svc.Store().ListPharmacies()); got != 3 {
		t.Fatalf("expected 3 pharmacies, got %d", got)
	}
	if got := len(svc.Store().ListMedicines()); got != 15 {
		t.Fatalf("expected 15 medicines, got %d", got)
	}
	admin, err := svc.Authenticate(ctx, "admin", "admin123")
	if err != nil || admin.Role != domain.RoleAdmin {
		t.Fatalf("admin login = %+v, %v", admin, err)
	}
	if err := svc.SeedDemoData(ctx, nil); err == nil {
		t.Fatal("second seed should fail")
	}
}

func TestSweeperRunsUntilCancelled(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()
	user := mustRegisterResident(t, svc, "alice")
	ph := mustCreateApprovedPharmacy(t, svc, "Central Pharmacy")
	med := mustCreateMedicine(t, svc, ph.ID, "Biogesic", 10, 4.5)
	if _, _, err := svc.Reserve(ctx, user.ID, med.ID, 2, domain.PayAtStore); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	clock.Advance(25 * time.Hour)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		NewSweeper(svc, time.Hour).Run(runCtx)
	}()
	// The sweeper performs one pass immediately; wait for it to land.
	deadline := time.After(2 * time.Second)
	for {
		r, err := svc.GetReservation(ctx, 1)
		if err != nil {
			t.Fatalf("get reservation: %v", err)
		}
		if r.Status == domain.ReservationExpired {
			break
		}
		select {
		case <-deadline:
			t.Fatal("sweeper never expired the reservation")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop on cancel")
	}
}

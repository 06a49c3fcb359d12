package audit

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"
)

func TestService_AppendRequiresPatientAndAction(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.Append(context.Background(), Entry{Action: ActionVerify}); !errors.Is(err, ErrInvalidEntry) {
		t.Fatalf("expected ErrInvalidEntry, got %v", err)
	}
	if err := svc.Append(context.Background(), Entry{PatientID: "PAT-001", Action: "delete"}); !errors.Is(err, ErrInvalidEntry) {
		t.Fatalf("expected ErrInvalidEntry, got %v", err)
	}
	if n := len(repo.Entries()); n != 0 {
		t.Fatalf("expected nothing stored, got %d", n)
	}
}

func TestService_AppendStampsEntry(t *testing.T) {
	repo := NewMemoryRepo()
	fixed := time.Date(2025, 3, 1, 9, 30, 0, 0, time.FixedZone("EAT", 3*3600))
	svc := NewService(repo).WithClock(func() time.Time { return fixed })

	err := svc.Append(context.Background(), Entry{
		PatientID: "PAT-001",
		Action:    ActionRegister,
		UserID:    "U1",
		UserRole:  "front_desk",
		IPAddress: "10.0.0.7",
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	got := repo.Entries()
	if len(got) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(got))
	}
	e := got[0]
	if e.ID == "" {
		t.Fatalf("expected id assigned")
	}
	if !e.Timestamp.Equal(fixed) || e.Timestamp.Location() != time.UTC {
		t.Fatalf("expected UTC timestamp %v, got %v", fixed.UTC(), e.Timestamp)
	}
	if e.Details.Success() {
		t.Fatalf("missing success flag must default to false")
	}
	if _, ok := e.Details[KeySuccess]; !ok {
		t.Fatalf("expected success key present")
	}
}

func TestService_AppendDoesNotMutateCallerDetails(t *testing.T) {
	svc := NewService(NewMemoryRepo())
	d := Details{KeyReason: "device lost"}

	if err := svc.Append(context.Background(), Entry{PatientID: "P", Action: ActionResetRequest, Details: d}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if _, ok := d[KeySuccess]; ok {
		t.Fatalf("caller map was modified")
	}
}

func TestService_ListByPatientNewestFirstWithLimit(t *testing.T) {
	repo := NewMemoryRepo()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	svc := NewService(repo).WithClock(func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	})

	ctx := context.Background()
	for _, a := range []Action{ActionRegister, ActionVerify, ActionResetRequest} {
		if err := svc.Append(ctx, Entry{PatientID: "P1", Action: a, Details: Details{KeySuccess: true}}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := svc.Append(ctx, Entry{PatientID: "P2", Action: ActionRegister}); err != nil {
		t.Fatalf("append: %v", err)
	}

	all, err := svc.ListByPatient(ctx, "P1", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(all))
	}
	if all[0].Action != ActionResetRequest || all[2].Action != ActionRegister {
		t.Fatalf("expected newest first, got %s..%s", all[0].Action, all[2].Action)
	}

	two, err := svc.ListByPatient(ctx, "P1", 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(two) != 2 || two[0].Action != ActionResetRequest {
		t.Fatalf("unexpected limited list: %+v", two)
	}

	if _, err := svc.ListByPatient(ctx, "", 10); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestService_AppendSurfacesRepoFailure(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	boom := errors.New("store down")
	repo.FailAppends(boom)

	if err := svc.Append(context.Background(), Entry{PatientID: "P", Action: ActionVerify}); !errors.Is(err, boom) {
		t.Fatalf("expected repo error, got %v", err)
	}
}

func TestService_IDsFollowAppendOrderWithinSameTimestamp(t *testing.T) {
	repo := NewMemoryRepo()
	fixed := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	svc := NewService(repo).WithClock(func() time.Time { return fixed })

	for i := 0; i < 50; i++ {
		if err := svc.Append(context.Background(), Entry{PatientID: "PAT-001", Action: ActionVerify}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	entries := repo.Entries()
	ids := make([]string, len(entries))
	for i, e := range entries {
		if !e.Timestamp.Equal(fixed) {
			t.Fatalf("entry %d: unexpected timestamp %v", i, e.Timestamp)
		}
		ids[i] = e.ID
	}
	if !sort.StringsAreSorted(ids) {
		t.Fatalf("ids not in append order: %v", ids)
	}
	for i := 1; i < len(ids); i++ {
		if ids[i] == ids[i-1] {
			t.Fatalf("duplicate id %s", ids[i])
		}
	}
}

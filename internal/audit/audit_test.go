package audit

import (
	"context"
	"testing"
	"time"

	"accessgov.org/internal/directory"
	"accessgov.org/internal/store/memory"
)

var auditNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func event(role directory.Role) Event {
	return Event{
		Role:       role,
		CitizenID:  "c1",
		Method:     "GET",
		Object:     "PublicService",
		StatusCode: 200,
		IPAddress:  "10.0.0.1",
		At:         auditNow,
	}
}

func TestRecorderBuffersUpToCapacity(t *testing.T) {
	rec := NewRecorder(2)
	for i := 0; i < 5; i++ {
		rec.Record(event(directory.RoleCitizen))
	}
	if got := rec.Pending(); got != 2 {
		t.Fatalf("pending = %d, want capacity 2", got)
	}

	// A full buffer drops the database copy silently; recording never fails.
	events := rec.Drain()
	if len(events) != 2 {
		t.Fatalf("drained %d events", len(events))
	}
	if rec.Pending() != 0 {
		t.Fatal("drain did not reset the buffer")
	}
}

func TestRecorderStreamOnlyMode(t *testing.T) {
	rec := NewRecorder(0)
	rec.Record(event(directory.RoleCitizen))
	if rec.Pending() != 0 {
		t.Fatal("stream-only recorder buffered an event")
	}
}

func TestIngestWritesLogsAndCron(t *testing.T) {
	ctx := context.Background()
	svc := directory.NewService(memory.NewStore(),
		directory.WithClock(func() time.Time { return auditNow }))
	rec := NewRecorder(16)

	rec.Record(event(directory.RoleCitizen))
	rec.Record(event(directory.RoleGrantee))

	if err := rec.Ingest(ctx, svc); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if rec.Pending() != 0 {
		t.Fatal("ingest left events buffered")
	}

	citizenLogs, err := svc.Store().Logs().List(ctx, directory.RoleCitizen, directory.Everything())
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	if len(citizenLogs) != 1 {
		t.Fatalf("citizen logs = %d, want 1", len(citizenLogs))
	}

	crons, err := svc.Store().Crons().List(ctx, directory.Everything())
	if err != nil {
		t.Fatalf("list crons: %v", err)
	}
	if len(crons) != 1 {
		t.Fatalf("crons = %d, want 1", len(crons))
	}
	if crons[0].CronName != directory.CronSystemLog || !crons[0].Success {
		t.Fatalf("cron bookkeeping wrong: %+v", crons[0])
	}
}

func TestIngestEmptyBufferIsNoop(t *testing.T) {
	ctx := context.Background()
	svc := directory.NewService(memory.NewStore())
	rec := NewRecorder(16)

	if err := rec.Ingest(ctx, svc); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	crons, err := svc.Store().Crons().List(ctx, directory.Everything())
	if err != nil {
		t.Fatalf("list crons: %v", err)
	}
	if len(crons) != 0 {
		t.Fatal("empty ingest still booked a cron run")
	}
}

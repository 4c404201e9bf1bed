// Package audit records who touched what. Every authenticated request
// produces one event, emitted immediately as a structured log line and
// buffered for batch ingestion into the role-stratified system log tables.
package audit

import (
	"context"
	"sync"
	"time"

	"accessgov.org/internal/directory"
	"accessgov.org/internal/ids"
	"accessgov.org/internal/obs"
)

// Event is one access record before ingestion.
type Event struct {
	Role       directory.Role
	CitizenID  string
	ActorName  string
	Method     string
	Object     string
	RecordID   string
	StatusCode int
	Message    string
	IPAddress  string
	At         time.Time
}

// Recorder buffers events between ingestion runs. Recording never blocks
// the request path and never fails it; when the buffer is full the event
// still reaches the log stream and only the database copy is dropped.
type Recorder struct {
	mu     sync.Mutex
	buf    []Event
	maxBuf int
}

// NewRecorder builds a recorder with the given buffer capacity. A
// non-positive capacity disables buffering; events then go to the log
// stream only, which is the degraded mode used when ingestion is not
// configured.
func NewRecorder(maxBuf int) *Recorder {
	return &Recorder{maxBuf: maxBuf}
}

// Record emits the event to the shared log stream and, when ingestion is
// configured, queues it for the next batch run.
func (r *Recorder) Record(ev Event) {
	obs.LogRequest(map[string]any{
		"ts":       ev.At.UTC().Format(time.RFC3339Nano),
		"level":    "info",
		"msg":      "access",
		"role":     string(ev.Role),
		"Citizen":  ev.CitizenID,
		"Actor":    ev.ActorName,
		"Method":   ev.Method,
		"Object":   ev.Object,
		"RecordId": ev.RecordID,
		"status":   ev.StatusCode,
		"Message":  ev.Message,
		"ip":       ev.IPAddress,
	})
	if r.maxBuf <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.buf) >= r.maxBuf {
		return
	}
	r.buf = append(r.buf, ev)
}

// Drain returns the buffered events and resets the buffer.
func (r *Recorder) Drain() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.buf
	r.buf = nil
	return out
}

// Pending reports the current buffer depth.
func (r *Recorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buf)
}

// Ingest flushes the buffered events into the system log under one cron
// bookkeeping record. Events that fail to append are counted and the run
// is marked failed, but the rest of the batch still lands.
func (r *Recorder) Ingest(ctx context.Context, svc *directory.Service) error {
	events := r.Drain()
	if len(events) == 0 {
		return nil
	}
	_, err := svc.RecordCronRun(ctx, directory.CronSystemLog, func() error {
		var firstErr error
		for _, ev := range events {
			entry := &directory.SystemLog{
				ID:         ids.New(),
				Role:       ev.Role,
				CitizenID:  ev.CitizenID,
				ActorName:  ev.ActorName,
				Method:     ev.Method,
				Object:     ev.Object,
				RecordID:   ev.RecordID,
				StatusCode: ev.StatusCode,
				Message:    ev.Message,
				IPAddress:  ev.IPAddress,
				Created:    ev.At,
				Updated:    ev.At,
			}
			if err := svc.Store().Logs().Append(ctx, entry); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	})
	return err
}

// Run ingests on the given interval until the context ends. Interval at or
// below zero disables the loop.
func (r *Recorder) Run(ctx context.Context, svc *directory.Service, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Ingest(ctx, svc); err != nil {
				obs.LogRequest(map[string]any{
					"ts":    time.Now().UTC().Format(time.RFC3339Nano),
					"level": "error",
					"msg":   "system log ingestion failed",
					"error": err.Error(),
				})
			}
		}
	}
}

package jobqueue

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestPutGetFIFOTieBreak(t *testing.T) {
	b := New()
	id1 := b.Put("q1", 5, json.RawMessage(`{"n":1}`))
	id2 := b.Put("q1", 5, json.RawMessage(`{"n":2}`))

	job, ok := b.Get(context.Background(), 1, []string{"q1"}, false)
	if !ok {
		t.Fatal("expected a job")
	}
	if job.ID != id1 {
		t.Fatalf("expected FIFO winner id %d, got %d (other id %d)", id1, job.ID, id2)
	}
}

func TestGetHighestPriorityAcrossQueues(t *testing.T) {
	b := New()
	b.Put("low", 1, json.RawMessage(`{}`))
	want := b.Put("high", 100, json.RawMessage(`{}`))

	job, ok := b.Get(context.Background(), 1, []string{"low", "high"}, false)
	if !ok || job.ID != want {
		t.Fatalf("expected job %d, got %+v ok=%v", want, job, ok)
	}
}

func TestGetNoWaitReturnsFalse(t *testing.T) {
	b := New()
	if _, ok := b.Get(context.Background(), 1, []string{"empty"}, false); ok {
		t.Fatal("expected no job")
	}
}

func TestGetWaitsUntilPut(t *testing.T) {
	b := New()
	done := make(chan *Job, 1)
	go func() {
		job, _ := b.Get(context.Background(), 1, []string{"q"}, true)
		done <- job
	}()

	time.Sleep(20 * time.Millisecond)
	id := b.Put("q", 1, json.RawMessage(`{}`))

	select {
	case job := <-done:
		if job == nil || job.ID != id {
			t.Fatalf("expected job %d, got %+v", id, job)
		}
	case <-time.After(time.Second):
		t.Fatal("Get never returned")
	}
}

func TestAbortRequeuesJob(t *testing.T) {
	b := New()
	id := b.Put("q", 1, json.RawMessage(`{}`))
	job, ok := b.Get(context.Background(), 1, []string{"q"}, false)
	if !ok || job.ID != id {
		t.Fatalf("setup failed: %+v %v", job, ok)
	}

	if ok, _ := b.Abort(1, id); !ok {
		t.Fatal("abort should succeed")
	}
	job2, ok := b.Get(context.Background(), 2, []string{"q"}, false)
	if !ok || job2.ID != id {
		t.Fatalf("expected requeued job %d, got %+v", id, job2)
	}
}

func TestAbortWrongClientFails(t *testing.T) {
	b := New()
	id := b.Put("q", 1, json.RawMessage(`{}`))
	if _, ok := b.Get(context.Background(), 1, []string{"q"}, false); !ok {
		t.Fatal("setup failed")
	}
	if ok, msg := b.Abort(2, id); ok || msg == "" {
		t.Fatalf("expected failure with message, got ok=%v msg=%q", ok, msg)
	}
}

func TestDisconnectRequeuesHeldJobs(t *testing.T) {
	b := New()
	id := b.Put("q", 1, json.RawMessage(`{}`))
	if _, ok := b.Get(context.Background(), 1, []string{"q"}, false); !ok {
		t.Fatal("setup failed")
	}
	b.Disconnect(1)

	job, ok := b.Get(context.Background(), 2, []string{"q"}, false)
	if !ok || job.ID != id {
		t.Fatalf("expected requeued job %d after disconnect, got %+v", id, job)
	}
}

func TestDeleteRemovesQueuedJob(t *testing.T) {
	b := New()
	id := b.Put("q", 1, json.RawMessage(`{}`))
	if !b.Delete(id) {
		t.Fatal("expected delete to succeed")
	}
	if _, ok := b.Get(context.Background(), 1, []string{"q"}, false); ok {
		t.Fatal("expected no job after delete")
	}
}

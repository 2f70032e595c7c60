package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/V4T54L/worksync/internal/adapter/repository/memory"
	"github.com/V4T54L/worksync/internal/domain"
)

func TestAdminQueuesUseCase(t *testing.T) {
	ctx := context.Background()
	ingest := newIngest(memory.NewStore())
	dead := &memory.DeadLetters{}
	uc := NewAdminQueuesUseCase(ingest.Queues(), dead, nil)

	e := appUsage("EMP001", "Chrome", 60, domain.PriorityHigh, time.Now())
	if err := ingest.Submit(ctx, &e); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := dead.DeadLetter(ctx, e, domain.ErrStore); err != nil {
		t.Fatalf("dead letter: %v", err)
	}

	stats, err := uc.QueueStats(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(stats) != 6 {
		t.Fatalf("expected 6 queues, got %d", len(stats))
	}
	if stats[0].Queue != "alert:high" {
		t.Errorf("expected queues sorted by name, first is %q", stats[0].Queue)
	}
	for _, s := range stats {
		want := int64(0)
		if s.Queue == "app-usage:high" {
			want = 1
		}
		if s.Depth != want {
			t.Errorf("queue %s: expected depth %d, got %d", s.Queue, want, s.Depth)
		}
	}

	dl, err := uc.DeadLetterStats(ctx)
	if err != nil {
		t.Fatalf("dead letter stats: %v", err)
	}
	if dl.Depth != 1 {
		t.Errorf("expected dead letter depth 1, got %d", dl.Depth)
	}

	none, err := NewAdminQueuesUseCase(ingest.Queues(), nil, nil).DeadLetterStats(ctx)
	if err != nil {
		t.Fatalf("dead letter stats without sink: %v", err)
	}
	if none.Depth != 0 {
		t.Errorf("expected zero depth without a sink, got %d", none.Depth)
	}
}

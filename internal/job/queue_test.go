package job

import (
	"context"
	stdErrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMemoryQueueDeliversToAllWorkers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue := NewMemoryQueue(16)
	var mu sync.Mutex
	seen := map[string]int{}
	done := make(chan error, 1)
	go func() {
		done <- queue.Consume(ctx, 3, func(_ context.Context, jobID string) error {
			mu.Lock()
			seen[jobID]++
			mu.Unlock()
			return nil
		})
	}()

	for _, id := range []string{"a", "b", "c", "d"} {
		if err := queue.Publish(ctx, id); err != nil {
			t.Fatalf("投递失败: %v", err)
		}
	}
	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 4
	})

	cancel()
	select {
	case err := <-done:
		if !stdErrors.Is(err, context.Canceled) {
			t.Fatalf("取消后应返回 context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("取消后消费者未退出")
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("作业 %s 被处理 %d 次", id, n)
		}
	}
}

func TestMemoryQueueRequeuesOnHandlerError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue := NewMemoryQueue(4)
	var calls atomic.Int32
	go func() {
		_ = queue.Consume(ctx, 1, func(context.Context, string) error {
			if calls.Add(1) == 1 {
				return stdErrors.New("store unavailable")
			}
			return nil
		})
	}()

	if err := queue.Publish(ctx, "retry-me"); err != nil {
		t.Fatalf("投递失败: %v", err)
	}
	waitFor(t, time.Second, func() bool { return calls.Load() == 2 })
}

func TestMemoryQueueClosed(t *testing.T) {
	queue := NewMemoryQueue(1)
	if err := queue.Close(); err != nil {
		t.Fatalf("关闭失败: %v", err)
	}
	if err := queue.Publish(context.Background(), "late"); err == nil {
		t.Fatalf("关闭后投递应失败")
	}
	if err := queue.Consume(context.Background(), 2, func(context.Context, string) error { return nil }); err != nil {
		t.Fatalf("关闭的队列应正常结束消费: %v", err)
	}
	if err := queue.Close(); err != nil {
		t.Fatalf("重复关闭不应报错: %v", err)
	}
}

func TestRunWorkersStopsOnFirstError(t *testing.T) {
	boom := stdErrors.New("redis down")
	var started atomic.Int32
	err := runWorkers(context.Background(), 3, func(ctx context.Context) error {
		if started.Add(1) == 1 {
			return boom
		}
		<-ctx.Done()
		return ctx.Err()
	})
	if !stdErrors.Is(err, boom) {
		t.Fatalf("应返回首个错误, got %v", err)
	}
}

func TestRabbitMQRequeuePolicy(t *testing.T) {
	cases := []struct {
		redelivered, deadLetter, want bool
	}{
		{false, false, true},
		{false, true, true},
		{true, false, true},
		{true, true, false},
	}
	for _, tc := range cases {
		if got := requeue(tc.redelivered, tc.deadLetter); got != tc.want {
			t.Fatalf("requeue(%v, %v) = %v, want %v", tc.redelivered, tc.deadLetter, got, tc.want)
		}
	}
	if args := queueArgs(RabbitMQConfig{Queue: "jobs"}); args != nil {
		t.Fatalf("未配置死信队列时不应设置参数: %v", args)
	}
	args := queueArgs(RabbitMQConfig{Queue: "jobs", DeadLetterQueue: "jobs.dead"})
	if args["x-dead-letter-exchange"] != "jobs.dlx" {
		t.Fatalf("死信交换机不正确: %v", args)
	}
}

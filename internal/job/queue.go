package job

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Handler 处理来自消息队列的作业 ID。返回错误表示该消息应当重新投递。
type Handler func(ctx context.Context, jobID string) error

// Producer 负责向队列投递作业。
type Producer interface {
	Publish(ctx context.Context, jobID string) error
	Close() error
}

// Consumer 负责从队列中消费作业。
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue 同时具备生产者与消费者能力。
type Queue interface {
	Producer
	Consumer
}

// runWorkers 启动 n 个消费协程并等待全部退出。任一协程返回错误时取消其余协程，
// 返回第一个错误；全部正常退出时返回外层 ctx 的错误。
func runWorkers(ctx context.Context, n int, work func(ctx context.Context) error) error {
	if n <= 0 {
		n = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error { return work(gctx) })
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

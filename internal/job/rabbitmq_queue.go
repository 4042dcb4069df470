package job

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	xerrors "WalletFleet/internal/errors"
)

// DefaultRabbitMQQueue 是未配置时声明的队列名称。
const DefaultRabbitMQQueue = "walletfleet.jobs"

// RabbitMQConfig 描述 RabbitMQ 队列的连接参数。
type RabbitMQConfig struct {
	URL        string
	Queue      string
	Prefetch   int
	Durable    bool
	AutoDelete bool
	// DeadLetterQueue 非空时声明 <Queue>.dlx 交换机与该死信队列，
	// 重投后仍处理失败的作业 ID 会落入其中等待人工处理。
	DeadLetterQueue string
}

// RabbitMQQueue 使用 RabbitMQ 实现作业队列。
type RabbitMQQueue struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	queue      string
	deadLetter bool
}

// NewRabbitMQQueue 连接 RabbitMQ 并声明作业队列（以及可选的死信拓扑）。
func NewRabbitMQQueue(cfg RabbitMQConfig) (*RabbitMQQueue, error) {
	if cfg.URL == "" {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "RabbitMQ URL 不能为空")
	}
	if cfg.Queue == "" {
		cfg.Queue = DefaultRabbitMQQueue
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "连接 RabbitMQ 失败")
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, xerrors.Wrap(xerrors.CodeQueueFailure, err, "创建 RabbitMQ channel 失败")
	}
	if err := declareTopology(ch, cfg); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &RabbitMQQueue{conn: conn, ch: ch, queue: cfg.Queue, deadLetter: cfg.DeadLetterQueue != ""}, nil
}

func declareTopology(ch *amqp.Channel, cfg RabbitMQConfig) error {
	if cfg.Prefetch > 0 {
		if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
			return xerrors.Wrap(xerrors.CodeQueueFailure, err, "设置 RabbitMQ QOS 失败")
		}
	}
	args := queueArgs(cfg)
	if exchange, ok := args["x-dead-letter-exchange"].(string); ok {
		if err := ch.ExchangeDeclare(exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
			return xerrors.Wrap(xerrors.CodeQueueFailure, err, "声明死信交换机失败")
		}
		if _, err := ch.QueueDeclare(cfg.DeadLetterQueue, true, false, false, false, nil); err != nil {
			return xerrors.Wrap(xerrors.CodeQueueFailure, err, "声明死信队列失败")
		}
		if err := ch.QueueBind(cfg.DeadLetterQueue, "", exchange, false, nil); err != nil {
			return xerrors.Wrap(xerrors.CodeQueueFailure, err, "绑定死信队列失败")
		}
	}
	if _, err := ch.QueueDeclare(cfg.Queue, cfg.Durable, cfg.AutoDelete, false, false, args); err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "声明 RabbitMQ 队列失败")
	}
	return nil
}

func queueArgs(cfg RabbitMQConfig) amqp.Table {
	if cfg.DeadLetterQueue == "" {
		return nil
	}
	return amqp.Table{"x-dead-letter-exchange": cfg.Queue + ".dlx"}
}

// Publish 将作业 ID 作为持久化消息投递。
func (q *RabbitMQQueue) Publish(ctx context.Context, jobID string) error {
	if q == nil || q.ch == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "RabbitMQ 队列未初始化")
	}
	err := q.ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  "text/plain",
		DeliveryMode: amqp.Persistent,
		MessageId:    jobID,
		AppId:        "walletfleet",
		Timestamp:    time.Now(),
		Body:         []byte(jobID),
	})
	if err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "RabbitMQ 发布作业失败")
	}
	return nil
}

// Consume 以手动确认模式消费。处理失败的消息首次重新入队；
// 已经重投过的消息在配置了死信队列时转入死信，否则再次入队。
func (q *RabbitMQQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if q == nil || q.ch == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "RabbitMQ 队列未初始化")
	}
	msgs, err := q.ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeQueueFailure, err, "订阅 RabbitMQ 队列失败")
	}
	return runWorkers(ctx, workerCount, func(ctx context.Context) error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case msg, ok := <-msgs:
				if !ok {
					return nil
				}
				if err := handler(ctx, string(msg.Body)); err != nil {
					_ = msg.Nack(false, requeue(msg.Redelivered, q.deadLetter))
					continue
				}
				_ = msg.Ack(false)
			}
		}
	})
}

func requeue(redelivered, deadLetter bool) bool {
	return !redelivered || !deadLetter
}

// Close 关闭 RabbitMQ 连接。
func (q *RabbitMQQueue) Close() error {
	if q == nil {
		return nil
	}
	if q.ch != nil {
		_ = q.ch.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

var _ Queue = (*RabbitMQQueue)(nil)

// Package worker delivers queued notifications in the background so request
// handlers never wait on slow transports.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"sleeplog-backend/internal/models"
)

const (
	QueueName   = "queue:notifications"
	maxAttempts = 3
	sendTimeout = 30 * time.Second
	localBuffer = 64
)

var ErrQueueFull = errors.New("notification queue is full")

// Deliverer performs the actual fan-out; *services.Dispatcher satisfies it.
type Deliverer interface {
	Send(ctx context.Context, n models.Notification) error
}

type job struct {
	ID           uuid.UUID           `json:"id"`
	Notification models.Notification `json:"notification"`
	RetryCount   int                 `json:"retry_count"`
}

// Pool drains the notification queue. With a Redis client the queue is a
// Redis list shared by every instance; without one it is an in-process
// buffered channel.
type Pool struct {
	redis       *redis.Client
	deliver     Deliverer
	workerCount int
	backoff     func(attempt int) time.Duration
	pollBackoff time.Duration

	local  chan job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPool(redisClient *redis.Client, deliver Deliverer, workerCount int) *Pool {
	if workerCount <= 0 {
		workerCount = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		redis:       redisClient,
		deliver:     deliver,
		workerCount: workerCount,
		backoff:     func(attempt int) time.Duration { return time.Duration(1<<uint(attempt)) * time.Second },
		pollBackoff: 2 * time.Second,
		local:       make(chan job, localBuffer),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Send enqueues n, which lets the pool stand in for a synchronous notifier.
func (p *Pool) Send(ctx context.Context, n models.Notification) error {
	return p.enqueue(ctx, job{ID: uuid.New(), Notification: n})
}

func (p *Pool) enqueue(ctx context.Context, j job) error {
	if p.redis != nil {
		data, err := json.Marshal(j)
		if err != nil {
			return fmt.Errorf("failed to encode notification job: %w", err)
		}
		if err := p.redis.RPush(ctx, QueueName, data).Err(); err != nil {
			return fmt.Errorf("failed to enqueue notification: %w", err)
		}
		return nil
	}

	select {
	case p.local <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	log.Info().Int("workers", p.workerCount).Bool("redis", p.redis != nil).Msg("notification workers started")
}

// Stop ends the workers after their current job. Jobs still queued in Redis
// survive for the next start; local ones are dropped.
func (p *Pool) Stop() {
	p.cancel()
	p.wg.Wait()
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		j, ok := p.next()
		if !ok {
			log.Debug().Int("worker", id).Msg("notification worker shutting down")
			return
		}
		p.process(id, j)
	}
}

// next blocks until a job is available or the pool stops.
func (p *Pool) next() (job, bool) {
	if p.redis == nil {
		select {
		case <-p.ctx.Done():
			return job{}, false
		case j := <-p.local:
			return j, true
		}
	}

	for {
		if p.ctx.Err() != nil {
			return job{}, false
		}
		result, err := p.redis.BLPop(p.ctx, time.Second, QueueName).Result()
		if errors.Is(err, redis.Nil) {
			continue // Timeout
		}
		if err != nil {
			if p.ctx.Err() != nil {
				return job{}, false
			}
			log.Warn().Err(err).Dur("retry_in", p.pollBackoff).Msg("notification queue unavailable")
			select {
			case <-p.ctx.Done():
				return job{}, false
			case <-time.After(p.pollBackoff):
			}
			continue
		}
		if len(result) < 2 {
			continue
		}
		var j job
		if err := json.Unmarshal([]byte(result[1]), &j); err != nil {
			log.Warn().Err(err).Msg("dropping malformed notification job")
			continue
		}
		return j, true
	}
}

func (p *Pool) process(id int, j job) {
	if p.redis != nil {
		// Guard against a job pushed twice by a retry racing a restart.
		lockKey := fmt.Sprintf("notification_lock:%s:%d", j.ID, j.RetryCount)
		locked, err := p.redis.SetNX(p.ctx, lockKey, "1", 10*time.Minute).Result()
		if err != nil || !locked {
			return
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	err := p.deliver.Send(ctx, j.Notification)
	if err == nil {
		log.Debug().Int("worker", id).Str("job", j.ID.String()).Msg("notification delivered")
		return
	}
	p.handleFailure(j, err)
}

func (p *Pool) handleFailure(j job, err error) {
	j.RetryCount++
	if j.RetryCount >= maxAttempts {
		log.Error().Err(err).Str("job", j.ID.String()).Str("title", j.Notification.Title).Msg("notification failed permanently")
		return
	}

	delay := p.backoff(j.RetryCount)
	log.Warn().Err(err).Str("job", j.ID.String()).Int("attempt", j.RetryCount).Dur("backoff", delay).Msg("notification failed, retrying")
	time.AfterFunc(delay, func() {
		if p.ctx.Err() != nil {
			return
		}
		if err := p.enqueue(context.Background(), j); err != nil {
			log.Error().Err(err).Str("job", j.ID.String()).Msg("failed to requeue notification")
		}
	})
}

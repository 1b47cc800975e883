// Package redisq provides an adapter backed by Redis streams.
//
// Each queue is a stream read through a consumer group, so several
// workers can share it. Scheduled jobs wait in a sorted set scored by
// their run time until Promote moves them onto their stream. Failed
// deliveries are acknowledged and copied to a dead stream for inspection;
// retries are enqueued by the worker as new jobs.
package redisq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	ojs "github.com/openjobspec/ojs-jobtrace"
	"github.com/redis/go-redis/v9"
)

// Name is the adapter name reported on spans.
const Name = "redis"

const (
	fieldJob   = "job"
	fieldError = "error"
	fieldQueue = "queue"
)

// Adapter enqueues to and fetches from Redis streams.
type Adapter struct {
	rdb      redis.UniversalClient
	prefix   string
	group    string
	consumer string
	batch    int64

	groups sync.Map // stream key -> struct{}
}

var (
	_ ojs.Adapter  = (*Adapter)(nil)
	_ ojs.Consumer = (*Adapter)(nil)
)

// Option configures an Adapter.
type Option func(*Adapter)

// WithPrefix sets the key prefix. Default: "ojs".
func WithPrefix(prefix string) Option {
	return func(a *Adapter) { a.prefix = prefix }
}

// WithGroup sets the consumer group name. Default: "ojs-workers".
func WithGroup(group string) Option {
	return func(a *Adapter) { a.group = group }
}

// WithConsumer sets this process's consumer name within the group.
// Default: a random name.
func WithConsumer(name string) Option {
	return func(a *Adapter) { a.consumer = name }
}

// WithPromoteBatch caps how many scheduled jobs one Promote call moves.
// Default: 100.
func WithPromoteBatch(n int) Option {
	return func(a *Adapter) {
		if n > 0 {
			a.batch = int64(n)
		}
	}
}

// New creates an adapter using rdb.
func New(rdb redis.UniversalClient, opts ...Option) *Adapter {
	a := &Adapter{
		rdb:      rdb,
		prefix:   "ojs",
		group:    "ojs-workers",
		consumer: "consumer-" + uuid.NewString()[:8],
		batch:    100,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name returns "redis".
func (a *Adapter) Name() string { return Name }

// StreamKey returns the stream holding ready jobs of queue.
func (a *Adapter) StreamKey(queue string) string {
	return a.prefix + ":queue:" + queue
}

// ScheduledKey returns the sorted set holding scheduled jobs.
func (a *Adapter) ScheduledKey() string {
	return a.prefix + ":scheduled"
}

// DeadKey returns the stream failed deliveries are copied to.
func (a *Adapter) DeadKey() string {
	return a.prefix + ":dead"
}

// scheduledEntry is a member of the scheduled set.
type scheduledEntry struct {
	ID    string          `json:"id"`
	Queue string          `json:"queue"`
	Data  json.RawMessage `json:"data"`
}

// Enqueue adds data to the queue's stream and returns the stream entry ID.
// Scheduled jobs go to the scheduled set and have no provider ID until
// they are promoted.
func (a *Adapter) Enqueue(ctx context.Context, job *ojs.Job, data []byte) (string, error) {
	if job.Scheduled() {
		member, err := json.Marshal(scheduledEntry{ID: job.ID, Queue: job.Queue, Data: data})
		if err != nil {
			return "", fmt.Errorf("redisq: encode scheduled job: %w", err)
		}
		err = a.rdb.ZAdd(ctx, a.ScheduledKey(), redis.Z{
			Score:  float64(job.ScheduledAt.UnixMilli()),
			Member: member,
		}).Err()
		if err != nil {
			return "", fmt.Errorf("redisq: schedule job %s: %w", job.ID, err)
		}
		return "", nil
	}

	id, err := a.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: a.StreamKey(job.Queue),
		Values: map[string]any{fieldJob: string(data)},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("redisq: enqueue job %s: %w", job.ID, err)
	}
	return id, nil
}

// Promote moves scheduled jobs that are due onto their streams and
// returns how many it moved. It is safe to run from several processes:
// a job is only moved by the caller that removed it from the set.
func (a *Adapter) Promote(ctx context.Context) (int, error) {
	return a.promote(ctx, time.Now())
}

func (a *Adapter) promote(ctx context.Context, now time.Time) (int, error) {
	members, err := a.rdb.ZRangeByScore(ctx, a.ScheduledKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: a.batch,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("redisq: read scheduled jobs: %w", err)
	}

	moved := 0
	var errs []error
	for _, m := range members {
		removed, err := a.rdb.ZRem(ctx, a.ScheduledKey(), m).Result()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if removed == 0 {
			continue
		}

		var entry scheduledEntry
		if err := json.Unmarshal([]byte(m), &entry); err != nil {
			errs = append(errs, fmt.Errorf("redisq: drop corrupt scheduled entry: %w", err))
			continue
		}
		err = a.rdb.XAdd(ctx, &redis.XAddArgs{
			Stream: a.StreamKey(entry.Queue),
			Values: map[string]any{fieldJob: string(entry.Data)},
		}).Err()
		if err != nil {
			errs = append(errs, fmt.Errorf("redisq: promote job %s: %w", entry.ID, err))
			// Put it back so the next pass retries.
			if zerr := a.rdb.ZAdd(ctx, a.ScheduledKey(), redis.Z{Score: float64(now.UnixMilli()), Member: m}).Err(); zerr != nil {
				errs = append(errs, fmt.Errorf("redisq: job %s lost, put back after failed promote: %w", entry.ID, zerr))
			}
			continue
		}
		moved++
	}
	return moved, errors.Join(errs...)
}

// RunScheduler calls Promote every interval until ctx is done. Errors go
// to eh, or to ojs.GlobalErrorHandler when eh is nil.
func (a *Adapter) RunScheduler(ctx context.Context, interval time.Duration, eh ojs.ErrorHandler) {
	if eh == nil {
		eh = ojs.GlobalErrorHandler
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.Promote(ctx); err != nil && ctx.Err() == nil {
				eh.Handle(err)
			}
		}
	}
}

// Fetch reads up to max new entries from the queues' streams, taking
// queues in order. It does not block when the streams are empty.
func (a *Adapter) Fetch(ctx context.Context, queues []string, max int) ([]ojs.Delivery, error) {
	out := make([]ojs.Delivery, 0, max)
	for _, q := range queues {
		if len(out) >= max {
			break
		}
		stream := a.StreamKey(q)
		if err := a.ensureGroup(ctx, stream); err != nil {
			return out, err
		}

		res, err := a.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    a.group,
			Consumer: a.consumer,
			Streams:  []string{stream, ">"},
			Count:    int64(max - len(out)),
			Block:    -1,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return out, fmt.Errorf("redisq: read %s: %w", stream, err)
		}

		for _, s := range res {
			for _, msg := range s.Messages {
				raw, _ := msg.Values[fieldJob].(string)
				out = append(out, &delivery{
					adapter: a,
					queue:   q,
					stream:  s.Stream,
					id:      msg.ID,
					data:    []byte(raw),
				})
			}
		}
	}
	return out, nil
}

func (a *Adapter) ensureGroup(ctx context.Context, stream string) error {
	if _, ok := a.groups.Load(stream); ok {
		return nil
	}
	err := a.rdb.XGroupCreateMkStream(ctx, stream, a.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("redisq: create group on %s: %w", stream, err)
	}
	a.groups.Store(stream, struct{}{})
	return nil
}

// Pending returns how many entries of queue were delivered to the group
// but not acknowledged.
func (a *Adapter) Pending(ctx context.Context, queue string) (int64, error) {
	res, err := a.rdb.XPending(ctx, a.StreamKey(queue), a.group).Result()
	if err != nil {
		return 0, fmt.Errorf("redisq: pending %s: %w", queue, err)
	}
	return res.Count, nil
}

type delivery struct {
	adapter *Adapter
	queue   string
	stream  string
	id      string
	data    []byte
}

func (d *delivery) Data() []byte          { return d.data }
func (d *delivery) ProviderJobID() string { return d.id }

func (d *delivery) Ack(ctx context.Context) error {
	if err := d.adapter.rdb.XAck(ctx, d.stream, d.adapter.group, d.id).Err(); err != nil {
		return fmt.Errorf("redisq: ack %s: %w", d.id, err)
	}
	return nil
}

// Nack acknowledges the entry and copies it to the dead stream along
// with the failure.
func (d *delivery) Nack(ctx context.Context, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	err := d.adapter.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: d.adapter.DeadKey(),
		Values: map[string]any{
			fieldJob:   string(d.data),
			fieldQueue: d.queue,
			fieldError: msg,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("redisq: dead-letter %s: %w", d.id, err)
	}
	return d.Ack(ctx)
}

package mirror

import (
	"context"
	"sync/atomic"
	"time"

	"canlidoviz/internal/application/port"
	"canlidoviz/internal/domain"

	"github.com/rs/zerolog/log"
)

const defaultBuffer = 1024

// Recorder 在行情 goroutine 之外把报价变化写入 QuoteRepository。
// Enqueue 从不阻塞；缓冲区满时丢弃并计数。
type Recorder struct {
	repo    port.QuoteRepository
	in      chan domain.Quote
	timeout time.Duration

	dropped atomic.Uint64
	written atomic.Uint64
	failed  atomic.Uint64
}

func NewRecorder(repo port.QuoteRepository, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	return &Recorder{
		repo:    repo,
		in:      make(chan domain.Quote, buffer),
		timeout: 5 * time.Second,
	}
}

// Enqueue 与会话的变化回调签名一致
func (r *Recorder) Enqueue(q domain.Quote) {
	select {
	case r.in <- q:
	default:
		if n := r.dropped.Add(1); n == 1 || n%1000 == 0 {
			log.Warn().Uint64("dropped", n).Str("symbol", q.Symbol).Msg("mirror buffer full, dropping quote")
		}
	}
}

// Run 持续写入直到 ctx 结束，然后刷出剩余数据
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			r.flush()
			return ctx.Err()
		case q := <-r.in:
			r.write(ctx, q)
		}
	}
}

func (r *Recorder) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	for {
		select {
		case q := <-r.in:
			r.write(ctx, q)
		default:
			return
		}
	}
}

func (r *Recorder) write(ctx context.Context, q domain.Quote) {
	wctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.repo.UpsertQuote(wctx, q); err != nil {
		r.failed.Add(1)
		log.Error().Err(err).Str("symbol", q.Symbol).Msg("mirror upsert failed")
		return
	}
	r.written.Add(1)
}

func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }
func (r *Recorder) Written() uint64 { return r.written.Load() }
func (r *Recorder) Failed() uint64  { return r.failed.Load() }

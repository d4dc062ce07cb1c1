package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"canlidoviz/internal/application/port"
	"canlidoviz/internal/domain"

	"github.com/rs/zerolog/log"
)

const (
	EventSubscribe = "us"
	EventQuotes    = "c"
)

type Status int

const (
	StatusIdle Status = iota
	StatusConnecting
	StatusConnected
	StatusDisconnected
	StatusReconnecting
	StatusExhausted
	StatusTerminated
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusDisconnected:
		return "disconnected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusExhausted:
		return "exhausted"
	case StatusTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Options 会话启动后不再变化；重连策略属于传输层。
type Options struct {
	Categories domain.Category
	// Symbols 非空时完全替代目录解析
	Symbols          map[int]string
	SubscribeTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		Categories:       domain.CategoryCurrency,
		SubscribeTimeout: 10 * time.Second,
	}
}

type Deps struct {
	Transport port.Transport
	Resolver  port.CatalogResolver // 设置了 Options.Symbols 时不使用
	Clock     func() time.Time
}

// Session 持有一条行情流的传输层、品种注册表和报价状态。
//
// 生命周期：
//
//	Idle -> Connecting -> Connected -> (Disconnected -> Reconnecting -> Connected)* -> Terminated
//
// Reconnecting 也可能进入 Exhausted，此后传输层放弃重连；关闭重连时连接结束即进入 Terminated。
type Session struct {
	Events

	opts  Options
	deps  Deps
	state *State
	stats counters

	mu      sync.Mutex
	status  Status
	started bool
	closed  bool
	err     error
	reg     *Registry
	parser  *Parser
	ctx     context.Context
	cancel  context.CancelFunc

	// 进行中的订阅发送
	wg sync.WaitGroup

	closeOnce     sync.Once
	exhaustedOnce sync.Once
	doneOnce      sync.Once
	done          chan struct{}
}

func NewSession(opts Options, deps Deps) *Session {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	return &Session{
		opts:  opts,
		deps:  deps,
		state: NewState(),
		done:  make(chan struct{}),
	}
}

// Start 先解析品种注册表，再启动传输层。只在解析阶段阻塞；
// 之后行情在后台持续，直到 ctx 取消或调用 Close。
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return domain.ErrSessionClosed
	case s.started:
		s.mu.Unlock()
		return domain.ErrAlreadyStarted
	}
	s.started = true
	s.status = StatusConnecting
	s.ctx, s.cancel = context.WithCancel(ctx)
	runCtx := s.ctx
	s.mu.Unlock()

	reg, err := s.buildRegistry(runCtx)
	if err != nil {
		s.closeWith(err)
		return err
	}

	s.mu.Lock()
	s.reg = reg
	s.parser = NewParser(reg)
	s.mu.Unlock()

	log.Info().
		Int("symbols", reg.Len()).
		Int("subscribed", len(reg.SubscribeSymbols())).
		Str("categories", reg.Categories().String()).
		Msg("symbol registry ready")

	if err := s.deps.Transport.Connect(runCtx, s); err != nil {
		err = fmt.Errorf("transport connect: %w", err)
		s.closeWith(err)
		return err
	}

	go func() {
		<-runCtx.Done()
		_ = s.Close()
	}()
	return nil
}

func (s *Session) buildRegistry(ctx context.Context) (*Registry, error) {
	if len(s.opts.Symbols) > 0 {
		return NewStaticRegistry(s.opts.Symbols, s.opts.Categories)
	}
	if s.deps.Resolver == nil {
		return nil, fmt.Errorf("%w: no catalog resolver configured", domain.ErrNoSymbols)
	}
	return BuildRegistry(ctx, s.deps.Resolver, s.opts.Categories)
}

// Close 释放传输层并等待进行中的订阅发送，可重复调用。
func (s *Session) Close() error {
	return s.closeWith(nil)
}

func (s *Session) closeWith(cause error) error {
	var closeErr error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.status = StatusTerminated
		if s.err == nil {
			s.err = cause
		}
		cancel := s.cancel
		s.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if err := s.deps.Transport.Close(); err != nil {
			log.Debug().Err(err).Msg("transport close")
			closeErr = err
		}
		s.wg.Wait()
		s.finish()
	})
	return closeErr
}

func (s *Session) finish() {
	s.doneOnce.Do(func() { close(s.done) })
}

// Done 在会话不再产生更新时关闭：Close、致命错误、重连耗尽或传输层自行结束之后。
func (s *Session) Done() <-chan struct{} { return s.done }

// Wait 阻塞到 Done 并返回 Err
func (s *Session) Wait() error {
	<-s.done
	return s.Err()
}

// Err 终止会话的错误；正常关闭或重连耗尽时为 nil
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Registry 在 Start 完成解析前为 nil
func (s *Session) Registry() *Registry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg
}

func (s *Session) Quote(symbol string) (domain.Quote, bool) {
	return s.state.Get(symbol)
}

// Quotes 按品种代码排序返回所有已知报价
func (s *Session) Quotes() []domain.Quote {
	snap := s.state.Snapshot()
	out := make([]domain.Quote, 0, len(snap))
	for _, q := range snap {
		out = append(out, q)
	}
	slices.SortFunc(out, func(a, b domain.Quote) int { return strings.Compare(a.Symbol, b.Symbol) })
	return out
}

func (s *Session) Stats() Stats { return s.stats.snapshot() }

// 终止状态不可离开
func (s *Session) setStatus(st Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.status == StatusExhausted {
		return
	}
	s.status = st
}

func (s *Session) OnConnected(sid string) {
	s.setStatus(StatusConnected)
	s.logf(domain.SeverityInfo, nil, "Connected - Socket ID: %s", sid)
	s.subscribe()
}

func (s *Session) OnReconnecting(attempt int) {
	s.setStatus(StatusReconnecting)
	s.logf(domain.SeverityInfo, nil, "Reconnecting - Attempt: %d", attempt)
}

func (s *Session) OnReconnected(sid string, attempt int) {
	s.stats.reconnects.Add(1)
	s.setStatus(StatusConnected)
	s.logf(domain.SeverityInfo, nil, "Reconnected - Socket ID: %s", sid)
	s.subscribe()
}

// OnDisconnected 保留报价状态，重连后数据保持连续
func (s *Session) OnDisconnected(reason string) {
	s.setStatus(StatusDisconnected)
	s.logf(domain.SeverityWarning, nil, "Disconnected - Reason: %s", reason)
}

func (s *Session) OnError(err error) {
	s.fault("Error", err)
}

func (s *Session) OnReconnectError(err error) {
	s.fault("Reconnect Error", err)
}

func (s *Session) OnReconnectFailed() {
	s.exhaustedOnce.Do(func() {
		s.setStatus(StatusExhausted)
		s.emitReconnectFailed()
		s.finish()
	})
}

// OnStopped 传输层在关闭重连时自行结束：会话随之终止，Err 为 nil。
func (s *Session) OnStopped() {
	s.logf(domain.SeverityWarning, nil, "Stopped - Reconnection disabled")
	go s.closeWith(nil)
}

// OnEvent 解码一批报价，按批内顺序为每个有效片段发出一次变化事件
func (s *Session) OnEvent(name string, args json.RawMessage) {
	if name != EventQuotes {
		return
	}

	s.mu.Lock()
	p, closed := s.parser, s.closed
	s.mu.Unlock()
	if p == nil || closed {
		return
	}

	s.stats.batches.Add(1)
	now := s.deps.Clock()
	for _, tok := range NormalizeBatch(args) {
		s.stats.tokens.Add(1)
		upd, ok := p.Parse(tok)
		if !ok {
			s.stats.discarded.Add(1)
			continue
		}
		q := s.state.Apply(upd.Symbol, upd.Fields, now)
		s.stats.changes.Add(1)
		s.emitChanged(q)
	}
}

// subscribe 在传输层分发 goroutine 之外发送订阅
func (s *Session) subscribe() {
	s.mu.Lock()
	if s.closed || s.reg == nil || s.status == StatusExhausted {
		s.mu.Unlock()
		return
	}
	reg, runCtx := s.reg, s.ctx
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()

		ctx, cancel := runCtx, context.CancelFunc(func() {})
		if s.opts.SubscribeTimeout > 0 {
			ctx, cancel = context.WithTimeout(runCtx, s.opts.SubscribeTimeout)
		}
		defer cancel()

		if err := s.deps.Transport.Emit(ctx, EventSubscribe, reg.Subscription()); err != nil {
			if runCtx.Err() != nil {
				return
			}
			s.fault("Subscribe Error", err)
			return
		}
		s.stats.subscriptions.Add(1)
	}()
}

func (s *Session) logf(sev domain.Severity, err error, format string, args ...any) {
	s.emitLog(domain.LogEntry{
		Severity: sev,
		Time:     s.deps.Clock(),
		Message:  fmt.Sprintf(format, args...),
		Err:      err,
	})
}

// fault 把传输层错误交给日志监听器；没有监听器时关闭会话，由 Err 报告该错误。
func (s *Session) fault(what string, err error) {
	delivered := s.emitLog(domain.LogEntry{
		Severity: domain.SeverityError,
		Time:     s.deps.Clock(),
		Message:  fmt.Sprintf("%s - %v", what, err),
		Err:      err,
	})
	if delivered {
		return
	}
	fatal := fmt.Errorf("%w: %s: %w", domain.ErrNoLogListener, what, err)
	go s.closeWith(fatal)
}

var _ port.TransportHandler = (*Session)(nil)

package stream

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"canlidoviz/internal/domain"

	"github.com/shopspring/decimal"
)

type recorder struct {
	mu     sync.Mutex
	quotes []domain.Quote
	logs   []domain.LogEntry
}

func (r *recorder) quote(q domain.Quote) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.quotes = append(r.quotes, q)
}

func (r *recorder) log(e domain.LogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, e)
}

func (r *recorder) symbols() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.quotes))
	for _, q := range r.quotes {
		out = append(out, q.Symbol)
	}
	return out
}

func (r *recorder) entries() []domain.LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.LogEntry(nil), r.logs...)
}

func newTestSession(t *testing.T, tr *fakeTransport) (*Session, *recorder) {
	t.Helper()
	opts := DefaultOptions()
	opts.Symbols = map[int]string{101: "USD", 102: "EUR"}
	s := NewSession(opts, Deps{Transport: tr})

	rec := &recorder{}
	s.OnCurrencyChanged(rec.quote)
	s.OnLog(rec.log)
	t.Cleanup(func() { _ = s.Close() })
	return s, rec
}

func waitEmit(t *testing.T, tr *fakeTransport) emitCall {
	t.Helper()
	select {
	case c := <-tr.emitted:
		return c
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for emit")
		return emitCall{}
	}
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("session did not finish, status=%s", s.Status())
	}
}

func batch(tokens ...string) json.RawMessage {
	b, _ := json.Marshal([]any{tokens})
	return b
}

func TestSessionSubscribesOnConnect(t *testing.T) {
	tr := newFakeTransport()
	s, rec := newTestSession(t, tr)

	if s.Status() != StatusIdle {
		t.Fatalf("expected idle before start, got %s", s.Status())
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if s.Status() != StatusConnecting {
		t.Errorf("expected connecting, got %s", s.Status())
	}

	tr.handler().OnConnected("sid-1")
	call := waitEmit(t, tr)

	if call.event != EventSubscribe {
		t.Errorf("expected %q event, got %q", EventSubscribe, call.event)
	}
	sub, ok := call.payload.(SubscribeRequest)
	if !ok {
		t.Fatalf("unexpected payload type %T", call.payload)
	}
	if !reflect.DeepEqual(sub.Symbols, []string{"USD", "EUR"}) || len(sub.Tags) != 0 || sub.Market {
		t.Errorf("unexpected subscription %+v", sub)
	}
	if s.Status() != StatusConnected {
		t.Errorf("expected connected, got %s", s.Status())
	}

	logs := rec.entries()
	if len(logs) == 0 || logs[0].Message != "Connected - Socket ID: sid-1" || logs[0].Severity != domain.SeverityInfo {
		t.Errorf("unexpected connect log %+v", logs)
	}
}

func TestSessionAppliesBatchInOrder(t *testing.T) {
	tr := newFakeTransport()
	s, rec := newTestSession(t, tr)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	h := tr.handler()
	h.OnEvent(EventQuotes, batch("102|40.1|40.3", "999|1|2", "garbage", "101|34.5|34.9", "101|35.0|"))
	h.OnEvent("other", batch("101|1|1"))

	want := []string{"EUR", "USD", "USD"}
	if got := rec.symbols(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	usd, ok := s.Quote("USD")
	if !ok {
		t.Fatalf("USD missing")
	}
	if !usd.BuyPrice.Decimal.Equal(decimal.RequireFromString("35.0")) ||
		!usd.BuyPriceChange.Decimal.Equal(decimal.RequireFromString("0.5")) ||
		!usd.SellPrice.Decimal.Equal(decimal.RequireFromString("34.9")) ||
		!usd.SellPriceChange.Decimal.IsZero() {
		t.Errorf("unexpected USD record %+v", usd)
	}

	st := s.Stats()
	if st.Batches != 1 || st.Tokens != 5 || st.Discarded != 2 || st.Changes != 3 {
		t.Errorf("unexpected stats %+v", st)
	}

	quotes := s.Quotes()
	if len(quotes) != 2 || quotes[0].Symbol != "EUR" || quotes[1].Symbol != "USD" {
		t.Errorf("unexpected quotes %+v", quotes)
	}
}

func TestSessionReconnectResubscribesAndKeepsState(t *testing.T) {
	tr := newFakeTransport()
	s, rec := newTestSession(t, tr)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	h := tr.handler()
	h.OnConnected("sid-1")
	waitEmit(t, tr)
	h.OnEvent(EventQuotes, batch("101|34.5|34.9"))

	h.OnDisconnected("transport close")
	if s.Status() != StatusDisconnected {
		t.Errorf("expected disconnected, got %s", s.Status())
	}
	h.OnReconnecting(1)
	if s.Status() != StatusReconnecting {
		t.Errorf("expected reconnecting, got %s", s.Status())
	}
	h.OnReconnected("sid-2", 1)
	waitEmit(t, tr)

	h.OnEvent(EventQuotes, batch("101|35.0|"))
	usd, _ := s.Quote("USD")
	if !usd.BuyPriceChange.Decimal.Equal(decimal.RequireFromString("0.5")) {
		t.Errorf("state was reset across reconnect: %+v", usd)
	}

	_ = s.Close()
	if n := tr.emitCount(); n != 2 {
		t.Errorf("expected exactly 2 subscriptions, got %d", n)
	}
	if st := s.Stats(); st.Subscriptions != 2 || st.Reconnects != 1 {
		t.Errorf("unexpected stats %+v", st)
	}

	var sawWarn, sawReconnected bool
	for _, e := range rec.entries() {
		if e.Severity == domain.SeverityWarning && strings.Contains(e.Message, "transport close") {
			sawWarn = true
		}
		if e.Message == "Reconnected - Socket ID: sid-2" {
			sawReconnected = true
		}
	}
	if !sawWarn || !sawReconnected {
		t.Errorf("missing lifecycle logs: %+v", rec.entries())
	}
}

func TestSessionErrorRoutedToLogListener(t *testing.T) {
	tr := newFakeTransport()
	s, rec := newTestSession(t, tr)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	boom := errors.New("boom")
	tr.handler().OnError(boom)
	tr.handler().OnReconnectError(boom)

	logs := rec.entries()
	if len(logs) != 2 {
		t.Fatalf("expected 2 log entries, got %+v", logs)
	}
	for _, e := range logs {
		if e.Severity != domain.SeverityError || !errors.Is(e.Err, boom) {
			t.Errorf("unexpected entry %+v", e)
		}
	}
	if s.Status() == StatusTerminated {
		t.Errorf("session must survive errors when someone is listening")
	}
}

func TestSessionErrorWithoutLogListenerIsFatal(t *testing.T) {
	tr := newFakeTransport()
	opts := DefaultOptions()
	opts.Symbols = map[int]string{101: "USD"}
	s := NewSession(opts, Deps{Transport: tr})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	boom := errors.New("boom")
	tr.handler().OnError(boom)
	waitDone(t, s)

	err := s.Wait()
	if !errors.Is(err, domain.ErrNoLogListener) || !errors.Is(err, boom) {
		t.Fatalf("expected ErrNoLogListener wrapping boom, got %v", err)
	}
	if s.Status() != StatusTerminated {
		t.Errorf("expected terminated, got %s", s.Status())
	}
	if tr.closeCount() != 1 {
		t.Errorf("expected transport closed once, got %d", tr.closeCount())
	}
}

func TestSessionSubscribeErrorIsLogged(t *testing.T) {
	tr := newFakeTransport()
	tr.emitErr = errors.New("write: broken pipe")
	s, rec := newTestSession(t, tr)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	tr.handler().OnConnected("sid-1")
	waitEmit(t, tr)

	deadline := time.Now().Add(2 * time.Second)
	found := false
	for !found && time.Now().Before(deadline) {
		for _, e := range rec.entries() {
			if e.Severity == domain.SeverityError && strings.HasPrefix(e.Message, "Subscribe Error") {
				found = true
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !found {
		t.Fatalf("expected a subscribe error entry, got %+v", rec.entries())
	}
	if s.Stats().Subscriptions != 0 {
		t.Errorf("failed sends must not be counted")
	}
}

func TestSessionReconnectFailedOnce(t *testing.T) {
	tr := newFakeTransport()
	s, _ := newTestSession(t, tr)
	n := 0
	s.Events.OnReconnectFailed(func() { n++ })
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	h := tr.handler()
	h.OnReconnectFailed()
	h.OnReconnectFailed()
	h.OnConnected("late")

	waitDone(t, s)
	if n != 1 {
		t.Errorf("expected exactly one notification, got %d", n)
	}
	if s.Status() != StatusExhausted {
		t.Errorf("expected exhausted, got %s", s.Status())
	}
	if err := s.Wait(); err != nil {
		t.Errorf("exhaustion is not an error, got %v", err)
	}
}

func TestSessionStoppedTransportTerminates(t *testing.T) {
	tr := newFakeTransport()
	s, rec := newTestSession(t, tr)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	h := tr.handler()
	h.OnConnected("sid-1")
	waitEmit(t, tr)
	h.OnDisconnected("transport close")
	h.OnStopped()

	waitDone(t, s)
	if err := s.Wait(); err != nil {
		t.Errorf("expected clean end, got %v", err)
	}
	if s.Status() != StatusTerminated {
		t.Errorf("expected terminated, got %s", s.Status())
	}
	if tr.closeCount() != 1 {
		t.Errorf("expected transport close, got %d", tr.closeCount())
	}

	entries := rec.entries()
	last := entries[len(entries)-1]
	if last.Severity != domain.SeverityWarning || !strings.HasPrefix(last.Message, "Stopped") {
		t.Errorf("unexpected last entry %+v", last)
	}
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	tr := newFakeTransport()
	s, rec := newTestSession(t, tr)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	_ = s.Close()
	_ = s.Close()
	waitDone(t, s)

	if tr.closeCount() != 1 {
		t.Errorf("expected one transport close, got %d", tr.closeCount())
	}
	if s.Status() != StatusTerminated {
		t.Errorf("expected terminated, got %s", s.Status())
	}

	tr.handler().OnEvent(EventQuotes, batch("101|1|2"))
	if len(rec.symbols()) != 0 {
		t.Errorf("no events expected after close")
	}
	if err := s.Start(context.Background()); !errors.Is(err, domain.ErrSessionClosed) {
		t.Errorf("expected ErrSessionClosed, got %v", err)
	}
}

func TestSessionStartTwice(t *testing.T) {
	tr := newFakeTransport()
	s, _ := newTestSession(t, tr)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := s.Start(context.Background()); !errors.Is(err, domain.ErrAlreadyStarted) {
		t.Errorf("expected ErrAlreadyStarted, got %v", err)
	}
}

func TestSessionContextCancel(t *testing.T) {
	tr := newFakeTransport()
	s, _ := newTestSession(t, tr)
	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	cancel()
	waitDone(t, s)
	if err := s.Wait(); err != nil {
		t.Errorf("cancellation is a clean shutdown, got %v", err)
	}
	if tr.closeCount() != 1 {
		t.Errorf("expected transport released, got %d closes", tr.closeCount())
	}
}

func TestSessionResolutionFailure(t *testing.T) {
	tr := newFakeTransport()
	res := newFakeResolver()
	res.errs[domain.CategoryCurrency] = &domain.CatalogFetchError{Category: domain.CategoryCurrency, Err: errors.New("dial tcp: refused")}

	s := NewSession(DefaultOptions(), Deps{Transport: tr, Resolver: res})
	err := s.Start(context.Background())
	if !errors.Is(err, domain.ErrNoSymbols) {
		t.Fatalf("expected ErrNoSymbols, got %v", err)
	}
	if tr.handler() != nil {
		t.Errorf("transport must not connect when resolution fails")
	}
	if werr := s.Wait(); !errors.Is(werr, domain.ErrNoSymbols) {
		t.Errorf("Wait should report the startup error, got %v", werr)
	}
}

func TestSessionUsesResolver(t *testing.T) {
	tr := newFakeTransport()
	opts := DefaultOptions()
	opts.Categories = domain.CategoryCurrency | domain.CategoryStock
	s := NewSession(opts, Deps{Transport: tr, Resolver: catalogFixture()})
	t.Cleanup(func() { _ = s.Close() })

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	tr.handler().OnConnected("sid")
	sub := waitEmit(t, tr).payload.(SubscribeRequest)

	if !reflect.DeepEqual(sub.Tags, []string{"STOCK"}) || !reflect.DeepEqual(sub.Symbols, []string{"THYAO"}) {
		t.Errorf("unexpected subscription %+v", sub)
	}
	if s.Registry().Len() != 3 {
		t.Errorf("expected 3 decodable ids, got %d", s.Registry().Len())
	}
}

func TestSessionConnectFailure(t *testing.T) {
	tr := newFakeTransport()
	tr.connectErr = domain.ErrSessionClosed
	s, _ := newTestSession(t, tr)

	if err := s.Start(context.Background()); !errors.Is(err, domain.ErrSessionClosed) {
		t.Fatalf("expected connect error, got %v", err)
	}
	waitDone(t, s)
}

package stream

import (
	"sync"
	"time"

	"canlidoviz/internal/domain"
)

// State 按品种保存报价。只有它修改报价，对外只返回副本。
type State struct {
	mu     sync.Mutex
	quotes map[string]*domain.Quote
}

func NewState() *State {
	return &State{quotes: make(map[string]*domain.Quote)}
}

// Apply 把字段合并进品种报价（首次出现时创建），返回合并后的快照。
func (s *State) Apply(symbol string, fields []string, now time.Time) domain.Quote {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := s.quotes[symbol]
	if q == nil {
		q = &domain.Quote{Symbol: symbol}
		s.quotes[symbol] = q
	}
	q.Apply(fields, now)
	return *q
}

func (s *State) Get(symbol string) (domain.Quote, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.quotes[symbol]
	if !ok {
		return domain.Quote{}, false
	}
	return *q, true
}

func (s *State) Snapshot() map[string]domain.Quote {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]domain.Quote, len(s.quotes))
	for k, v := range s.quotes {
		out[k] = *v
	}
	return out
}

func (s *State) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.quotes)
}

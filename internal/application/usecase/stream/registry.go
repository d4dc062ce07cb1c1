package stream

import (
	"context"
	"errors"
	"sort"
	"sync"

	"canlidoviz/internal/application/port"
	"canlidoviz/internal/domain"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// SubscribeRequest "us" 事件的载荷
type SubscribeRequest struct {
	Tags    []string `json:"t"`
	Market  bool     `json:"m"`
	Symbols []string `json:"c"`
}

// Registry 数字 id 到品种代码的映射。构建后只读，可在任意 goroutine 读取。
type Registry struct {
	categories domain.Category
	full       map[int]string // 所有可解码的 id
	send       map[int]string // 订阅消息中声明的 id
}

// BuildRegistry 并发解析所有分类，按优先级合并，先写者胜出。
// 单个分类失败只记录日志并跳过；全部失败时才返回错误。
func BuildRegistry(ctx context.Context, resolver port.CatalogResolver, categories domain.Category) (*Registry, error) {
	cats := categories.Categories()
	if len(cats) == 0 {
		return nil, domain.ErrNoSymbols
	}

	results := make([]map[int]string, len(cats))
	errs := make([]error, len(cats))

	var g errgroup.Group
	for i, cat := range cats {
		i, cat := i, cat // go 1.21：按迭代复制循环变量
		g.Go(func() error {
			m, err := resolver.Resolve(ctx, cat)
			results[i], errs[i] = m, err
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r := &Registry{
		categories: categories,
		full:       make(map[int]string),
		send:       make(map[int]string),
	}
	for i, cat := range cats {
		if errs[i] != nil {
			log.Warn().Err(errs[i]).Str("category", cat.String()).Msg("catalog resolution failed")
			continue
		}
		r.merge(cat, results[i])
		log.Debug().Str("category", cat.String()).Int("symbols", len(results[i])).Msg("catalog resolved")
	}

	if len(r.full) == 0 {
		return nil, errors.Join(append([]error{domain.ErrNoSymbols}, errs...)...)
	}
	return r, nil
}

// NewStaticRegistry 直接使用调用方给出的映射进行解码和订阅，标签仍按配置的分类生成。
func NewStaticRegistry(symbols map[int]string, categories domain.Category) (*Registry, error) {
	if len(symbols) == 0 {
		return nil, domain.ErrNoSymbols
	}
	r := &Registry{
		categories: categories,
		full:       make(map[int]string, len(symbols)),
		send:       make(map[int]string, len(symbols)),
	}
	for id, sym := range symbols {
		r.full[id] = sym
		r.send[id] = sym
	}
	return r, nil
}

func (r *Registry) merge(cat domain.Category, m map[int]string) {
	_, explicit := cat.ExplicitTag()
	for id, sym := range m {
		if _, exists := r.full[id]; exists {
			continue
		}
		r.full[id] = sym
		if explicit {
			r.send[id] = sym
		}
	}
}

func (r *Registry) Lookup(id int) (string, bool) {
	sym, ok := r.full[id]
	return sym, ok
}

func (r *Registry) Len() int { return len(r.full) }

func (r *Registry) Categories() domain.Category { return r.categories }

// SubscribeSymbols 按 id 排序返回订阅品种，已去重
func (r *Registry) SubscribeSymbols() []string {
	ids := make([]int, 0, len(r.send))
	for id := range r.send {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		sym := r.send[id]
		if _, ok := seen[sym]; ok {
			continue
		}
		seen[sym] = struct{}{}
		out = append(out, sym)
	}
	return out
}

// Tags 返回已启用分类的显式订阅标签
func (r *Registry) Tags() []string {
	out := make([]string, 0, 2)
	for _, cat := range r.categories.Categories() {
		if tag, ok := cat.ExplicitTag(); ok {
			out = append(out, tag)
		}
	}
	return out
}

func (r *Registry) Subscription() SubscribeRequest {
	return SubscribeRequest{
		Tags:    r.Tags(),
		Market:  false,
		Symbols: r.SubscribeSymbols(),
	}
}

// memoResolver 按分类缓存解析结果，重复构建时只请求一次网络
type memoResolver struct {
	next port.CatalogResolver

	mu    sync.Mutex
	cache map[domain.Category]map[int]string
}

// NewMemoResolver 为解析器加上按分类的成功结果缓存
func NewMemoResolver(next port.CatalogResolver) port.CatalogResolver {
	return &memoResolver{next: next, cache: make(map[domain.Category]map[int]string)}
}

func (m *memoResolver) Resolve(ctx context.Context, category domain.Category) (map[int]string, error) {
	m.mu.Lock()
	if hit, ok := m.cache[category]; ok {
		m.mu.Unlock()
		return hit, nil
	}
	m.mu.Unlock()

	res, err := m.next.Resolve(ctx, category)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.cache[category] = res
	m.mu.Unlock()
	return res, nil
}

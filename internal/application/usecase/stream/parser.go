package stream

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Update 一个已解码的报价片段："<id>|<buy>|<sell>[|<value>]"
type Update struct {
	SymbolID int
	Symbol   string
	Fields   []string // id 之后的所有字段
}

type Parser struct {
	reg *Registry
}

func NewParser(reg *Registry) *Parser {
	return &Parser{reg: reg}
}

// Parse 解码一个片段。字段不足、id 非数字或 id 不在注册表中时返回 ok=false，
// 上游经常推送这类数据，不算错误。
func (p *Parser) Parse(token string) (Update, bool) {
	parts := strings.Split(token, "|")
	if len(parts) < 3 {
		return Update{}, false
	}
	id, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return Update{}, false
	}
	sym, ok := p.reg.Lookup(id)
	if !ok {
		return Update{}, false
	}
	return Update{SymbolID: id, Symbol: sym, Fields: parts[1:]}, true
}

// NormalizeBatch 把事件参数按任意嵌套层级展开为字符串片段列表，非字符串叶子丢弃。
func NormalizeBatch(raw json.RawMessage) []string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	var out []string
	flatten(v, &out)
	return out
}

func flatten(v any, out *[]string) {
	switch t := v.(type) {
	case string:
		*out = append(*out, t)
	case []any:
		for _, e := range t {
			flatten(e, out)
		}
	}
}

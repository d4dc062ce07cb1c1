package socketio

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Engine.IO v4 包类型
const (
	eioOpen    = '0'
	eioClose   = '1'
	eioPing    = '2'
	eioPong    = '3'
	eioMessage = '4'
	eioUpgrade = '5'
	eioNoop    = '6'
)

// Socket.IO v5 包类型，承载于 Engine.IO message 中
const (
	sioConnect      = '0'
	sioDisconnect   = '1'
	sioEvent        = '2'
	sioAck          = '3'
	sioConnectError = '4'
)

// handshake 是 Engine.IO open 包的内容
type handshake struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"` // ms
	PingTimeout  int      `json:"pingTimeout"`  // ms
	MaxPayload   int      `json:"maxPayload"`
}

// readTimeout 服务端静默超过该时长即视为断线
func (h handshake) readTimeout() time.Duration {
	d := time.Duration(h.PingInterval+h.PingTimeout) * time.Millisecond
	if d <= 0 {
		return 45 * time.Second
	}
	return d
}

func parseOpen(frame []byte) (handshake, error) {
	var hs handshake
	if len(frame) == 0 || frame[0] != eioOpen {
		return hs, fmt.Errorf("expected engine.io open packet, got %q", truncate(frame))
	}
	if err := json.Unmarshal(frame[1:], &hs); err != nil {
		return hs, fmt.Errorf("decode handshake: %w", err)
	}
	if hs.SID == "" {
		return hs, errors.New("handshake without sid")
	}
	return hs, nil
}

// socketPacket 已解码的 Socket.IO 包
type socketPacket struct {
	Type      byte
	Namespace string
	AckID     string
	Data      json.RawMessage
}

// decodeSocketPacket 解析 "<type>[/<nsp>,][<ackId>][<json>]"
func decodeSocketPacket(p []byte) (socketPacket, error) {
	if len(p) == 0 {
		return socketPacket{}, errors.New("empty socket.io packet")
	}
	pkt := socketPacket{Type: p[0], Namespace: "/"}
	rest := p[1:]

	if len(rest) > 0 && rest[0] == '/' {
		i := strings.IndexByte(string(rest), ',')
		if i < 0 {
			pkt.Namespace = string(rest)
			return pkt, nil
		}
		pkt.Namespace = string(rest[:i])
		rest = rest[i+1:]
	}

	i := 0
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		i++
	}
	pkt.AckID = string(rest[:i])
	rest = rest[i:]

	if len(rest) > 0 {
		if !json.Valid(rest) {
			return pkt, fmt.Errorf("invalid socket.io payload %q", truncate(rest))
		}
		pkt.Data = json.RawMessage(rest)
	}
	return pkt, nil
}

// splitEvent 把 ["name", arg...] 拆成事件名和参数数组
func splitEvent(data json.RawMessage) (string, json.RawMessage, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return "", nil, fmt.Errorf("decode event: %w", err)
	}
	if len(parts) == 0 {
		return "", nil, errors.New("event without name")
	}
	var name string
	if err := json.Unmarshal(parts[0], &name); err != nil {
		return "", nil, fmt.Errorf("decode event name: %w", err)
	}
	args, err := json.Marshal(parts[1:])
	if err != nil {
		return "", nil, err
	}
	return name, args, nil
}

func encodeConnect(namespace string) string {
	if namespace == "" || namespace == "/" {
		return string([]byte{eioMessage, sioConnect})
	}
	return string([]byte{eioMessage, sioConnect}) + namespace + ","
}

func encodeDisconnect(namespace string) string {
	if namespace == "" || namespace == "/" {
		return string([]byte{eioMessage, sioDisconnect})
	}
	return string([]byte{eioMessage, sioDisconnect}) + namespace + ","
}

func encodeEvent(namespace, event string, payload any) (string, error) {
	b, err := json.Marshal([]any{event, payload})
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", event, err)
	}
	prefix := string([]byte{eioMessage, sioEvent})
	if namespace != "" && namespace != "/" {
		prefix += namespace + ","
	}
	return prefix + string(b), nil
}

// connectError 提取 CONNECT_ERROR 包中的 message
func connectError(data json.RawMessage) error {
	var body struct {
		Message string `json:"message"`
	}
	if len(data) > 0 && json.Unmarshal(data, &body) == nil && body.Message != "" {
		return fmt.Errorf("socket.io connect error: %s", body.Message)
	}
	return fmt.Errorf("socket.io connect error: %s", truncate(data))
}

func truncate(b []byte) string {
	const limit = 120
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}

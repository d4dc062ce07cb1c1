package socketio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"canlidoviz/internal/application/port"
	"canlidoviz/internal/domain"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const DefaultURL = "https://s.canlidoviz.com/"

type Options struct {
	Reconnection         bool
	ReconnectionDelay    time.Duration
	ReconnectionDelayMax time.Duration
	// ReconnectionAttempts <= 0 表示无限重连
	ReconnectionAttempts int
	DialTimeout          time.Duration
	WriteTimeout         time.Duration
	Namespace            string
	Header               http.Header
}

func DefaultOptions() Options {
	return Options{
		Reconnection:         true,
		ReconnectionDelay:    1000 * time.Millisecond,
		ReconnectionDelayMax: 5 * time.Second,
		ReconnectionAttempts: 5,
		DialTimeout:          10 * time.Second,
		WriteTimeout:         10 * time.Second,
		Namespace:            "/",
	}
}

// Client 是基于 gorilla/websocket 的 Socket.IO v5 (Engine.IO v4) 客户端，只使用 websocket 传输。
// 一个 Client 只能 Connect 一次；断线后按 Options 自动重连。
type Client struct {
	endpoint string
	opts     Options
	dialer   *websocket.Dialer

	mu      sync.Mutex
	conn    *websocket.Conn
	sid     string
	started bool
	closed  bool
	cancel  context.CancelFunc

	writeMu sync.Mutex
}

func New(rawURL string, opts Options) (*Client, error) {
	endpoint, err := BuildEndpoint(rawURL)
	if err != nil {
		return nil, err
	}
	def := DefaultOptions()
	if opts.ReconnectionDelay <= 0 {
		opts.ReconnectionDelay = def.ReconnectionDelay
	}
	if opts.ReconnectionDelayMax < opts.ReconnectionDelay {
		opts.ReconnectionDelayMax = max(def.ReconnectionDelayMax, opts.ReconnectionDelay)
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = def.DialTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = def.WriteTimeout
	}
	if opts.Namespace == "" {
		opts.Namespace = def.Namespace
	}
	return &Client{
		endpoint: endpoint,
		opts:     opts,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.DialTimeout,
		},
	}, nil
}

// BuildEndpoint 把服务端基础地址转换为 Engine.IO websocket 端点。
func BuildEndpoint(rawURL string) (string, error) {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return "", errors.New("socket.io url empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	case "http", "ws":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/socket.io/"
	}
	q := u.Query()
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) Endpoint() string { return c.endpoint }

// Connect 启动后台连接循环，立即返回。
func (c *Client) Connect(ctx context.Context, h port.TransportHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return domain.ErrSessionClosed
	}
	if c.started {
		return domain.ErrAlreadyStarted
	}
	c.started = true
	ctx, c.cancel = context.WithCancel(ctx)

	go c.run(ctx, h)
	return nil
}

// run 管理连接生命周期。回调只来自本 goroutine 或当前连接的读 goroutine，二者不会同时回调。
// 关闭重连时连接结束后回调 OnStopped；重连次数耗尽时回调 OnReconnectFailed。
func (c *Client) run(ctx context.Context, h port.TransportHandler) {
	attempt := 0
	connected := false
	for {
		conn, hs, sid, err := c.open(ctx)
		switch {
		case ctx.Err() != nil:
			if conn != nil {
				_ = conn.Close()
			}
			return
		case err != nil:
			log.Debug().Err(err).Int("attempt", attempt).Msg("socket.io connect failed")
			if attempt == 0 {
				h.OnError(err)
			} else {
				h.OnReconnectError(err)
			}
		default:
			c.attach(conn, sid)
			log.Debug().Str("sid", sid).Int("ping_interval_ms", hs.PingInterval).Msg("socket.io connected")
			if connected {
				h.OnReconnected(sid, attempt)
			} else {
				h.OnConnected(sid)
			}
			connected = true
			attempt = 0

			reason := c.readLoop(ctx, conn, hs, h)
			c.detach(conn)
			if ctx.Err() != nil {
				return
			}
			h.OnDisconnected(reason)
		}

		if !c.opts.Reconnection {
			h.OnStopped()
			return
		}
		attempt++
		if c.opts.ReconnectionAttempts > 0 && attempt > c.opts.ReconnectionAttempts {
			log.Warn().Int("attempts", c.opts.ReconnectionAttempts).Msg("socket.io reconnection exhausted")
			h.OnReconnectFailed()
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.backoff(attempt)):
		}
		h.OnReconnecting(attempt)
	}
}

// backoff 从 ReconnectionDelay 开始翻倍，上限 ReconnectionDelayMax。
func (c *Client) backoff(attempt int) time.Duration {
	d := c.opts.ReconnectionDelay
	for i := 1; i < attempt && d < c.opts.ReconnectionDelayMax; i++ {
		d *= 2
	}
	return minDur(d, c.opts.ReconnectionDelayMax)
}

// open 拨号并完成 Engine.IO 与 Socket.IO 握手。
func (c *Client) open(ctx context.Context) (*websocket.Conn, handshake, string, error) {
	dctx, cancel := context.WithTimeout(ctx, c.opts.DialTimeout)
	defer cancel()

	conn, resp, err := c.dialer.DialContext(dctx, c.endpoint, c.opts.Header)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("dial %s: %w (status %d)", c.endpoint, err, resp.StatusCode)
		} else {
			err = fmt.Errorf("dial %s: %w", c.endpoint, err)
		}
		return nil, handshake{}, "", err
	}

	deadline, _ := dctx.Deadline()
	_ = conn.SetReadDeadline(deadline)

	_, frame, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, handshake{}, "", fmt.Errorf("read open packet: %w", err)
	}
	hs, err := parseOpen(frame)
	if err != nil {
		_ = conn.Close()
		return nil, handshake{}, "", err
	}

	if err := c.writeFrame(conn, encodeConnect(c.opts.Namespace), deadline); err != nil {
		_ = conn.Close()
		return nil, handshake{}, "", fmt.Errorf("send connect: %w", err)
	}

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			_ = conn.Close()
			return nil, handshake{}, "", fmt.Errorf("read connect ack: %w", err)
		}
		if len(frame) == 0 {
			continue
		}
		switch frame[0] {
		case eioPing:
			if err := c.writeFrame(conn, string(eioPong)+string(frame[1:]), deadline); err != nil {
				_ = conn.Close()
				return nil, handshake{}, "", err
			}
			continue
		case eioMessage:
		default:
			continue
		}

		pkt, err := decodeSocketPacket(frame[1:])
		if err != nil {
			_ = conn.Close()
			return nil, handshake{}, "", err
		}
		switch pkt.Type {
		case sioConnect:
			var ack struct {
				SID string `json:"sid"`
			}
			if len(pkt.Data) > 0 {
				_ = json.Unmarshal(pkt.Data, &ack)
			}
			sid := ack.SID
			if sid == "" {
				sid = hs.SID
			}
			_ = conn.SetReadDeadline(time.Time{})
			return conn, hs, sid, nil
		case sioConnectError:
			_ = conn.Close()
			return nil, handshake{}, "", connectError(pkt.Data)
		}
	}
}

// readLoop 分发帧直到连接断开或 ctx 结束，返回断开原因。
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, hs handshake, h port.TransportHandler) string {
	timeout := hs.readTimeout()
	reasonCh := make(chan string, 1)

	go func() {
		for {
			_ = conn.SetReadDeadline(time.Now().Add(timeout))
			_, frame, err := conn.ReadMessage()
			if err != nil {
				reasonCh <- disconnectReason(err)
				return
			}
			if reason := c.dispatch(conn, frame, h); reason != "" {
				reasonCh <- reason
				return
			}
		}
	}()

	select {
	case <-ctx.Done():
		_ = c.writeFrame(conn, encodeDisconnect(c.opts.Namespace), time.Now().Add(time.Second))
		_ = conn.Close()
		return "io client disconnect"
	case reason := <-reasonCh:
		_ = conn.Close()
		return reason
	}
}

// dispatch 处理一帧；返回非空原因表示连接结束。
func (c *Client) dispatch(conn *websocket.Conn, frame []byte, h port.TransportHandler) string {
	if len(frame) == 0 {
		return ""
	}
	switch frame[0] {
	case eioPing:
		if err := c.writeFrame(conn, string(eioPong)+string(frame[1:]), time.Now().Add(c.opts.WriteTimeout)); err != nil {
			return "ping timeout"
		}
	case eioClose:
		return "transport close"
	case eioMessage:
		pkt, err := decodeSocketPacket(frame[1:])
		if err != nil {
			log.Debug().Err(err).Msg("socket.io packet dropped")
			return ""
		}
		switch pkt.Type {
		case sioEvent:
			name, args, err := splitEvent(pkt.Data)
			if err != nil {
				log.Debug().Err(err).Msg("socket.io event dropped")
				return ""
			}
			h.OnEvent(name, args)
		case sioDisconnect:
			return "io server disconnect"
		case sioConnectError:
			h.OnError(connectError(pkt.Data))
		}
	}
	return ""
}

// Emit 在当前连接上发送事件。
func (c *Client) Emit(ctx context.Context, event string, payload any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return domain.ErrNotConnected
	}

	frame, err := encodeEvent(c.opts.Namespace, event, payload)
	if err != nil {
		return err
	}
	deadline := time.Now().Add(c.opts.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.writeFrame(conn, frame, deadline)
}

func (c *Client) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sid
}

// Close 停止重连并断开当前连接，可重复调用。不等待后台 goroutine 退出。
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel := c.cancel
	conn := c.conn
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		// 读循环可能已经关闭了连接
		_ = c.writeFrame(conn, encodeDisconnect(c.opts.Namespace), time.Now().Add(time.Second))
		_ = conn.Close()
	}
	return nil
}

func (c *Client) attach(conn *websocket.Conn, sid string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
	c.sid = sid
}

func (c *Client) detach(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn {
		c.conn = nil
		c.sid = ""
	}
}

// gorilla 每个连接只允许一个并发写者
func (c *Client) writeFrame(conn *websocket.Conn, frame string, deadline time.Time) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(deadline)
	return conn.WriteMessage(websocket.TextMessage, []byte(frame))
}

func disconnectReason(err error) string {
	var ce *websocket.CloseError
	switch {
	case errors.As(err, &ce):
		return fmt.Sprintf("transport close (%d)", ce.Code)
	case isTimeout(err):
		return "ping timeout"
	default:
		return "transport error: " + err.Error()
	}
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

func minDur(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

var _ port.Transport = (*Client)(nil)

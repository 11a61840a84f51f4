package liveness

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"flowrunner/internal/logging"
	"flowrunner/internal/services"
)

const (
	defaultHelloTimeout      = 30 * time.Second
	defaultReconnectInterval = 5 * time.Second
	defaultReconnectWindow   = 2 * time.Minute
	logQueueSize             = 256
	logWriteTimeout          = 5 * time.Second
	readLimit                = 1 << 20
)

// Options configures a Channel.
type Options struct {
	URL     string
	FileUID uuid.UUID
	Header  http.Header
	Logger  *slog.Logger
	// OnAbort runs when the coordinator aborts this job's file.
	OnAbort func()

	HelloTimeout      time.Duration
	ReconnectInterval time.Duration
	ReconnectWindow   time.Duration
}

func (o *Options) applyDefaults() {
	if o.Logger == nil {
		o.Logger = logging.NewNop()
	}
	if o.HelloTimeout <= 0 {
		o.HelloTimeout = defaultHelloTimeout
	}
	if o.ReconnectInterval <= 0 {
		o.ReconnectInterval = defaultReconnectInterval
	}
	if o.ReconnectWindow <= 0 {
		o.ReconnectWindow = defaultReconnectWindow
	}
}

// Channel is a connected liveness channel. Safe for concurrent use.
type Channel struct {
	opts   Options
	logger *slog.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	closing atomic.Bool
	once    sync.Once

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan Envelope

	nextID atomic.Uint64
	logs   chan string
}

// Dial connects to the coordinator and starts the background reader.
func Dial(ctx context.Context, opts Options) (*Channel, error) {
	opts.applyDefaults()
	conn, err := dial(ctx, opts)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "liveness", "dial", opts.URL, err)
	}
	c := &Channel{
		opts:    opts,
		logger:  logging.NewComponentLogger(opts.Logger, "liveness"),
		conn:    conn,
		pending: make(map[string]chan Envelope),
		logs:    make(chan string, logQueueSize),
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.wg.Add(2)
	go c.readLoop(conn)
	go c.writeLogs()
	return c, nil
}

func dial(ctx context.Context, opts Options) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, opts.URL, &websocket.DialOptions{HTTPHeader: opts.Header})
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(readLimit)
	return conn, nil
}

// Hello sends a heartbeat carrying payload and reports whether the
// coordinator acknowledged it. Transport failures return false.
func (c *Channel) Hello(ctx context.Context, payload any) bool {
	conn, id, ch := c.register()
	if conn == nil {
		return false
	}
	defer c.forget(id)

	env, err := NewInvocation(id, TargetHello, payload)
	if err != nil {
		c.logger.Warn("hello payload not encodable", logging.Error(err))
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, c.opts.HelloTimeout)
	defer cancel()
	if err := c.write(ctx, conn, env); err != nil {
		c.logger.Debug("hello write failed", logging.Error(err))
		return false
	}
	select {
	case resp, ok := <-ch:
		if !ok || resp.Error != "" {
			return false
		}
		var accepted bool
		if err := json.Unmarshal(resp.Result, &accepted); err != nil {
			return false
		}
		return accepted
	case <-ctx.Done():
		return false
	}
}

// LogMessage queues a log line for the coordinator. Lines are dropped when
// the queue is full or the channel is closed.
func (c *Channel) LogMessage(line string) {
	if c.closing.Load() {
		return
	}
	select {
	case c.logs <- line:
	default:
	}
}

// Connected reports whether a connection is currently established.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Close shuts the channel down and waits for background goroutines.
func (c *Channel) Close() {
	c.once.Do(func() {
		c.closing.Store(true)
		c.mu.Lock()
		conn := c.conn
		c.conn = nil
		c.mu.Unlock()
		if conn != nil {
			_ = conn.Close(websocket.StatusNormalClosure, "flow complete")
		}
		c.cancel()
		c.wg.Wait()
	})
}

func (c *Channel) register() (*websocket.Conn, string, chan Envelope) {
	id := strconv.FormatUint(c.nextID.Add(1), 10)
	ch := make(chan Envelope, 1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil, "", nil
	}
	c.pending[id] = ch
	return c.conn, id, ch
}

func (c *Channel) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Channel) current() *websocket.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *Channel) write(ctx context.Context, conn *websocket.Conn, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

func (c *Channel) readLoop(conn *websocket.Conn) {
	defer c.wg.Done()
	for {
		err := c.read(conn)
		if c.closing.Load() || c.ctx.Err() != nil {
			return
		}
		c.logger.Warn("liveness connection lost", logging.Error(err))
		c.detach(conn)
		if conn = c.reconnect(); conn == nil {
			if !c.closing.Load() {
				logging.ErrorWithContext(c.logger, "failed to reconnect within the retry period", "liveness_reconnect_failed",
					logging.Duration("window", c.opts.ReconnectWindow),
					logging.String(logging.FieldErrorHint, "check coordinator availability"),
				)
			}
			return
		}
	}
}

func (c *Channel) read(conn *websocket.Conn) error {
	for {
		_, data, err := conn.Read(c.ctx)
		if err != nil {
			return err
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Debug("ignoring malformed liveness message", logging.Error(err))
			continue
		}
		c.dispatch(env)
	}
}

func (c *Channel) dispatch(env Envelope) {
	switch env.Type {
	case TypeCompletion:
		c.mu.Lock()
		ch := c.pending[env.InvocationID]
		delete(c.pending, env.InvocationID)
		c.mu.Unlock()
		if ch != nil {
			ch <- env
		}
	case TypeInvoke:
		if env.Target != TargetAbortFlow || len(env.Arguments) == 0 {
			return
		}
		var raw string
		if err := json.Unmarshal(env.Arguments[0], &raw); err != nil {
			return
		}
		uid, err := uuid.Parse(raw)
		if err != nil || uid != c.opts.FileUID {
			c.logger.Debug("ignoring abort for another file", logging.String("target_file", raw))
			return
		}
		c.logger.Info("abort requested by coordinator")
		if c.opts.OnAbort != nil {
			c.wg.Add(1)
			go func() {
				defer c.wg.Done()
				c.opts.OnAbort()
			}()
		}
	}
}

func (c *Channel) detach(conn *websocket.Conn) {
	_ = conn.CloseNow()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == conn {
		c.conn = nil
	}
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

func (c *Channel) reconnect() *websocket.Conn {
	deadline := time.Now().Add(c.opts.ReconnectWindow)
	for time.Now().Before(deadline) {
		select {
		case <-c.ctx.Done():
			return nil
		case <-time.After(c.opts.ReconnectInterval):
		}
		conn, err := dial(c.ctx, c.opts)
		if err != nil {
			c.logger.Debug("liveness reconnect attempt failed", logging.Error(err))
			continue
		}
		c.mu.Lock()
		if c.closing.Load() {
			c.mu.Unlock()
			_ = conn.CloseNow()
			return nil
		}
		c.conn = conn
		c.mu.Unlock()
		c.logger.Info("liveness channel reconnected")
		return conn
	}
	return nil
}

func (c *Channel) writeLogs() {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case line := <-c.logs:
			conn := c.current()
			if conn == nil {
				continue
			}
			env, err := NewInvocation("", TargetLogMessage, c.opts.FileUID.String(), line)
			if err != nil {
				continue
			}
			ctx, cancel := context.WithTimeout(c.ctx, logWriteTimeout)
			_ = c.write(ctx, conn, env)
			cancel()
		}
	}
}

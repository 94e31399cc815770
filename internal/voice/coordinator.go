// Package voice plays sounds into voice channels.
//
// A Coordinator keeps one lock and one connection per guild. Requests for
// the same guild are played one after another in arrival order; a finished
// playback leaves the bot seated for LeaveDelay so that back-to-back
// requests reuse the connection instead of rejoining.
package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/glizzus/soundboard/internal/schedule"
	"github.com/glizzus/soundboard/internal/sound"
)

const (
	// LeaveDelay is how long an idle connection is kept after playback.
	LeaveDelay = time.Second
	// ConnectTimeout bounds joining a voice channel.
	ConnectTimeout = 5 * time.Second
)

// ErrConnectTimeout means the voice channel could not be joined in time.
var ErrConnectTimeout = errors.New("timed out connecting to voice")

// TransientError wraps a failure of the voice transport. The requester has
// already been sent the sound's text by the time one of these happens.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("voice %s failed: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

var _ error = (*TransientError)(nil)

// Connection is a live voice connection in one guild.
type Connection interface {
	ChannelID() string
	Move(channelID string) error
	// Play starts streaming the Ogg/Opus file at path and returns immediately.
	// onComplete is called once when playback ends, with the error if any.
	Play(path string, onComplete func(error)) error
	IsPlaying() bool
	Disconnect() error
}

// Transport opens voice connections. Connect must give up when ctx is done.
type Transport interface {
	Connect(ctx context.Context, guildID, channelID string) (Connection, error)
}

// Resolver is the part of the sound store playback reads from.
type Resolver interface {
	Resolve(scope sound.Scope, name string) (string, string, error)
	ResolveForVoice(scope sound.Scope, name string) (string, string, error)
}

// Notifier reports progress of a voice request back to its requester.
type Notifier interface {
	// Queued is called before waiting when another request holds the guild.
	Queued()
	// Text delivers the sound's display text. It is called on its own goroutine.
	Text(text string)
}

type PlayRequest struct {
	GuildID   string
	ChannelID string
	Scope     sound.Scope
	Name      string
}

// guildSession is created on first use and lives as long as the Coordinator.
type guildSession struct {
	guildID string
	// lock is a semaphore; blocked senders are admitted in arrival order.
	lock chan struct{}

	mu   sync.Mutex
	conn Connection
	// left is closed when the latest idle disconnect has finished.
	left chan struct{}
}

func (g *guildSession) acquire(ctx context.Context) error {
	select {
	case g.lock <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *guildSession) tryAcquire() bool {
	select {
	case g.lock <- struct{}{}:
		return true
	default:
		return false
	}
}

func (g *guildSession) release() {
	<-g.lock
}

func (g *guildSession) connection() Connection {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.conn
}

// waitLeft blocks until an idle disconnect in progress is over.
func (g *guildSession) waitLeft(ctx context.Context) error {
	g.mu.Lock()
	left := g.left
	g.mu.Unlock()
	if left == nil {
		return nil
	}

	select {
	case <-left:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *guildSession) setConnection(conn Connection) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.conn = conn
}

type Coordinator struct {
	resolver       Resolver
	transport      Transport
	leaveDelay     time.Duration
	connectTimeout time.Duration

	// ctx outlives individual requests and stops pending idle checks on Shutdown.
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	guilds map[string]*guildSession
}

type Option func(*Coordinator)

func WithLeaveDelay(d time.Duration) Option {
	return func(c *Coordinator) {
		c.leaveDelay = d
	}
}

func WithConnectTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.connectTimeout = d
	}
}

func NewCoordinator(resolver Resolver, transport Transport, opts ...Option) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		resolver:       resolver,
		transport:      transport,
		leaveDelay:     LeaveDelay,
		connectTimeout: ConnectTimeout,
		ctx:            ctx,
		cancel:         cancel,
		guilds:         make(map[string]*guildSession),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Coordinator) session(guildID string) *guildSession {
	c.mu.Lock()
	defer c.mu.Unlock()

	gs, ok := c.guilds[guildID]
	if !ok {
		gs = &guildSession{guildID: guildID, lock: make(chan struct{}, 1)}
		c.guilds[guildID] = gs
	}
	return gs
}

// PlayInVoice plays a sound into req.ChannelID and returns when playback is
// over. Errors from the voice transport are returned as *TransientError;
// anything else, like sound.ErrNotFound, is returned as is.
func (c *Coordinator) PlayInVoice(ctx context.Context, req PlayRequest, notifier Notifier) error {
	gs := c.session(req.GuildID)

	if !gs.tryAcquire() {
		slog.Debug("Guild is busy, queueing request", "guildID", req.GuildID, "sound", req.Name)
		notifier.Queued()
		if err := gs.acquire(ctx); err != nil {
			return err
		}
	}
	defer gs.release()

	text, path, err := c.resolver.ResolveForVoice(req.Scope, req.Name)
	if err != nil {
		return err
	}

	go notifier.Text(text)

	err = c.play(ctx, gs, req.ChannelID, path)
	schedule.RunAfter(c.ctx, c.leaveDelay, func(ctx context.Context) {
		c.leaveIfIdle(gs)
	})
	return err
}

func (c *Coordinator) play(ctx context.Context, gs *guildSession, channelID, path string) error {
	conn := gs.connection()

	switch {
	case conn == nil:
		connectCtx, cancel := context.WithTimeout(ctx, c.connectTimeout)
		defer cancel()

		slog.Debug("Connecting to voice", "guildID", gs.guildID, "channelID", channelID)
		err := gs.waitLeft(connectCtx)
		var joined Connection
		if err == nil {
			joined, err = c.transport.Connect(connectCtx, gs.guildID, channelID)
		}
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				err = ErrConnectTimeout
			}
			return &TransientError{Op: "connect", Err: err}
		}
		gs.setConnection(joined)
		conn = joined
	case conn.ChannelID() != channelID:
		slog.Debug("Moving to voice channel", "guildID", gs.guildID, "from", conn.ChannelID(), "to", channelID)
		if err := conn.Move(channelID); err != nil {
			return &TransientError{Op: "move", Err: err}
		}
	}

	res := newResult()
	if err := conn.Play(path, res.resolve); err != nil {
		return &TransientError{Op: "play", Err: err}
	}
	if err := res.wait(ctx); err != nil {
		return &TransientError{Op: "play", Err: err}
	}
	return nil
}

// leaveIfIdle disconnects gs when nothing is using its connection.
// A request holding the lock means the connection is in use. The lock is
// released before disconnecting; a request that arrives meanwhile connects
// once the disconnect is over.
func (c *Coordinator) leaveIfIdle(gs *guildSession) {
	if !gs.tryAcquire() {
		return
	}

	gs.mu.Lock()
	conn := gs.conn
	if conn == nil || conn.IsPlaying() {
		gs.mu.Unlock()
		gs.release()
		return
	}
	gs.conn = nil
	left := make(chan struct{})
	gs.left = left
	gs.mu.Unlock()
	gs.release()
	defer close(left)

	slog.Debug("Leaving idle voice channel", "guildID", gs.guildID, "channelID", conn.ChannelID())
	if err := conn.Disconnect(); err != nil {
		slog.Warn("Failed to disconnect from voice", "guildID", gs.guildID, "error", err)
	}
}

// DeliverAsFile returns the display text and MP3 path of a sound.
func (c *Coordinator) DeliverAsFile(scope sound.Scope, name string) (string, string, error) {
	return c.resolver.Resolve(scope, name)
}

// Shutdown cancels pending idle checks and disconnects every connection.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.cancel()

	c.mu.Lock()
	sessions := make([]*guildSession, 0, len(c.guilds))
	for _, gs := range c.guilds {
		sessions = append(sessions, gs)
	}
	c.mu.Unlock()

	var errs []error
	for _, gs := range sessions {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		gs.mu.Lock()
		conn := gs.conn
		gs.conn = nil
		gs.mu.Unlock()

		if conn == nil {
			continue
		}
		if err := conn.Disconnect(); err != nil {
			errs = append(errs, fmt.Errorf("guild %s: %w", gs.guildID, err))
		}
	}
	return errors.Join(errs...)
}

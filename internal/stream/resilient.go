// Package stream maintains one resilient live bar subscription per worker:
// reconnecting with capped exponential backoff, merging updates into an owned
// bounded series, and dispatching events on a channel.
package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jpillora/backoff"

	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/domain/models"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/internal/domain/repository"
	"github.com/BinqQarenYu/AlgoTrade-Navigator-sub000/pkg/logger"
)

// Config tunes the reconnect policy.
type Config struct {
	MaxAttempts    int // consecutive failed attempts before giving up
	MinDelay       time.Duration
	MaxDelay       time.Duration
	EventBuffer    int
	SeriesCapacity int
}

func DefaultConfig() Config {
	return Config{MaxAttempts: 8, MinDelay: time.Second, MaxDelay: time.Minute, EventBuffer: 64, SeriesCapacity: 500}
}

// Connection is a reconnecting live feed for one symbol/interval. Events are
// merged into the owned series before dispatch. An operator Close never
// triggers reconnection; a terminal connection failure is surfaced on Err.
type Connection struct {
	dialer   repository.FeedDialer
	symbol   string
	interval string
	cfg      Config
	log      *logger.Logger

	series   *models.BarSeries
	seriesMu sync.Mutex

	events chan models.BarEvent
	errs   chan error

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	mu        sync.Mutex
	connected bool
	feed      repository.BarFeed

	sleep func(ctx context.Context, d time.Duration) error
}

func New(dialer repository.FeedDialer, symbol, interval string, cfg Config, log *logger.Logger) *Connection {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = DefaultConfig().MinDelay
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultConfig().EventBuffer
	}
	return &Connection{
		dialer:   dialer,
		symbol:   symbol,
		interval: interval,
		cfg:      cfg,
		log:      log,
		series:   models.NewBarSeries(cfg.SeriesCapacity),
		events:   make(chan models.BarEvent, cfg.EventBuffer),
		errs:     make(chan error, 1),
		closed:   make(chan struct{}),
		sleep:    sleepCtx,
	}
}

// Seed preloads the owned series with historical bars.
func (c *Connection) Seed(bars []models.Bar) {
	c.seriesMu.Lock()
	c.series.Seed(bars)
	c.seriesMu.Unlock()
}

// Bars returns a copy of the merged series, oldest first.
func (c *Connection) Bars() []models.Bar {
	c.seriesMu.Lock()
	defer c.seriesMu.Unlock()
	return c.series.Bars()
}

// Events is the merged live event channel. It closes after a terminal
// failure or Close.
func (c *Connection) Events() <-chan models.BarEvent { return c.events }

// Err delivers at most one terminal connection error.
func (c *Connection) Err() <-chan error { return c.errs }

// Start dials the first feed and launches the read loop. The initial dial is
// synchronous so callers learn immediately whether the symbol subscribes.
func (c *Connection) Start(ctx context.Context) error {
	feed, err := c.dialer.Dial(ctx, c.symbol, c.interval)
	if err != nil {
		return fmt.Errorf("dial %s/%s: %w", c.symbol, c.interval, err)
	}
	c.setFeed(feed)

	c.wg.Add(1)
	go c.run(ctx, feed)
	return nil
}

func (c *Connection) run(ctx context.Context, feed repository.BarFeed) {
	defer c.wg.Done()
	defer close(c.events)

	b := &backoff.Backoff{Min: c.cfg.MinDelay, Max: c.cfg.MaxDelay, Factor: 2}

	for {
		err := c.consume(ctx, feed)
		if c.isClosed() || ctx.Err() != nil {
			return
		}
		c.log.Warn("feed dropped",
			logger.String("symbol", c.symbol),
			logger.Error(err))
		c.setConnected(false)

		feed = nil
		for feed == nil {
			if int(b.Attempt()) >= c.cfg.MaxAttempts {
				c.errs <- fmt.Errorf("feed %s/%s: gave up after %d reconnect attempts: %w",
					c.symbol, c.interval, c.cfg.MaxAttempts, err)
				return
			}
			if serr := c.sleep(ctx, b.Duration()); serr != nil {
				return
			}
			if c.isClosed() {
				return
			}
			f, derr := c.dialer.Dial(ctx, c.symbol, c.interval)
			if derr != nil {
				err = derr
				continue
			}
			feed = f
		}
		b.Reset()
		c.setFeed(feed)
		c.log.Info("feed reconnected", logger.String("symbol", c.symbol))
	}
}

// consume pumps one feed until it errors or the connection closes.
func (c *Connection) consume(ctx context.Context, feed repository.BarFeed) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.closed:
			return nil
		case ev, ok := <-feed.Events():
			if !ok {
				return fmt.Errorf("feed channel closed")
			}
			c.seriesMu.Lock()
			c.series.Apply(ev.Bar)
			c.seriesMu.Unlock()
			select {
			case c.events <- ev:
			case <-c.closed:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		case err := <-feed.Err():
			return err
		}
	}
}

// Close is the intentional, operator-initiated shutdown. It never reconnects
// and waits for the read loop to exit.
func (c *Connection) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.mu.Lock()
		feed := c.feed
		c.mu.Unlock()
		if feed != nil {
			_ = feed.Close()
		}
	})
	c.wg.Wait()
	return nil
}

func (c *Connection) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Connection) setFeed(feed repository.BarFeed) {
	c.mu.Lock()
	c.feed = feed
	c.connected = true
	c.mu.Unlock()
}

func (c *Connection) setConnected(v bool) {
	c.mu.Lock()
	c.connected = v
	c.mu.Unlock()
}

func (c *Connection) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Package client is the composition root of the client core. It wires the
// session, REST client, dispatch loop, mutation coordinator, event bus and
// entity cache, and hands out views bound to them.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"feedsync/internal/api"
	"feedsync/internal/config"
	"feedsync/internal/dispatch"
	"feedsync/internal/entitycache"
	"feedsync/internal/eventbus"
	"feedsync/internal/featureflags"
	"feedsync/internal/models"
	"feedsync/internal/mutation"
	"feedsync/internal/observability"
	"feedsync/internal/session"
	"feedsync/internal/views"
)

const closeTimeout = 5 * time.Second

// Notice is a blocking failure surfaced by a hard mutation.
type Notice struct {
	Op  string
	Err error
}

// Client owns every shared collaborator of one signed-in app instance.
type Client struct {
	cfg     *config.Config
	store   session.Store
	session *session.Session
	api     *api.Client
	loop    *dispatch.Loop
	flags   *featureflags.Manager
	cache   *entitycache.Cache
	bus     *eventbus.Bus
	follows *mutation.FollowState
	coord   *mutation.Coordinator
	toggles *mutation.Toggles
	notices chan Notice
}

// OpenStore returns the persisted key/value store selected by cfg.
func OpenStore(ctx context.Context, cfg *config.Config) (session.Store, error) {
	switch cfg.KVBackend {
	case config.KVBackendRedis:
		return session.NewRedisStore(ctx, cfg.RedisURL)
	case config.KVBackendSQLite:
		return session.OpenSQLite(cfg.SQLitePath)
	case config.KVBackendMemory, "":
		return session.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown KV_BACKEND %q", cfg.KVBackend)
	}
}

// New opens the configured store and wires a client over it.
func New(ctx context.Context, cfg *config.Config) (*Client, error) {
	store, err := OpenStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	c, err := NewWithStore(ctx, cfg, store)
	if err != nil {
		closeStore(store)
		return nil, err
	}
	return c, nil
}

// NewWithStore wires a client over an already opened store and loads the
// persisted session from it.
func NewWithStore(ctx context.Context, cfg *config.Config, store session.Store) (*Client, error) {
	sess := session.New(store)
	if err := sess.Load(ctx); err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	c := &Client{
		cfg:     cfg,
		store:   store,
		session: sess,
		api:     api.NewClient(cfg.APIBaseURL, cfg.APITimeout, sess),
		loop:    dispatch.NewLoop(256),
		flags:   featureflags.NewManager(cfg.FeatureFlags),
		cache:   entitycache.New(),
		bus:     eventbus.New(),
		follows: mutation.NewFollowState(sess),
		notices: make(chan Notice, 16),
	}
	c.coord = mutation.NewCoordinator(c.loop, sess, mutation.NotifierFunc(c.notify), c.flags)
	c.toggles = mutation.NewToggles(c.coord, c.api, c.bus, c.follows)
	return c, nil
}

func (c *Client) notify(op string, err error) {
	select {
	case c.notices <- Notice{Op: op, Err: err}:
	default:
		observability.GlobalLogger.Warn("notice dropped",
			slog.String("operation", op),
			slog.String("error", err.Error()),
		)
	}
}

// Notices delivers hard mutation failures.
func (c *Client) Notices() <-chan Notice {
	return c.notices
}

// Run drives the owning goroutine until ctx is done.
func (c *Client) Run(ctx context.Context) error {
	return c.loop.Run(ctx)
}

// Do runs fn on the owning goroutine and waits for it. Every view method
// must be called through Do.
func (c *Client) Do(ctx context.Context, fn func()) error {
	return c.loop.Do(ctx, fn)
}

// Settle waits until in-flight calls have completed and their completions,
// and any calls those completions started, have run on the loop.
func (c *Client) Settle(ctx context.Context, rounds int) error {
	if rounds <= 0 {
		rounds = 4
	}
	for i := 0; i < rounds; i++ {
		c.loop.Wait()
		if err := c.loop.Do(ctx, func() {}); err != nil {
			return err
		}
	}
	return c.session.WaitHints(ctx)
}

// Login exchanges credentials with the backend and stores the identity.
func (c *Client) Login(ctx context.Context, username, password string) (models.UserSummary, error) {
	res, err := c.api.Login(ctx, username, password)
	if err != nil {
		return models.UserSummary{}, err
	}
	err = c.session.SignIn(ctx, session.Identity{
		UserID:      res.User.ID,
		Credential:  res.Token,
		DisplayName: res.User.DisplayName,
		AvatarURL:   res.User.AvatarURL,
	})
	if err != nil {
		return models.UserSummary{}, fmt.Errorf("persist session: %w", err)
	}
	observability.GlobalLogger.Info("signed in", slog.String("user_id", res.User.ID))
	return res.User, nil
}

// Logout forgets the viewer, every cached snapshot and every follow state.
// Responses to mutations sent before logout are dropped when they arrive.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.loop.Do(ctx, func() {
		c.coord.Reset()
		c.cache.ClearAll()
		c.follows.Clear()
	}); err != nil {
		return err
	}
	return c.session.SignOut(ctx)
}

// Session returns the viewer session.
func (c *Client) Session() *session.Session { return c.session }

// Flags returns the feature flag values for the signed-in viewer.
func (c *Client) Flags() map[string]bool {
	return c.flags.Snapshot(c.session.ViewerID())
}

func (c *Client) deps() views.Deps {
	return views.Deps{
		Dispatcher:  c.loop,
		Backend:     c.api,
		Cache:       c.cache,
		Bus:         c.bus,
		Coordinator: c.coord,
		Toggles:     c.toggles,
		Author:      func() models.UserSummary { return c.session.Identity().Summary() },
		PageSize:    c.cfg.PageSize,
		Proximity:   c.cfg.ScrollProximity,
	}
}

// Profile returns an unmounted profile view.
func (c *Client) Profile(userID string) *views.ProfileView {
	return views.NewProfileView(userID, c.deps())
}

// PostDetail returns an unmounted post detail view.
func (c *Client) PostDetail(postID string) *views.PostDetailView {
	return views.NewPostDetailView(postID, c.deps())
}

// FollowButton returns an unmounted follow button.
func (c *Client) FollowButton(targetID string) *views.FollowButton {
	return views.NewFollowButton(targetID, c.deps())
}

// VideoFeed returns an unmounted short video feed.
func (c *Client) VideoFeed(userID string) *views.ShortVideoFeed {
	return views.NewShortVideoFeed(userID, c.deps())
}

// Close releases the REST client and the persisted store once pending hint
// writes have landed.
func (c *Client) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	err := errors.Join(c.session.WaitHints(ctx), c.api.Close())
	if closer, ok := c.store.(io.Closer); ok {
		err = errors.Join(err, closer.Close())
	}
	return err
}

func closeStore(store session.Store) {
	if closer, ok := store.(io.Closer); ok {
		_ = closer.Close()
	}
}

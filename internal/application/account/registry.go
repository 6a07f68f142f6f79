// Package account owns the per-user services: one progression engine and
// one entitlement store per learner, loaded lazily and serialized so that
// at most one operation touches a learner's state at a time.
package account

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ZapTalk/zaptalk.github.io/internal/domain/catalog"
	"github.com/ZapTalk/zaptalk.github.io/internal/domain/entitlement"
	"github.com/ZapTalk/zaptalk.github.io/internal/domain/progression"
	"github.com/ZapTalk/zaptalk.github.io/internal/domain/shared"
	"github.com/ZapTalk/zaptalk.github.io/pkg/logger"
	"github.com/ZapTalk/zaptalk.github.io/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACCOUNT
// ══════════════════════════════════════════════════════════════════════════════

// Account bundles the services of a single learner. It is only handed out
// inside Registry.With, which holds the account lock.
type Account struct {
	userID string

	mu       sync.Mutex
	loaded   bool
	retired  bool // evicted or closed; holders must look the account up again
	progress *progression.Engine
	access   *entitlement.Store
}

// UserID returns the learner id.
func (a *Account) UserID() string { return a.userID }

// Progression returns the learner's gamification engine.
func (a *Account) Progression() *progression.Engine { return a.progress }

// Entitlements returns the learner's entitlement store.
func (a *Account) Entitlements() *entitlement.Store { return a.access }

func (a *Account) load(ctx context.Context) error {
	if a.loaded {
		return nil
	}
	if err := a.progress.Load(ctx); err != nil {
		return err
	}
	if err := a.access.Load(ctx); err != nil {
		return err
	}
	a.loaded = true
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// REGISTRY
// ══════════════════════════════════════════════════════════════════════════════

// Config wires the registry's collaborators. InitialFreezes of zero means
// progression.DefaultFreezeTokens, a negative value means none.
type Config struct {
	Catalog         *catalog.Catalog
	ProgressRepo    progression.Repository
	EntitlementRepo entitlement.Repository
	Publisher       shared.EventPublisher
	Calendar        *timeutil.Calendar
	Achievements    *progression.AchievementCatalog
	InitialFreezes  int
	Logger          *logger.Logger
	NewID           func() string
}

// Registry creates accounts on first use and keeps them until Evict or
// Close.
type Registry struct {
	cfg Config
	log *logger.Logger

	mu       sync.Mutex
	accounts map[shared.UserID]*Account
	closed   bool
}

// NewRegistry validates cfg and returns an empty registry.
func NewRegistry(cfg Config) (*Registry, error) {
	var errs []error
	if cfg.Catalog == nil {
		errs = append(errs, errors.New("catalog is required"))
	}
	if cfg.ProgressRepo == nil {
		errs = append(errs, errors.New("progression repository is required"))
	}
	if cfg.EntitlementRepo == nil {
		errs = append(errs, errors.New("entitlement repository is required"))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if cfg.Publisher == nil {
		cfg.Publisher = shared.NopPublisher{}
	}
	if cfg.Calendar == nil {
		cfg.Calendar = timeutil.NewCalendar(nil, nil)
	}
	if cfg.Achievements == nil {
		cfg.Achievements = progression.DefaultAchievements()
	}
	switch {
	case cfg.InitialFreezes == 0:
		cfg.InitialFreezes = progression.DefaultFreezeTokens
	case cfg.InitialFreezes < 0:
		cfg.InitialFreezes = 0
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Default()
	}

	return &Registry{
		cfg:      cfg,
		log:      cfg.Logger.With(logger.Component("account_registry")),
		accounts: make(map[shared.UserID]*Account),
	}, nil
}

// Catalog returns the reference data shared by all accounts.
func (r *Registry) Catalog() *catalog.Catalog { return r.cfg.Catalog }

// Calendar returns the calendar that defines day boundaries.
func (r *Registry) Calendar() *timeutil.Calendar { return r.cfg.Calendar }

// With runs fn while holding the learner's account lock, loading the
// account from storage on first use. Errors from fn are returned as is.
func (r *Registry) With(ctx context.Context, userID string, fn func(a *Account) error) error {
	id, err := shared.NewUserID(userID)
	if err != nil {
		return err
	}

	a, err := r.acquire(id)
	if err != nil {
		return err
	}
	defer a.mu.Unlock()

	if err := a.load(ctx); err != nil {
		r.log.Error("load account failed", logger.UserID(id.String()), logger.Err(err))
		return err
	}
	return fn(a)
}

// acquire returns the learner's account with its lock held. An account
// retired while the caller waited for its lock is skipped, so two live
// accounts never exist for one learner.
func (r *Registry) acquire(id shared.UserID) (*Account, error) {
	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return nil, shared.NewDomainError("account", "With", shared.ErrServiceUnavailable, "registry is closed")
		}
		a, ok := r.accounts[id]
		if !ok {
			a = r.newAccount(id.String())
			r.accounts[id] = a
		}
		r.mu.Unlock()

		a.mu.Lock()
		if !a.retired {
			return a, nil
		}
		a.mu.Unlock()
	}
}

func (r *Registry) newAccount(userID string) *Account {
	c := r.cfg
	engineOpts := []progression.Option{
		progression.WithCalendar(c.Calendar),
		progression.WithAchievements(c.Achievements),
		progression.WithPublisher(c.Publisher),
		progression.WithLogger(c.Logger),
		progression.WithInitialFreezes(c.InitialFreezes),
	}
	if c.NewID != nil {
		engineOpts = append(engineOpts, progression.WithIDGenerator(c.NewID))
	}

	store := entitlement.NewStore(userID, c.Catalog, c.EntitlementRepo,
		entitlement.WithClock(calendarClock{c.Calendar}),
		entitlement.WithPublisher(c.Publisher),
		entitlement.WithLogger(c.Logger),
	)

	r.log.Debug("account created", logger.UserID(userID))
	return &Account{
		userID:   userID,
		progress: progression.NewEngine(userID, c.ProgressRepo, engineOpts...),
		access:   store,
	}
}

// Evict drops a cached account once its in-flight operation finishes. The
// next With reloads it from storage.
func (r *Registry) Evict(userID string) {
	id := shared.UserID(userID)

	r.mu.Lock()
	a, ok := r.accounts[id]
	r.mu.Unlock()
	if !ok {
		return
	}

	// The account lock is taken first so that no replacement account can
	// be created while a has an operation running.
	a.mu.Lock()
	defer a.mu.Unlock()

	r.mu.Lock()
	if r.accounts[id] == a {
		delete(r.accounts, id)
	}
	r.mu.Unlock()
	a.retired = true
}

// Len reports the number of cached accounts.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.accounts)
}

// Close rejects further calls and waits for in-flight operations to
// release their accounts.
func (r *Registry) Close() {
	r.mu.Lock()
	r.closed = true
	accounts := r.accounts
	r.accounts = make(map[shared.UserID]*Account)
	r.mu.Unlock()

	for _, a := range accounts {
		a.mu.Lock()
		a.loaded = false
		a.retired = true
		a.mu.Unlock()
	}
	r.log.Info("account registry closed", logger.Int("accounts", len(accounts)))
}

// calendarClock adapts a Calendar to timeutil.Clock.
type calendarClock struct{ c *timeutil.Calendar }

func (cc calendarClock) Now() time.Time { return cc.c.Now() }

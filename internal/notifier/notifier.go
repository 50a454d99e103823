// Package notifier sends abandoned cart reminder emails.
//
// A cart moves through reminder states by its abandoned_email_count. Each run
// walks the configured reminders in ascending order, mails at most one
// reminder per cart and advances the count only after a successful send.
// The counts live on the order rows, so runs can be repeated or restarted
// safely.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/safar/go-sql-checkout/internal/config"
	"github.com/safar/go-sql-checkout/internal/metrics"
	"github.com/safar/go-sql-checkout/internal/models"
	"github.com/safar/go-sql-checkout/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	ComebackCouponCode = "COMEBACK10"
	defaultLockKey     = "checkout:abandoned-cart-notifier"

	// MaxReminders is the terminal email count. A cart that has received
	// this many reminders is never emailed again until it is touched.
	MaxReminders = config.ReminderCount
)

var (
	ErrAlreadyRunning = errors.New("notifier run already in progress")
	ErrLocked         = errors.New("notifier lock held by another instance")
)

type Reminder struct {
	// After is how long the cart must have been untouched.
	After time.Duration
	// EmailCount is the number of reminders the cart must already have.
	EmailCount   int
	Subject      string
	DiscountCode string
}

var subjects = []string{
	"You left something in your cart!",
	"Don't miss out on your cart items!",
	"Last chance - Special discount inside!",
}

// DefaultReminders builds one reminder per threshold, up to MaxReminders.
// The third carries the comeback discount code.
func DefaultReminders(thresholds []time.Duration) []Reminder {
	if len(thresholds) > MaxReminders {
		thresholds = thresholds[:MaxReminders]
	}
	reminders := make([]Reminder, 0, len(thresholds))
	for i, after := range thresholds {
		r := Reminder{
			After:      after,
			EmailCount: i,
			Subject:    subjects[i],
		}
		if i == MaxReminders-1 {
			r.DiscountCode = ComebackCouponCode
		}
		reminders = append(reminders, r)
	}
	return reminders
}

func comebackCoupon() models.Coupon {
	return models.Coupon{
		Title:              "Abandoned Cart Recovery Discount",
		Code:               ComebackCouponCode,
		Discount:           decimal.NewFromInt(10),
		DiscountType:       models.DiscountTypePercentage,
		MinimumOrderAmount: decimal.Zero,
		Active:             true,
	}
}

type Config struct {
	Reminders     []Reminder
	FrontendURL   string
	Interval      time.Duration
	RunTimeout    time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
	LockKey       string
	LockTTL       time.Duration
}

// Store is the persistence the notifier needs.
type Store interface {
	FindAbandonedCarts(ctx context.Context, emailCount int, startedBefore time.Time) ([]store.AbandonedCart, error)
	CartItems(ctx context.Context, orderID int64) ([]models.OrderItem, error)
	EnsureCoupon(ctx context.Context, c models.Coupon) (*models.Coupon, error)
	MarkReminderSent(ctx context.Context, orderID int64, fromCount int, startedBefore, at time.Time) (bool, error)
}

type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error)
	Release(ctx context.Context, key, token string) error
}

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

type Result struct {
	Sent    int
	Failed  int
	Skipped int
}

type Notifier struct {
	cfg     Config
	store   Store
	mailer  Mailer
	locker  Locker
	clock   Clock
	metrics *metrics.NotifierMetrics
	log     *zap.Logger
	sleep   func(ctx context.Context, d time.Duration) error

	running atomic.Bool
}

type Option func(*Notifier)

// WithLocker enables cross-instance exclusion.
func WithLocker(l Locker) Option {
	return func(n *Notifier) { n.locker = l }
}

func WithClock(c Clock) Option {
	return func(n *Notifier) { n.clock = c }
}

func WithMetrics(m *metrics.NotifierMetrics) Option {
	return func(n *Notifier) { n.metrics = m }
}

func New(cfg Config, st Store, mailer Mailer, log *zap.Logger, opts ...Option) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.RetryAttempts < 1 {
		cfg.RetryAttempts = 1
	}
	if cfg.LockKey == "" {
		cfg.LockKey = defaultLockKey
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 15 * time.Minute
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	n := &Notifier{
		cfg:    cfg,
		store:  st,
		mailer: mailer,
		clock:  systemClock{},
		log:    log.Named("notifier"),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Run calls RunOnce immediately and then on every interval until ctx is done.
func (n *Notifier) Run(ctx context.Context) error {
	n.log.Info("abandoned cart notifier started",
		zap.Duration("interval", n.cfg.Interval),
		zap.Int("reminders", len(n.cfg.Reminders)))

	ticker := time.NewTicker(n.cfg.Interval)
	defer ticker.Stop()

	for {
		n.runScheduled(ctx)
		select {
		case <-ctx.Done():
			n.log.Info("abandoned cart notifier stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (n *Notifier) runScheduled(ctx context.Context) {
	res, err := n.RunOnce(ctx)
	switch {
	case errors.Is(err, ErrAlreadyRunning), errors.Is(err, ErrLocked):
		n.log.Debug("notifier run skipped", zap.Error(err))
	case err != nil && ctx.Err() == nil:
		n.log.Error("notifier run failed", zap.Error(err))
	case err == nil:
		n.log.Info("notifier run complete",
			zap.Int("sent", res.Sent),
			zap.Int("failed", res.Failed),
			zap.Int("skipped", res.Skipped))
	}
}

// RunOnce performs a single pass over every reminder.
func (n *Notifier) RunOnce(ctx context.Context) (Result, error) {
	if !n.running.CompareAndSwap(false, true) {
		n.metrics.ObserveRun(metrics.RunOutcomeOverlap, 0)
		return Result{}, ErrAlreadyRunning
	}
	defer n.running.Store(false)

	if n.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.cfg.RunTimeout)
		defer cancel()
	}

	if n.locker != nil {
		token, ok, err := n.locker.TryLock(ctx, n.cfg.LockKey, n.cfg.LockTTL)
		if err != nil {
			n.metrics.ObserveRun(metrics.RunOutcomeError, 0)
			return Result{}, fmt.Errorf("acquire notifier lock: %w", err)
		}
		if !ok {
			n.metrics.ObserveRun(metrics.RunOutcomeLocked, 0)
			return Result{}, ErrLocked
		}
		defer func() {
			if err := n.locker.Release(context.WithoutCancel(ctx), n.cfg.LockKey, token); err != nil {
				n.log.Warn("release notifier lock", zap.Error(err))
			}
		}()
	}

	started := time.Now()
	res, err := n.run(ctx)
	outcome := metrics.RunOutcomeSuccess
	if err != nil {
		outcome = metrics.RunOutcomeError
	}
	n.metrics.ObserveRun(outcome, time.Since(started))
	return res, err
}

func (n *Notifier) run(ctx context.Context) (Result, error) {
	var res Result
	now := n.clock.Now()
	emailed := make(map[int64]struct{})

	for _, r := range n.cfg.Reminders {
		carts, err := n.store.FindAbandonedCarts(ctx, r.EmailCount, now.Add(-r.After))
		if err != nil {
			return res, fmt.Errorf("reminder %d: %w", r.EmailCount+1, err)
		}
		n.log.Debug("abandoned carts found",
			zap.Int("reminder", r.EmailCount+1),
			zap.Int("carts", len(carts)))
		if len(carts) == 0 {
			continue
		}

		if r.DiscountCode == ComebackCouponCode {
			if _, err := n.store.EnsureCoupon(ctx, comebackCoupon()); err != nil {
				return res, fmt.Errorf("reminder %d: %w", r.EmailCount+1, err)
			}
		}

		users := make(map[int64]struct{})
		for _, cart := range carts {
			if _, seen := users[cart.UserID]; seen {
				n.metrics.IncCartSkipped("older_cart")
				res.Skipped++
				continue
			}
			users[cart.UserID] = struct{}{}
			if _, seen := emailed[cart.OrderID]; seen {
				continue
			}

			sent, err := n.remind(ctx, r, cart, now.Add(-r.After))
			if err != nil {
				if ctx.Err() != nil {
					return res, ctx.Err()
				}
				n.metrics.IncEmailFailure(r.EmailCount + 1)
				n.log.Error("abandoned cart email failed",
					zap.Int64("order_id", cart.OrderID),
					zap.Int("reminder", r.EmailCount+1),
					zap.Error(err))
				res.Failed++
				continue
			}
			emailed[cart.OrderID] = struct{}{}
			if sent {
				res.Sent++
			} else {
				res.Skipped++
			}
		}
	}
	return res, nil
}

// remind mails one reminder and advances the cart. It reports false when
// the cart turned out to be empty or was touched while the email went out.
func (n *Notifier) remind(ctx context.Context, r Reminder, cart store.AbandonedCart, startedBefore time.Time) (bool, error) {
	items, err := n.store.CartItems(ctx, cart.OrderID)
	if err != nil {
		return false, err
	}
	if len(items) == 0 {
		n.metrics.IncCartSkipped("empty_cart")
		return false, nil
	}

	msg, err := renderReminder(r, cart, items, n.cfg.FrontendURL)
	if err != nil {
		return false, err
	}
	if err := n.send(ctx, msg); err != nil {
		return false, err
	}

	advanced, err := n.store.MarkReminderSent(ctx, cart.OrderID, r.EmailCount, startedBefore, n.clock.Now())
	if err != nil {
		return false, err
	}
	if !advanced {
		n.metrics.IncCartSkipped("cart_changed")
		n.log.Warn("cart changed while reminder was sent", zap.Int64("order_id", cart.OrderID))
		return false, nil
	}
	n.metrics.IncEmailSent(r.EmailCount + 1)
	n.log.Info("abandoned cart email sent",
		zap.Int64("order_id", cart.OrderID),
		zap.String("reference", cart.ReferenceNumber),
		zap.Int("reminder", r.EmailCount+1))
	return true, nil
}

// send tries the mailer up to RetryAttempts times with a fixed delay.
func (n *Notifier) send(ctx context.Context, msg Message) error {
	var err error
	for attempt := 1; attempt <= n.cfg.RetryAttempts; attempt++ {
		if attempt > 1 {
			n.metrics.IncSendRetry()
			if serr := n.sleep(ctx, n.cfg.RetryDelay); serr != nil {
				return serr
			}
		}
		if err = n.mailer.Send(ctx, msg); err == nil {
			return nil
		}
		n.log.Warn("email send attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", n.cfg.RetryAttempts),
			zap.Error(err))
	}
	return fmt.Errorf("send email after %d attempts: %w", n.cfg.RetryAttempts, err)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

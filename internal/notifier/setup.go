package notifier

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/go-sql-checkout/internal/config"
	"github.com/safar/go-sql-checkout/internal/lock"
	"github.com/safar/go-sql-checkout/internal/metrics"
	"go.uber.org/zap"
)

// Setup builds a Notifier from application config: SMTP or a logging
// mailer, and a Redis lock when REDIS_URL is set. The returned func closes
// the Redis client.
func Setup(ctx context.Context, cfg *config.Config, db *sql.DB, log *zap.Logger, m *metrics.NotifierMetrics) (*Notifier, func() error, error) {
	sc := cfg.Scheduler
	ncfg := Config{
		Reminders:     DefaultReminders(sc.Reminders),
		FrontendURL:   cfg.FrontendURL,
		Interval:      sc.Interval,
		RunTimeout:    sc.RunTimeout,
		RetryAttempts: sc.RetryAttempts,
		RetryDelay:    sc.RetryDelay,
		LockTTL:       sc.LockTTL,
	}

	var mailer Mailer = NoopMailer{Log: log}
	if cfg.SMTP.Enabled() {
		mailer = NewSMTPMailer(SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			Timeout:  cfg.SMTP.Timeout,
		})
	} else {
		log.Warn("SMTP_HOST not set; reminder emails will be dropped")
	}

	opts := []Option{WithMetrics(m)}
	closeFn := func() error { return nil }
	if cfg.Redis.URL != "" {
		client, err := lock.NewClient(cfg.Redis.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse redis url: %w", err)
		}
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}
		opts = append(opts, WithLocker(lock.NewLocker(client)))
		closeFn = client.Close
	}

	return New(ncfg, NewSQLStore(db), mailer, log, opts...), closeFn, nil
}

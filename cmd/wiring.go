package cmd

import (
	"database/sql"
	"fmt"

	"github.com/vibast-solutions/ms-go-menu-auth/app/metrics"
	"github.com/vibast-solutions/ms-go-menu-auth/app/repository"
	"github.com/vibast-solutions/ms-go-menu-auth/app/service"
	"github.com/vibast-solutions/ms-go-menu-auth/config"

	"github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
)

// openDatabase forces parseTime so DATETIME columns scan into time.Time.
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	dsn, err := mysql.ParseDSN(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse MYSQL_DSN: %w", err)
	}
	dsn.ParseTime = true

	connector, err := mysql.NewConnector(dsn)
	if err != nil {
		return nil, err
	}

	db := sql.OpenDB(connector)
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func newNotifier(cfg *config.Config) service.Notifier {
	if cfg.SMTP.Enabled() {
		return service.NewSMTPNotifier(cfg.SMTP, cfg.Frontend.BaseURL)
	}

	logrus.Warn("SMTP_HOST not set, emails will be logged instead of sent")
	return service.NewLogNotifier(cfg.Frontend.BaseURL)
}

func newCredentialService(
	cfg *config.Config,
	db *sql.DB,
	recorder metrics.Recorder,
	opts ...service.CredentialServiceOption,
) service.CredentialService {
	opts = append([]service.CredentialServiceOption{service.WithRecorder(recorder)}, opts...)
	return service.NewCredentialService(
		repository.NewUserRepository(db),
		repository.NewCustomerRepository(db),
		service.NewBcryptHasher(cfg.Password.BcryptCost),
		service.NewTokenIssuer(cfg.JWT),
		newNotifier(cfg),
		cfg,
		opts...,
	)
}

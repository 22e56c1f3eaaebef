package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/xavierca1/lead-relay/internal/config"
	"github.com/xavierca1/lead-relay/internal/entity"
	"github.com/xavierca1/lead-relay/internal/infra/database"
	"github.com/xavierca1/lead-relay/internal/infra/http/handlers"
	"github.com/xavierca1/lead-relay/internal/infra/integration/salesforce"
	"github.com/xavierca1/lead-relay/internal/infra/mail"
	"github.com/xavierca1/lead-relay/internal/infra/queue"
	"github.com/xavierca1/lead-relay/internal/infra/storage"
	"github.com/xavierca1/lead-relay/internal/usecase"
)

// app holds the wired components shared by every command.
type app struct {
	cfg      *config.Config
	db       *sql.DB
	rabbit   *queue.RabbitMQ
	producer *queue.RabbitMQProducer

	eventLog entity.EventLogRepository
	failed   entity.FailedLeadRepository
	checks   map[string]handlers.Check

	ingest  *usecase.IngestLeadUseCase
	retry   *usecase.RetryFailedLeadsUseCase
	reports *usecase.ReportsUseCase
}

// newApp opens the stores and, when withCRM is set, the CRM client and the optional
// RabbitMQ and SMTP integrations.
func newApp(ctx context.Context, cfg *config.Config, withCRM bool) (*app, error) {
	a := &app{cfg: cfg, checks: map[string]handlers.Check{}}
	if err := a.openStores(ctx); err != nil {
		return nil, err
	}
	a.reports = usecase.NewReportsUseCase(a.eventLog, a.failed)
	if !withCRM {
		return a, nil
	}

	if err := cfg.Validate(); err != nil {
		a.close()
		return nil, err
	}

	// 1. CRM
	httpClient := &http.Client{Timeout: cfg.Salesforce.HTTPTimeout}
	var opts []salesforce.TokenProviderOption
	if cfg.Salesforce.CacheToken {
		opts = append(opts, salesforce.WithTokenCache(cfg.Salesforce.TokenTTL))
	}
	tokens := salesforce.NewTokenProvider(salesforce.Credentials{
		ClientID:     cfg.Salesforce.ClientID,
		ClientSecret: cfg.Salesforce.ClientSecret,
		Username:     cfg.Salesforce.Username,
		Password:     cfg.Salesforce.Password,
		TokenURL:     cfg.Salesforce.TokenURL,
	}, httpClient, opts...)
	crm := salesforce.NewClient(cfg.Salesforce.LeadAPIPath, httpClient)

	// 2. Failure notifications
	var notifiers []usecase.FailureNotifier
	if cfg.RabbitMQ.URL != "" {
		rabbit, err := queue.NewRabbitMQ(cfg.RabbitMQ.URL)
		if err != nil {
			a.close()
			return nil, err
		}
		a.rabbit = rabbit
		a.producer = queue.NewProducer(rabbit.Ch)
		notifiers = append(notifiers, a.producer)
		a.checks["rabbitmq"] = func(context.Context) error {
			if !rabbit.Healthy() {
				return fmt.Errorf("connection closed")
			}
			return nil
		}
	} else {
		a.checks["rabbitmq"] = nil
	}
	if recipients := cfg.AlertRecipients(); cfg.Mail.Host != "" && len(recipients) > 0 {
		notifiers = append(notifiers, mail.NewEmailSender(
			cfg.Mail.Host, cfg.Mail.Port, cfg.Mail.User, cfg.Mail.Password, cfg.Mail.From, recipients,
		))
	}

	// 3. Use cases
	a.ingest = usecase.NewIngestLeadUseCase(
		usecase.NewNormalizer(cfg.LeadDefaults()), tokens, crm, a.eventLog, a.failed, notifiers...,
	)
	a.retry = usecase.NewRetryFailedLeadsUseCase(tokens, crm, a.eventLog, a.failed)
	return a, nil
}

func (a *app) openStores(ctx context.Context) error {
	switch a.cfg.Store.Backend {
	case config.StoreBackendPostgres:
		db, err := database.NewDBConnection(a.cfg.Store.DatabaseURL)
		if err != nil {
			return err
		}
		if err := database.EnsureSchema(ctx, db); err != nil {
			db.Close()
			return err
		}
		a.db = db
		a.eventLog = database.NewEventLogRepository(db)
		a.failed = database.NewFailedLeadRepository(db)
		a.checks["store"] = db.PingContext
	default:
		a.eventLog = storage.NewEventLog(a.cfg.Store.LeadsLogPath)
		a.failed = storage.NewFailedLeads(a.cfg.Store.FailedLeadsPath)
		a.checks["store"] = func(context.Context) error {
			return dirWritable(filepath.Dir(a.cfg.Store.FailedLeadsPath))
		}
	}
	logrus.WithField("backend", a.cfg.Store.Backend).Info("stores ready")
	return nil
}

func dirWritable(dir string) error {
	f, err := os.CreateTemp(dir, ".health-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

func (a *app) close() {
	if a.rabbit != nil {
		a.rabbit.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}

package app

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	applicationssvc "github.com/apex-authority/backoffice/internal/app/services/applications"
	auditsvc "github.com/apex-authority/backoffice/internal/app/services/audit"
	contactssvc "github.com/apex-authority/backoffice/internal/app/services/contacts"
	contentsvc "github.com/apex-authority/backoffice/internal/app/services/content"
	exportsvc "github.com/apex-authority/backoffice/internal/app/services/export"
	licensessvc "github.com/apex-authority/backoffice/internal/app/services/licenses"
	paymentssvc "github.com/apex-authority/backoffice/internal/app/services/payments"
	settingssvc "github.com/apex-authority/backoffice/internal/app/services/settings"
	"github.com/apex-authority/backoffice/internal/app/storage"
	"github.com/apex-authority/backoffice/internal/app/storage/memory"
	"github.com/apex-authority/backoffice/internal/app/system"
	"github.com/apex-authority/backoffice/internal/broadcast"
	"github.com/apex-authority/backoffice/internal/events"
	"github.com/apex-authority/backoffice/internal/logging"
	"github.com/apex-authority/backoffice/internal/metrics"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Settings         storage.SettingsStore
	Applications     storage.ApplicationStore
	Contacts         storage.ContactStore
	Content          storage.ContentStore
	Licenses         storage.LicenseStore
	PaymentAddresses storage.PaymentAddressStore
	Audit            storage.AuditStore
	Export           storage.ExportStore
}

// Options tunes the background services. Zero values fall back to the
// defaults each service documents.
type Options struct {
	PollInterval time.Duration
	FetchTimeout time.Duration

	AuditRetentionDays int
	AuditPruneSchedule string

	Metrics *metrics.Registry

	// Redis, when set, relays broadcast messages across instances.
	Redis        *redis.Client
	RedisChannel string
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logging.Logger

	Notifier    *events.Notifier
	Hub         *broadcast.Hub
	Broadcaster *broadcast.Broadcaster

	Settings     *settingssvc.Service
	Poller       *settingssvc.Poller
	Applications *applicationssvc.Service
	Contacts     *contactssvc.Service
	Content      *contentsvc.Service
	Licenses     *licensessvc.Service
	Payments     *paymentssvc.Service
	Audit        *auditsvc.Service
	Export       *exportsvc.Service
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logging.Logger) (*Application, error) {
	if log == nil {
		log = logging.NewDefault("app")
	}

	mem := memory.New()
	if stores.Settings == nil {
		stores.Settings = mem
	}
	if stores.Applications == nil {
		stores.Applications = mem
	}
	if stores.Contacts == nil {
		stores.Contacts = mem
	}
	if stores.Content == nil {
		stores.Content = mem
	}
	if stores.Licenses == nil {
		stores.Licenses = mem
	}
	if stores.PaymentAddresses == nil {
		stores.PaymentAddresses = mem
	}
	if stores.Audit == nil {
		stores.Audit = mem
	}
	if stores.Export == nil {
		stores.Export = mem
	}

	manager := system.NewManager()

	notifier := events.NewNotifier()
	hub := broadcast.New(opts.Metrics)

	var bridge *broadcast.RedisBridge
	if opts.Redis != nil {
		var err error
		bridge, err = broadcast.NewRedisBridge(opts.Redis, opts.RedisChannel, hub, log)
		if err != nil {
			return nil, fmt.Errorf("configure redis bridge: %w", err)
		}
		if err := manager.Register(bridge); err != nil {
			return nil, fmt.Errorf("register %s: %w", bridge.Name(), err)
		}
	} else {
		log.Warn("redis not configured; settings broadcasts stay instance-local")
	}

	broadcaster := &broadcast.Broadcaster{Hub: hub, Bridge: bridge}

	auditService := auditsvc.New(stores.Audit, log)

	settingsService := settingssvc.New(stores.Settings, notifier, broadcaster, opts.Metrics, log)
	poller := settingssvc.NewPoller(settingsService, opts.PollInterval, opts.FetchTimeout, opts.Metrics, log)

	applicationService := applicationssvc.New(stores.Applications, stores.Licenses, settingsService, auditService, notifier, broadcaster, log)
	applicationService.WithPricing(func(category int) (string, error) {
		cat, err := settingsService.Current().Category(category)
		if err != nil {
			return "", err
		}
		return cat.Price, nil
	})

	contactService := contactssvc.New(stores.Contacts, auditService, notifier, broadcaster, log)
	contentService := contentsvc.New(stores.Content, auditService, notifier, broadcaster, log)
	licenseService := licensessvc.New(stores.Licenses, log)
	paymentService := paymentssvc.New(stores.PaymentAddresses, auditService, broadcaster, log)
	exportService := exportsvc.New(stores.Export, opts.Metrics, log)

	retention := auditsvc.NewRetention(stores.Audit, opts.AuditRetentionDays, opts.AuditPruneSchedule, log)

	for _, svc := range []system.Service{poller, retention} {
		if err := manager.Register(svc); err != nil {
			return nil, fmt.Errorf("register %s: %w", svc.Name(), err)
		}
	}

	return &Application{
		manager:      manager,
		log:          log,
		Notifier:     notifier,
		Hub:          hub,
		Broadcaster:  broadcaster,
		Settings:     settingsService,
		Poller:       poller,
		Applications: applicationService,
		Contacts:     contactService,
		Content:      contentService,
		Licenses:     licenseService,
		Payments:     paymentService,
		Audit:        auditService,
		Export:       exportService,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services and performs the initial settings
// fetch so the cache is warm before the first request.
func (a *Application) Start(ctx context.Context) error {
	if err := a.manager.Start(ctx); err != nil {
		return err
	}
	if _, _, err := a.Settings.Refresh(ctx); err != nil {
		a.log.WithError(err).Warn("initial settings fetch failed; serving defaults until the next poll")
	}
	return nil
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/cliniccloud/cliniccloud/internal/config"
	"github.com/cliniccloud/cliniccloud/internal/domain/account"
	"github.com/cliniccloud/cliniccloud/internal/domain/analytics"
	"github.com/cliniccloud/cliniccloud/internal/domain/audit"
	"github.com/cliniccloud/cliniccloud/internal/domain/billing"
	"github.com/cliniccloud/cliniccloud/internal/domain/clinical"
	"github.com/cliniccloud/cliniccloud/internal/domain/documents"
	"github.com/cliniccloud/cliniccloud/internal/domain/invoice"
	"github.com/cliniccloud/cliniccloud/internal/domain/patient"
	"github.com/cliniccloud/cliniccloud/internal/domain/plan"
	"github.com/cliniccloud/cliniccloud/internal/domain/scheduling"
	"github.com/cliniccloud/cliniccloud/internal/domain/tenant"
	"github.com/cliniccloud/cliniccloud/internal/platform/auth"
	"github.com/cliniccloud/cliniccloud/internal/platform/blobstore"
	"github.com/cliniccloud/cliniccloud/internal/platform/db"
	"github.com/cliniccloud/cliniccloud/internal/platform/notification"
	"github.com/cliniccloud/cliniccloud/internal/platform/sandbox"
	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
)

// repos is the storage the services are built on. Production uses Postgres;
// tests swap in the in-memory implementations.
type repos struct {
	tx           db.TxRunner
	usage        tenant.UsageCounter
	tenants      tenant.Repository
	users        account.Repository
	audit        audit.Repository
	patients     patient.Repository
	records      clinical.RecordRepository
	labs         clinical.LabRepository
	referrals    clinical.ReferralRepository
	appointments scheduling.Repository
	documents    documents.Repository
	invoices     invoice.Repository
	events       analytics.Repository
	measures     analytics.Measures
}

func pgRepos(pool *pgxpool.Pool) repos {
	return repos{
		tx:           db.NewTxRunner(pool),
		usage:        tenant.NewUsageCounter(pool),
		tenants:      tenant.NewRepo(pool),
		users:        account.NewRepo(pool),
		audit:        audit.NewRepo(pool),
		patients:     patient.NewRepo(pool),
		records:      clinical.NewRecordRepo(pool),
		labs:         clinical.NewLabRepo(pool),
		referrals:    clinical.NewReferralRepo(pool),
		appointments: scheduling.NewRepo(pool),
		documents:    documents.NewRepo(pool),
		invoices:     invoice.NewRepo(pool),
		events:       analytics.NewRepo(pool),
		measures:     analytics.NewMeasures(pool),
	}
}

// deps are the process-level collaborators that are not storage.
type deps struct {
	blobs    blobstore.Store
	ledger   billing.EventLedger
	email    notification.EmailSender
	provider billing.PaymentProvider
}

func buildDeps(cfg *config.Config, logger zerolog.Logger) (deps, func(), error) {
	d := deps{ledger: billing.NopLedger{}}
	cleanup := func() {}

	if cfg.BlobDir != "" {
		store, err := blobstore.NewDirStore(cfg.BlobDir)
		if err != nil {
			return d, cleanup, fmt.Errorf("open blob dir: %w", err)
		}
		d.blobs = store
	} else {
		logger.Warn().Msg("BLOB_DIR not set, documents are kept in memory")
		d.blobs = blobstore.NewMemoryStore()
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return d, cleanup, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		client := redis.NewClient(opts)
		d.ledger = billing.NewRedisLedger(client, 72*time.Hour)
		cleanup = func() { _ = client.Close() }
	}

	if cfg.EmailAPIURL != "" {
		d.email = notification.NewHTTPEmailSender(notification.HTTPEmailConfig{
			BaseURL: cfg.EmailAPIURL,
			APIKey:  cfg.EmailAPIKey,
			From:    cfg.EmailFrom,
			Timeout: 10 * time.Second,
		})
	} else {
		d.email = notification.LogEmailSender{Logger: logger}
	}

	if sp, err := billing.NewStripeProvider(cfg.StripeSecretKey); err == nil {
		d.provider = sp
	} else {
		logger.Warn().Msg("payment provider not configured, checkout is disabled")
	}
	return d, cleanup, nil
}

func priceIDs(cfg *config.Config) plan.PriceIDs {
	out := plan.PriceIDs{}
	for k, v := range cfg.PriceIDs() {
		if v != "" {
			out[plan.Plan(k)] = v
		}
	}
	return out
}

// app holds every service and handler of the server.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	repos  repos

	notify    *notification.Manager
	recorder  *audit.Recorder
	issuer    *auth.Issuer
	authz     *auth.Authorizer
	tenants   *tenant.Service
	accounts  *account.Service
	prov      *account.Provisioner
	authn     *account.Authenticator
	billing   *billing.Service
	processor *billing.Processor
	sweeper   *billing.Sweeper
	patients  *patient.Service
	clinical  *clinical.Service
	schedule  *scheduling.Service
	documents *documents.Service
	invoices  *invoice.Service
	analytics *analytics.Service
	audits    *audit.Service
}

func newApp(cfg *config.Config, r repos, d deps, logger zerolog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, repos: r}

	jwtCfg := auth.JWTConfig{Issuer: cfg.AuthIssuer, Audience: cfg.AuthAudience, SigningKey: cfg.SigningKey()}
	issuer, err := auth.NewIssuer(jwtCfg, cfg.AuthTokenTTL)
	if err != nil {
		return nil, err
	}
	authz, err := auth.NewAuthorizer(auth.DefaultPolicy)
	if err != nil {
		return nil, err
	}
	a.issuer, a.authz = issuer, authz

	a.notify = notification.NewManager(d.email, notification.NewTemplateEngine(), logger)
	a.recorder = audit.NewRecorder(r.audit, logger)
	a.audits = audit.NewService(r.audit)

	a.tenants = tenant.NewService(r.tenants, r.usage, logger)
	a.accounts = account.NewService(r.users, r.tenants, a.notify, a.recorder, cfg.SiteURL, logger)
	a.prov = account.NewProvisioner(r.tx, a.tenants, r.users, a.notify, a.recorder, cfg.SiteURL, logger)
	a.authn = account.NewAuthenticator(r.users, r.tenants, issuer, a.recorder, logger)

	a.billing = billing.NewService(r.tenants, d.provider, priceIDs(cfg), cfg.SiteURL, logger)
	a.processor = billing.NewProcessor(r.tenants, d.ledger, cfg.StripeWebhookSecret, logger)
	a.processor.SetRecorder(a.recorder)
	a.sweeper = billing.NewSweeper(r.tenants, account.NewAdminDirectory(r.users), a.notify, cfg.SiteURL, logger)

	a.patients = patient.NewService(r.patients, r.tx, a.tenants, logger)
	a.clinical = clinical.NewService(r.records, r.labs, r.referrals, a.patients, logger)
	a.schedule = scheduling.NewService(r.appointments, r.tx, a.tenants, a.patients, a.accounts, logger)
	a.documents = documents.NewService(r.documents, d.blobs, a.patients, logger)
	a.invoices = invoice.NewService(r.invoices, r.tx, a.patients, a.tenants, logger)
	a.analytics = analytics.NewService(r.events, r.measures, a.tenants, logger)
	return a, nil
}

// seeder drives demo data through the same services the API uses.
func (a *app) seeder() *sandbox.Seeder {
	return sandbox.NewSeeder(a.patients, a.schedule, a.clinical, a.logger)
}

// tenantAdmin returns an actor acting as an administrator of tenantID.
func tenantAdmin(tenantID uuid.UUID) tenancy.Actor {
	return tenancy.Actor{TenantID: tenantID, Role: account.RoleAdmin}
}

// operator is the actor CLI maintenance commands run as.
var operator = tenancy.Actor{Role: account.RoleAdmin, PlatformAdmin: true}

func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	return pool, nil
}

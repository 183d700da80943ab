package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/rs/zerolog"
	"github.com/trustbridge/ngoverify/internal/auth"
	"github.com/trustbridge/ngoverify/internal/bootstrap"
	"github.com/trustbridge/ngoverify/internal/gate"
	"github.com/trustbridge/ngoverify/internal/logger"
	"github.com/trustbridge/ngoverify/internal/login"
	"github.com/trustbridge/ngoverify/internal/notify"
	"github.com/trustbridge/ngoverify/internal/server"
	"github.com/trustbridge/ngoverify/internal/telemetry"
	"github.com/trustbridge/ngoverify/internal/verification"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const devSessionSecret = "dev-mode-session-secret-minimum-32-characters"

type ServeCmd struct {
	// Server configuration
	Listen string `help:"HTTP server listen address" default:"0.0.0.0:8080" env:"NGOVERIFY_LISTEN"`
	Cert   string `help:"path to TLS cert file, serves plain HTTP when empty" default:"" env:"NGOVERIFY_TLS_CERT"`
	Key    string `help:"path to TLS key file" default:"" env:"NGOVERIFY_TLS_KEY"`

	// CORS configuration
	CORSOrigins []string `help:"allowed CORS origins for API requests" default:"http://localhost:3000" env:"NGOVERIFY_CORS_ORIGINS"`

	// Session tokens
	SessionSecret string        `help:"HMAC secret for session tokens (at least 32 bytes)" default:"" env:"NGOVERIFY_SESSION_SECRET"`
	SessionTTL    time.Duration `help:"session TTL" default:"24h" env:"NGOVERIFY_SESSION_TTL"`

	// Workflow tuning
	BcryptCost       int `help:"bcrypt cost for account passwords" default:"10" env:"NGOVERIFY_BCRYPT_COST"`
	MaxWriteAttempts int `help:"attempts per review write before reporting a conflict" default:"5" env:"NGOVERIFY_MAX_WRITE_ATTEMPTS"`

	// Development and operational modes
	Development      bool    `help:"development mode - auto-setup LocalStack tables and bucket" default:"false" env:"NGOVERIFY_DEVELOPMENT"`
	DevelopmentClean bool    `help:"clean resources on startup in development mode (deletes all data)" default:"false" env:"NGOVERIFY_DEVELOPMENT_CLEAN"`
	Tracing          bool    `help:"enable tracing" default:"false" env:"NGOVERIFY_TRACING"`
	TraceSampleRatio float64 `help:"fraction of traces sampled" default:"1" env:"NGOVERIFY_TRACE_SAMPLE_RATIO"`

	Store  StoreFlags  `embed:""`
	Blob   BlobFlags   `embed:""`
	Notify NotifyFlags `embed:"" prefix:"notify-"`
}

// NotifyFlags selects how applicants are told about review outcomes.
type NotifyFlags struct {
	Sender   string `help:"notification sender (log, ses, sns, or none)" default:"log" env:"NGOVERIFY_NOTIFY_SENDER" enum:"log,ses,sns,none"`
	From     string `help:"SES from address" default:"" env:"NGOVERIFY_NOTIFY_FROM"`
	TopicARN string `help:"SNS topic ARN" default:"" env:"NGOVERIFY_NOTIFY_TOPIC_ARN"`

	QueueSize int  `help:"pending notification queue size" default:"256"`
	MaxTries  uint `help:"delivery attempts per notification" default:"5"`
}

func (n *NotifyFlags) sender(ctx context.Context, sess *awsSession) (notify.Sender, error) {
	switch n.Sender {
	case "ses":
		if n.From == "" {
			return nil, errors.New("SES from address is required (--notify-from or NGOVERIFY_NOTIFY_FROM)")
		}
		cfg, err := sess.loadConfig(ctx)
		if err != nil {
			return nil, err
		}
		return notify.NewSESSender(sesv2.NewFromConfig(cfg), n.From), nil
	case "sns":
		if n.TopicARN == "" {
			return nil, errors.New("SNS topic ARN is required (--notify-topic-arn or NGOVERIFY_NOTIFY_TOPIC_ARN)")
		}
		cfg, err := sess.loadConfig(ctx)
		if err != nil {
			return nil, err
		}
		return notify.NewSNSSender(sns.NewFromConfig(cfg), n.TopicARN), nil
	default:
		return notify.LogSender{}, nil
	}
}

func (c *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	if c.Tracing {
		log.Info().Msg("Tracing is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, telemetry.Config{
			ServiceName: "ngoverify-server",
			Version:     globals.Version,
			SampleRatio: c.TraceSampleRatio,
		})
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	sess := newAWSSession(&c.Store.AWS, c.Development)

	if c.Development {
		if err := c.setupDevelopment(ctx, sess, log); err != nil {
			return err
		}
	}

	st, err := c.Store.open(ctx, sess)
	if err != nil {
		return err
	}
	defer st.close()

	blobs, err := c.Blob.open(ctx, &c.Store.AWS, sess)
	if err != nil {
		return err
	}

	var publisher notify.Publisher = notify.Discard{}
	if c.Notify.Sender != "none" {
		sender, err := c.Notify.sender(ctx, sess)
		if err != nil {
			return err
		}
		dispatcher := notify.NewDispatcher(sender, notify.DispatcherConfig{
			QueueSize: c.Notify.QueueSize,
			MaxTries:  c.Notify.MaxTries,
		})
		// outlives ctx so Stop can drain after a signal
		dispatcher.Start(context.WithoutCancel(ctx))
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := dispatcher.Stop(stopCtx); err != nil {
				log.Error().Err(err).Msg("Notification dispatcher did not drain")
			}
		}()
		publisher = dispatcher
		log.Info().Str("sender", c.Notify.Sender).Msg("Notification dispatcher started")
	}

	secret := c.SessionSecret
	if secret == "" && c.Development {
		secret = devSessionSecret
	}
	tokens, err := auth.NewTokenManager([]byte(secret), c.SessionTTL)
	if err != nil {
		return fmt.Errorf("failed to create token manager (--session-secret or NGOVERIFY_SESSION_SECRET): %w", err)
	}

	verify := verification.NewService(st.apps, st.accounts, blobs, publisher, verification.Config{
		MaxWriteAttempts: c.MaxWriteAttempts,
		BcryptCost:       c.BcryptCost,
	})
	loginSvc := login.NewService(st.accounts, gate.New(st.apps), tokens, login.Config{BcryptCost: c.BcryptCost})

	api := server.NewServer(verify, loginSvc, tokens, server.Config{CORSOrigins: c.CORSOrigins})

	var handler http.Handler = api.Handler(log)
	if c.Tracing {
		handler = otelhttp.NewHandler(handler, "ngoverify")
	}

	srv := configureHTTPServer(c.Listen, handler)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", c.Listen).Bool("tls", c.Cert != "").Msg("Starting HTTP server")
		if c.Cert != "" {
			errCh <- srv.ListenAndServeTLS(c.Cert, c.Key)
			return
		}
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown http server: %w", err)
	}
	return nil
}

// setupDevelopment points the stores at LocalStack and creates the tables and bucket.
func (c *ServeCmd) setupDevelopment(ctx context.Context, sess *awsSession, log zerolog.Logger) error {
	log.Info().Msg("Development mode enabled - setting up LocalStack infrastructure")

	if c.Store.StoreType == "" || c.Store.StoreType == "memory" {
		c.Store.StoreType = "dynamodb"
	}
	c.Blob.BlobType = "s3"
	if c.Store.AWS.DynamoDBEndpointURL == "" {
		c.Store.AWS.DynamoDBEndpointURL = localStackEndpoint
	}
	if c.Store.AWS.S3EndpointURL == "" {
		c.Store.AWS.S3EndpointURL = localStackEndpoint
	}

	dynamoClient, err := sess.dynamoClient(ctx)
	if err != nil {
		return err
	}
	s3Client, err := sess.s3Client(ctx)
	if err != nil {
		return err
	}

	resources, err := bootstrap.Bootstrap(ctx, bootstrap.Config{
		DynamoClient:   dynamoClient,
		S3Client:       s3Client,
		Environment:    "dev",
		CleanResources: c.DevelopmentClean,
	})
	if err != nil {
		return fmt.Errorf("failed to bootstrap development infrastructure: %w", err)
	}

	c.Store.AWS.ApplicationsTable = resources.ApplicationsTable
	c.Store.AWS.AccountsTable = resources.AccountsTable
	c.Store.AWS.DocumentsBucket = resources.DocumentsBucket

	log.Info().
		Str("applications_table", resources.ApplicationsTable).
		Str("accounts_table", resources.AccountsTable).
		Str("documents_bucket", resources.DocumentsBucket).
		Msg("Development infrastructure ready")

	return nil
}

package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
	"github.com/trustbridge/ngoverify/internal/blob"
	"github.com/trustbridge/ngoverify/internal/store"
	awsstore "github.com/trustbridge/ngoverify/internal/store/aws"
	memorystore "github.com/trustbridge/ngoverify/internal/store/memory"
	postgresstore "github.com/trustbridge/ngoverify/internal/store/postgres"
)

const localStackEndpoint = "http://localhost:4566"

type Globals struct {
	Debug   bool
	Version string
}

func configureHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       5 * time.Minute,
		MaxHeaderBytes:    8 * 1024, // 8KiB
	}
}

// StoreFlags selects and configures the application and account stores.
type StoreFlags struct {
	StoreType string        `help:"store type (memory, postgres, or dynamodb)" default:"memory" env:"NGOVERIFY_STORE_TYPE" enum:"memory,postgres,dynamodb"`
	Postgres  PostgresFlags `embed:"" prefix:"postgres-"`
	AWS       AWSFlags      `embed:"" prefix:"aws-"`
}

type PostgresFlags struct {
	// Connection Configuration
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Connection Pool Configuration
	MaxConns          int32         `help:"maximum number of connections in pool" default:"10"`
	MinConns          int32         `help:"minimum number of connections in pool" default:"2"`
	MaxConnLifetime   time.Duration `help:"maximum connection lifetime" default:"1h"`
	MaxConnIdleTime   time.Duration `help:"maximum connection idle time" default:"15m"`
	HealthCheckPeriod time.Duration `help:"interval between idle connection health checks" default:"1m"`
	ConnectTimeout    time.Duration `help:"timeout for dialing a new connection" default:"5s" env:"NGOVERIFY_POSTGRES_CONNECT_TIMEOUT"`
	QueryTimeout      int32         `help:"query timeout in seconds" default:"10"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"NGOVERIFY_POSTGRES_AUTO_MIGRATE"`
}

func (p *PostgresFlags) Validate() error {
	if p.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	return nil
}

func (p *PostgresFlags) poolConfig() (*postgresstore.PoolConfig, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &postgresstore.PoolConfig{
		ConnString:        p.ConnString,
		MaxConns:          p.MaxConns,
		MinConns:          p.MinConns,
		MaxConnLifetime:   p.MaxConnLifetime,
		MaxConnIdleTime:   p.MaxConnIdleTime,
		HealthCheckPeriod: p.HealthCheckPeriod,
		ConnectTimeout:    p.ConnectTimeout,
	}, nil
}

type AWSFlags struct {
	Region string `help:"AWS region" default:"" env:"NGOVERIFY_AWS_REGION"`

	// DynamoDB Configuration
	ApplicationsTable string `help:"DynamoDB table name for applications" env:"NGOVERIFY_AWS_APPLICATIONS_TABLE"`
	AccountsTable     string `help:"DynamoDB table name for accounts" env:"NGOVERIFY_AWS_ACCOUNTS_TABLE"`

	// S3 Configuration
	DocumentsBucket string `help:"S3 bucket for uploaded documents" env:"NGOVERIFY_AWS_DOCUMENTS_BUCKET"`

	// Endpoint overrides for local development
	DynamoDBEndpointURL string `help:"DynamoDB endpoint URL override (for LocalStack)" default:"" env:"NGOVERIFY_AWS_DYNAMODB_ENDPOINT_URL"`
	S3EndpointURL       string `help:"S3 endpoint URL override (for LocalStack)" default:"" env:"NGOVERIFY_AWS_S3_ENDPOINT_URL"`
}

func (a *AWSFlags) validateTables() error {
	if a.ApplicationsTable == "" {
		return errors.New("DynamoDB applications table name is required (--aws-applications-table or NGOVERIFY_AWS_APPLICATIONS_TABLE)")
	}
	if a.AccountsTable == "" {
		return errors.New("DynamoDB accounts table name is required (--aws-accounts-table or NGOVERIFY_AWS_ACCOUNTS_TABLE)")
	}
	return nil
}

// awsSession loads the shared AWS config once for every client that needs it.
type awsSession struct {
	flags *AWSFlags
	local bool

	once sync.Once
	cfg  aws.Config
	err  error
}

func newAWSSession(flags *AWSFlags, local bool) *awsSession {
	return &awsSession{flags: flags, local: local}
}

func (s *awsSession) loadConfig(ctx context.Context) (aws.Config, error) {
	s.once.Do(func() {
		var opts []func(*config.LoadOptions) error
		if s.flags.Region != "" {
			opts = append(opts, config.WithRegion(s.flags.Region))
		}
		if s.local {
			opts = append(opts,
				config.WithRegion("us-east-1"),
				config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "test")),
			)
		}
		s.cfg, s.err = config.LoadDefaultConfig(ctx, opts...)
		if s.err != nil {
			s.err = fmt.Errorf("failed to load AWS config: %w", s.err)
		}
	})
	return s.cfg, s.err
}

func (s *awsSession) dynamoClient(ctx context.Context) (*dynamodb.Client, error) {
	cfg, err := s.loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	var opts []func(*dynamodb.Options)
	if s.flags.DynamoDBEndpointURL != "" {
		opts = append(opts, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(s.flags.DynamoDBEndpointURL)
		})
	}
	return dynamodb.NewFromConfig(cfg, opts...), nil
}

func (s *awsSession) s3Client(ctx context.Context) (*s3.Client, error) {
	cfg, err := s.loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	var opts []func(*s3.Options)
	if s.flags.S3EndpointURL != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(s.flags.S3EndpointURL)
			o.UsePathStyle = true
		})
	}
	return s3.NewFromConfig(cfg, opts...), nil
}

// stores bundles the opened stores with whatever must be closed on exit.
type stores struct {
	apps     store.ApplicationStore
	accounts store.AccountStore
	close    func()
}

func (f *StoreFlags) open(ctx context.Context, sess *awsSession) (*stores, error) {
	switch f.StoreType {
	case "postgres":
		poolCfg, err := f.Postgres.poolConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to validate postgres flags: %w", err)
		}
		pool, err := postgresstore.NewPool(ctx, poolCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create connection pool: %w", err)
		}

		if f.Postgres.AutoMigrate {
			if err := postgresstore.Migrate(ctx, pool); err != nil {
				pool.Close()
				return nil, fmt.Errorf("failed to run migrations: %w", err)
			}
			log.Info().Msg("Database migrations completed")
		}

		storeCfg := &postgresstore.StoreConfig{QueryTimeoutSeconds: f.Postgres.QueryTimeout}
		log.Info().Msg("Using PostgreSQL stores with shared connection pool")
		return &stores{
			apps:     postgresstore.NewApplicationStore(pool, storeCfg),
			accounts: postgresstore.NewAccountStore(pool),
			close:    pool.Close,
		}, nil

	case "dynamodb":
		if err := f.AWS.validateTables(); err != nil {
			return nil, fmt.Errorf("failed to validate aws flags: %w", err)
		}
		client, err := sess.dynamoClient(ctx)
		if err != nil {
			return nil, err
		}
		log.Info().
			Str("applications_table", f.AWS.ApplicationsTable).
			Str("accounts_table", f.AWS.AccountsTable).
			Msg("Using DynamoDB stores")
		return &stores{
			apps:     awsstore.NewApplicationStore(client, f.AWS.ApplicationsTable),
			accounts: awsstore.NewAccountStore(client, f.AWS.AccountsTable),
			close:    func() {},
		}, nil

	default:
		log.Info().Msg("Using in-memory stores")
		return &stores{
			apps:     memorystore.NewApplicationStore(),
			accounts: memorystore.NewAccountStore(),
			close:    func() {},
		}, nil
	}
}

// BlobFlags selects where uploaded documents are written.
type BlobFlags struct {
	BlobType string `help:"document blob store (memory or s3)" default:"memory" env:"NGOVERIFY_BLOB_TYPE" enum:"memory,s3"`
}

func (f *BlobFlags) open(ctx context.Context, awsFlags *AWSFlags, sess *awsSession) (blob.Store, error) {
	if f.BlobType != "s3" {
		log.Warn().Msg("Using in-memory document store, uploads are lost on restart")
		return blob.NewMemoryStore(), nil
	}
	if awsFlags.DocumentsBucket == "" {
		return nil, errors.New("S3 documents bucket is required (--aws-documents-bucket or NGOVERIFY_AWS_DOCUMENTS_BUCKET)")
	}
	client, err := sess.s3Client(ctx)
	if err != nil {
		return nil, err
	}
	log.Info().Str("bucket", awsFlags.DocumentsBucket).Msg("Using S3 document store")
	return blob.NewS3Store(client, awsFlags.DocumentsBucket), nil
}

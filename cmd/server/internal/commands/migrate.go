package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/trustbridge/ngoverify/internal/logger"
	awsstore "github.com/trustbridge/ngoverify/internal/store/aws"
	postgresstore "github.com/trustbridge/ngoverify/internal/store/postgres"
)

type MigrateCmd struct {
	Store StoreFlags `embed:""`
}

func (c *MigrateCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	switch c.Store.StoreType {
	case "postgres":
		poolCfg, err := c.Store.Postgres.poolConfig()
		if err != nil {
			return fmt.Errorf("failed to validate postgres flags: %w", err)
		}
		pool, err := postgresstore.NewPool(ctx, poolCfg)
		if err != nil {
			return fmt.Errorf("failed to create connection pool: %w", err)
		}
		defer pool.Close()

		if err := postgresstore.Migrate(ctx, pool); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info().Msg("Database migrations completed")

	case "dynamodb":
		if err := c.Store.AWS.validateTables(); err != nil {
			return fmt.Errorf("failed to validate aws flags: %w", err)
		}
		client, err := newAWSSession(&c.Store.AWS, false).dynamoClient(ctx)
		if err != nil {
			return err
		}
		if err := awsstore.CreateTables(ctx, client, c.Store.AWS.ApplicationsTable, c.Store.AWS.AccountsTable); err != nil {
			return fmt.Errorf("failed to create tables: %w", err)
		}
		log.Info().
			Str("applications_table", c.Store.AWS.ApplicationsTable).
			Str("accounts_table", c.Store.AWS.AccountsTable).
			Msg("DynamoDB tables ready")

	default:
		return errors.New("migrate requires --store-type postgres or dynamodb")
	}

	return nil
}

package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/trustbridge/ngoverify/internal/gate"
	"github.com/trustbridge/ngoverify/internal/logger"
	"github.com/trustbridge/ngoverify/internal/login"
)

type CreateAdminCmd struct {
	Email    string `help:"admin email address" required:""`
	Password string `help:"admin password" env:"NGOVERIFY_ADMIN_PASSWORD"`

	BcryptCost int        `help:"bcrypt cost for the password hash" default:"10"`
	Store      StoreFlags `embed:""`
}

func (c *CreateAdminCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	if c.Store.StoreType == "memory" {
		return errors.New("create-admin needs a persistent store (--store-type postgres or dynamodb)")
	}
	if c.Password == "" {
		return errors.New("password is required (--password or NGOVERIFY_ADMIN_PASSWORD)")
	}

	st, err := c.Store.open(ctx, newAWSSession(&c.Store.AWS, false))
	if err != nil {
		return err
	}
	defer st.close()

	// admin creation never issues tokens
	svc := login.NewService(st.accounts, gate.New(st.apps), nil, login.Config{BcryptCost: c.BcryptCost})
	account, err := svc.CreateAdmin(ctx, c.Email, c.Password)
	if err != nil {
		return fmt.Errorf("failed to create admin: %w", err)
	}

	log.Info().Str("account_id", account.AccountID.String()).Str("email", account.Email).Msg("Admin account created")
	return nil
}

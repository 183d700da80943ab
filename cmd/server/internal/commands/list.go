package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/trustbridge/ngoverify/internal/logger"
	"github.com/trustbridge/ngoverify/internal/models"
	"github.com/trustbridge/ngoverify/internal/store"
	"github.com/trustbridge/ngoverify/internal/verification"
)

type ListCmd struct {
	Status string `help:"filter by verification status (all, pending, approved, rejected)" default:"all"`
	Search string `help:"case-insensitive match on organization, contact or email" default:""`
	Limit  int    `help:"maximum results (0 = all)" default:"50"`

	Store StoreFlags `embed:""`
}

func (c *ListCmd) Run(ctx context.Context, globals *Globals) error {
	logger.Setup(globals.Debug)

	st, err := c.Store.open(ctx, newAWSSession(&c.Store.AWS, false))
	if err != nil {
		return err
	}
	defer st.close()

	// read-only, so no blobs or notifications
	svc := verification.NewService(st.apps, st.accounts, nil, nil, verification.Config{})
	apps, err := svc.ListByStatus(ctx, c.filter())
	if err != nil {
		return fmt.Errorf("failed to list applications: %w", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(apps)
}

func (c *ListCmd) filter() store.ListFilter {
	status := strings.ToLower(strings.TrimSpace(c.Status))
	if status == "all" {
		status = ""
	}
	return store.ListFilter{
		Status: models.VerificationStatus(status),
		Search: c.Search,
		Limit:  c.Limit,
	}
}

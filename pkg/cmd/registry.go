// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dukex/autoflow/pkg/actions/database"
	"github.com/dukex/autoflow/pkg/actions/email"
	"github.com/dukex/autoflow/pkg/actions/httprequest"
	"github.com/dukex/autoflow/pkg/actions/telegram"
	"github.com/dukex/autoflow/pkg/actions/transform"
	"github.com/dukex/autoflow/pkg/mail"
	"github.com/dukex/autoflow/pkg/persistence"
	"github.com/dukex/autoflow/pkg/registry"
)

// outboundTimeout caps a single outbound call; step timeouts usually apply first.
const outboundTimeout = 2 * time.Minute

func registerNativeActions(reg *registry.Registry, store persistence.Persistence, mailer mail.Mailer) {
	client := &http.Client{Timeout: outboundTimeout}

	reg.RegisterAction(httprequest.NewActionFactory(client))
	reg.RegisterAction(email.NewActionFactory(mailer))
	reg.RegisterAction(telegram.NewActionFactory(telegram.DefaultAPIBase, client))
	reg.RegisterAction(database.NewActionFactory(store.RecordRepository()))
	reg.RegisterAction(transform.NewActionFactory(transform.DefaultExpressionBudget))
}

// NewRegistry returns a registry holding every built-in step handler.
func NewRegistry(log *slog.Logger, store persistence.Persistence, mailer mail.Mailer) *registry.Registry {
	reg := registry.NewRegistry(log)

	registerNativeActions(reg, store, mailer)

	return reg
}

package app

import (
	"time"

	"go.uber.org/fx"

	"github.com/numina/billing/internal/app/api/server"
	"github.com/numina/billing/internal/app/service/event_log"
	"github.com/numina/billing/internal/app/service/payment_attempts"
	"github.com/numina/billing/internal/app/service/payment_retry"
	"github.com/numina/billing/internal/app/service/webhook_handler"
	"github.com/numina/billing/internal/platform/db"
	"github.com/numina/billing/internal/platform/stripe_gateway"
	"github.com/numina/billing/pkg/config"
	"github.com/numina/billing/pkg/logger"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	db.Module,
	server.Module,
	stripe_gateway.Module,
	event_log.Module,
	payment_attempts.Module,
	payment_retry.Module,
	webhook_handler.Module,
)

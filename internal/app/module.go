package app

import (
	"time"

	"go.uber.org/fx"

	"github.com/moleart/turnstile/internal/app/api/server"
	"github.com/moleart/turnstile/internal/app/service/history"
	notificationlog "github.com/moleart/turnstile/internal/app/service/notification_log"
	"github.com/moleart/turnstile/internal/app/service/payment"
	"github.com/moleart/turnstile/internal/app/service/quota"
	"github.com/moleart/turnstile/internal/app/service/subscription"
	"github.com/moleart/turnstile/internal/app/service/user"
	"github.com/moleart/turnstile/internal/platform/alipay"
	"github.com/moleart/turnstile/internal/platform/db"
	"github.com/moleart/turnstile/pkg/config"
	"github.com/moleart/turnstile/pkg/logger"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

var Module = fx.Options(
	logger.Module,
	config.Module,
	db.Module,
	alipay.Module,
	server.Module,
	subscription.Module,
	user.Module,
	quota.Module,
	payment.Module,
	history.Module,
	notificationlog.Module,
)

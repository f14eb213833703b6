package domain

import (
	"go.uber.org/fx"

	"github.com/fanplatform/subscription-service/internal/domain/subscription"
)

var Module = fx.Module(
	"domain",
	subscription.Module,
)

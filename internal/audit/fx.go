package audit

import (
	"github.com/neuron-e/api-boukii-sub004/internal/audit/repository"
	"github.com/neuron-e/api-boukii-sub004/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)

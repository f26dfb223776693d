package monitor

import (
	"github.com/neuron-e/api-boukii-sub004/internal/monitor/repository"
	"github.com/neuron-e/api-boukii-sub004/internal/monitor/service"
	"go.uber.org/fx"
)

var Module = fx.Module("monitor.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)

package pricesnapshot

import (
	"github.com/neuron-e/api-boukii-sub004/internal/pricesnapshot/repository"
	"github.com/neuron-e/api-boukii-sub004/internal/pricesnapshot/service"
	"go.uber.org/fx"
)

var Module = fx.Module("pricesnapshot.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)

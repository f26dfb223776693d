package booking

import (
	"github.com/neuron-e/api-boukii-sub004/internal/booking/repository"
	"github.com/neuron-e/api-boukii-sub004/internal/booking/service"
	"go.uber.org/fx"
)

var Module = fx.Module("booking.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)

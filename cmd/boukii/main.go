package main

import (
	"github.com/neuron-e/api-boukii-sub004/internal/clock"
	"github.com/neuron-e/api-boukii-sub004/internal/config"
	"github.com/neuron-e/api-boukii-sub004/internal/lock"
	"github.com/neuron-e/api-boukii-sub004/internal/migration"
	"github.com/neuron-e/api-boukii-sub004/internal/observability"
	"github.com/neuron-e/api-boukii-sub004/internal/server"
	"github.com/neuron-e/api-boukii-sub004/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),

		// Core Infrastructure
		config.Module,
		observability.Module,
		db.Module,
		clock.Module,
		lock.Module,
		migration.Module,

		// Booking domains and HTTP surface
		server.Module,
	)
	app.Run()
}

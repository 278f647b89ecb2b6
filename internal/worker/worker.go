package worker

import (
	"context"

	"storefront-orders/internal/broker"
	"storefront-orders/internal/service"
	"storefront-orders/internal/util"

	"go.uber.org/zap"
)

// MessageSource delivers order topic messages to a handler until ctx ends
type MessageSource interface {
	StartConsuming(ctx context.Context, handler broker.MessageHandler) error
	Close() error
}

// StockAuditWorker writes the stock movement trail for placed orders
type StockAuditWorker struct {
	source       MessageSource
	eventHandler *broker.EventHandler
	logger       *zap.Logger
}

// NewStockAuditWorker creates a new stock audit worker
func NewStockAuditWorker(source MessageSource, auditor *service.StockAuditor) *StockAuditWorker {
	eventHandler := broker.NewEventHandler()
	eventHandler.OnOrderPlaced(auditor.HandleOrderPlaced)

	return &StockAuditWorker{
		source:       source,
		eventHandler: eventHandler,
		logger:       util.GetLogger(),
	}
}

// Start consumes until ctx is cancelled
func (w *StockAuditWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting stock audit worker")
	return w.source.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *StockAuditWorker) Stop() error {
	w.logger.Info("Stopping stock audit worker")
	return w.source.Close()
}

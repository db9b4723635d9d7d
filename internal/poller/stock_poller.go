package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fjod/storefront-cart/internal/catalog"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	DefaultInventoryTopic = "inventory-updates"
	ConsumerGroup         = "storefront-cart-stock"

	readErrorBackoff = time.Second
)

var ErrInvalidPayload = errors.New("invalid stock update payload")

// MessageReader is the part of *kafka.Reader the poller uses.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Refresher re-validates carts holding a product.
type Refresher interface {
	RefreshProduct(ctx context.Context, productID string) int
}

// StockUpdate is the payload published by the inventory system.
type StockUpdate struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
	Stock     *int   `json:"stock"`
}

// StockPoller applies inventory updates to the catalog and refreshes the
// carts that hold the affected product.
type StockPoller struct {
	reader    MessageReader
	stock     catalog.StockUpdater
	refresher Refresher
	log       *zap.Logger
}

func NewKafkaReader(topic string, brokers ...string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  ConsumerGroup,
		MaxBytes: 10e6, // 10MB
	})
}

func NewStockPoller(reader MessageReader, stock catalog.StockUpdater, refresher Refresher, log *zap.Logger) *StockPoller {
	if log == nil {
		log = zap.NewNop()
	}
	return &StockPoller{reader: reader, stock: stock, refresher: refresher, log: log}
}

// Run consumes until ctx is cancelled or the reader is closed.
func (p *StockPoller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		m, err := p.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return
			}
			p.log.Error("error reading stock update", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(readErrorBackoff):
			}
			continue
		}

		if err := p.handleMessage(ctx, m); err != nil {
			p.log.Warn("stock update skipped",
				zap.Int64("offset", m.Offset),
				zap.Error(err))
		}
	}
}

func (p *StockPoller) handleMessage(ctx context.Context, m kafka.Message) error {
	var update StockUpdate
	if err := json.Unmarshal(m.Value, &update); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if update.ProductID == "" {
		return fmt.Errorf("%w: missing product_id", ErrInvalidPayload)
	}
	if update.Stock == nil || *update.Stock < 0 {
		return fmt.Errorf("%w: missing or negative stock", ErrInvalidPayload)
	}

	if err := p.stock.SetStock(ctx, update.ProductID, update.VariantID, *update.Stock); err != nil {
		return fmt.Errorf("failed to set stock of %s: %w", update.ProductID, err)
	}

	refreshed := p.refresher.RefreshProduct(ctx, update.ProductID)
	p.log.Debug("stock update applied",
		zap.String("product_id", update.ProductID),
		zap.String("variant_id", update.VariantID),
		zap.Int("stock", *update.Stock),
		zap.Int("carts_refreshed", refreshed))
	return nil
}

func (p *StockPoller) Close() {
	if err := p.reader.Close(); err != nil {
		p.log.Error("error closing reader", zap.Error(err))
	}
}

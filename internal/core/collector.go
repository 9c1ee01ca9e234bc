package core

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// ConfirmFunc asks the operator a yes/no question.
type ConfirmFunc func(ctx context.Context, prompt string) bool

// BatchCollector expands batch sources into deduplicated print items.
type BatchCollector struct {
	lookup    BarcodeLookup
	logger    *zap.Logger
	softLimit int
}

func NewBatchCollector(lookup BarcodeLookup, softLimit int, logger *zap.Logger) *BatchCollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchCollector{
		lookup:    lookup,
		logger:    logger.Named("collector"),
		softLimit: softLimit,
	}
}

func (c *BatchCollector) SoftLimit() int {
	return c.softLimit
}

// Collect looks up every source in order, one at a time. Lookup failures are
// logged and the source falls back to its fallback code. Only context
// cancellation aborts the collection.
func (c *BatchCollector) Collect(ctx context.Context, sources []BatchSource) ([]PrintItem, error) {
	var items []PrintItem

	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		codes, err := c.lookup.ActiveBarcodes(ctx, src.BatchID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Warn("barcode lookup failed",
				zap.Int64("batch_id", src.BatchID),
				zap.Bool("has_fallback", src.FallbackCode != ""),
				zap.Error(err))
			codes = nil
		}

		if len(codes) == 0 {
			if src.FallbackCode == "" {
				c.logger.Debug("batch has no barcodes", zap.Int64("batch_id", src.BatchID))
				continue
			}
			codes = []string{src.FallbackCode}
		}

		for _, code := range codes {
			if code == "" {
				continue
			}
			items = append(items, PrintItem{
				Code:        code,
				ProductName: src.ProductName,
				Price:       src.Price,
				Qty:         1,
			})
		}
	}

	return dedupeByCode(items), nil
}

// RequiresConfirmation reports whether n labels exceed the soft limit. A zero
// limit never asks.
func (c *BatchCollector) RequiresConfirmation(n int) bool {
	return c.softLimit > 0 && n > c.softLimit
}

// CollectForPrint collects and applies the empty-result and soft-limit gates.
func (c *BatchCollector) CollectForPrint(ctx context.Context, sources []BatchSource, confirm ConfirmFunc) ([]PrintItem, error) {
	items, err := c.Collect(ctx, sources)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrNothingToPrint
	}

	if c.RequiresConfirmation(len(items)) {
		prompt := fmt.Sprintf("You are about to prepare %d labels, more than the usual limit of %d. Continue?", len(items), c.softLimit)
		if confirm == nil || !confirm(ctx, prompt) {
			return nil, ErrCancelled
		}
	}

	c.logger.Info("collected print items", zap.Int("sources", len(sources)), zap.Int("items", len(items)))
	return items, nil
}

func dedupeByCode(items []PrintItem) []PrintItem {
	seen := make(map[string]struct{}, len(items))
	out := make([]PrintItem, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.Code]; ok {
			continue
		}
		seen[item.Code] = struct{}{}
		out = append(out, item)
	}
	return out
}

package sync

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cbusillo/product-connect/internal/shopify"
)

// StaleFinder reports remote products that still carry stock but have not
// sold since a cutoff date. It scans order line items for everything that did
// sell, then lists stocked products created before the cutoff and subtracts.
type StaleFinder struct {
	walker *shopify.Walker
	logger *logrus.Entry
}

// NewStaleFinder creates a stale-product reporter.
func NewStaleFinder(walker *shopify.Walker, log *logrus.Logger) *StaleFinder {
	return &StaleFinder{
		walker: walker,
		logger: log.WithField("component", "stale-finder"),
	}
}

// Find returns the ids of unsold, stocked products older than the cutoff,
// ascending.
func (f *StaleFinder) Find(ctx context.Context, cutoff time.Time) ([]int64, error) {
	since := cutoff.UTC().Format("2006-01-02T15:04:05Z")

	sold, err := f.soldProductIDs(ctx, since)
	if err != nil {
		return nil, err
	}
	f.logger.WithField("sold", len(sold)).Debug("Collected sold product ids")

	var stale []int64
	filter := fmt.Sprintf("inventory_total:>0 created_at:<%s", since)
	err = f.walker.Walk(ctx, "product", "GetProductIds", since, filter, func(record map[string]interface{}) error {
		gid, _ := record["id"].(string)
		id, err := shopify.ExtractID(gid)
		if err != nil {
			return &shopify.ProtocolError{Messages: []string{err.Error()}}
		}
		if !sold[id] {
			stale = append(stale, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(stale, func(i, j int) bool { return stale[i] < stale[j] })
	f.logger.WithField("stale", len(stale)).Info("Stale product scan finished")
	return stale, nil
}

// soldProductIDs walks order line items since the cutoff and collects every
// product that sold at least one unit.
func (f *StaleFinder) soldProductIDs(ctx context.Context, since string) (map[int64]bool, error) {
	sold := make(map[int64]bool)
	err := f.walker.Walk(ctx, "order", "GetOrdersLineItems", since, "", func(record map[string]interface{}) error {
		items, _ := record["lineItems"].([]interface{})
		for _, raw := range items {
			item, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			qty, _ := item["quantity"].(float64)
			if qty <= 0 {
				continue
			}
			product, ok := item["product"].(map[string]interface{})
			if !ok {
				continue
			}
			gid, _ := product["id"].(string)
			id, err := shopify.ExtractID(gid)
			if err != nil {
				continue
			}
			sold[id] = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sold, nil
}

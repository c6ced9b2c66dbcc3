package plancache

import (
	"fmt"

	"PastureDB/logging"
	"PastureDB/plan"

	"github.com/dgraph-io/ristretto/v2"
	"golang.org/x/sync/singleflight"
)

/*
This file contains the execution plan cache

Plans are keyed by statement fingerprint and weighted by their estimated size, the total
weight never exceeds the configured byte budget (ristretto evicts with sampled LFU).
Eviction order is therefore not least-recently-used: when the budget is full, the victims are
the sampled plans with the lowest estimated access frequency, and recency is not considered.
At most one computation runs per fingerprint: concurrent callers join the running flight.

Eviction only drops the cache reference. A caller that already holds a plan keeps using it.
*/

const (
	DefaultMaxBytes = 64 << 20
	bufferItems     = 64
	// expected entries are estimated from a typical plan size, counters should be 10x entries
	typicalPlanSize = 256
	minCounters     = 1024
)

// ComputeFunc builds a plan for a fingerprint using the identifier allocated by the cache
type ComputeFunc func(id uint64) (*plan.ExecutionPlan, error)

type PlanCache struct {
	cache    *ristretto.Cache[string, *plan.ExecutionPlan]
	flights  singleflight.Group
	ids      plan.IDGenerator
	maxBytes int64
}

func NewPlanCache(maxBytes int64, ids plan.IDGenerator) (*PlanCache, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if ids == nil {
		ids = plan.NewCounter()
	}
	counters := 10 * (maxBytes / typicalPlanSize)
	if counters < minCounters {
		counters = minCounters
	}

	log := logging.WithComponent("plan_cache")
	cache, err := ristretto.NewCache(&ristretto.Config[string, *plan.ExecutionPlan]{
		NumCounters:        counters,
		MaxCost:            maxBytes,
		BufferItems:        bufferItems,
		IgnoreInternalCost: true,
		OnEvict: func(item *ristretto.Item[*plan.ExecutionPlan]) {
			log.Debug("plan evicted", "plan", item.Value, "cost", item.Cost)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create plan cache: %w", err)
	}

	return &PlanCache{cache: cache, ids: ids, maxBytes: maxBytes}, nil
}

// GetOrCompute returns the cached plan for fingerprint or computes it once
func (pc *PlanCache) GetOrCompute(fingerprint string, compute ComputeFunc) (*plan.ExecutionPlan, error) {
	if p, ok := pc.cache.Get(fingerprint); ok {
		return p, nil
	}

	v, err, _ := pc.flights.Do(fingerprint, func() (any, error) {
		// a flight that just finished may have stored it
		if p, ok := pc.cache.Get(fingerprint); ok {
			return p, nil
		}
		p, err := compute(pc.ids.Next())
		if err != nil {
			return nil, err
		}
		pc.cache.Set(fingerprint, p, planCost(p))
		pc.cache.Wait()
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*plan.ExecutionPlan), nil
}

func (pc *PlanCache) Get(fingerprint string) (*plan.ExecutionPlan, bool) {
	return pc.cache.Get(fingerprint)
}

// NextID allocates an identifier for a plan built outside the cache
func (pc *PlanCache) NextID() uint64 {
	return pc.ids.Next()
}

// EstimatedSize is the total estimated size of the cached plans
func (pc *PlanCache) EstimatedSize() int64 {
	return pc.cache.MaxCost() - pc.cache.RemainingCost()
}

func (pc *PlanCache) MaxBytes() int64 {
	return pc.maxBytes
}

// Clear drops every cached plan, called after any catalog change
func (pc *PlanCache) Clear() {
	pc.cache.Clear()
}

// Wait blocks until pending cache writes are applied
func (pc *PlanCache) Wait() {
	pc.cache.Wait()
}

func (pc *PlanCache) Close() {
	pc.cache.Close()
}

func planCost(p *plan.ExecutionPlan) int64 {
	cost := p.EstimateObjectSizeForCache()
	if cost < 1 {
		cost = 1
	}
	return cost
}

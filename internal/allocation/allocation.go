// Package allocation computes per-store demand shares from historical
// line items and converts a total forecast quantity into case-pack
// respecting per-store unit allocations.
//
// The package is pure: no I/O, no clocks, no randomness. Identical inputs
// always produce identical outputs, which is what makes forecasts
// reproducible across runs and across replays of the same history.
//
// Unit allocation uses largest-remainder (Hamilton) apportionment: floor
// every store's proportional slice, then hand leftover units to the
// stores with the biggest fractional remainders, tie-broken by store id
// ascending. The method conserves the grand total exactly while keeping
// each store's distortion below one unit.
package allocation

import (
	"math"
	"sort"
)

// LineItem is one historical demand observation for a store.
type LineItem struct {
	StoreID     string
	SAP         string
	ScheduleKey string
	DeliveryDate string
	Quantity    int
}

// Share is a store's fraction of total observed demand.
type Share struct {
	Share         float64
	TotalQuantity int
}

// Shares groups historical line items by store and computes each store's
// fraction of the summed quantity. Zero-quantity items are excluded.
//
// Returns an empty map when no store has positive history. The fallback
// policy for an empty result (equal split, skip, ...) belongs to the
// caller, not this package.
func Shares(items []LineItem) map[string]Share {
	totals := make(map[string]int)
	grand := 0
	for _, it := range items {
		if it.Quantity <= 0 {
			continue
		}
		totals[it.StoreID] += it.Quantity
		grand += it.Quantity
	}

	shares := make(map[string]Share, len(totals))
	if grand == 0 {
		return shares
	}
	for storeID, qty := range totals {
		shares[storeID] = Share{
			Share:         float64(qty) / float64(grand),
			TotalQuantity: qty,
		}
	}
	return shares
}

// StoreAllocation is the allocated demand for one store.
type StoreAllocation struct {
	Units int
	Cases int
}

// Allocate splits totalDemand across stores proportionally to shares.
//
// When roundCases is set and casePack > 0, the grand total is first
// rounded up to the next multiple of casePack, and that target is what
// gets distributed - so the summed units always land on a shippable case
// boundary. With rounding off, the summed units equal totalDemand exactly.
//
// Cases are floor division of units by casePack; individual stores are
// not forced onto case boundaries, only the total is.
//
// A store with zero share receives zero units: leftover distribution
// only ever reaches stores with a positive fractional remainder, and the
// leftover count is bounded by the number of such stores.
func Allocate(totalDemand int, shares map[string]float64, casePack int, roundCases bool) map[string]StoreAllocation {
	out := make(map[string]StoreAllocation, len(shares))
	if totalDemand < 0 || len(shares) == 0 {
		return out
	}

	target := totalDemand
	if roundCases && casePack > 0 {
		target = int(math.Ceil(float64(totalDemand)/float64(casePack))) * casePack
	}

	type slice struct {
		storeID string
		units   int
		rem     float64
	}

	slices := make([]slice, 0, len(shares))
	floored := 0
	for storeID, share := range shares {
		raw := float64(target) * share
		units := int(math.Floor(raw))
		slices = append(slices, slice{
			storeID: storeID,
			units:   units,
			rem:     raw - float64(units),
		})
		floored += units
	}

	// Largest remainder first; ties resolved by store id ascending so the
	// same inputs always allocate identically.
	sort.Slice(slices, func(i, j int) bool {
		if slices[i].rem != slices[j].rem {
			return slices[i].rem > slices[j].rem
		}
		return slices[i].storeID < slices[j].storeID
	})

	for i := 0; i < target-floored && i < len(slices); i++ {
		slices[i].units++
	}

	for _, s := range slices {
		cases := s.units
		if casePack > 0 {
			cases = s.units / casePack
		}
		out[s.storeID] = StoreAllocation{Units: s.units, Cases: cases}
	}
	return out
}

// ShareFractions strips the observed totals from a Shares result, leaving
// the bare fractions Allocate consumes.
func ShareFractions(shares map[string]Share) map[string]float64 {
	out := make(map[string]float64, len(shares))
	for storeID, s := range shares {
		out[storeID] = s.Share
	}
	return out
}

package workflow

import (
	"sort"

	"bitbucket.org/mmdatafocus/billing_backend/models"
	"bitbucket.org/mmdatafocus/billing_backend/utils"
)

// InventoryDelta is one product's effect of replacing a bill's items.
// NetChange = OldQty - NewQty; positive means stock comes back.
type InventoryDelta struct {
	ProductId   int    `json:"product_id"`
	ProductName string `json:"product_name"`
	OldQty      int    `json:"old_qty"`
	NewQty      int    `json:"new_qty"`
	NetChange   int    `json:"net_change"`
	Available   int    `json:"available"`
	Projected   int    `json:"projected"`
}

func (d InventoryDelta) Insufficient() bool {
	return d.Projected < 0
}

// ComputeInventoryDeltas covers the union of old and new products, sorted by product id.
// It is pure: available is only read.
func ComputeInventoryDeltas(oldQty map[int]int, newQty map[int]int, available map[int]*models.Product) []InventoryDelta {
	ids := make([]int, 0, len(oldQty)+len(newQty))
	for id := range oldQty {
		ids = append(ids, id)
	}
	for id := range newQty {
		if _, ok := oldQty[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)

	deltas := make([]InventoryDelta, 0, len(ids))
	for _, id := range ids {
		d := InventoryDelta{
			ProductId: id,
			OldQty:    oldQty[id],
			NewQty:    newQty[id],
		}
		if p, ok := available[id]; ok && p != nil {
			d.ProductName = p.Name
			d.Available = p.Quantity
		}
		d.NetChange = d.OldQty - d.NewQty
		d.Projected = d.Available + d.NetChange
		deltas = append(deltas, d)
	}
	return deltas
}

// DeltaShortages reports the products whose projection is negative. The stock that
// would be available to the new items is the current quantity plus what the bill
// gives back.
func DeltaShortages(deltas []InventoryDelta) []utils.StockShortage {
	var shortages []utils.StockShortage
	for _, d := range deltas {
		if !d.Insufficient() {
			continue
		}
		shortages = append(shortages, utils.StockShortage{
			ProductId:   d.ProductId,
			ProductName: d.ProductName,
			Requested:   d.NewQty,
			Available:   d.Available + d.OldQty,
		})
	}
	return shortages
}

func demandMap(demands []models.StockDemand) map[int]int {
	out := make(map[int]int, len(demands))
	for _, d := range models.GroupQuantities(demands) {
		out[d.ProductId] = d.Quantity
	}
	return out
}

func sortedUnique(ids []int) []int {
	out := utils.UniqueSlice(ids)
	sort.Ints(out)
	return out
}

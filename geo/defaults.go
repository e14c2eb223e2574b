package geo

import "immojagd/models"

// DefaultRules returns the compiled-in admission lists. Wien is fully
// covered by its district postal codes; Niederösterreich gets the 2xxx/3xxx
// ranges plus named localities that sit outside them.
func DefaultRules() map[models.Region]RegionRules {
	return map[models.Region]RegionRules{
		models.RegionWien: {
			PostalRanges: []PostalRange{{From: 1010, To: 1239}},
			Localities: []string{
				"wien", "vienna",
			},
		},
		models.RegionNiederoesterreich: {
			PostalRanges: []PostalRange{
				{From: 2000, To: 2899},
				{From: 3002, To: 3943},
			},
			Localities: []string{
				"st. pölten", "sankt pölten",
				"baden",
				"mödling",
				"klosterneuburg",
				"krems",
				"wiener neustadt",
				"tulln",
				"korneuburg",
				"stockerau",
				"amstetten",
				"gänserndorf",
				"hollabrunn",
				"mistelbach",
				"bruck an der leitha",
				"schwechat",
				"perchtoldsdorf",
				"niederösterreich",
			},
			// Far-north Waldviertel districts fall inside the 3xxx
			// range but are off-market for the lead list.
			Denied: []string{
				"waidhofen an der thaya",
				"gmünd",
			},
		},
	}
}

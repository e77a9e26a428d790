package domain

// OccupancyDrift reports an item whose stored occupied counter disagrees with
// the sum of its active bookings' line items.
type OccupancyDrift struct {
	ItemID    string  `json:"item_id"`
	CompanyID string  `json:"company_id"`
	Code      string  `json:"code"`
	Stored    float64 `json:"stored"`
	Expected  float64 `json:"expected"`
}

// Delta returns the correction that must be applied to the stored counter.
func (d OccupancyDrift) Delta() float64 {
	return d.Expected - d.Stored
}

package entity

// CabinCategory is one of the four canonical cabin categories
type CabinCategory string

const (
	CategoryInterior  CabinCategory = "interior"
	CategoryOceanview CabinCategory = "oceanview"
	CategoryBalcony   CabinCategory = "balcony"
	CategorySuite     CabinCategory = "suite"
)

// Categories lists the cabin categories in declaration order.
// Ties for the cheapest price resolve to the earliest entry.
var Categories = []CabinCategory{CategoryInterior, CategoryOceanview, CategoryBalcony, CategorySuite}

// CanonicalPricing is the normalized per-category price record for one sailing.
// A nil price means the provider published no usable price for that category.
type CanonicalPricing struct {
	SailingCode      string
	Currency         string
	Interior         *float64
	Oceanview        *float64
	Balcony          *float64
	Suite            *float64
	Cheapest         *float64
	CheapestCategory *CabinCategory
}

// Category returns the price for the given cabin category
func (p *CanonicalPricing) Category(c CabinCategory) *float64 {
	switch c {
	case CategoryInterior:
		return p.Interior
	case CategoryOceanview:
		return p.Oceanview
	case CategoryBalcony:
		return p.Balcony
	case CategorySuite:
		return p.Suite
	}
	return nil
}

// SetCategory sets the price for the given cabin category
func (p *CanonicalPricing) SetCategory(c CabinCategory, v *float64) {
	switch c {
	case CategoryInterior:
		p.Interior = v
	case CategoryOceanview:
		p.Oceanview = v
	case CategoryBalcony:
		p.Balcony = v
	case CategorySuite:
		p.Suite = v
	}
}

// ComputeCheapest fills Cheapest and CheapestCategory from the category
// prices. When every category is nil both stay nil.
func (p *CanonicalPricing) ComputeCheapest() {
	p.Cheapest = nil
	p.CheapestCategory = nil
	for _, c := range Categories {
		v := p.Category(c)
		if v == nil {
			continue
		}
		if p.Cheapest == nil || *v < *p.Cheapest {
			price := *v
			category := c
			p.Cheapest = &price
			p.CheapestCategory = &category
		}
	}
}

// HasPricing reports whether any category carries a price
func (p *CanonicalPricing) HasPricing() bool {
	return p.Cheapest != nil
}

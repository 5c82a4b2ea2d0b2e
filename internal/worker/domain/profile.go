package domain

import "fmt"

// PricingItem is one (service title, price) pair from the intake form.
type PricingItem struct {
	Title string `json:"title"`
	Price int    `json:"price"` // rubles
}

// StudentProfile is the massage therapist's intake form. Immutable once
// submitted; the group-creation job carries a copy.
type StudentProfile struct {
	Name        string        `json:"name"`
	City        string        `json:"city"`
	Area        string        `json:"area"`
	Phone       string        `json:"phone"`
	Telegram    string        `json:"telegram,omitempty"`
	Techniques  []string      `json:"techniques"`
	Pricing     []PricingItem `json:"pricing"`
	IsHomeVisit bool          `json:"is_home_visit"`
	Address     string        `json:"address,omitempty"`
}

// Validate checks the invariants the workflow depends on.
func (p *StudentProfile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	if p.City == "" {
		return fmt.Errorf("city is required")
	}
	if p.Area == "" {
		return fmt.Errorf("area is required")
	}
	if p.Phone == "" {
		return fmt.Errorf("phone is required")
	}
	if len(p.Techniques) == 0 {
		return fmt.Errorf("at least one technique is required")
	}
	if len(p.Pricing) == 0 {
		return fmt.Errorf("at least one pricing entry is required")
	}
	for i, item := range p.Pricing {
		if item.Title == "" {
			return fmt.Errorf("pricing[%d]: title is required", i)
		}
		if item.Price <= 0 {
			return fmt.Errorf("pricing[%d]: price must be positive", i)
		}
	}
	if !p.IsHomeVisit && p.Address == "" {
		return fmt.Errorf("address is required when home visits are not offered")
	}
	return nil
}

package content

import (
	"fmt"
	"strings"

	"github.com/glebkhr/vk-group-builder/internal/worker/domain"
)

// MarketItem is a marketplace listing, one per pricing entry.
type MarketItem struct {
	Title       string
	Description string
	Price       int // rubles
	CategoryID  int
}

// Marketplace category: beauty & health services.
const marketCategoryBeauty = 1

// GenerateMarketItems maps every pricing entry to a marketplace listing.
func GenerateMarketItems(p *domain.StudentProfile) []MarketItem {
	items := make([]MarketItem, 0, len(p.Pricing))
	for _, entry := range p.Pricing {
		items = append(items, MarketItem{
			Title:       entry.Title,
			Description: marketDescription(p, entry),
			Price:       entry.Price,
			CategoryID:  marketCategoryBeauty,
		})
	}
	return items
}

func marketDescription(p *domain.StudentProfile, entry domain.PricingItem) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", entry.Title)
	fmt.Fprintf(&b, "Профессиональный массаж от специалиста %s.\n\n", p.Name)
	b.WriteString("Что входит:\n")
	b.WriteString("✅ Консультация и диагностика\n")
	b.WriteString("✅ Профессиональный массаж\n")
	b.WriteString("✅ Качественные масла\n")
	b.WriteString("✅ Рекомендации по уходу\n\n")
	fmt.Fprintf(&b, "Техники: %s\n\n", strings.Join(p.Techniques, ", "))
	fmt.Fprintf(&b, "Продолжительность: %s\n", durationFromTitle(entry.Title))
	fmt.Fprintf(&b, "Стоимость: %s\n\n", FormatPrice(entry.Price))
	fmt.Fprintf(&b, "Запись: %s", contactLine(p))
	return b.String()
}

// durationFromTitle guesses the session length from the service title.
// Defaults to an hour when no known duration is mentioned.
func durationFromTitle(title string) string {
	for _, d := range []string{"30", "45", "60", "90"} {
		if strings.Contains(title, d) {
			return d + " минут"
		}
	}
	return "60 минут"
}

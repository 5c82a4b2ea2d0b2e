// Package content renders the Russian-language texts and cover images a
// freshly provisioned community is filled with. All generators are pure
// functions of the therapist's profile.
package content

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/glebkhr/vk-group-builder/internal/worker/domain"
)

// Description is the community description block plus the catalog category
// it is filed under.
type Description struct {
	Title       string
	Body        string
	Category    int
	Subcategory int
}

// Catalog placement: business & services / beauty & health.
const (
	publicCategoryBusiness  = 1
	publicSubcategoryBeauty = 1
)

var phoneDigits = regexp.MustCompile(`\D`)

// FormatPhone renders an 11-digit Russian number as "7 (XXX) XXX-XX-XX".
// Anything that does not look like one passes through untouched.
func FormatPhone(phone string) string {
	digits := phoneDigits.ReplaceAllString(phone, "")
	if len(digits) != 11 {
		return phone
	}
	return fmt.Sprintf("%s (%s) %s-%s-%s",
		digits[0:1], digits[1:4], digits[4:7], digits[7:9], digits[9:11])
}

// FormatPrice renders a ruble amount with thousands separators, e.g.
// "2 500 ₽".
func FormatPrice(rubles int) string {
	s := fmt.Sprintf("%d", rubles)
	var parts []string
	for len(s) > 3 {
		parts = append([]string{s[len(s)-3:]}, parts...)
		s = s[:len(s)-3]
	}
	parts = append([]string{s}, parts...)
	return strings.Join(parts, " ") + " ₽"
}

func contactLine(p *domain.StudentProfile) string {
	line := FormatPhone(p.Phone)
	if p.Telegram != "" {
		line += " или " + p.Telegram
	}
	return line
}

func pricingLines(p *domain.StudentProfile) string {
	var b strings.Builder
	for _, item := range p.Pricing {
		fmt.Fprintf(&b, "• %s — %s\n", item.Title, FormatPrice(item.Price))
	}
	return strings.TrimRight(b.String(), "\n")
}

// GenerateDescription produces the community title and description. Home
// visit and office profiles get different copy.
func GenerateDescription(p *domain.StudentProfile) Description {
	title := fmt.Sprintf("Массаж • %s • %s", p.City, p.Name)

	var b strings.Builder
	if p.IsHomeVisit {
		fmt.Fprintf(&b, "🏠 %s — массаж на дому в %s\n\n", p.Name, p.City)
		fmt.Fprintf(&b, "📍 Район: %s\n", p.Area)
	} else {
		fmt.Fprintf(&b, "🏢 %s — массажный кабинет в %s\n\n", p.Name, p.City)
		fmt.Fprintf(&b, "📍 Адрес: %s\n", p.Address)
	}
	fmt.Fprintf(&b, "📞 Телефон: %s\n", FormatPhone(p.Phone))
	if p.Telegram != "" {
		fmt.Fprintf(&b, "💬 Telegram: %s\n", p.Telegram)
	}

	b.WriteString("\nУслуги:\n")
	b.WriteString(pricingLines(p))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "Техники: %s\n\n", strings.Join(p.Techniques, ", "))

	b.WriteString("Преимущества:\n")
	if p.IsHomeVisit {
		b.WriteString("✅ Выезд на дом в удобное время\n")
	} else {
		b.WriteString("✅ Уютный кабинет\n")
	}
	b.WriteString("✅ Профессиональное оборудование\n")
	b.WriteString("✅ Индивидуальный подход\n")
	b.WriteString("✅ Конфиденциальность\n\n")

	fmt.Fprintf(&b, "Запись: %s\n\n", contactLine(p))

	suffix := "#массажныйкабинет"
	if p.IsHomeVisit {
		suffix = "#массажнадом"
	}
	fmt.Fprintf(&b, "#массаж #%s #%s %s #здоровье #релакс", p.City, p.Area, suffix)

	return Description{
		Title:       title,
		Body:        b.String(),
		Category:    publicCategoryBusiness,
		Subcategory: publicSubcategoryBeauty,
	}
}

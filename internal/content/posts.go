package content

import (
	"fmt"
	"strings"

	"github.com/glebkhr/vk-group-builder/internal/worker/domain"
)

// Post is a wall publication produced for a new community. Posts not marked
// immediate carry a delay in days and go through the scheduling queue.
type Post struct {
	Content            string
	PublishImmediately bool
	DelayDays          int
}

// GeneratePosts builds the initial wall content: a welcome post and a price
// list published right away, followed by a drip of scheduled posts. The
// immediate posts always come first in the returned slice.
func GeneratePosts(p *domain.StudentProfile) []Post {
	posts := []Post{
		{Content: welcomePost(p), PublishImmediately: true},
		{Content: pricingPost(p), PublishImmediately: true},
		{Content: techniquesPost(p), DelayDays: 3},
		{Content: indicationsPost(p), DelayDays: 7},
		{Content: reminderPost(p), DelayDays: 14},
	}
	return posts
}

func welcomePost(p *domain.StudentProfile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Добро пожаловать! Меня зовут %s, я делаю массаж в %s (%s).\n\n", p.Name, p.City, p.Area)
	if p.IsHomeVisit {
		b.WriteString("Выезжаю на дом в удобное для вас время.\n\n")
	} else {
		fmt.Fprintf(&b, "Принимаю в кабинете по адресу: %s.\n\n", p.Address)
	}
	fmt.Fprintf(&b, "Запись: %s", contactLine(p))
	return b.String()
}

func pricingPost(p *domain.StudentProfile) string {
	var b strings.Builder
	b.WriteString("💆 Услуги и цены:\n\n")
	b.WriteString(pricingLines(p))
	fmt.Fprintf(&b, "\n\nЗапись: %s", contactLine(p))
	return b.String()
}

func techniquesPost(p *domain.StudentProfile) string {
	var b strings.Builder
	b.WriteString("Какие техники я использую и чем они отличаются:\n\n")
	for _, t := range p.Techniques {
		fmt.Fprintf(&b, "• %s\n", t)
	}
	b.WriteString("\nПодберу технику под вашу задачу на первой консультации.")
	return b.String()
}

func indicationsPost(p *domain.StudentProfile) string {
	return strings.Join([]string{
		"Когда стоит записаться на массаж:",
		"",
		"• Стресс и усталость",
		"• Боли в спине и шее",
		"• Напряжение в мышцах",
		"• Нарушение сна",
		"",
		"Запись: " + contactLine(p),
	}, "\n")
}

func reminderPost(p *domain.StudentProfile) string {
	return fmt.Sprintf("Напоминаю: я принимаю заявки на массаж в %s. Свободные окна уточняйте по телефону %s.",
		p.City, FormatPhone(p.Phone))
}

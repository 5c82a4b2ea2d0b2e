package content

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glebkhr/vk-group-builder/internal/worker/domain"
)

func homeVisitProfile() *domain.StudentProfile {
	return &domain.StudentProfile{
		Name:        "Анна Иванова",
		City:        "Москва",
		Area:        "Арбат",
		Phone:       "79161234567",
		Telegram:    "@anna_massage",
		Techniques:  []string{"классический", "спортивный"},
		Pricing: []domain.PricingItem{
			{Title: "Массаж спины 30 минут", Price: 1500},
			{Title: "Общий массаж 60 минут", Price: 2500},
		},
		IsHomeVisit: true,
	}
}

func officeProfile() *domain.StudentProfile {
	p := homeVisitProfile()
	p.IsHomeVisit = false
	p.Address = "ул. Пушкина, д. 10"
	return p
}

func TestFormatPhone(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "bare digits",
			input: "79161234567",
			want:  "7 (916) 123-45-67",
		},
		{
			name:  "already punctuated",
			input: "+7 916 123-45-67",
			want:  "7 (916) 123-45-67",
		},
		{
			name:  "too short passes through",
			input: "12345",
			want:  "12345",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatPhone(tt.input))
		})
	}
}

func TestFormatPrice(t *testing.T) {
	assert.Equal(t, "500 ₽", FormatPrice(500))
	assert.Equal(t, "2 500 ₽", FormatPrice(2500))
	assert.Equal(t, "1 250 000 ₽", FormatPrice(1250000))
}

func TestGenerateDescription(t *testing.T) {
	tests := []struct {
		name        string
		profile     *domain.StudentProfile
		wantContain []string
		wantAbsent  []string
	}{
		{
			name:    "home visit",
			profile: homeVisitProfile(),
			wantContain: []string{
				"массаж на дому",
				"Район: Арбат",
				"#массажнадом",
				"@anna_massage",
				"2 500 ₽",
			},
			wantAbsent: []string{"Адрес:"},
		},
		{
			name:    "office",
			profile: officeProfile(),
			wantContain: []string{
				"массажный кабинет",
				"Адрес: ул. Пушкина, д. 10",
				"#массажныйкабинет",
			},
			wantAbsent: []string{"на дому"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc := GenerateDescription(tt.profile)

			assert.Equal(t, "Массаж • Москва • Анна Иванова", desc.Title)
			assert.Equal(t, 1, desc.Category)
			assert.Equal(t, 1, desc.Subcategory)
			for _, want := range tt.wantContain {
				assert.Contains(t, desc.Body, want)
			}
			for _, absent := range tt.wantAbsent {
				assert.NotContains(t, desc.Body, absent)
			}
		})
	}
}

func TestGeneratePosts(t *testing.T) {
	posts := GeneratePosts(homeVisitProfile())
	require.Len(t, posts, 5)

	// The immediate posts lead the slice so the publish quota applies to them.
	assert.True(t, posts[0].PublishImmediately)
	assert.True(t, posts[1].PublishImmediately)

	lastDelay := 0
	for _, post := range posts[2:] {
		assert.False(t, post.PublishImmediately)
		assert.Greater(t, post.DelayDays, lastDelay)
		lastDelay = post.DelayDays
	}

	assert.Contains(t, posts[0].Content, "Анна Иванова")
	assert.Contains(t, posts[1].Content, "1 500 ₽")
}

func TestGenerateMarketItems(t *testing.T) {
	items := GenerateMarketItems(officeProfile())
	require.Len(t, items, 2)

	assert.Equal(t, "Массаж спины 30 минут", items[0].Title)
	assert.Equal(t, 1500, items[0].Price)
	assert.Equal(t, 1, items[0].CategoryID)
	assert.Contains(t, items[0].Description, "30 минут")
	assert.Contains(t, items[1].Description, "60 минут")
	assert.Contains(t, items[0].Description, "Анна Иванова")
}

func TestDurationFromTitle(t *testing.T) {
	assert.Equal(t, "45 минут", durationFromTitle("Лимфодренаж 45 мин"))
	assert.Equal(t, "60 минут", durationFromTitle("Антицеллюлитный массаж"))
}

func TestGenerateAvatar(t *testing.T) {
	data, err := GenerateAvatar(homeVisitProfile())
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 200, img.Bounds().Dx())
	assert.Equal(t, 200, img.Bounds().Dy())

	// Same profile renders identical bytes.
	again, err := GenerateAvatar(homeVisitProfile())
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestGenerateCover(t *testing.T) {
	data, err := GenerateCover(homeVisitProfile())
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 1200, img.Bounds().Dx())
	assert.Equal(t, 300, img.Bounds().Dy())
}

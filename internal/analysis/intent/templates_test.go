package intent

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/retailbot/support-widget/internal/render"
)

func TestEveryCategoryHasTemplate(t *testing.T) {
	r := NewRenderer()
	categories := []Category{Default}
	for _, rule := range Rules() {
		categories = append(categories, rule.Category)
	}

	for _, category := range categories {
		text := r.Render(Match{Category: category})
		assert.NotEmpty(t, strings.TrimSpace(text), "category %s", category)
	}
}

func TestRenderOrderVariants(t *testing.T) {
	r := NewRenderer()

	ask := r.Render(Match{Category: OrderTracking, Variant: VariantAskOrderID})
	found := r.Render(Match{Category: OrderTracking, Variant: VariantOrderFound})

	assert.Contains(t, ask, "provide your order ID")
	assert.Contains(t, found, "I found your order")
}

func TestRenderUnknownFallsBackToDefault(t *testing.T) {
	r := NewRenderer()

	assert.Equal(t, r.Render(Match{Category: Default}), r.Render(Match{Category: "mystery"}))
}

func TestTemplatesRoundTrip(t *testing.T) {
	r := NewRenderer()
	for category := range defaultTemplates {
		for variant := range defaultTemplates[category] {
			text := r.Render(Match{Category: category, Variant: variant})

			lines := render.Lines(text)
			again := render.Lines(render.Join(lines))

			if diff := cmp.Diff(lines, again); diff != "" {
				t.Fatalf("%s/%s not idempotent (-first +second):\n%s", category, variant, diff)
			}
			assert.Len(t, lines, strings.Count(text, "\n")+1)
		}
	}
}

package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyTopics(t *testing.T) {
	c := NewClassifier(nil)

	cases := map[string]Category{
		"hello":                    Greeting,
		"Good Morning!":            Greeting,
		"hey there":                Greeting,
		"i need a refund":          Returns,
		"my payment failed":        Payment,
		"is shipping free":         Delivery,
		"what time do you open":    StoreInfo,
		"is this product in stock": ProductAvailability,
		"i forgot my password":     Account,
		"how much does this cost":  Pricing,
		"my blender is broken":     Warranty,
		"what size should i get":   Sizing,
		"thank you so much":        Thanks,
		"ok bye":                   Goodbye,
		"this is terrible":         Complaint,
		"you are awesome":          Compliment,
		"blah":                     Default,
	}

	for input, want := range cases {
		got := c.ClassifyText(input)
		assert.Equal(t, want, got.Category, "input %q", input)
	}
}

func TestClassifyEscalationWinsOverTopics(t *testing.T) {
	c := NewClassifier(nil)

	inputs := []string{
		"I want a human",
		"agent",
		"let me talk to a real person about my order 48291",
		"refund my payment, customer service please",
		"hello, can I speak to someone",
		"HELP ME",
	}
	for _, input := range inputs {
		assert.Equal(t, Escalate, c.ClassifyText(input).Category, "input %q", input)
	}
}

func TestClassifyEmptyIsDefault(t *testing.T) {
	c := NewClassifier(nil)

	assert.Equal(t, Match{Category: Default}, c.Classify(""))
	assert.Equal(t, Match{Category: Default}, c.ClassifyText("   \t "))
}

func TestClassifyIsDeterministic(t *testing.T) {
	c := NewClassifier(nil)
	first := c.ClassifyText("where is my order #A12")
	for i := 0; i < 50; i++ {
		if got := c.ClassifyText("where is my order #A12"); got != first {
			t.Fatalf("classification changed on run %d: %+v vs %+v", i, got, first)
		}
	}
}

func TestOrderTrackingVariants(t *testing.T) {
	c := NewClassifier(nil)

	ask := c.ClassifyText("track my order")
	if ask.Category != OrderTracking || ask.Variant != VariantAskOrderID {
		t.Fatalf("expected ask-for-id variant, got %+v", ask)
	}

	found := c.ClassifyText("track order 48291")
	if found.Category != OrderTracking || found.Variant != VariantOrderFound {
		t.Fatalf("expected order-found variant, got %+v", found)
	}

	assert.Equal(t, VariantOrderFound, c.ClassifyText("my order id is ABC").Variant)
	assert.Equal(t, VariantOrderFound, c.ClassifyText("order #77").Variant)
	assert.Equal(t, VariantAskOrderID, c.ClassifyText("track order 1234").Variant)
}

func TestFirstMatchFollowsTableOrder(t *testing.T) {
	c := NewClassifier(nil)

	// Both Returns and Payment vocabulary appear; Returns is earlier.
	assert.Equal(t, Returns, c.ClassifyText("return my payment").Category)
	// Delivery precedes StoreInfo even though "time" is present.
	assert.Equal(t, Delivery, c.ClassifyText("delivery time").Category)
}

func TestSubstringMatchesInsideWords(t *testing.T) {
	c := NewClassifier(nil)

	assert.Equal(t, StoreInfo, c.ClassifyText("my closet door").Category)
}

func TestRulesOrder(t *testing.T) {
	want := []Category{
		Escalate, Greeting, OrderTracking, Returns, Payment, Delivery, StoreInfo,
		ProductAvailability, Account, Pricing, Warranty, Sizing, Thanks, Goodbye,
		Complaint, Compliment,
	}

	rules := Rules()
	got := make([]Category, len(rules))
	for i, rule := range rules {
		got[i] = rule.Category
	}
	assert.Equal(t, want, got)
}

func TestCustomRuleTable(t *testing.T) {
	c := NewClassifier([]Rule{
		{Category: Thanks, Matches: func(s string) bool { return s == "ta" }},
	})

	assert.Equal(t, Thanks, c.ClassifyText("TA").Category)
	assert.Equal(t, Default, c.ClassifyText("hello").Category)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "track my order", Normalize("  Track My ORDER \n"))
	assert.Equal(t, "", Normalize(""))
}

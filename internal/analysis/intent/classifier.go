// Package intent maps customer text to a support category using an ordered
// rule table. The first matching rule wins; ordering is part of the contract.
//
// Matching is plain substring or pattern containment over normalized text, so
// a keyword inside a larger word also matches ("closet" hits "close").
package intent

import (
	"regexp"
	"strings"
)

// Category is the label selecting which reply template is rendered.
type Category string

const (
	Escalate            Category = "escalate"
	Greeting            Category = "greeting"
	OrderTracking       Category = "order_tracking"
	Returns             Category = "returns"
	Payment             Category = "payment"
	Delivery            Category = "delivery"
	StoreInfo           Category = "store_info"
	ProductAvailability Category = "product_availability"
	Account             Category = "account"
	Pricing             Category = "pricing"
	Warranty            Category = "warranty"
	Sizing              Category = "sizing"
	Thanks              Category = "thanks"
	Goodbye             Category = "goodbye"
	Complaint           Category = "complaint"
	Compliment          Category = "compliment"
	Default             Category = "default"
)

// Variant selects between templates of one category.
type Variant string

const (
	VariantStandard   Variant = ""
	VariantAskOrderID Variant = "ask_order_id"
	VariantOrderFound Variant = "order_found"
)

// Match is the classifier output.
type Match struct {
	Category Category `json:"category"`
	Variant  Variant  `json:"variant,omitempty"`
}

// Rule pairs a predicate with an optional sub-rule that picks the variant.
// The sub-rule only runs after the predicate matched.
type Rule struct {
	Category Category
	Matches  func(normalized string) bool
	Variant  func(normalized string) Variant
}

// EscalationKeywords trigger a hand-off wherever they appear.
var EscalationKeywords = []string{
	"agent", "human", "real person", "speak to someone", "talk to someone",
	"customer service", "representative", "help me",
}

var (
	greetingExact  = regexp.MustCompile(`^(hi|hello|hey|hiya|howdy|greetings|good morning|good afternoon|good evening)[!.?]*$`)
	greetingLeadIn = regexp.MustCompile(`(hi|hello|hey) `)
	orderNumber    = regexp.MustCompile(`\d{5,}`)
)

var defaultRules = []Rule{
	{Category: Escalate, Matches: IsEscalation},
	{Category: Greeting, Matches: func(s string) bool {
		return greetingExact.MatchString(s) || greetingLeadIn.MatchString(s)
	}},
	{Category: OrderTracking, Matches: keywords("order", "track", "where is my"), Variant: orderVariant},
	{Category: Returns, Matches: keywords("return", "refund", "exchange")},
	{Category: Payment, Matches: keywords("payment", "pay", "charge", "card", "transaction")},
	{Category: Delivery, Matches: keywords("delivery", "shipping", "deliver", "delay")},
	{Category: StoreInfo, Matches: keywords("store", "time", "hour", "open", "close", "location")},
	{Category: ProductAvailability, Matches: keywords("product", "stock", "available", "inventory")},
	{Category: Account, Matches: keywords("account", "login", "log in", "password", "sign in")},
	{Category: Pricing, Matches: keywords("price", "cost", "discount", "coupon", "promo", "how much")},
	{Category: Warranty, Matches: keywords("warranty", "guarantee", "repair", "defect", "broken")},
	{Category: Sizing, Matches: keywords("size", "sizing", "fit", "measurement")},
	{Category: Thanks, Matches: keywords("thank", "thx", "appreciate")},
	{Category: Goodbye, Matches: keywords("bye", "see you", "that's all", "that is all")},
	{Category: Complaint, Matches: keywords("terrible", "awful", "worst", "disappointed", "unacceptable", "complain", "frustrat")},
	{Category: Compliment, Matches: keywords("great", "awesome", "amazing", "excellent", "helpful", "love")},
}

// Normalize lowercases and trims text. Every rule operates on this form.
func Normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// IsEscalation reports whether normalized text contains a hand-off keyword.
func IsEscalation(normalized string) bool {
	return containsAny(normalized, EscalationKeywords)
}

// Rules returns a copy of the built-in rule table in evaluation order.
func Rules() []Rule {
	return append([]Rule(nil), defaultRules...)
}

// Classifier evaluates an immutable rule table top to bottom.
type Classifier struct {
	rules []Rule
}

// NewClassifier builds a classifier over the given table. A nil table selects
// the built-in rules.
func NewClassifier(rules []Rule) *Classifier {
	if rules == nil {
		rules = defaultRules
	}
	return &Classifier{rules: append([]Rule(nil), rules...)}
}

// Classify returns the first matching category for normalized text, or
// Default when nothing matches.
func (c *Classifier) Classify(normalized string) Match {
	for _, rule := range c.rules {
		if !rule.Matches(normalized) {
			continue
		}
		match := Match{Category: rule.Category}
		if rule.Variant != nil {
			match.Variant = rule.Variant(normalized)
		}
		return match
	}
	return Match{Category: Default}
}

// ClassifyText normalizes raw input before classifying it.
func (c *Classifier) ClassifyText(raw string) Match {
	return c.Classify(Normalize(raw))
}

func orderVariant(s string) Variant {
	if strings.Contains(s, "id") || strings.Contains(s, "#") || orderNumber.MatchString(s) {
		return VariantOrderFound
	}
	return VariantAskOrderID
}

func keywords(words ...string) func(string) bool {
	return func(s string) bool {
		return containsAny(s, words)
	}
}

func containsAny(text string, words []string) bool {
	for _, word := range words {
		if strings.Contains(text, word) {
			return true
		}
	}
	return false
}

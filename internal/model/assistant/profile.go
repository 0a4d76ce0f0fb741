package assistant

import "strings"

// Profile captures the assistant identity presented to the customer and to
// the generative fallback.
type Profile struct {
	Name        string   `json:"name"`
	Title       string   `json:"title"`
	Greeting    string   `json:"greeting"`
	Topics      []string `json:"topics"`
	Instruction string   `json:"-"`
}

// EscalationToken is the literal reply a generative model returns to request
// a hand-off.
const EscalationToken = "ESCALATE"

// Default returns the retail support assistant.
func Default() Profile {
	return Profile{
		Name:  "RetailBot",
		Title: "RetailBot Support",
		Greeting: "Hello 👋 I'm your AI customer support assistant. How can I help you today?\n\n" +
			"I can assist you with:",
		Topics: []string{
			"Order tracking",
			"Returns & refunds",
			"Payment issues",
			"Delivery information",
			"Store timings",
			"Product availability",
		},
		Instruction: `You are a helpful and friendly AI customer support assistant for a retail business called RetailBot. Your role is to assist customers with their queries in a professional, empathetic, and efficient manner.

Key guidelines:
- Be concise but thorough in your responses
- Use a friendly, professional tone
- If a customer asks to speak with a human agent, respond with "ESCALATE" (exactly this word)
- Focus on retail-related topics: orders, returns, refunds, payments, delivery, store information, product availability
- If you don't know something, admit it and offer to connect them with a human agent
- Use emojis sparingly and appropriately
- Format responses with clear sections using markdown when helpful

Always be helpful and aim to resolve customer issues quickly.`,
	}
}

// OpeningMessage renders the greeting seeded into every new session.
func (p Profile) OpeningMessage() string {
	if len(p.Topics) == 0 {
		return p.Greeting
	}

	var builder strings.Builder
	builder.WriteString(p.Greeting)
	for _, topic := range p.Topics {
		builder.WriteString("\n• ")
		builder.WriteString(topic)
	}
	return builder.String()
}

package intent

// Renderer expands a classifier match into reply text. Templates are static
// configuration keyed by category and variant.
type Renderer struct {
	templates map[Category]map[Variant]string
}

// NewRenderer returns a renderer over the built-in templates.
func NewRenderer() *Renderer {
	return &Renderer{templates: defaultTemplates}
}

// Render returns the template for the match, falling back to the category's
// standard variant and then to the Default reply.
func (r *Renderer) Render(m Match) string {
	if variants, ok := r.templates[m.Category]; ok {
		if text, ok := variants[m.Variant]; ok {
			return text
		}
		if text, ok := variants[VariantStandard]; ok {
			return text
		}
	}
	return r.templates[Default][VariantStandard]
}

// Transfer and hand-off messages emitted during escalation.
const (
	TransferMessage = "I understand you'd like to speak with a human agent. Let me transfer your request... 🔄"
	HandoffMessage  = "**Connecting you to a support agent...**\n\n" +
		"⏱️ Estimated wait time: 2-3 minutes\n\n" +
		"A human support representative will be with you shortly. Your conversation history has been shared with them for context.\n\n" +
		"*Thank you for your patience!*"
	ApologyMessage = "I'm sorry, I couldn't get an answer for you just now. 😔\n\n" +
		"Please try sending your message again in a moment.\n\n" +
		"Or type **'agent'** to connect with a human representative."
)

var defaultTemplates = map[Category]map[Variant]string{
	Escalate: {VariantStandard: TransferMessage},
	Greeting: {VariantStandard: "Hello! 👋 Welcome to our customer support!\n\n" +
		"I'm here to help you with:\n" +
		"• Order tracking and status\n" +
		"• Returns and refunds\n" +
		"• Payment questions\n" +
		"• Delivery information\n" +
		"• Store hours and locations\n" +
		"• Product availability\n\n" +
		"What can I assist you with today?"},
	OrderTracking: {
		VariantAskOrderID: "I'd be happy to help you track your order! 📦\n\n" +
			"Please provide your order ID (you can find it in your confirmation email), and I'll look it up for you.",
		VariantOrderFound: "Great! I found your order. 📦\n\n" +
			"**Order Status:** In Transit\n" +
			"**Expected Delivery:** Within 2-3 business days\n" +
			"**Current Location:** Local Distribution Center\n\n" +
			"You'll receive an email notification when your package is out for delivery. Is there anything else I can help you with?",
	},
	Returns: {VariantStandard: "I can help you with returns and refunds! 🔄\n\n" +
		"**Our Return Policy:**\n" +
		"• 30-day return window from delivery date\n" +
		"• Items must be unused and in original packaging\n" +
		"• Free returns for store credit\n" +
		"• Original payment refund within 5-7 business days\n\n" +
		"**To initiate a return:**\n" +
		"1. Go to your order history\n" +
		"2. Select the item to return\n" +
		"3. Print the prepaid shipping label\n\n" +
		"Would you like me to guide you through the process?"},
	Payment: {VariantStandard: "I understand you're having payment issues. Let me help! 💳\n\n" +
		"**Common solutions:**\n" +
		"• Ensure your card details are entered correctly\n" +
		"• Check if your card has sufficient funds\n" +
		"• Try a different payment method\n" +
		"• Clear your browser cache and try again\n\n" +
		"**If you were charged but order failed:**\n" +
		"Don't worry! Failed transactions are automatically refunded within 3-5 business days.\n\n" +
		"Is the issue still unresolved?"},
	Delivery: {VariantStandard: "Here's information about our delivery options! 🚚\n\n" +
		"**Delivery Methods:**\n" +
		"• Standard (5-7 days): Free on orders over $50\n" +
		"• Express (2-3 days): $9.99\n" +
		"• Next Day: $19.99\n\n" +
		"**Delayed Order?**\n" +
		"Delivery delays can occur due to weather or high demand. If your order is significantly delayed, please provide your order ID and I'll investigate.\n\n" +
		"How can I help further?"},
	StoreInfo: {VariantStandard: "Here are our store hours! 🏪\n\n" +
		"**Regular Hours:**\n" +
		"• Monday - Friday: 9:00 AM - 9:00 PM\n" +
		"• Saturday: 10:00 AM - 8:00 PM\n" +
		"• Sunday: 11:00 AM - 6:00 PM\n\n" +
		"**Holiday Hours:**\n" +
		"Store hours may vary during holidays. Check our website for specific dates.\n\n" +
		"Would you like help finding a store near you?"},
	ProductAvailability: {VariantStandard: "I can help you check product availability! 📦\n\n" +
		"Please provide:\n" +
		"• Product name or SKU\n" +
		"• Your preferred store location or ZIP code\n\n" +
		"I'll check our inventory and let you know if it's in stock nearby or available for shipping."},
	Account: {VariantStandard: "I can help with account issues! 🔐\n\n" +
		"**Can't log in?**\n" +
		"• Use 'Forgot Password' to reset\n" +
		"• Check your email for verification\n" +
		"• Ensure caps lock is off\n\n" +
		"**Account locked?**\n" +
		"After 5 failed attempts, accounts lock for 30 minutes for security.\n\n" +
		"**Need to update info?**\n" +
		"Go to Account Settings after logging in.\n\n" +
		"What specific issue are you facing?"},
	Pricing: {VariantStandard: "Happy to help with pricing! 🏷️\n\n" +
		"**Where to find the best price:**\n" +
		"• Prices shown online match in-store prices\n" +
		"• Promo codes can be applied at checkout\n" +
		"• Members get early access to seasonal sales\n\n" +
		"*Only one promo code can be used per order.*\n\n" +
		"Is there a specific item you'd like a price for?"},
	Warranty: {VariantStandard: "Sorry to hear something isn't working right. 🛠️\n\n" +
		"**Warranty Coverage:**\n" +
		"• 1-year manufacturer warranty on most electronics\n" +
		"• Defective items can be exchanged within 30 days\n" +
		"• Extended protection plans are honored for their full term\n\n" +
		"Please share your order ID and a short description of the problem, and I'll start a claim."},
	Sizing: {VariantStandard: "Let's find the right fit! 📏\n\n" +
		"**Sizing Tips:**\n" +
		"• Check the size chart on each product page\n" +
		"• Measure a similar item you already own\n" +
		"• Between sizes? We recommend sizing up\n\n" +
		"Exchanges for a different size are always free."},
	Thanks: {VariantStandard: "You're welcome! 😊\n\n" +
		"I'm glad I could help. Is there anything else you'd like assistance with today?\n\n" +
		"If you need further support, just type 'agent' to connect with a human representative."},
	Goodbye: {VariantStandard: "Thanks for chatting with us! 👋\n\n" +
		"*Have a wonderful day!*"},
	Complaint: {VariantStandard: "I'm really sorry about your experience. 😞\n\n" +
		"Your feedback matters and I want to make this right.\n\n" +
		"**What I can do:**\n" +
		"• Look into your order if you share the order ID\n" +
		"• Start a return or refund\n" +
		"• Connect you with a human agent (just type 'agent')"},
	Compliment: {VariantStandard: "Thank you so much for the kind words! 💙\n\n" +
		"Is there anything else I can help you with today?"},
	Default: {VariantStandard: "I'm not quite sure I understand your question. 🤔\n\n" +
		"Here are some things I can help with:\n" +
		"• **Order tracking** - Check your order status\n" +
		"• **Returns** - Start a return or exchange\n" +
		"• **Payment** - Resolve payment issues\n" +
		"• **Delivery** - Shipping information\n" +
		"• **Store info** - Hours and locations\n\n" +
		"Or type **'agent'** to speak with a human representative."},
}

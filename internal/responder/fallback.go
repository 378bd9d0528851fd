package responder

import (
	"fmt"
	"strings"

	"github.com/echoline-ai/echoline/internal/knowledge"
)

// Canned responses used when every model attempt fails or no models
// are configured. Category selection is keyword based so the reply at
// least acknowledges the topic.
const (
	fallbackPricing = "I'd be happy to help you with pricing information. Our team can provide detailed pricing based on your specific needs. Would you like me to have someone contact you with more details?"
	fallbackSupport = "I understand you need assistance. Our support team is here to help you resolve any issues. Can you tell me more about what you're experiencing?"
	fallbackProduct = "Thank you for your interest in our products and services. We offer a range of solutions designed to meet your needs. What specific information are you looking for?"
	fallbackGreet   = "Hello! Thank you for calling. How can I assist you today?"
	fallbackDefault = "Thank you for your question. I want to make sure you get accurate information, so let me connect you with someone who can help you better. Is there anything else I can assist you with?"
)

// cannedResponse picks a deterministic reply for the message. When
// retrieval found something, the first result is quoted so the answer
// stays grounded even without a model.
func cannedResponse(message string, results []knowledge.Result) string {
	if len(results) > 0 {
		return fmt.Sprintf("Based on the information I have: %s", results[0].Content)
	}

	lower := strings.ToLower(message)
	switch {
	case containsAny(lower, "pricing", "price", "cost"):
		return fallbackPricing
	case containsAny(lower, "support", "help", "problem"):
		return fallbackSupport
	case containsAny(lower, "product", "feature", "service"):
		return fallbackProduct
	case containsAny(lower, "hello", "hi", "good"):
		return fallbackGreet
	default:
		return fallbackDefault
	}
}

func containsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

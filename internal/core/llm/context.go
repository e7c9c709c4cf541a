package llm

// BusinessContext is the structured data grounding a tenant's replies. It is
// edited by the admin surface and may be partially filled at any time, so every
// consumer must tolerate absent fields.
type BusinessContext struct {
	BusinessName           string          `json:"business_name"`
	Description            string          `json:"description,omitempty"`
	Tone                   string          `json:"tone,omitempty"`
	Language               string          `json:"language,omitempty"`
	Locale                 string          `json:"locale,omitempty"`
	OperatingHours         *OperatingHours `json:"operating_hours,omitempty"`
	Products               []Product       `json:"products,omitempty"`
	FAQ                    []FAQ           `json:"faq,omitempty"`
	PaymentMethods         []string        `json:"payment_methods,omitempty"`
	AdditionalInstructions string          `json:"additional_instructions,omitempty"`
	Greeting               string          `json:"greeting,omitempty"`
}

type OperatingHours struct {
	Days     string `json:"days,omitempty"`
	Hours    string `json:"hours,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

type Product struct {
	Name        string   `json:"name"`
	Price       *float64 `json:"price,omitempty"`
	Description string   `json:"description,omitempty"`
	InStock     *bool    `json:"stock,omitempty"`
}

type FAQ struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Message is one prior conversation turn passed to the reply generator.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

package llm

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

const (
	defaultTone     = "ramah dan profesional"
	defaultLanguage = "Bahasa Indonesia"
)

// BuildSystemPrompt renders a tenant's business context into the grounding
// prompt for the reply generator. Pure function: same context in, byte-identical
// prompt out. Conversation history is never consulted here.
func BuildSystemPrompt(ctx *BusinessContext) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Kamu adalah asisten WhatsApp untuk %q.\n", ctx.BusinessName))
	if ctx.Description != "" {
		sb.WriteString(ctx.Description + "\n")
	}

	tone := ctx.Tone
	if tone == "" {
		tone = defaultTone
	}
	lang := ctx.Language
	if lang == "" {
		lang = defaultLanguage
	}
	sb.WriteString(fmt.Sprintf("\nNADA BICARA: %s\nBAHASA: %s\n", tone, lang))

	if h := ctx.OperatingHours; h != nil && (h.Days != "" || h.Hours != "") {
		tz := h.Timezone
		if tz == "" {
			tz = "WIB"
		}
		sb.WriteString(fmt.Sprintf("\nJAM OPERASIONAL: %s, %s %s\n", orDash(h.Days), orDash(h.Hours), tz))
	}

	sb.WriteString("\nPRODUK:\n")
	if len(ctx.Products) == 0 {
		sb.WriteString("Tidak ada daftar produk.\n")
	} else {
		for _, p := range ctx.Products {
			sb.WriteString(fmt.Sprintf("- %s: %s", p.Name, formatPrice(p.Price, ctx.Locale)))
			if p.Description != "" {
				sb.WriteString(" — " + p.Description)
			}
			if p.InStock != nil && !*p.InStock {
				sb.WriteString(" (HABIS)")
			}
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\nMETODE PEMBAYARAN: ")
	if len(ctx.PaymentMethods) == 0 {
		sb.WriteString("-\n")
	} else {
		sb.WriteString(strings.Join(ctx.PaymentMethods, ", ") + "\n")
	}

	if len(ctx.FAQ) > 0 {
		sb.WriteString("\nFAQ:\n")
		for _, f := range ctx.FAQ {
			sb.WriteString(fmt.Sprintf("Q: %s\nA: %s\n\n", f.Question, f.Answer))
		}
	}

	if ctx.AdditionalInstructions != "" {
		sb.WriteString("\nINSTRUKSI TAMBAHAN:\n" + ctx.AdditionalInstructions + "\n")
	}

	sb.WriteString("\nATURAN:\n")
	sb.WriteString(fmt.Sprintf("- Jawab dalam %s\n", lang))
	sb.WriteString("- Jawab singkat dan jelas, cocok untuk WhatsApp (maks 3-4 paragraf pendek)\n")
	sb.WriteString("- Gunakan emoji secukupnya\n")
	sb.WriteString("- Jika tidak tahu jawabannya, arahkan ke admin\n")
	sb.WriteString("- Jangan mengarang informasi produk yang tidak ada di daftar\n")
	sb.WriteString("- Sapa dengan ramah di awal percakapan\n")

	return sb.String()
}

// formatPrice renders a price with the context's locale grouping, e.g. 15000
// under id-ID becomes "Rp15.000". A missing price renders as "Rp?".
func formatPrice(price *float64, locale string) string {
	if price == nil {
		return "Rp?"
	}
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.Indonesian
	}
	p := message.NewPrinter(tag)
	return "Rp" + p.Sprint(number.Decimal(*price, number.MaxFractionDigits(0)))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

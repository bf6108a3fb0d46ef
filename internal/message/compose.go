// Package message renders the WhatsApp notification text for a lead.
package message

import (
	"fmt"
	"strings"
	"time"

	"github.com/gpropadm/dcruzimoveis/internal/lead"
	"github.com/gpropadm/dcruzimoveis/internal/store"
)

// maxBodyRunes bounds the quoted client message so one rambling inquiry
// doesn't blow past WhatsApp's rendering sweet spot.
const maxBodyRunes = 200

// Compose builds the broker-facing notification for a lead.
//
// Absent optional fields are omitted entirely (no "N/A" placeholders reach
// the recipient). It never fails: malformed prices render as raw text.
func Compose(l lead.Lead, settings store.Settings, tier lead.Tier, now time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s *PRIORIDADE: %s*\n\n", tier.Emoji(), tier)

	b.WriteString("🏠 *NOVO INTERESSE EM IMÓVEL*\n\n")
	b.WriteString("📋 *Dados do Cliente:*\n")
	if l.Name != "" {
		fmt.Fprintf(&b, "👤 *Nome:* %s\n", l.Name)
	}
	if l.Phone != "" {
		fmt.Fprintf(&b, "📞 *Telefone:* %s\n", l.Phone)
	}
	if l.Email != "" {
		fmt.Fprintf(&b, "📧 *Email:* %s\n", l.Email)
	}

	if l.PropertyTitle != "" || l.PropertyType != "" || l.PropertyPrice != "" {
		b.WriteString("\n🏘️ *Imóvel de Interesse:*\n")
		if l.PropertyTitle != "" {
			fmt.Fprintf(&b, "🏠 *Título:* %s\n", l.PropertyTitle)
		}
		if l.PropertyType != "" {
			fmt.Fprintf(&b, "🏷️ *Tipo:* %s\n", titleCase(l.PropertyType))
		}
		if price := formatPrice(l); price != "" {
			fmt.Fprintf(&b, "💰 *Valor:* %s\n", price)
		}
		if url := propertyURL(l, settings); url != "" {
			fmt.Fprintf(&b, "🔗 *Link:* %s\n", url)
		}
	}

	if l.HasMessage() {
		fmt.Fprintf(&b, "\n💬 *Mensagem do Cliente:*\n%q\n", truncate(l.Message, maxBodyRunes))
	}

	fmt.Fprintf(&b, "\n⏰ *Recebido em:* %s\n", now.Format("02/01/2006 às 15:04"))
	if settings.SiteName != "" {
		fmt.Fprintf(&b, "🔗 %s\n", settings.SiteName)
	}
	b.WriteString("\n_🤖 Notificação automática do sistema_")

	return b.String()
}

// formatPrice renders the property price in Brazilian currency format
// ("R$ 600.000,00"). Unparsable values degrade to the raw string.
func formatPrice(l lead.Lead) string {
	raw := strings.TrimSpace(l.PropertyPrice)
	if raw == "" {
		return ""
	}
	v, ok := l.PriceValue()
	if !ok {
		return "R$ " + raw
	}
	return "R$ " + formatBRL(v)
}

func formatBRL(v float64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	whole := int64(v)
	cents := int64((v-float64(whole))*100 + 0.5)
	if cents >= 100 {
		whole++
		cents -= 100
	}

	digits := fmt.Sprintf("%d", whole)
	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(d)
	}
	out := fmt.Sprintf("%s,%02d", b.String(), cents)
	if neg {
		return "-" + out
	}
	return out
}

func propertyURL(l lead.Lead, settings store.Settings) string {
	if l.PropertySlug == "" || settings.SiteURL == "" {
		return ""
	}
	return strings.TrimRight(settings.SiteURL, "/") + "/imovel/" + l.PropertySlug
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		r := []rune(w)
		r[0] = []rune(strings.ToUpper(string(r[0])))[0]
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

func truncate(s string, maxRunes int) string {
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes]) + "..."
}

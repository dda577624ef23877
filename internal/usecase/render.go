package usecase

import (
	"fmt"
	"strconv"
	"strings"

	"orderbridge/internal/domain"
)

const (
	listHeader  = "Pedidos del establecimiento:"
	listFooter  = "Reacciona con ✅ en el mensaje del pedido para marcarlo como hecho."
	noOrders    = "No hay pedidos del establecimiento."
	forgetReply = "Tus datos han sido borrados."
)

func renderOrder(o domain.Order) string {
	delivery := "🏠"
	deliveryText := "A domicilio"
	if o.IsPickup {
		delivery = "🏃‍♂️"
		deliveryText = "Recoger en local"
	} else if addr := strings.TrimSpace(o.Address); addr != "" {
		deliveryText += " · " + addr
	}

	header := strings.Join([]string{
		fmt.Sprintf("*⏳ Pedido #%s*", o.ID),
		fmt.Sprintf("👤 *Cliente:* %s", orDefault(o.Customer, "Cliente")),
		fmt.Sprintf("💶 *Total:* %s", formatEUR(o.Total)),
		fmt.Sprintf("%s *Entrega:* %s", delivery, deliveryText),
	}, "\n")

	if len(o.Lines) == 0 {
		return header + "\n\n— (sin productos)"
	}

	lines := make([]string, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, renderLine(l))
	}
	return strings.Join([]string{
		header,
		"",
		"*Detalles:*",
		strings.Join(lines, "\n"),
		"",
	}, "\n")
}

func renderLine(l domain.OrderLine) string {
	qty := ""
	if l.Quantity > 0 {
		qty = fmt.Sprintf(" x%d", l.Quantity)
	}

	switch {
	case l.Product != "":
		return fmt.Sprintf("• %s%s", strings.TrimSpace(l.Product), qty)
	case l.Menu != "":
		head := fmt.Sprintf("• 🍽️ *MENÚ %s*%s", strings.TrimSpace(l.Menu), qty)
		selected := uniqueNonEmpty(l.Selected)
		if len(selected) == 0 {
			return head + "\n   ↳ 0 seleccionados"
		}
		items := make([]string, 0, len(selected))
		for _, name := range selected {
			items = append(items, "      - "+name)
		}
		return head + "\n" + strings.Join(items, "\n")
	default:
		return "• (detalle sin datos)"
	}
}

// formatEUR renders an amount the way es-ES locales do, e.g. "12,50 €" or
// "12.345,00 €". Four-digit amounts are not grouped in es-ES.
func formatEUR(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	intPart, frac, _ := strings.Cut(s, ".")
	if len(intPart) > 4 {
		intPart = groupThousands(intPart)
	}
	return sign + intPart + "," + frac + " €"
}

func groupThousands(digits string) string {
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

func orDefault(s, fallback string) string {
	if s = strings.TrimSpace(s); s != "" {
		return s
	}
	return fallback
}

func uniqueNonEmpty(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

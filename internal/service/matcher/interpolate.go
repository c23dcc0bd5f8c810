package matcher

import (
	"regexp"

	"github.com/kapu/cirak-widget-go/internal/domain"
)

var placeholderPattern = regexp.MustCompile(`\{(service|price|contact)\.([^.{}\s]+)(?:\.([^.{}\s]+))?\}`)

// Interpolate replaces {service.KEY}, {price.KEY.min}, {price.KEY.max} and {contact.KEY}
// with site data. Placeholders that cannot be resolved are left as written.
func Interpolate(template string, site domain.SiteData) string {
	if template == "" {
		return ""
	}
	return placeholderPattern.ReplaceAllStringFunc(template, func(token string) string {
		parts := placeholderPattern.FindStringSubmatch(token)
		category, key, field := parts[1], parts[2], parts[3]

		switch category {
		case "service":
			if field == "" {
				if v, ok := site.Services[key]; ok {
					return v
				}
			}
		case "contact":
			if field == "" {
				if v, ok := site.Contact[key]; ok {
					return v
				}
			}
		case "price":
			price, ok := site.Prices[key]
			if !ok {
				return token
			}
			switch field {
			case "min":
				return price.Min
			case "max":
				return price.Max
			}
		}
		return token
	})
}

package matcher

import (
	"testing"

	"github.com/kapu/cirak-widget-go/internal/domain"
)

func TestInterpolate(t *testing.T) {
	site := domain.SiteData{
		Services: map[string]string{"seo": "SEO danışmanlığı"},
		Prices:   map[string]domain.PriceRange{"pro": {Min: "12000", Max: "20000"}},
		Contact:  map[string]string{"email": "info@example.com"},
	}

	tests := []struct {
		in   string
		want string
	}{
		{"{service.seo} sunuyoruz", "SEO danışmanlığı sunuyoruz"},
		{"{price.pro.min} - {price.pro.max} TL", "12000 - 20000 TL"},
		{"Yazın: {contact.email}", "Yazın: info@example.com"},
		{"{service.unknown} kalır", "{service.unknown} kalır"},
		{"{price.pro} kalır", "{price.pro} kalır"},
		{"{price.pro.avg} kalır", "{price.pro.avg} kalır"},
		{"{other.key} kalır", "{other.key} kalır"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := Interpolate(tt.in, site); got != tt.want {
			t.Errorf("Interpolate(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/kapu/cirak-widget-go/internal/constants"
)

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestFileSourceMergesInNameOrder(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "10-pricing.yaml", `
intents:
  - id: pricing
    name: Fiyatlar
    keywords:
      - fiyat
      - text: ne kadar
        weight: 8
        synonyms: [ücret]
    response:
      main: "Paketler {price.basic.min} TL'den başlar."
      tone: friendly
    data:
      packages:
        - name: Basic
          price: 5000
`)
	writeFile(t, dir, "20-contact.yml", `
intents:
  - id: contact
    name: İletişim
    priority: 2
    active: false
    keywords: [iletişim]
    response:
      main: "Bize ulaşın."
`)
	writeFile(t, dir, "site.yaml", `
fallbacks:
  - id: fb1
    message: Anlayamadım.
siteData:
  prices:
    basic: {min: "5.000", max: "10.000"}
  contact:
    email: info@example.com
settings:
  assistantName: Çırak
  welcomeMessage: Merhaba!
  menuOptions: [Fiyatlar]
`)
	writeFile(t, dir, "notes.txt", "ignored")

	content, err := NewFileSource(dir, zap.NewNop()).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(content.Intents) != 2 || content.Intents[0].ID != "pricing" {
		t.Fatalf("intents = %+v", content.Intents)
	}
	pricing := content.Intents[0]
	if pricing.Priority != constants.MatchScoring.DefaultPriority || !pricing.Active {
		t.Errorf("defaults not applied: priority %d active %v", pricing.Priority, pricing.Active)
	}
	if len(pricing.Keywords) != 2 || pricing.Keywords[0].Text != "fiyat" || pricing.Keywords[1].Weight != 8 {
		t.Errorf("keywords = %+v", pricing.Keywords)
	}
	if pkgs := pricing.ContextData().Packages; len(pkgs) != 1 || pkgs[0].Price != "5000" {
		t.Errorf("packages = %+v", pkgs)
	}

	contact := content.Intents[1]
	if contact.Priority != 2 || contact.Active {
		t.Errorf("contact = priority %d active %v", contact.Priority, contact.Active)
	}

	if len(content.Fallbacks) != 1 || !content.Fallbacks[0].Active {
		t.Errorf("fallbacks = %+v", content.Fallbacks)
	}
	if content.SiteData.Prices["basic"].Max != "10.000" {
		t.Errorf("prices = %+v", content.SiteData.Prices)
	}
	if content.Settings.AssistantName != "Çırak" || content.Settings.Menu.Message != "Merhaba!" || !content.Settings.WidgetEnabled {
		t.Errorf("settings = %+v", content.Settings)
	}
}

func TestFileSourceReportsParseErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.yaml", "intents: [ {id: x")

	if _, err := NewFileSource(dir, nil).Load(context.Background()); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestFileSourceMissingDir(t *testing.T) {
	if _, err := NewFileSource(filepath.Join(t.TempDir(), "nope"), nil).Load(context.Background()); err == nil {
		t.Fatalf("expected error for missing directory")
	}
}

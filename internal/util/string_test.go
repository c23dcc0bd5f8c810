package util

import (
	"sync"
	"testing"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"pinned example", "FİYAT, ne kadar?!", "fiyat ne kadar"},
		{"turkish letters", "Çağrı ŞÜKRÜ Öğün", "cagri sukru ogun"},
		{"dotless capital", "IŞIK", "isik"},
		{"whitespace collapse", "  web   sitesi \t yapımı\n", "web sitesi yapimi"},
		{"hyphen dropped", "e-ticaret", "eticaret"},
		{"only punctuation", "?!...", ""},
		{"digits kept", "3 sayfa, 5.000 TL", "3 sayfa 5000 tl"},
		{"symbols dropped", "fiyat ₺ (kdv dahil)", "fiyat kdv dahil"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Normalize(tc.in); got != tc.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"FİYAT, ne kadar?!",
		"İletişim bilgileriniz nedir?",
		"  ÇIRAK   yardım  ",
		"Kurumsal Web Sitesi (5 sayfa) - 12.500 TL",
		"ǅemal İĞNE",
	}

	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Fatalf("Normalize not idempotent for %q: %q != %q", in, twice, once)
		}
	}
}

func TestUniqueStrings(t *testing.T) {
	got := UniqueStrings([]string{"a", "", "b", "a", "c", "b"})
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("UniqueStrings length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("UniqueStrings[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestNormalizeConcurrent(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if got := Normalize("İLETİŞİM Numarası?"); got != "iletisim numarasi" {
					t.Errorf("Normalize = %q", got)
					return
				}
			}
		}()
	}
	wg.Wait()
}

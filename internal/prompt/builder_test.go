package prompt

import (
	"sync"
	"testing"
)

func TestRenderUnknownTemplate(t *testing.T) {
	if _, err := NewPromptBuilder().Render("missing.tmpl", nil); err == nil {
		t.Fatalf("expected error for unknown template")
	}
}

func TestGetTemplateIsCachedAcrossGoroutines(t *testing.T) {
	pb := NewPromptBuilder()

	const workers = 8
	got := make([]any, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tmpl, err := pb.getTemplate(TemplateGuardedSystem)
			if err != nil {
				t.Errorf("getTemplate: %v", err)
				return
			}
			got[i] = tmpl
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		if got[i] != got[0] {
			t.Fatalf("worker %d got a different template instance", i)
		}
	}
	if len(pb.templates) != 1 {
		t.Fatalf("cached %d templates, want 1", len(pb.templates))
	}
}

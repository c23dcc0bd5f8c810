package snapshot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/kapu/cirak-widget-go/internal/domain"
	apperrors "github.com/kapu/cirak-widget-go/pkg/errors"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSource struct {
	mu      sync.Mutex
	content *domain.Content
	err     error
	loads   int
}

func (f *fakeSource) Load(context.Context) (*domain.Content, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loads++
	if f.err != nil {
		return nil, f.err
	}
	// each call returns a fresh copy
	copied := *f.content
	copied.Intents = append([]domain.Intent(nil), f.content.Intents...)
	return &copied, nil
}

func (f *fakeSource) set(content *domain.Content, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.content = content
	f.err = err
}

func content(main string) *domain.Content {
	return &domain.Content{
		Intents: []domain.Intent{
			{
				ID: "pricing", Name: "Fiyatlar", Priority: 5, Active: true,
				Keywords: []domain.Keyword{{Text: "Fiyat", Synonyms: []string{"Ücret", "?!"}}},
				Response: domain.ResponseTemplate{Main: main},
			},
		},
		Fallbacks: []domain.Fallback{{Message: "Anlayamadım.", Active: true}},
	}
}

func newManager(src Source) *Manager {
	return NewManager(NewBuilder(src, zap.NewNop()), ManagerConfig{RefreshInterval: time.Hour}, zap.NewNop())
}

func TestBuilderAppliesDefaults(t *testing.T) {
	snap, err := NewBuilder(&fakeSource{content: content("Fiyatlar burada.")}, nil).Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	kw := snap.Intents[0].Keywords[0]
	if kw.Normalized != "fiyat" || kw.Weight != 10 {
		t.Errorf("keyword = %+v", kw)
	}
	if diff := cmp.Diff([]string{"ucret"}, kw.NormalizedSynonyms); diff != "" {
		t.Errorf("synonyms (-want +got):\n%s", diff)
	}
	if kw.NormalizedMisspellings == nil {
		t.Errorf("misspellings should be precomputed as empty, not nil")
	}
	if snap.Intents[0].Response.Tone != domain.ToneFriendly {
		t.Errorf("tone = %q", snap.Intents[0].Response.Tone)
	}
	if snap.Fallbacks[0].ID != "fallback-1" {
		t.Errorf("fallback id = %q", snap.Fallbacks[0].ID)
	}
	if snap.Settings.Menu.Message == "" || len(snap.Settings.Menu.Options) == 0 {
		t.Errorf("default menu not applied: %+v", snap.Settings.Menu)
	}
	if snap.ID == "" || snap.Sequence != 1 || len(snap.Fingerprint) != 64 {
		t.Errorf("metadata = %+v", snap.Metadata())
	}
}

func TestBuilderReportsAllProblems(t *testing.T) {
	bad := &domain.Content{
		Intents: []domain.Intent{
			{ID: "", Response: domain.ResponseTemplate{Main: "x"}},
			{ID: "a", Response: domain.ResponseTemplate{Main: ""}},
			{ID: "a", Response: domain.ResponseTemplate{Main: "y"}},
		},
		Fallbacks: []domain.Fallback{{ID: "f", Message: "  "}},
	}
	_, err := NewBuilder(&fakeSource{content: bad}, nil).Build(context.Background())

	var snapErr *apperrors.SnapshotError
	if !errors.As(err, &snapErr) {
		t.Fatalf("err = %v, want SnapshotError", err)
	}
	if len(snapErr.Problems) != 4 {
		t.Fatalf("problems = %v", snapErr.Problems)
	}
}

func TestBuilderRederivesDriftedNormalization(t *testing.T) {
	c := content("ok")
	c.Intents[0].Keywords[0].Normalized = "FIYAT"
	snap, err := NewBuilder(&fakeSource{content: c}, nil).Build(context.Background())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if got := snap.Intents[0].Keywords[0].Normalized; got != "fiyat" {
		t.Fatalf("normalized = %q", got)
	}
}

func TestInitFailsWithoutSnapshot(t *testing.T) {
	m := newManager(&fakeSource{err: errors.New("db down")})
	if err := m.Init(context.Background()); err == nil {
		t.Fatalf("expected Init to fail")
	}
	if m.Current() != nil {
		t.Fatalf("no snapshot expected")
	}
}

func TestReloadSwapsOnlyOnChange(t *testing.T) {
	src := &fakeSource{content: content("v1")}
	m := newManager(src)

	var swaps []string
	m.OnSwap(func(current, previous *domain.Snapshot) {
		swaps = append(swaps, current.Intents[0].Response.Main)
	})

	if err := m.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	first := m.Current()

	swapped, err := m.Reload(context.Background())
	if err != nil || swapped {
		t.Fatalf("unchanged reload: swapped=%v err=%v", swapped, err)
	}
	if m.Current() != first {
		t.Fatalf("snapshot replaced although content is unchanged")
	}

	src.set(content("v2"), nil)
	swapped, err = m.Reload(context.Background())
	if err != nil || !swapped {
		t.Fatalf("changed reload: swapped=%v err=%v", swapped, err)
	}
	if m.Previous() != first {
		t.Errorf("previous should be the first snapshot")
	}
	if diff := cmp.Diff([]string{"v1", "v2"}, swaps); diff != "" {
		t.Errorf("hooks (-want +got):\n%s", diff)
	}
}

func TestBuildFailureKeepsLastGood(t *testing.T) {
	src := &fakeSource{content: content("v1")}
	m := newManager(src)
	if err := m.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	good := m.Current()
	var hookErrs []error
	m.OnBuildError(func(err error) { hookErrs = append(hookErrs, err) })

	src.set(nil, errors.New("boom"))
	if _, err := m.Reload(context.Background()); err == nil {
		t.Fatalf("expected reload error")
	}
	if len(hookErrs) != 1 {
		t.Fatalf("error hook calls = %d, want 1", len(hookErrs))
	}
	if m.Current() != good {
		t.Fatalf("last good snapshot was replaced")
	}
	if m.LastError() == nil {
		t.Fatalf("LastError should be set")
	}
}

func TestRollbackPinsAgainstRefresh(t *testing.T) {
	src := &fakeSource{content: content("v1")}
	m := newManager(src)
	ctx := context.Background()
	if err := m.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	src.set(content("v2"), nil)
	if _, err := m.Reload(ctx); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	rolled, err := m.Rollback()
	if err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if rolled.Intents[0].Response.Main != "v1" || m.Current() != rolled {
		t.Fatalf("rollback did not reinstall v1")
	}

	// a periodic refresh does not reinstall the rolled-back version
	if swapped, _ := m.refresh(ctx); swapped {
		t.Fatalf("refresh reinstalled the rolled-back content")
	}
	if swapped, _ := m.Reload(ctx); !swapped {
		t.Fatalf("explicit reload should install v2 again")
	}
}

func TestRollbackWithoutPrevious(t *testing.T) {
	m := newManager(&fakeSource{content: content("v1")})
	if err := m.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	var notFound *apperrors.NotFoundError
	if _, err := m.Rollback(); !errors.As(err, &notFound) {
		t.Fatalf("err = %v, want NotFoundError", err)
	}
}

func TestRunRebuildsOnInvalidate(t *testing.T) {
	src := &fakeSource{content: content("v1")}
	m := newManager(src)
	if err := m.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	src.set(content("v2"), nil)
	m.Invalidate()

	deadline := time.After(2 * time.Second)
	for m.Current().Intents[0].Response.Main != "v2" {
		select {
		case <-deadline:
			t.Fatalf("snapshot not rebuilt after Invalidate")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	<-done
}

func TestDiff(t *testing.T) {
	b := NewBuilder(&fakeSource{}, nil)
	prev, err := b.FromContent(&domain.Content{Intents: []domain.Intent{
		{ID: "a", Priority: 5, Keywords: []domain.Keyword{{Text: "fiyat"}, {Text: "ücret"}}, Response: domain.ResponseTemplate{Main: "A"}},
		{ID: "b", Priority: 5, Response: domain.ResponseTemplate{Main: "B"}},
		{ID: "c", Priority: 5, Response: domain.ResponseTemplate{Main: "C"}},
	}})
	if err != nil {
		t.Fatalf("prev: %v", err)
	}
	curr, err := b.FromContent(&domain.Content{Intents: []domain.Intent{
		{ID: "a", Priority: 7, Keywords: []domain.Keyword{{Text: "fiyat"}, {Text: "paket"}}, Response: domain.ResponseTemplate{Main: "A"}},
		{ID: "c", Priority: 5, Response: domain.ResponseTemplate{Main: "C2"}},
		{ID: "d", Priority: 5, Response: domain.ResponseTemplate{Main: "D"}},
	}})
	if err != nil {
		t.Fatalf("curr: %v", err)
	}

	diff := Diff(curr, prev)
	want := []domain.IntentChange{
		{IntentID: "a", Name: "a", PriorityChanged: true, OldPriority: 5, NewPriority: 7,
			KeywordsAdded: []string{"paket"}, KeywordsRemoved: []string{"ucret"}},
		{IntentID: "c", Name: "c", ResponseChanged: true, OldPriority: 5, NewPriority: 5},
	}
	if d := cmp.Diff(want, diff.Modified); d != "" {
		t.Errorf("modified (-want +got):\n%s", d)
	}
	if d := cmp.Diff([]string{"d"}, diff.Added); d != "" {
		t.Errorf("added (-want +got):\n%s", d)
	}
	if d := cmp.Diff([]string{"b"}, diff.Removed); d != "" {
		t.Errorf("removed (-want +got):\n%s", d)
	}
	if Diff(curr, curr).Empty() != true {
		t.Errorf("self diff should be empty")
	}
}

func TestWatcherDebouncesChanges(t *testing.T) {
	dir := t.TempDir()
	calls := make(chan struct{}, 10)
	w := NewWatcher(dir, func() { calls <- struct{}{} }, nil)
	w.debounce = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// give Add time to finish
	time.Sleep(100 * time.Millisecond)
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(filepath.Join(dir, "intents.yaml"), []byte("intents: []\n"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatalf("onChange not called")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

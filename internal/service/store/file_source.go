package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/kapu/cirak-widget-go/internal/constants"
	"github.com/kapu/cirak-widget-go/internal/domain"
	apperrors "github.com/kapu/cirak-widget-go/pkg/errors"
)

// FileSource reads intent content from a directory of YAML documents. Each file may hold
// any of the top-level sections; files are merged in name order.
type FileSource struct {
	dir    string
	logger *zap.Logger
}

func NewFileSource(dir string, logger *zap.Logger) *FileSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileSource{dir: dir, logger: logger}
}

func (f *FileSource) Dir() string {
	return f.dir
}

type fileDocument struct {
	Intents   []fileIntent   `yaml:"intents"`
	Fallbacks []fileFallback `yaml:"fallbacks"`
	SiteData  *fileSiteData  `yaml:"siteData"`
	Settings  *fileSettings  `yaml:"settings"`
}

type fileIntent struct {
	ID       string         `yaml:"id"`
	Name     string         `yaml:"name"`
	Priority *int           `yaml:"priority"`
	Active   *bool          `yaml:"active"`
	Keywords []fileKeyword  `yaml:"keywords"`
	Response fileResponse   `yaml:"response"`
	Data     map[string]any `yaml:"data"`
}

type fileKeyword struct {
	Text         string   `yaml:"text"`
	Weight       float64  `yaml:"weight"`
	Synonyms     []string `yaml:"synonyms"`
	Misspellings []string `yaml:"misspellings"`
}

// UnmarshalYAML accepts a bare string as shorthand for {text: ...}.
func (k *fileKeyword) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		k.Text = node.Value
		return nil
	}
	type plain fileKeyword
	return node.Decode((*plain)(k))
}

type fileResponse struct {
	Main       string `yaml:"main"`
	Supporting string `yaml:"supporting"`
	CTA        string `yaml:"cta"`
	Tone       string `yaml:"tone"`
}

type fileFallback struct {
	ID      string `yaml:"id"`
	Message string `yaml:"message"`
	Tone    string `yaml:"tone"`
	Active  *bool  `yaml:"active"`
}

type fileSiteData struct {
	Services map[string]string            `yaml:"services"`
	Prices   map[string]domain.PriceRange `yaml:"prices"`
	Contact  map[string]string            `yaml:"contact"`
}

type fileSettings struct {
	AssistantName  string   `yaml:"assistantName"`
	ThemeColor     string   `yaml:"themeColor"`
	WidgetEnabled  *bool    `yaml:"widgetEnabled"`
	WelcomeMessage string   `yaml:"welcomeMessage"`
	MenuOptions    []string `yaml:"menuOptions"`
}

// Files lists the YAML documents in load order.
func (f *FileSource) Files() ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, filepath.Join(f.dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// Load reads and merges every YAML document in the directory.
func (f *FileSource) Load(ctx context.Context) (*domain.Content, error) {
	files, err := f.Files()
	if err != nil {
		return nil, apperrors.NewStoreError("failed to list intent files", "list_files", err)
	}

	content := &domain.Content{
		SiteData: domain.SiteData{
			Services: map[string]string{},
			Prices:   map[string]domain.PriceRange{},
			Contact:  map[string]string{},
		},
		Settings: domain.Settings{WidgetEnabled: true},
	}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, apperrors.NewStoreError("failed to read intent file", "read_file", err)
		}
		var doc fileDocument
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, apperrors.NewStoreError(
				fmt.Sprintf("failed to parse %s", filepath.Base(path)), "parse_file", err)
		}
		mergeDocument(content, doc)
	}

	f.logger.Debug("Intent files loaded",
		zap.String("dir", f.dir),
		zap.Int("files", len(files)),
		zap.Int("intents", len(content.Intents)),
	)
	return content, nil
}

func mergeDocument(content *domain.Content, doc fileDocument) {
	for _, fi := range doc.Intents {
		intent := domain.Intent{
			ID:       strings.TrimSpace(fi.ID),
			Name:     fi.Name,
			Priority: constants.MatchScoring.DefaultPriority,
			Active:   true,
			Response: domain.ResponseTemplate{
				Main:       fi.Response.Main,
				Supporting: fi.Response.Supporting,
				CTA:        fi.Response.CTA,
				Tone:       domain.Tone(fi.Response.Tone),
			},
			Data: fi.Data,
		}
		if fi.Priority != nil {
			intent.Priority = *fi.Priority
		}
		if fi.Active != nil {
			intent.Active = *fi.Active
		}
		for _, fk := range fi.Keywords {
			intent.Keywords = append(intent.Keywords, domain.Keyword{
				Text:         fk.Text,
				Weight:       fk.Weight,
				Synonyms:     fk.Synonyms,
				Misspellings: fk.Misspellings,
			})
		}
		content.Intents = append(content.Intents, intent)
	}

	for _, ff := range doc.Fallbacks {
		fb := domain.Fallback{
			ID:      ff.ID,
			Message: ff.Message,
			Tone:    domain.Tone(ff.Tone),
			Active:  true,
		}
		if ff.Active != nil {
			fb.Active = *ff.Active
		}
		content.Fallbacks = append(content.Fallbacks, fb)
	}

	if sd := doc.SiteData; sd != nil {
		for k, v := range sd.Services {
			content.SiteData.Services[k] = v
		}
		for k, v := range sd.Prices {
			content.SiteData.Prices[k] = v
		}
		for k, v := range sd.Contact {
			content.SiteData.Contact[k] = v
		}
	}

	if s := doc.Settings; s != nil {
		if s.AssistantName != "" {
			content.Settings.AssistantName = s.AssistantName
		}
		if s.ThemeColor != "" {
			content.Settings.ThemeColor = s.ThemeColor
		}
		if s.WidgetEnabled != nil {
			content.Settings.WidgetEnabled = *s.WidgetEnabled
		}
		if s.WelcomeMessage != "" {
			content.Settings.Menu.Message = s.WelcomeMessage
		}
		if len(s.MenuOptions) > 0 {
			content.Settings.Menu.Options = s.MenuOptions
		}
	}
}

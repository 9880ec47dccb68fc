package docgen

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caseforge/docstream/internal/queue"
)

// TemplateSource loads document templates by id.
type TemplateSource interface {
	Load(ctx context.Context, templateID string) ([]byte, error)
}

// DirTemplates reads templates from a directory, one file per template.
type DirTemplates struct {
	dir string
}

var _ TemplateSource = (*DirTemplates)(nil)

func NewDirTemplates(dir string) *DirTemplates {
	return &DirTemplates{dir: dir}
}

func (t *DirTemplates) Load(_ context.Context, templateID string) ([]byte, error) {
	if strings.ContainsAny(templateID, `/\`) || templateID == ".." {
		return nil, queue.Validationf("invalid template id %q", templateID)
	}

	path := filepath.Join(t.dir, templateID+".tmpl")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, queue.Validationf("template %q does not exist", templateID)
		}
		return nil, fmt.Errorf("load template %s: %w", templateID, err)
	}
	return data, nil
}

package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/openmake/ensemble/internal/domain"
)

func TestNewBuildsValidCatalog(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if c.Len() == 0 {
		t.Fatal("empty catalog")
	}
	if _, ok := c.Get(DefaultAgentID); !ok {
		t.Errorf("default agent %q missing", DefaultAgentID)
	}
	if c.Default().ID != DefaultAgentID {
		t.Errorf("Default().ID = %q", c.Default().ID)
	}

	// Every topic suggestion must resolve.
	for _, topic := range c.Topics() {
		for _, id := range topic.Agents {
			if _, ok := c.Get(id); !ok {
				t.Errorf("topic %q references unknown agent %q", topic.Name, id)
			}
		}
	}

	// Listing preserves catalog order and covers every agent.
	agents := c.Agents()
	if len(agents) != c.Len() {
		t.Errorf("Agents() = %d entries, want %d", len(agents), c.Len())
	}
	if agents[0].ID != DefaultAgentID {
		t.Errorf("first agent = %q, want %q", agents[0].ID, DefaultAgentID)
	}
}

func TestByCategory(t *testing.T) {
	c, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	dev := c.ByCategory("development")
	if len(dev) == 0 {
		t.Fatal("no development agents")
	}
	for _, a := range dev {
		if a.Category != "development" {
			t.Errorf("agent %q category = %q", a.ID, a.Category)
		}
	}

	if got := c.ByCategory("no-such-category"); len(got) != 0 {
		t.Errorf("unknown category returned %v", got)
	}
}

func TestLoadOverlayMergesAndAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overlay.yaml")
	overlayYAML := `
agents:
  - id: backend-engineer
    name: 백엔드 엔지니어 (커스텀)
    icon: "🔧"
    description: 사내 백엔드 표준 담당
    category: development
    keywords: [api, db]
  - id: qa-engineer
    name: QA 엔지니어
    icon: "🧪"
    description: 테스트 전략과 품질 보증
    category: development
    keywords: [테스트, qa]
topics:
  - name: 품질/테스트
    patterns: [테스트, qa, 품질]
    agents: [qa-engineer]
`
	if err := os.WriteFile(path, []byte(overlayYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	base, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	// Known id replaced in place, new id appended.
	if c.Len() != base.Len()+1 {
		t.Errorf("Len = %d, want %d", c.Len(), base.Len()+1)
	}
	be, ok := c.Get("backend-engineer")
	if !ok || be.Name != "백엔드 엔지니어 (커스텀)" {
		t.Errorf("backend-engineer = %+v, want the overlay entry", be)
	}
	if _, ok := c.Get("qa-engineer"); !ok {
		t.Error("qa-engineer not appended")
	}
	if got := len(c.Topics()); got != len(base.Topics())+1 {
		t.Errorf("topics = %d, want %d", got, len(base.Topics())+1)
	}
}

func TestLoadOverlayUnknownAgentReference(t *testing.T) {
	path := filepath.Join(t.TempDir(), "overlay.yaml")
	overlayYAML := `
topics:
  - name: 잘못된 주제
    patterns: [뭔가]
    agents: [no-such-agent]
`
	if err := os.WriteFile(path, []byte(overlayYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	if !errors.Is(err, domain.ErrCatalogInvalid) {
		t.Errorf("err = %v, want ErrCatalogInvalid", err)
	}
}

func TestLoadMissingOverlayFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load succeeded on a missing overlay file")
	}
}

func TestLoadEmptyPathUsesBuiltins(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	base, _ := New()
	if c.Len() != base.Len() {
		t.Errorf("Len = %d, want %d", c.Len(), base.Len())
	}
}

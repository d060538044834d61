package conversation

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

//go:embed prompts/*.md knowledge/*.md
var promptFS embed.FS

// Prompts renders the system prompt for each mode.
type Prompts struct {
	prospective    string
	established    string
	collectionFlow string
}

// LoadPrompts builds the prompts with the embedded knowledge base. When
// knowledgeDir is set, prospective.md and established.md found there replace
// the embedded copies.
func LoadPrompts(knowledgeDir, officePhone, officeEmail string) (*Prompts, error) {
	read := func(name string) (string, error) {
		data, err := promptFS.ReadFile(name)
		if err != nil {
			return "", fmt.Errorf("conversation: read %s: %w", name, err)
		}
		return string(data), nil
	}

	knowledge := func(name string) (string, error) {
		if knowledgeDir != "" {
			data, err := os.ReadFile(filepath.Join(knowledgeDir, name))
			if err == nil {
				return string(data), nil
			}
			if !errors.Is(err, fs.ErrNotExist) {
				return "", fmt.Errorf("conversation: read knowledge %s: %w", name, err)
			}
		}
		return read("knowledge/" + name)
	}

	replacer := strings.NewReplacer("{{OFFICE_PHONE}}", officePhone, "{{OFFICE_EMAIL}}", officeEmail)
	build := func(policy, kbHeading, kbFile string) (string, error) {
		text, err := read("prompts/" + policy)
		if err != nil {
			return "", err
		}
		kb, err := knowledge(kbFile)
		if err != nil {
			return "", err
		}
		return replacer.Replace(text) + "\n" + kbHeading + "\n" + kb, nil
	}

	prospective, err := build("prospective.md", "## Knowledge Base", "prospective.md")
	if err != nil {
		return nil, err
	}
	established, err := build("established.md", "## Established Patient Knowledge Base", "established.md")
	if err != nil {
		return nil, err
	}
	flow, err := read("prompts/collection_flow.md")
	if err != nil {
		return nil, err
	}
	return &Prompts{prospective: prospective, established: established, collectionFlow: flow}, nil
}

// System returns the system prompt for mode. Established mode carries the
// collection-flow instructions.
func (p *Prompts) System(mode Mode) string {
	if mode == ModeEstablished {
		return p.established + "\n\n" + p.collectionFlow
	}
	return p.prospective
}

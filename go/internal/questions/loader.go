package questions

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mcdev12/triviabluff/go/internal/models"
)

//go:embed default.yaml
var defaultBank []byte

type bankFile struct {
	Questions []models.Question `yaml:"questions"`
}

// Parse reads a YAML question bank.
func Parse(data []byte) (*Bank, error) {
	var f bankFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse question bank: %w", err)
	}
	b := NewBank(f.Questions)
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}

// LoadFile reads a YAML question bank from disk.
func LoadFile(path string) (*Bank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read question bank: %w", err)
	}
	return Parse(data)
}

// LoadDefault parses the bank compiled into the binary.
func LoadDefault() (*Bank, error) {
	b, err := Parse(defaultBank)
	if err != nil {
		return nil, fmt.Errorf("embedded question bank: %w", err)
	}
	return b, nil
}

// MustDefault is like LoadDefault but panics if the embedded bank is invalid.
func MustDefault() *Bank {
	b, err := LoadDefault()
	if err != nil {
		panic(err)
	}
	return b
}

// Marshal encodes a bank in the YAML layout Parse reads.
func Marshal(b *Bank) ([]byte, error) {
	return yaml.Marshal(bankFile{Questions: b.All()})
}

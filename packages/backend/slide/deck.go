package slide

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"
)

// LoadDeck reads a YAML (or JSON) deck file and normalizes it with
// defaultLanguage.
func LoadDeck(path, defaultLanguage string) (Deck, error) {
	f, err := os.Open(path)
	if err != nil {
		return Deck{}, err
	}
	defer f.Close()

	deck, err := DecodeDeck(f, defaultLanguage)
	if err != nil {
		return Deck{}, fmt.Errorf("deck %s: %w", path, err)
	}
	return deck, nil
}

// DecodeDeck decodes a deck from r. JSON input is accepted since it is valid YAML.
func DecodeDeck(r io.Reader, defaultLanguage string) (Deck, error) {
	var deck Deck
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&deck); err != nil {
		return Deck{}, fmt.Errorf("decode deck: %w", err)
	}
	if err := deck.Normalize(defaultLanguage); err != nil {
		return Deck{}, err
	}
	return deck, nil
}

// Schema returns the JSON schema describing the deck format.
func Schema() ([]byte, error) {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schema := reflector.Reflect(&Deck{})

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(schema); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

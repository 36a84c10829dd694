// Package content publishes card images and metadata documents to a
// content-addressed store and selects the image for each sampled card.
package content

import (
	"bytes"
	"encoding/json"
)

// EncodeJSON renders doc with two-space indentation. Struct fields keep their
// declared order and map keys are sorted, so equal documents encode to equal
// bytes and therefore to the same content address.
func EncodeJSON(doc any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func metadataFilename(name string) string { return name + ".json" }

func metadataPinName(name string) string { return "metadata_" + name }

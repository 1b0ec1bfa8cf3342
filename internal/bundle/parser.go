package bundle

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// BundleParser deserializes a project bundle file back into structured data.
type BundleParser interface {
	Parse(data []byte) (*ProjectBundle, error)
}

// JSONParser parses a JSON-encoded ProjectBundle.
type JSONParser struct{}

func (p *JSONParser) Parse(data []byte) (*ProjectBundle, error) {
	var bundle ProjectBundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return nil, fmt.Errorf("failed to parse JSON bundle: %w", err)
	}
	if err := bundle.validate(); err != nil {
		return nil, fmt.Errorf("failed to parse JSON bundle: %w", err)
	}
	return &bundle, nil
}

// MarkdownParser parses a Markdown-rendered ProjectBundle by extracting the
// embedded base64 JSON payload from the sentinel comments.
type MarkdownParser struct{}

func (p *MarkdownParser) Parse(data []byte) (*ProjectBundle, error) {
	content := string(data)

	if !strings.Contains(content, versionSentinel) {
		return nil, fmt.Errorf("not a valid sandbox bundle: missing version sentinel")
	}

	start := strings.Index(content, dataPrefix)
	if start == -1 {
		return nil, fmt.Errorf("not a valid sandbox bundle: missing data payload")
	}
	start += len(dataPrefix)
	end := strings.Index(content[start:], dataSuffix)
	if end == -1 {
		return nil, fmt.Errorf("not a valid sandbox bundle: malformed data payload")
	}
	encoded := content[start : start+end]

	jsonBytes, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("not a valid sandbox bundle: corrupted base64 payload: %w", err)
	}

	var bundle ProjectBundle
	if err := json.Unmarshal(jsonBytes, &bundle); err != nil {
		return nil, fmt.Errorf("not a valid sandbox bundle: failed to parse embedded JSON: %w", err)
	}
	if err := bundle.validate(); err != nil {
		return nil, fmt.Errorf("not a valid sandbox bundle: %w", err)
	}
	return &bundle, nil
}

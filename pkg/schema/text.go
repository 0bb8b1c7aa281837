package schema

import (
	"encoding/json"
	"strings"
)

// Text is a bilingual (en/fr) string value. Authoring tools historically
// stored plain strings or {text: ...} wrappers; UnmarshalJSON accepts all
// three shapes and normalizes them to the canonical two-slot form.
type Text struct {
	EN string `json:"en"`
	FR string `json:"fr"`
}

// NewText creates a Text with the same value in both language slots.
func NewText(s string) Text {
	return Text{EN: s, FR: s}
}

// Resolve returns the value for the given language code ("en" or "fr"),
// falling back to the other language when the requested slot is empty.
func (t Text) Resolve(lang string) string {
	if lang == "fr" {
		if t.FR != "" {
			return t.FR
		}
		return t.EN
	}
	if t.EN != "" {
		return t.EN
	}
	return t.FR
}

// IsZero reports whether both language slots are empty.
func (t Text) IsZero() bool {
	return t.EN == "" && t.FR == ""
}

// UnmarshalJSON accepts "plain", {"text": ...} and {"en": ..., "fr": ...}
// shapes. A plain string is duplicated into both slots; a single populated
// slot is mirrored into the other.
func (t *Text) UnmarshalJSON(data []byte) error {
	var plain string
	if err := json.Unmarshal(data, &plain); err == nil {
		trimmed := strings.TrimSpace(plain)
		*t = Text{EN: trimmed, FR: trimmed}
		return nil
	}

	var obj struct {
		EN   string          `json:"en"`
		FR   string          `json:"fr"`
		Text json.RawMessage `json:"text"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if len(obj.Text) > 0 && obj.EN == "" && obj.FR == "" {
		return t.UnmarshalJSON(obj.Text)
	}

	en := strings.TrimSpace(obj.EN)
	fr := strings.TrimSpace(obj.FR)
	if en == "" {
		en = fr
	}
	if fr == "" {
		fr = en
	}
	*t = Text{EN: en, FR: fr}
	return nil
}

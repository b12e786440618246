package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const entrySchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["value"],
  "properties": {
    "value": true,
    "time": {"type": "integer", "minimum": 0},
    "alive": {"type": "integer", "minimum": 0}
  }
}`

var compiledEntrySchema = jsonschema.MustCompileString("entry.json", entrySchema)

// DecodeEntry parses and validates one persisted entry
func DecodeEntry(key string, data []byte) (Entry, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return Entry{}, InvalidEntryError{Key: key, Reason: fmt.Sprintf("not valid JSON: %v", err)}
	}

	if err := compiledEntrySchema.Validate(doc); err != nil {
		return Entry{}, InvalidEntryError{Key: key, Reason: err.Error()}
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, InvalidEntryError{Key: key, Reason: err.Error()}
	}
	return e, nil
}

// decodeEntries decodes raw entries, skipping and reporting the malformed ones
func decodeEntries(raw map[string][]byte, onInvalid func(error)) map[string]Entry {
	entries := make(map[string]Entry, len(raw))
	for key, data := range raw {
		e, err := DecodeEntry(key, data)
		if err != nil {
			onInvalid(err)
			continue
		}
		entries[key] = e
	}
	return entries
}

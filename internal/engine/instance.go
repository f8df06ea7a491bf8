package engine

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/jmespath-community/go-jmespath"
)

// instanceNamespace scopes the name-based UUIDs used as instance ids
var instanceNamespace = uuid.MustParse("6f1f3c52-8d3e-4a8e-9a55-2b7c0e4d91a7")

// InstanceID derives the id of the job instance an event belongs to. The
// same job type, event type and natural key always yield the same id.
func InstanceID(jobType, eventType, naturalKey string) string {
	name := jobType + "\x00" + eventType + "\x00" + naturalKey
	return uuid.NewSHA1(instanceNamespace, []byte(name)).String()
}

// canonicalPayload decodes payload, which must be a JSON object, and returns
// the decoded document with its canonical encoding (sorted keys, no
// insignificant whitespace, numbers kept verbatim).
func canonicalPayload(payload json.RawMessage) (map[string]any, []byte, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, nil, fmt.Errorf("payload is not valid JSON: %v", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, nil, fmt.Errorf("payload has trailing data")
	}

	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, nil, fmt.Errorf("payload must be a JSON object")
	}

	canonical, err := json.Marshal(obj)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode payload: %v", err)
	}
	return obj, canonical, nil
}

// naturalKey evaluates the JMESPath expression against the payload. An empty
// expression keys the instance by the whole canonical payload.
func naturalKey(expr string, doc map[string]any, canonical []byte) (string, error) {
	if expr == "" {
		return string(canonical), nil
	}

	value, err := jmespath.Search(expr, doc)
	if err != nil {
		return "", fmt.Errorf("failed to evaluate instance key %q: %v", expr, err)
	}

	switch v := value.(type) {
	case nil:
		return "", fmt.Errorf("instance key %q is missing", expr)
	case string:
		if v == "" {
			return "", fmt.Errorf("instance key %q is empty", expr)
		}
		return v, nil
	case json.Number:
		return v.String(), nil
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("failed to encode instance key %q: %v", expr, err)
		}
		return string(encoded), nil
	}
}

func fingerprint(canonical []byte) string {
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

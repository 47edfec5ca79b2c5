package tree

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// DomainTree prefixes document hashes. The version suffix allows the
// canonical form to change without colliding with old hashes.
const DomainTree = "timeline/tree/v1"

// Hash returns the content hash of a document: SHA256(domain + 0x00 + JSON)
// over its canonical JSON, hex encoded.
//
// Two documents that differ only in field order, Unicode normalization or
// source format (YAML or CUE) hash the same.
func Hash(doc *Document) (string, error) {
	data, err := MarshalCanonical(doc)
	if err != nil {
		return "", fmt.Errorf("hashing tree document: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(DomainTree))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// MarshalCanonical produces canonical JSON for a document.
//
// Object keys are sorted by UTF-16 code units, strings are NFC normalized,
// HTML characters are not escaped, and zero-valued fields are omitted.
func MarshalCanonical(doc *Document) ([]byte, error) {
	trees := make(map[string]any, len(doc.Trees))
	for name, node := range doc.Trees {
		trees[name] = nodeValue(node)
	}
	obj := map[string]any{
		"root": doc.Entry(),
		"tree": trees,
	}

	var buf bytes.Buffer
	if err := writeCanonical(&buf, obj); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// nodeValue flattens a node into maps, slices and scalars.
func nodeValue(n Node) map[string]any {
	obj := map[string]any{"kind": n.Kind}
	putString := func(key, value string) {
		if value != "" {
			obj[key] = value
		}
	}
	putNode := func(key string, child *Node) {
		if child != nil {
			obj[key] = nodeValue(*child)
		}
	}

	putString("name", n.Name)
	putString("flag", n.Flag)
	putString("action", n.Action)
	putString("counter", n.Counter)
	putString("ref", n.Ref)
	if n.Delay != 0 {
		obj["delay"] = n.Delay
	}
	if n.Floor != 0 {
		obj["floor"] = n.Floor
	}
	if n.Limit != 0 {
		obj["limit"] = int64(n.Limit)
	}
	if n.Result != nil {
		obj["result"] = *n.Result
	}
	if len(n.Children) > 0 {
		children := make([]any, len(n.Children))
		for i, ch := range n.Children {
			children[i] = nodeValue(ch)
		}
		obj["children"] = children
	}
	putNode("child", n.Child)
	putNode("work", n.Work)
	putNode("cleanup", n.Cleanup)
	putNode("then", n.Then)
	putNode("else", n.Else)
	return obj
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case string:
		return writeCanonicalString(buf, val)
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
	case bool:
		buf.WriteString(strconv.FormatBool(val))
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			return compareUTF16(keys[i], keys[j]) < 0
		})

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonicalString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return fmt.Errorf("object[%q]: %w", k, err)
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
	return nil
}

func writeCanonicalString(buf *bytes.Buffer, s string) error {
	var out bytes.Buffer
	enc := json.NewEncoder(&out)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return err
	}
	buf.Write(bytes.TrimSuffix(out.Bytes(), []byte{'\n'}))
	return nil
}

// compareUTF16 orders strings by UTF-16 code units.
func compareUTF16(a, b string) int {
	ua := utf16.Encode([]rune(a))
	ub := utf16.Encode([]rune(b))
	for i := 0; i < len(ua) && i < len(ub); i++ {
		if ua[i] != ub[i] {
			if ua[i] < ub[i] {
				return -1
			}
			return 1
		}
	}
	return len(ua) - len(ub)
}

package dispatch

import (
	"strings"
	"testing"
)

func TestRedactAndBound_RedactsSensitiveKeys(t *testing.T) {
	in := map[string]interface{}{
		"password":      "hunter2",
		"pin":           "1234",
		"authorization": "Bearer abc",
		"secretValue":   "x",
		"privateKey":    "y",
		"code":          "123456",
		"invite_code":   "abcd",
		"barcode":       "not-sensitive",
		"zipcode":       "not-sensitive",
		"name":          "alice",
	}
	out := RedactAndBound(in).(map[string]interface{})
	for _, k := range []string{"password", "pin", "authorization", "secretValue", "privateKey", "code", "invite_code"} {
		if out[k] != "[REDACTED]" {
			t.Errorf("expected %s redacted, got %v", k, out[k])
		}
	}
	if out["barcode"] != "not-sensitive" {
		t.Errorf("expected barcode left alone, got %v", out["barcode"])
	}
	if out["zipcode"] != "not-sensitive" {
		t.Errorf("expected zipcode left alone, got %v", out["zipcode"])
	}
	if out["name"] != "alice" {
		t.Errorf("expected non-sensitive key preserved, got %v", out["name"])
	}
}

func TestRedactAndBound_BoundsDepth(t *testing.T) {
	nested := map[string]interface{}{
		"a": map[string]interface{}{
			"b": map[string]interface{}{
				"c": map[string]interface{}{
					"d": map[string]interface{}{
						"e": "too deep",
					},
				},
			},
		},
	}
	out := RedactAndBound(nested).(map[string]interface{})
	a := out["a"].(map[string]interface{})
	b := a["b"].(map[string]interface{})
	c := b["c"].(map[string]interface{})
	if c["d"] != "[TRUNCATED]" {
		t.Fatalf("expected depth-bounded truncation, got %v", c["d"])
	}
}

func TestRedactAndBound_BoundsArrayAndObjectSize(t *testing.T) {
	arr := make([]interface{}, 30)
	for i := range arr {
		arr[i] = i
	}
	out := RedactAndBound(arr).([]interface{})
	if len(out) != maxRedactArrayItems {
		t.Fatalf("expected array capped at %d, got %d", maxRedactArrayItems, len(out))
	}

	obj := make(map[string]interface{}, 60)
	for i := 0; i < 60; i++ {
		obj[strings.Repeat("k", i+1)] = i
	}
	objOut := RedactAndBound(obj).(map[string]interface{})
	if len(objOut) > maxRedactObjectKeys {
		t.Fatalf("expected object capped at %d keys, got %d", maxRedactObjectKeys, len(objOut))
	}
}

func TestRedactAndBound_BoundsStringLength(t *testing.T) {
	long := strings.Repeat("x", maxRedactStringChars+50)
	out := RedactAndBound(long).(string)
	if !strings.HasSuffix(out, "...[TRUNCATED]") {
		t.Fatalf("expected truncation suffix, got suffix of %q", out[len(out)-20:])
	}
	if len(out) != maxRedactStringChars+len("...[TRUNCATED]") {
		t.Fatalf("unexpected truncated length: %d", len(out))
	}
}

package sizing

import (
	"bytes"
	"encoding/json"
)

// TruncateResult reports what the deterministic drop policy did.
type TruncateResult struct {
	Payload       json.RawMessage `json:"payload"`
	Truncated     bool            `json:"truncated"`
	Fits          bool            `json:"fits"`
	DroppedItems  int             `json:"dropped_items"`
	OriginalBytes int64           `json:"original_bytes"`
	FinalBytes    int64           `json:"final_bytes"`
}

// Truncate shrinks an over-budget payload using a fixed, deterministic
// policy: elements are dropped from the tail of array-valued top-level
// fields, largest field first; scalar and object fields are never dropped.
// A top-level array payload is trimmed the same way. When no array can bring
// the payload under budget, Fits reports false and the payload keeps
// everything that survived.
func Truncate(payload interface{}, maxBytes int64) (TruncateResult, error) {
	encoded, err := encode(payload)
	if err != nil {
		return TruncateResult{}, err
	}
	res := TruncateResult{
		Payload:       encoded,
		OriginalBytes: int64(len(encoded)),
		FinalBytes:    int64(len(encoded)),
		Fits:          int64(len(encoded)) <= maxBytes,
	}
	if res.Fits {
		return res, nil
	}

	trimmed := bytes.TrimLeft(encoded, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return truncateArray(trimmed, maxBytes)
	}

	fields := topLevelFields(encoded)
	if fields == nil {
		// Scalar payloads cannot be shrunk.
		return res, nil
	}
	for {
		idx := largestArrayField(fields)
		if idx < 0 {
			break
		}
		var elems []json.RawMessage
		if err := json.Unmarshal(fields[idx].raw, &elems); err != nil || len(elems) == 0 {
			break
		}
		over := int64(len(rebuildObject(fields))) - maxBytes
		kept := len(elems)
		var freed int64
		for kept > 0 && freed < over {
			kept--
			freed += int64(len(elems[kept])) + 1 // trailing comma
			res.DroppedItems++
		}
		fields[idx].raw = rebuildArray(elems[:kept])
		res.Truncated = true
		rebuilt := rebuildObject(fields)
		if int64(len(rebuilt)) <= maxBytes {
			res.Payload = rebuilt
			res.FinalBytes = int64(len(rebuilt))
			res.Fits = true
			return res, nil
		}
	}
	rebuilt := rebuildObject(fields)
	res.Payload = rebuilt
	res.FinalBytes = int64(len(rebuilt))
	return res, nil
}

func truncateArray(encoded []byte, maxBytes int64) (TruncateResult, error) {
	res := TruncateResult{OriginalBytes: int64(len(encoded))}
	var elems []json.RawMessage
	if err := json.Unmarshal(encoded, &elems); err != nil {
		res.Payload = encoded
		res.FinalBytes = res.OriginalBytes
		return res, nil
	}
	kept := len(elems)
	size := int64(len(encoded))
	for kept > 0 && size > maxBytes {
		kept--
		size -= int64(len(elems[kept])) + 1
		res.DroppedItems++
	}
	rebuilt := rebuildArray(elems[:kept])
	res.Payload = json.RawMessage(rebuilt)
	res.Truncated = res.DroppedItems > 0
	res.FinalBytes = int64(len(rebuilt))
	res.Fits = res.FinalBytes <= maxBytes
	return res, nil
}

// largestArrayField picks the biggest non-empty array contributor; ties go to
// the earliest declared field.
func largestArrayField(fields []field) int {
	best := -1
	var bestSize int64
	for i, f := range fields {
		if arrayLen(f.raw) == 0 {
			continue
		}
		size := int64(len(f.raw))
		if size > bestSize {
			best, bestSize = i, size
		}
	}
	return best
}

func rebuildArray(elems []json.RawMessage) json.RawMessage {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, e := range elems {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(e)
	}
	buf.WriteByte(']')
	return buf.Bytes()
}

func rebuildObject(fields []field) json.RawMessage {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, _ := json.Marshal(f.name)
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(f.raw)
	}
	buf.WriteByte('}')
	return buf.Bytes()
}

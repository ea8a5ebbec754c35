package forward

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

const (
	contentTypeJSON      = "application/json"
	contentTypeForm      = "application/x-www-form-urlencoded"
	contentTypeMultipart = "multipart/form-data"
)

// encodeBody renders the payload for the negotiated content type. A non-empty
// second return value replaces the Content-Type header; multipart carries its
// boundary there.
func encodeBody(payload any, contentType string) ([]byte, string, error) {
	switch {
	case strings.HasPrefix(contentType, contentTypeForm):
		body, err := encodeForm(payload)
		return body, "", err
	case strings.HasPrefix(contentType, contentTypeMultipart):
		return encodeMultipart(payload)
	default:
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, "", fmt.Errorf("encode json body: %w", err)
		}
		return body, "", nil
	}
}

func encodeForm(payload any) ([]byte, error) {
	fields, err := payloadFields(payload)
	if err != nil {
		return nil, err
	}
	values := url.Values{}
	for key, value := range fields {
		values.Set(key, formValue(value))
	}
	return []byte(values.Encode()), nil
}

func encodeMultipart(payload any) ([]byte, string, error) {
	fields, err := payloadFields(payload)
	if err != nil {
		return nil, "", err
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for _, key := range keys {
		if err := writer.WriteField(key, formValue(fields[key])); err != nil {
			return nil, "", fmt.Errorf("write multipart field %q: %w", key, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart body: %w", err)
	}
	return buf.Bytes(), writer.FormDataContentType(), nil
}

// payloadFields flattens the payload into form fields. Only object payloads
// can be field-encoded.
func payloadFields(payload any) (map[string]any, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode form body: %w", err)
	}
	fields := map[string]any{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("form encoding needs an object payload")
	}
	return fields, nil
}

// formValue stringifies one field. Scalars print naturally, null prints
// empty, and nested structures ride along as JSON text.
func formValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(raw)
	}
}

// parseResponseBody keeps JSON responses structured and anything else as text.
func parseResponseBody(body []byte) any {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil
	}
	var decoded any
	if err := json.Unmarshal(trimmed, &decoded); err == nil {
		return decoded
	}
	return string(trimmed)
}

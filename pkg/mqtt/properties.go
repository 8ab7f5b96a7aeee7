package mqtt

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// maxPropertyLen is the largest length an MQTT UTF-8 string or binary field can encode.
const maxPropertyLen = 65535

// ValidateProperties checks the MQTT 5 metadata of m. A single bad property
// rejects the whole message; nothing is partially encoded.
func ValidateProperties(m *Message) error {
	for i, p := range m.UserProperties {
		if err := validateUTF8String(p.Key); err != nil {
			return fmt.Errorf("%w: user property %d key: %v", ErrMalformedProperty, i, err)
		}
		if err := validateUTF8String(p.Value); err != nil {
			return fmt.Errorf("%w: user property %q value: %v", ErrMalformedProperty, p.Key, err)
		}
	}
	if len(m.CorrelationData) > maxPropertyLen {
		return fmt.Errorf("%w: correlation data is %d bytes", ErrMalformedProperty, len(m.CorrelationData))
	}
	if err := validateUTF8String(m.ResponseTopic); err != nil {
		return fmt.Errorf("%w: response topic: %v", ErrMalformedProperty, err)
	}
	if strings.ContainsAny(m.ResponseTopic, "+#") {
		return fmt.Errorf("%w: response topic %q contains wildcards", ErrMalformedProperty, m.ResponseTopic)
	}
	if err := validateUTF8String(m.ContentType); err != nil {
		return fmt.Errorf("%w: content type: %v", ErrMalformedProperty, err)
	}
	if m.PayloadFormat != FormatUnspecified && m.PayloadFormat != FormatUTF8 {
		return fmt.Errorf("%w: payload format indicator %d", ErrMalformedProperty, m.PayloadFormat)
	}
	return nil
}

func validateUTF8String(s string) error {
	if len(s) > maxPropertyLen {
		return fmt.Errorf("length %d exceeds %d", len(s), maxPropertyLen)
	}
	if !utf8.ValidString(s) {
		return fmt.Errorf("not valid UTF-8")
	}
	if strings.ContainsRune(s, 0) {
		return fmt.Errorf("contains U+0000")
	}
	return nil
}

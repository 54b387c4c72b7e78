package sourcemap

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var mappingURLRe = regexp.MustCompile(`(?m)^[ \t]*//[#@][ \t]*sourceMappingURL=(\S+)[ \t]*$`)

// InlineURL returns the last sourceMappingURL comment value in text, or "".
func InlineURL(text string) string {
	all := mappingURLRe.FindAllStringSubmatch(text, -1)
	if len(all) == 0 {
		return ""
	}
	return strings.TrimSpace(all[len(all)-1][1])
}

// DecodeInline extracts a source map embedded in text as a data: URL.
// It reports false when text has no inline map; external map URLs are ignored.
func DecodeInline(text string) ([]byte, bool, error) {
	ref := InlineURL(text)
	if !strings.HasPrefix(ref, "data:") {
		return nil, false, nil
	}
	meta, payload, ok := strings.Cut(strings.TrimPrefix(ref, "data:"), ",")
	if !ok {
		return nil, false, fmt.Errorf("%w: inline data URL has no payload", ErrMalformedSourceMap)
	}
	if strings.HasSuffix(meta, ";base64") {
		b, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, false, fmt.Errorf("%w: inline base64: %v", ErrMalformedSourceMap, err)
		}
		return b, true, nil
	}
	s, err := url.PathUnescape(payload)
	if err != nil {
		return nil, false, fmt.Errorf("%w: inline data URL: %v", ErrMalformedSourceMap, err)
	}
	return []byte(s), true, nil
}

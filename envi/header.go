package envi

import (
	"bufio"
	"fmt"
	"strings"
)

// ParseHeader reads an ENVI header into key/value pairs. Brace-delimited
// values may span lines and are returned without the braces.
func ParseHeader(text string) (map[string]string, error) {
	sc := bufio.NewScanner(strings.NewReader(text))
	if !sc.Scan() || strings.TrimSpace(sc.Text()) != "ENVI" {
		return nil, fmt.Errorf("not an ENVI header")
	}
	out := make(map[string]string)
	var key string
	var open strings.Builder
	for sc.Scan() {
		line := sc.Text()
		if key != "" {
			open.WriteString(" ")
			open.WriteString(strings.TrimSpace(line))
			if strings.Contains(line, "}") {
				out[key] = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(open.String()), "}"))
				key = ""
				open.Reset()
			}
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if strings.HasPrefix(v, "{") && !strings.Contains(v, "}") {
			key = k
			open.WriteString(strings.TrimPrefix(v, "{"))
			continue
		}
		if strings.HasPrefix(v, "{") {
			v = strings.TrimSuffix(strings.TrimPrefix(v, "{"), "}")
		}
		out[k] = strings.TrimSpace(v)
	}
	if key != "" {
		return nil, fmt.Errorf("unterminated value for %q", key)
	}
	return out, sc.Err()
}

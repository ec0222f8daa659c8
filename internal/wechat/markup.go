package wechat

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/net/html"
)

// parseAssignments reads the javascript-flavoured bodies returned by the
// login and push hosts, e.g.
//
//	window.QRLogin.code = 200; window.QRLogin.uuid = "gYmgd1grLg==";
//	window.synccheck={retcode:"0",selector:"2"}
//
// Keys are reduced to their last dotted segment. Values lose their quotes.
// Later assignments of the same key win.
func parseAssignments(body string) map[string]string {
	out := make(map[string]string)
	i, n := 0, len(body)
	for i < n {
		if !isIdentByte(body[i]) {
			i++
			continue
		}
		start := i
		for i < n && (isIdentByte(body[i]) || body[i] == '.') {
			i++
		}
		key := body[start:i]
		if dot := strings.LastIndexByte(key, '.'); dot >= 0 {
			key = key[dot+1:]
		}
		j := skipSpace(body, i)
		if j >= n || (body[j] != '=' && body[j] != ':') {
			continue
		}
		j = skipSpace(body, j+1)
		if j >= n {
			break
		}
		if body[j] == '{' {
			// nested object: its members are read on the next pass
			i = j + 1
			continue
		}
		var value string
		if q := body[j]; q == '"' || q == '\'' {
			end := strings.IndexByte(body[j+1:], q)
			if end < 0 {
				value = body[j+1:]
				i = n
			} else {
				value = body[j+1 : j+1+end]
				i = j + 2 + end
			}
		} else {
			end := j
			for end < n && !strings.ContainsRune(";,}\r\n\t ", rune(body[end])) {
				end++
			}
			value = body[j:end]
			i = end
		}
		out[key] = value
	}
	return out
}

func isIdentByte(b byte) bool {
	return b == '_' || b == '$' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

func skipSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\r' || s[i] == '\n') {
		i++
	}
	return i
}

// elementTexts returns the text content of every leaf element in an
// XML-ish fragment, keyed by lower-cased tag name. The first occurrence
// of a tag wins.
func elementTexts(fragment string) map[string]string {
	out := make(map[string]string)
	z := html.NewTokenizer(strings.NewReader(fragment))
	var open string
	for {
		switch z.Next() {
		case html.ErrorToken:
			return out
		case html.StartTagToken:
			name, _ := z.TagName()
			open = string(name)
			if _, seen := out[open]; !seen {
				out[open] = ""
			}
		case html.TextToken:
			if open != "" && out[open] == "" {
				out[open] = strings.TrimSpace(string(z.Text()))
			}
		case html.EndTagToken, html.SelfClosingTagToken:
			open = ""
		}
	}
}

// findAttrs returns the attributes of the first tag named tag in fragment.
// Attribute names are lower-cased; values are entity-decoded.
func findAttrs(fragment, tag string) (map[string]string, bool) {
	return findTag(fragment, func(name string, _ map[string]string) bool {
		return name == tag
	})
}

// findTag returns the attributes of the first start or self-closing tag
// accepted by match.
func findTag(fragment string, match func(name string, attrs map[string]string) bool) (map[string]string, bool) {
	z := html.NewTokenizer(strings.NewReader(fragment))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return nil, false
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		name, hasAttr := z.TagName()
		attrs := make(map[string]string)
		for hasAttr {
			var key, val []byte
			key, val, hasAttr = z.TagAttr()
			attrs[string(key)] = string(val)
		}
		if match(string(name), attrs) {
			return attrs, true
		}
	}
}

// parseCoordinates extracts the x/y attributes of a location element,
// falling back to the first element that carries both.
func parseCoordinates(fragment string) (x, y float64, err error) {
	attrs, ok := findAttrs(fragment, "location")
	hasXY := func(_ string, attrs map[string]string) bool {
		_, hasX := attrs["x"]
		_, hasY := attrs["y"]
		return hasX && hasY
	}
	if !ok {
		attrs, ok = findTag(fragment, hasXY)
	}
	if !ok && !strings.Contains(fragment, "<") {
		// bare attribute list
		attrs, ok = findTag("<location "+fragment+"/>", hasXY)
	}
	if !ok {
		return 0, 0, fmt.Errorf("location element: %w", errMalformed)
	}
	if x, err = strconv.ParseFloat(strings.TrimSpace(attrs["x"]), 64); err != nil {
		return 0, 0, fmt.Errorf("location x %q: %w", attrs["x"], errMalformed)
	}
	if y, err = strconv.ParseFloat(strings.TrimSpace(attrs["y"]), 64); err != nil {
		return 0, 0, fmt.Errorf("location y %q: %w", attrs["y"], errMalformed)
	}
	return x, y, nil
}

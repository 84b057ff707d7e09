package symbols

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// Resolve builds the scan universe from names and an optional file.
// A name is either a ticker or a predefined universe ("test", "nasdaq100").
// Symbols are upper-cased and de-duplicated, keeping first-seen order.
func Resolve(names []string, file string) ([]string, error) {
	var all []string
	for _, n := range names {
		if u := GetUniverse(Universe(strings.ToLower(n))); u != nil {
			all = append(all, u...)
			continue
		}
		all = append(all, n)
	}

	if file != "" {
		fromFile, err := LoadFile(file)
		if err != nil {
			return nil, err
		}
		all = append(all, fromFile...)
	}

	return normalize(all), nil
}

// LoadFile reads one symbol per line; blank lines and # comments are skipped
func LoadFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening universe file: %w", err)
	}
	defer f.Close()

	syms, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return syms, nil
}

// Parse reads one symbol per line (trailing comma-separated columns ignored)
func Parse(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if i := strings.IndexByte(line, ','); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if line == "" || strings.EqualFold(line, "symbol") {
			continue
		}
		out = append(out, line)
	}
	return out, sc.Err()
}

func normalize(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToUpper(strings.TrimSpace(s))
		if !isValidSymbol(s) || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// isValidSymbol accepts plain tickers and class shares like BRK.B
func isValidSymbol(symbol string) bool {
	if len(symbol) == 0 || len(symbol) > 6 {
		return false
	}
	for i, c := range symbol {
		switch {
		case c >= 'A' && c <= 'Z':
		case c == '.' && i > 0 && i < len(symbol)-1:
		default:
			return false
		}
	}
	return true
}

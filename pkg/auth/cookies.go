package auth

import (
	"bufio"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// LoadCookiesFile parses a Netscape format cookies.txt export into cookies
// usable with an http.CookieJar.
func LoadCookiesFile(path string) ([]*http.Cookie, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cookies file: %w", err)
	}
	defer f.Close()

	var cookies []*http.Cookie
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) != 7 {
			return nil, fmt.Errorf("%s:%d: expected 7 tab-separated fields, got %d", path, lineNo, len(fields))
		}

		expires, err := strconv.ParseInt(fields[4], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: invalid expiry %q", path, lineNo, fields[4])
		}

		cookie := &http.Cookie{
			Domain: strings.TrimPrefix(fields[0], "."),
			Path:   fields[2],
			Secure: strings.EqualFold(fields[3], "TRUE"),
			Name:   fields[5],
			Value:  fields[6],
		}
		if expires > 0 {
			cookie.Expires = time.Unix(expires, 0)
		}
		cookies = append(cookies, cookie)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cookies file: %w", err)
	}

	return cookies, nil
}

// BrowserCookiesPath resolves the cookies file kept for an exported browser
// session under the config directory.
func BrowserCookiesPath(browser string) (string, error) {
	configDir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "cookies", browser+".txt"), nil
}

// CookiesForDomain filters cookies applying to a host, honouring domain
// suffix matching.
func CookiesForDomain(cookies []*http.Cookie, host string) []*http.Cookie {
	host = strings.ToLower(host)
	var out []*http.Cookie
	for _, c := range cookies {
		d := strings.ToLower(c.Domain)
		if d == "" || host == d || strings.HasSuffix(host, "."+d) {
			out = append(out, c)
		}
	}
	return out
}

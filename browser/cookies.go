package browser

import (
	"encoding/json"
	"fmt"
	"os"
)

// Cookie is one session cookie supplied out-of-band.
type Cookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// LoadCookies reads a cookie file that is either an array of {name,value}
// objects or a flat name→value map.
func LoadCookies(path string) ([]Cookie, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading cookie file: %w", err)
	}

	var cookies []Cookie
	if err := json.Unmarshal(raw, &cookies); err == nil {
		return cookies, nil
	}

	var flat map[string]string
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, fmt.Errorf("parsing cookie file %s: %w", path, err)
	}
	for name, value := range flat {
		cookies = append(cookies, Cookie{Name: name, Value: value})
	}
	return cookies, nil
}

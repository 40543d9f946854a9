package mailparse

import (
	"regexp"
	"strings"
)

var urlRe = regexp.MustCompile(`https?://[^\s"<>]+`)

// magicKeywords marks a URL as likely carrying an authentication or
// verification action.
var magicKeywords = []string{"token=", "verify", "confirm", "reset", "auth", "magic", "login"}

// ExtractMagicLinks scans content for http/https URLs and keeps the ones
// that look like magic links. Order and duplicates are preserved; no
// normalization is applied.
func ExtractMagicLinks(content string) []string {
	links := []string{}
	for _, url := range urlRe.FindAllString(content, -1) {
		lower := strings.ToLower(url)
		for _, keyword := range magicKeywords {
			if strings.Contains(lower, keyword) {
				links = append(links, url)
				break
			}
		}
	}
	return links
}

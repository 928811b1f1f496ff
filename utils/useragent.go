package utils

import (
	"regexp"

	"zako_server/models"
)

var osPatterns = []struct {
	re   *regexp.Regexp
	name string
}{
	{regexp.MustCompile(`(?i)windows nt 10`), "Windows 10/11"},
	{regexp.MustCompile(`(?i)windows nt 6\.3`), "Windows 8.1"},
	{regexp.MustCompile(`(?i)windows nt 6\.2`), "Windows 8"},
	{regexp.MustCompile(`(?i)windows nt 6\.1`), "Windows 7"},
	{regexp.MustCompile(`(?i)macintosh|mac os x`), "macOS"},
	{regexp.MustCompile(`(?i)linux`), "Linux"},
	{regexp.MustCompile(`(?i)ubuntu`), "Ubuntu"},
	{regexp.MustCompile(`(?i)iphone`), "iOS"},
	{regexp.MustCompile(`(?i)ipad`), "iPadOS"},
	{regexp.MustCompile(`(?i)android`), "Android"},
}

// DetectOS names the operating system in a user agent; the first pattern that matches wins.
func DetectOS(userAgent string) string {
	for _, p := range osPatterns {
		if p.re.MatchString(userAgent) {
			return p.name
		}
	}
	return models.UnknownOS
}

package supplier

import (
	"fmt"
	"regexp"
)

// Recognized video platforms
const (
	PlatformYouTube = "youtube"
	PlatformVimeo   = "vimeo"
	PlatformUnknown = "unknown"
)

var (
	youtubeRe = regexp.MustCompile(`(?:youtube\.com/(?:watch\?v=|embed/|shorts/)|youtu\.be/)([A-Za-z0-9_-]{6,})`)
	vimeoRe   = regexp.MustCompile(`vimeo\.com/(?:video/)?(\d+)`)
)

// NormalizeVideo converts a raw video URL to its canonical embeddable form.
// URLs from unrecognized platforms are kept as-is and tagged "unknown".
func NormalizeVideo(raw string) Video {
	if m := youtubeRe.FindStringSubmatch(raw); m != nil {
		return Video{
			URL:      fmt.Sprintf("https://www.youtube.com/embed/%s", m[1]),
			Platform: PlatformYouTube,
		}
	}
	if m := vimeoRe.FindStringSubmatch(raw); m != nil {
		return Video{
			URL:      fmt.Sprintf("https://player.vimeo.com/video/%s", m[1]),
			Platform: PlatformVimeo,
		}
	}
	return Video{URL: raw, Platform: PlatformUnknown}
}

package scrape

import "bytes"

// Text Amazon serves on its robot-check and captcha pages.
var botWallMarkers = [][]byte{
	[]byte("/errors/validatecaptcha"),
	[]byte("api-services-support@amazon.com"),
	[]byte("type the characters you see in this image"),
	[]byte("digite os caracteres que você vê abaixo"),
	[]byte("enter the characters you see below"),
	[]byte("<title>robot check</title>"),
}

// IsBotWall reports whether body is one of Amazon's robot-check pages rather
// than product content.
func IsBotWall(body []byte) bool {
	lower := bytes.ToLower(body)
	for _, marker := range botWallMarkers {
		if bytes.Contains(lower, marker) {
			return true
		}
	}
	return false
}

package common

import (
	"github.com/ternarybob/banner"
)

// PrintBanner displays the service banner
func PrintBanner(service, version string) {
	banner.PrintSimple(service, version)
}

package fetch

import (
	"net/url"
	"strings"
)

// Board is a job board whose pages need their own content selectors.
type Board string

const (
	BoardGreenhouse Board = "greenhouse"
	BoardLever      Board = "lever"
	BoardWorkday    Board = "workday"
	BoardAshby      Board = "ashby"
	BoardUnknown    Board = ""
)

var boardHosts = []struct {
	suffix string
	board  Board
}{
	{"greenhouse.io", BoardGreenhouse},
	{"lever.co", BoardLever},
	{"myworkdayjobs.com", BoardWorkday},
	{"workday.com", BoardWorkday},
	{"ashbyhq.com", BoardAshby},
}

// DetectBoard reports which job board serves rawURL.
func DetectBoard(rawURL string) Board {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return BoardUnknown
	}
	host := strings.ToLower(parsed.Hostname())
	for _, h := range boardHosts {
		if host == h.suffix || strings.HasSuffix(host, "."+h.suffix) {
			return h.board
		}
	}
	return BoardUnknown
}

// SelectorsFor returns the content selectors for a board, most specific first.
// Unknown boards get the generic job posting selectors; known boards fall back to
// them after their own.
func SelectorsFor(board Board) []string {
	var specific []string
	switch board {
	case BoardGreenhouse:
		specific = []string{".job__description", ".job-post-container", "#content"}
	case BoardLever:
		specific = []string{".posting-page .section-wrapper", ".posting-description", ".posting-page"}
	case BoardWorkday:
		specific = []string{"[data-automation-id='jobPostingDescription']", "[data-automation-id='jobDescription']"}
	case BoardAshby:
		specific = []string{"._descriptionText_oj0x8_198", "[class*='descriptionText']"}
	}
	return append(specific, JobPostingSelectors()...)
}

package vitrine

import (
	"github.com/hazyhaar/vitrine/internal/scrape"
	"github.com/hazyhaar/vitrine/internal/session"
)

// Error taxonomy, re-exported so callers can classify failures without
// importing internal packages.
var (
	// ErrInitializationFailed: a session could not acquire its automation
	// resource. Fatal to that connection attempt, no partial session
	// remains.
	ErrInitializationFailed = session.ErrInitFailed

	// ErrNoSession: an operation referenced an unknown, expired, or
	// terminated session.
	ErrNoSession = session.ErrNoSession

	// ErrExtractionFailed: a scraper could not turn the page into
	// structured records. On the interactive path this is downgraded to a
	// failed intent result; inside the job processor it fails the job.
	ErrExtractionFailed = scrape.ErrExtraction
)

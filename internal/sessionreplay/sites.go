package sessionreplay

import (
	"github.com/jittakal/replayintake/internal/errors"
	"github.com/jittakal/replayintake/pkg/event"
)

// IntakePath is the replay intake endpoint path, shared by segments and
// resources.
const IntakePath = "/api/v2/replay"

var intakeHosts = map[event.Site]string{
	event.SiteUS1:    "browser-intake-datadoghq.com",
	event.SiteUS3:    "browser-intake-us3-datadoghq.com",
	event.SiteUS5:    "browser-intake-us5-datadoghq.com",
	event.SiteEU1:    "browser-intake-datadoghq.eu",
	event.SiteAP1:    "browser-intake-ap1-datadoghq.com",
	event.SiteUS1Fed: "browser-intake-ddog-gov.com",
}

// IntakeHost returns the intake host of a site.
func IntakeHost(site event.Site) (string, bool) {
	host, ok := intakeHosts[site]
	return host, ok
}

// IntakeURL returns the upload URL for a site. A non-empty customURL is
// returned unchanged for every site.
func IntakeURL(site event.Site, customURL string) (string, error) {
	if customURL != "" {
		return customURL, nil
	}
	host, ok := IntakeHost(site)
	if !ok {
		return "", &errors.ConfigurationError{Field: "site", Value: string(site), Err: errors.ErrUnknownSite}
	}
	return "https://" + host + IntakePath, nil
}

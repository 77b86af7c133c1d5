package event

// Site is a regional intake deployment.
type Site string

const (
	SiteUS1    Site = "us1"
	SiteUS3    Site = "us3"
	SiteUS5    Site = "us5"
	SiteEU1    Site = "eu1"
	SiteAP1    Site = "ap1"
	SiteUS1Fed Site = "us1_fed"
)

// Sites lists every supported intake site.
func Sites() []Site {
	return []Site{SiteUS1, SiteUS3, SiteUS5, SiteEU1, SiteAP1, SiteUS1Fed}
}

// Device describes the host the events were recorded on.
type Device struct {
	Name      string
	OSName    string
	OSVersion string
}

// Context is the ambient, read-only state request builders need: where to
// send, how to authenticate and how to identify the sender.
type Context struct {
	Site            Site
	ClientToken     string
	Version         string
	Source          string
	SDKVersion      string
	ApplicationName string
	Device          Device
}

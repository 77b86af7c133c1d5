package sessionreplay

// Source is the platform a segment was recorded on.
type Source string

const (
	SourceAndroid     Source = "android"
	SourceIOS         Source = "ios"
	SourceFlutter     Source = "flutter"
	SourceReactNative Source = "react-native"
)

// ParseSource maps a context source tag to a segment source.
func ParseSource(s string) (Source, bool) {
	switch src := Source(s); src {
	case SourceAndroid, SourceIOS, SourceFlutter, SourceReactNative:
		return src, true
	default:
		return "", false
	}
}

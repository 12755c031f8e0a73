package acoustid

// Artist is an artist credited on an AcoustID recording or release group.
type Artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ReleaseGroup is the release-group metadata attached to a recording.
type ReleaseGroup struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Type           string   `json:"type"`
	SecondaryTypes []string `json:"secondarytypes"`
	Artists        []Artist `json:"artists"`
}

// Recording is a MusicBrainz recording linked to a fingerprint.
type Recording struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	Duration      float64        `json:"duration"`
	Artists       []Artist       `json:"artists"`
	ReleaseGroups []ReleaseGroup `json:"releasegroups"`
}

// Result is one scored fingerprint match.
type Result struct {
	ID         string      `json:"id"`
	Score      float64     `json:"score"`
	Recordings []Recording `json:"recordings"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type lookupResponse struct {
	Status  string    `json:"status"`
	Results []Result  `json:"results"`
	Error   *apiError `json:"error"`
}

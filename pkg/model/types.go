package model

import (
	"net/netip"
	"time"
)

// Entity represents a single DXCC entity from the country database
type Entity struct {
	ID            int     // ARRL DXCC entity number (0 = not DXCC-valid)
	Name          string  // Canonical entity name from CTY.DAT
	PrimaryPrefix string  // Primary prefix (e.g. "K", "3B8")
	Continent     string  // Two-letter continent code (NA/SA/EU/AF/AS/OC/AN)
	CQZone        int     // Default CQ zone
	ITUZone       int     // Default ITU zone
	UTCOffset     float64 // Hours from UTC
	Deleted       bool    // Deleted entity (primary prefix marked with *)
}

// PrefixRule is a single match token from the country database.
// A rule matches either a callsign prefix or, when Exact is set, one
// specific callsign.
type PrefixRule struct {
	Match       string // Uppercase prefix or exact callsign
	Exact       bool   // Exact-callsign exception (=CALL in CTY.DAT)
	CQOverride  int    // CQ zone override from (n), 0 = none
	ITUOverride int    // ITU zone override from [n], 0 = none
}

// Resolution is the result of resolving a callsign to an entity
type Resolution struct {
	Entity    Entity
	MatchedBy string // The winning match token
	Exact     bool   // Won through the exact-callsign exception set
	CQZone    int    // Effective CQ zone after overrides
	ITUZone   int    // Effective ITU zone after overrides
}

// ActivityStatus classifies a spotted callsign's confirmation-upload activity
type ActivityStatus int

const (
	NotUser      ActivityStatus = iota // Callsign unknown to the activity table
	ActiveUser                         // Uploaded within the activity window
	InactiveUser                       // Known user, last upload outside the window
)

func (s ActivityStatus) String() string {
	switch s {
	case ActiveUser:
		return "active"
	case InactiveUser:
		return "inactive"
	default:
		return "not-user"
	}
}

// ActivityRecord holds the most recent confirmation upload for a callsign
type ActivityRecord struct {
	Callsign   string
	LastUpload time.Time
}

// Spot is one parsed spot announcement from the cluster feed
type Spot struct {
	Spotter     string     `json:"spotter"`
	DXCall      string     `json:"dx_call"`
	FrequencyHz int64      `json:"frequency_hz"`
	Band        string     `json:"band"` // Derived from frequency (e.g. "20m")
	Mode        string     `json:"mode,omitempty"`
	Comment     string     `json:"comment,omitempty"`
	Time        time.Time  `json:"time"`
	DXGrid      string     `json:"dx_grid,omitempty"`
	SpotterIP   netip.Addr `json:"-"` // From CC11 feeds, zero when absent
	Variant     string     `json:"-"` // Grammar variant that parsed the line
}

// EnrichedSpot is a Spot joined with entity, activity and challenge data
type EnrichedSpot struct {
	Spot
	Entity         *Entity        `json:"entity,omitempty"` // nil = unresolved
	Activity       ActivityStatus `json:"-"`
	ActivityLabel  string         `json:"activity"`
	LastUpload     time.Time      `json:"last_upload,omitempty"`
	Needed         bool           `json:"needed"`
	SpotterCountry string         `json:"spotter_country,omitempty"`
	SpotterRegion  string         `json:"spotter_region,omitempty"`
}

// Settings holds the user configuration handed to the watcher at startup.
// Treated as immutable for the lifetime of a session.
type Settings struct {
	Callsign        string        `yaml:"callsign"`
	Grid            string        `yaml:"grid"`
	Server          string        `yaml:"server"` // host:port
	AutoConnect     bool          `yaml:"auto_connect"`
	AutoReconnect   bool          `yaml:"auto_reconnect"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	CTYPath         string        `yaml:"cty_path"`
	ChallengeDB     string        `yaml:"challenge_db"`
	LoTWCacheDir    string        `yaml:"lotw_cache_dir"`
	MMDBCityPath    string        `yaml:"mmdb_city"`
}

// Error types
type Error string

const (
	ErrUnresolved     Error = "callsign matches no prefix rule"
	ErrFormat         Error = "malformed country database"
	ErrNotConnected   Error = "not connected to cluster"
	ErrAlreadyRunning Error = "session already running"
	ErrStoreClosed    Error = "challenge store is closed"
	ErrNoSnapshot     Error = "no snapshot loaded"
	ErrInvalidFreq    Error = "unparseable frequency"
	ErrFetchFailed    Error = "all activity sources failed"
)

func (e Error) Error() string {
	return string(e)
}

package tracker

// Raw records as stored by the vendor backend, one shape per category.
// Optional fields are pointers; durations are always seconds (legacy
// documents that stored minutes are normalized before they reach Go code).

// Child is a child profile on the account.
type Child struct {
	UID       string `json:"uid"`
	Name      string `json:"name"`
	Birthdate string `json:"birthdate,omitempty"`
}

// SleepInterval is one recorded sleep session.
type SleepInterval struct {
	Start           int64   `json:"start"` // epoch seconds
	DurationSeconds float64 `json:"duration"`
}

// FeedInterval is one recorded feeding, either nursing or a bottle.
// Which one it is gets decided per record by the bottle predicate.
type FeedInterval struct {
	Start        int64    `json:"start"`
	Mode         string   `json:"mode,omitempty"`
	Type         string   `json:"type,omitempty"`
	BottleType   *string  `json:"bottleType,omitempty"`
	Amount       *float64 `json:"amount,omitempty"`
	BottleAmount *float64 `json:"bottleAmount,omitempty"`
	Units        string   `json:"units,omitempty"`
	BottleUnits  string   `json:"bottleUnits,omitempty"`
	LeftSeconds  float64  `json:"leftDuration"`
	RightSeconds float64  `json:"rightDuration"`
}

// DiaperChange is one recorded diaper change.
type DiaperChange struct {
	Start       int64   `json:"start"`
	Mode        string  `json:"mode,omitempty"` // pee, poo, both, dry
	Color       *string `json:"pooColor,omitempty"`
	Consistency *string `json:"pooConsistency,omitempty"`
	Amount      *string `json:"amount,omitempty"`
}

// GrowthEntry is one recorded growth measurement. Absent measurements stay
// nil and never render as zero.
type GrowthEntry struct {
	Start  int64    `json:"start"`
	Weight *float64 `json:"weight,omitempty"`
	Height *float64 `json:"height,omitempty"`
	Head   *float64 `json:"head,omitempty"`
}

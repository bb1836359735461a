package engine

const (
	// maxSkillLevel is the backend's strongest skill tier. Rating-limited
	// searches set it so skill limiting stays out of the way.
	maxSkillLevel = 20

	// defaultContempt is the backend's stock contempt value, used when the
	// caller limits strength by rating instead of choosing one.
	defaultContempt = 24

	// nominalSkillElo is the rating reported in skill-limited mode, where
	// rating limiting is disabled; it is the lowest value the backend accepts.
	nominalSkillElo = 1350
)

// SearchConfig is the strength-related backend configuration for one search.
// Values are passed to the backend verbatim; clamping out-of-range numbers is
// the backend's job, not this layer's.
type SearchConfig struct {
	MinThinkTimeMs int
	LimitStrength  bool
	Elo            int
	SkillLevel     int
	Contempt       int
	OwnBook        bool
}

// SearchLimits bounds one search. A zero Depth means no depth cap.
type SearchLimits struct {
	MoveTimeMs int
	Depth      int
}

// RatingLimitedConfig builds the configuration for a search whose strength is
// capped to approximate a target rating. Skill limiting is disabled and
// contempt is left at the backend default.
func RatingLimitedConfig(rating, minTimeMs int, useOpeningBook bool) SearchConfig {
	return SearchConfig{
		MinThinkTimeMs: minTimeMs,
		LimitStrength:  true,
		Elo:            rating,
		SkillLevel:     maxSkillLevel,
		Contempt:       defaultContempt,
		OwnBook:        useOpeningBook,
	}
}

// SkillLimitedConfig builds the configuration for a search using an explicit
// skill tier and contempt. Rating limiting is disabled and the reported rating
// drops to the nominal floor.
func SkillLimitedConfig(skillLevel, contempt, minTimeMs int, useOpeningBook bool) SearchConfig {
	return SearchConfig{
		MinThinkTimeMs: minTimeMs,
		LimitStrength:  false,
		Elo:            nominalSkillElo,
		SkillLevel:     skillLevel,
		Contempt:       contempt,
		OwnBook:        useOpeningBook,
	}
}

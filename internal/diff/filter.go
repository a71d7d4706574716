package diff

// Filter decides what of a raw record reaches the report. It runs once per
// record at the aggregation point and never influences the comparison.
// Apply returns false to drop the record.
type Filter interface {
	Apply(Record) (Record, bool)
}

// Classifier assigns levels from a policy table.
type Classifier struct {
	Levels map[Change]Level
	// UnreferencedBreaks lets changes of unreferenced types stay
	// incompatible; otherwise they are capped at advisory.
	UnreferencedBreaks bool
}

// DefaultFilter classifies with DefaultLevels and drops nothing else.
func DefaultFilter() Filter { return Classifier{Levels: DefaultLevels} }

// Apply implements Filter.
func (c Classifier) Apply(rec Record) (Record, bool) {
	return c.Classify(rec)
}

// Classify sets the level of every detail, removes ignored details and
// derives the record's level and kind. Records whose details are all
// ignored are dropped.
func (c Classifier) Classify(rec Record) (Record, bool) {
	details := make([]Detail, 0, len(rec.Details))
	var top Level
	for _, d := range rec.Details {
		lvl := c.level(d.Change)
		if lvl == LevelIgnore {
			continue
		}
		if rec.Unreferenced && !c.UnreferencedBreaks && lvl > LevelAdvisory {
			lvl = LevelAdvisory
		}
		d.Level = lvl
		top = max(top, lvl)
		details = append(details, d)
	}
	if len(details) == 0 {
		return Record{}, false
	}
	rec.Details = details
	rec.Level = top
	switch rec.Kind {
	case Added, Removed:
	default:
		if top == LevelIncompatible {
			rec.Kind = Incompatible
		} else {
			rec.Kind = Extended
		}
	}
	return rec, true
}

func (c Classifier) level(ch Change) Level {
	if IsFixed(ch) {
		return DefaultLevels[ch]
	}
	if lvl, ok := c.Levels[ch]; ok && lvl != LevelUnset {
		return lvl
	}
	if lvl, ok := DefaultLevels[ch]; ok {
		return lvl
	}
	return LevelIncompatible
}

package parser

type headingEntry struct {
	level int
	text  string
	id    string
}

// headingTracker holds the open headings for one extraction pass.
type headingTracker struct {
	max   int
	stack []headingEntry
}

func newHeadingTracker(maxLevels int) *headingTracker {
	return &headingTracker{max: maxLevels}
}

// push opens a heading, closing every open heading at the same or a deeper level.
func (t *headingTracker) push(level int, text, id string) {
	for len(t.stack) > 0 && t.stack[len(t.stack)-1].level >= level {
		t.stack = t.stack[:len(t.stack)-1]
	}
	t.stack = append(t.stack, headingEntry{level: level, text: text, id: id})
}

// full returns every open heading text, root first.
func (t *headingTracker) full() []string {
	out := make([]string, len(t.stack))
	for i, e := range t.stack {
		out[i] = e.text
	}
	return out
}

// path returns the innermost max open headings, still root first.
// A non-positive max disables truncation.
func (t *headingTracker) path() []string {
	all := t.full()
	if t.max > 0 && len(all) > t.max {
		return all[len(all)-t.max:]
	}
	return all
}

// nearestID returns the id attribute of the innermost open heading that has one.
func (t *headingTracker) nearestID() string {
	for i := len(t.stack) - 1; i >= 0; i-- {
		if t.stack[i].id != "" {
			return t.stack[i].id
		}
	}
	return ""
}

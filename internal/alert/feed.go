package alert

// Feed is an ordered sequence of alerts, newest first. Ids are unique.
type Feed []Alert

// Len is the number of retained alerts.
func (f Feed) Len() int { return len(f) }

// UnreadCount is derived on every call and never cached.
func (f Feed) UnreadCount() int {
	n := 0
	for _, a := range f {
		if !a.Read {
			n++
		}
	}
	return n
}

// Index returns the position of id, or -1.
func (f Feed) Index(id string) int {
	for i := range f {
		if f[i].ID == id {
			return i
		}
	}
	return -1
}

// Get returns a copy of the alert with the given id.
func (f Feed) Get(id string) (Alert, bool) {
	if i := f.Index(id); i >= 0 {
		return f[i].Clone(), true
	}
	return Alert{}, false
}

// Prepend returns a new feed with a at the head.
func (f Feed) Prepend(a Alert) Feed {
	out := make(Feed, 0, len(f)+1)
	out = append(out, a.Clone())
	out = append(out, f...)
	return out
}

// WithRead returns a new feed where the alert with id is marked read.
// changed is false when id is unknown or already read; f is returned as-is then.
func (f Feed) WithRead(id string) (next Feed, changed bool) {
	i := f.Index(id)
	if i < 0 || f[i].Read {
		return f, false
	}
	out := append(Feed(nil), f...)
	out[i].Read = true
	return out, true
}

// WithAllRead returns a new feed where every alert is read, plus how many flipped.
func (f Feed) WithAllRead() (Feed, int) {
	n := f.UnreadCount()
	if n == 0 {
		return f, 0
	}
	out := append(Feed(nil), f...)
	for i := range out {
		out[i].Read = true
	}
	return out, n
}

// Filter keeps alerts matching both conditions, in order. An empty
// intensity matches every alert.
func (f Feed) Filter(unreadOnly bool, intensity Intensity) Feed {
	out := make(Feed, 0, len(f))
	for _, a := range f {
		if unreadOnly && a.Read {
			continue
		}
		if intensity != "" && a.Intensity != intensity {
			continue
		}
		out = append(out, a)
	}
	return out
}

// Clone deep-copies the feed; callers outside the owner get one of these.
func (f Feed) Clone() Feed {
	if f == nil {
		return Feed{}
	}
	out := make(Feed, len(f))
	for i := range f {
		out[i] = f[i].Clone()
	}
	return out
}

// Sanitize drops invalid entries and later duplicates, keeping order.
// It returns the cleaned feed and the number of entries removed.
func Sanitize(in []Alert) (Feed, int) {
	out := make(Feed, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	dropped := 0
	for _, a := range in {
		if a.Validate() != nil {
			dropped++
			continue
		}
		if _, dup := seen[a.ID]; dup {
			dropped++
			continue
		}
		seen[a.ID] = struct{}{}
		out = append(out, a)
	}
	return out, dropped
}

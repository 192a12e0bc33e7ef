package spotapi

// fetchState distinguishes a credential that was never fetched from one that
// was fetched and came back empty. The broker's dependency ordering relies
// on the difference: a fetched-empty field must not trigger a refetch, it
// must fail the operation that needs it.
type fetchState uint8

const (
	notFetched fetchState = iota
	fetchedEmpty
	fetched
)

// credField is one lazily-fetched credential slot.
type credField struct {
	state fetchState
	value string
}

// set records a fetch result, mapping "" to the fetched-empty state.
func (f *credField) set(v string) {
	if v == "" {
		f.state = fetchedEmpty
		f.value = ""
		return
	}
	f.state = fetched
	f.value = v
}

// reset returns the field to the never-fetched state.
func (f *credField) reset() {
	f.state = notFetched
	f.value = ""
}

func (f *credField) isFetched() bool { return f.state != notFetched }

// ok reports whether the field holds a usable value.
func (f *credField) ok() bool { return f.state == fetched }

func (f *credField) get() string { return f.value }

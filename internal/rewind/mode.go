package rewind

// Mode is the playback controller state.
type Mode int

const (
	// ModeRecording captures every tick. It is the initial mode.
	ModeRecording Mode = iota
	// ModePreviewing shows history at the cursor without mutating it.
	ModePreviewing
	// ModeRewinding is the one-tick transition that commits the cursor.
	ModeRewinding
	// ModeAutoRewinding is previewing at the edge of history with a countdown
	// that forces a commit when it expires.
	ModeAutoRewinding
)

func (m Mode) String() string {
	switch m {
	case ModeRecording:
		return "recording"
	case ModePreviewing:
		return "previewing"
	case ModeRewinding:
		return "rewinding"
	case ModeAutoRewinding:
		return "auto_rewinding"
	default:
		return "unknown"
	}
}

func (m Mode) previewing() bool {
	return m == ModePreviewing || m == ModeAutoRewinding
}

package pipeline

// Status tracks how far a turn progressed.
type Status int

const (
	StatusPending Status = iota
	StatusTranscribed
	StatusReplied
	StatusSynthesized
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusTranscribed:
		return "transcribed"
	case StatusReplied:
		return "replied"
	case StatusSynthesized:
		return "synthesized"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Turn is one client utterance and everything derived from it. A Turn is
// owned by the goroutine processing it until its result is handed back to
// the session.
type Turn struct {
	// Seq is the per-session submission order, starting at 1.
	Seq uint64

	// Audio is the decoded audio_blob payload; Format is the client's hint.
	Audio  []byte
	Format string

	Transcript string
	Reply      string
	Status     Status

	// Masked holds failures recovered with a fixed phrase.
	Masked []*Error

	replied bool
}

// Exchange returns the user/assistant pair to append to the rolling context.
// ok is false unless a reply was actually generated for a transcript.
func (t *Turn) Exchange() (user, assistant string, ok bool) {
	if !t.replied {
		return "", "", false
	}
	return t.Transcript, t.Reply, true
}

// Outcome summarizes the turn for logging and metrics.
func (t *Turn) Outcome() string {
	switch {
	case t.Status == StatusFailed:
		return "error"
	case len(t.Masked) == 0:
		return "ok"
	case t.Masked[0].Kind == KindReply:
		return "fallback"
	default:
		return "apology"
	}
}

// Speech is a synthesized clip ready for delivery.
type Speech struct {
	Audio  []byte
	Format string
}

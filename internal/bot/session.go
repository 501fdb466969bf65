package bot

// Registration runs as a tiny per-chat state machine: ask for the
// portal login, then the password, validate, commit. Sessions live only
// in memory; a restart means the user starts over.

type sessionStep int

const (
	stepAwaitingIdentifier sessionStep = iota
	stepAwaitingSecret
)

type session struct {
	step       sessionStep
	identifier string
	secret     string
}

func (b *Bot) session(chatID int64) *session {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sessions[chatID]
}

func (b *Bot) openSession(chatID int64) *session {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := &session{step: stepAwaitingIdentifier}
	b.sessions[chatID] = s
	return s
}

// resetSession discards captured credentials and returns the session to
// the identifier step. Used on rejected or unverifiable logins.
func (b *Bot) resetSession(chatID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.sessions[chatID]; ok {
		b.sessions[chatID] = &session{step: stepAwaitingIdentifier}
	}
}

func (b *Bot) closeSession(chatID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.sessions, chatID)
}

func (b *Bot) registering(chatID int64) bool {
	return b.session(chatID) != nil
}

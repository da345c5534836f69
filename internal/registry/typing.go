package registry

// Typing state is ephemeral and lives alongside the session index:
// a set of userIDs currently typing per conversation. Entries are
// cleared on an explicit stop or when the user's session tears down.

// StartTyping marks a user as typing in a conversation. It reports
// whether the state changed (false when already marked).
func (r *Registry) StartTyping(conversationID, userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.typing[conversationID]; !ok {
		r.typing[conversationID] = make(set)
	}
	if _, ok := r.typing[conversationID][userID]; ok {
		return false
	}
	r.typing[conversationID][userID] = struct{}{}
	return true
}

// StopTyping clears a user's typing mark in a conversation. It reports
// whether the state changed (false when not marked).
func (r *Registry) StopTyping(conversationID, userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.typing[conversationID][userID]; !ok {
		return false
	}
	delete(r.typing[conversationID], userID)
	if len(r.typing[conversationID]) == 0 {
		delete(r.typing, conversationID)
	}
	return true
}

// TypingIn returns the users currently typing in a conversation.
func (r *Registry) TypingIn(conversationID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]string, 0, len(r.typing[conversationID]))
	for userID := range r.typing[conversationID] {
		users = append(users, userID)
	}
	return users
}

// ClearTyping removes the user's typing marks everywhere and returns
// the conversation ids that were affected, so the caller can notify
// those rooms. Used on session teardown.
func (r *Registry) ClearTyping(userID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var affected []string
	for conversationID, users := range r.typing {
		if _, ok := users[userID]; ok {
			delete(users, userID)
			if len(users) == 0 {
				delete(r.typing, conversationID)
			}
			affected = append(affected, conversationID)
		}
	}
	return affected
}

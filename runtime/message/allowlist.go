package message

// FilterAllowedResults implements the provider adapter's pre-call allow-list
// filter: a Result is kept only if its ActionExecutionID matches an
// ActionExecution anywhere in the same message list (ids are gathered from
// the whole list before any Result is checked, so position is not
// considered), and at most once per ActionExecution id (a
// duplicated Result for the same call is dropped on its second occurrence).
func FilterAllowedResults(messages []Message) []Message {
	validIDs := make(map[string]struct{})
	for _, m := range messages {
		if m.Kind == KindActionExecution {
			validIDs[m.ID] = struct{}{}
		}
	}

	filtered := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Kind != KindResult {
			filtered = append(filtered, m)
			continue
		}
		if _, ok := validIDs[m.ActionExecutionID]; !ok {
			continue
		}
		delete(validIDs, m.ActionExecutionID)
		filtered = append(filtered, m)
	}
	return filtered
}

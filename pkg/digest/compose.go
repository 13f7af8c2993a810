package digest

import "fmt"

// Compose builds the digest payload for one user from an aggregation result.
// It returns nil when the user has nothing to report: no activity items and
// no unread messages, or no identity captured during the run. A nil payload
// means "send nothing" - users never receive an empty digest.
func Compose(userID int64, res *Result) *Payload {
	ident, ok := res.Identities[userID]
	if !ok {
		return nil
	}

	activity := res.Activity[userID]
	messages := res.Messages[userID]

	if len(activity) == 0 && len(messages) == 0 {
		return nil
	}

	p := &Payload{
		UserID: userID,
		Name:   ident.FullName,
		Email:  ident.Email,
		Unread: len(messages),
	}

	// One entry per activity item, in the order the engine discovered them.
	for _, item := range activity {
		p.Entries = append(p.Entries, ForumEntry{
			CourseName: item.CourseName,
			Subject:    item.Subject,
			Author:     item.Author,
		})
	}

	switch {
	case len(messages) == 1:
		p.MessageLine = "one unread message"
	case len(messages) > 1:
		p.MessageLine = fmt.Sprintf("%d unread messages", len(messages))
	}

	return p
}

package messaging

import "github.com/google/uuid"

// CountUnread counts messages addressed to receiver that are not read.
func CountUnread(msgs []Message, receiver uuid.UUID) int {
	n := 0
	for i := range msgs {
		if msgs[i].ReceiverID == receiver && !msgs[i].IsRead {
			n++
		}
	}
	return n
}

// Summary aggregates a message list from the point of view of one profile.
type Summary struct {
	Total    int `json:"total"`
	Unread   int `json:"unread"`
	Received int `json:"received"`
	Sent     int `json:"sent"`
	// UnreadBySender counts unread messages per sender.
	UnreadBySender map[uuid.UUID]int `json:"unread_by_sender,omitempty"`
}

func Summarize(msgs []Message, me uuid.UUID) Summary {
	s := Summary{Total: len(msgs)}
	for i := range msgs {
		m := &msgs[i]
		switch {
		case m.ReceiverID == me:
			s.Received++
			if !m.IsRead {
				s.Unread++
				if s.UnreadBySender == nil {
					s.UnreadBySender = make(map[uuid.UUID]int)
				}
				s.UnreadBySender[m.SenderID]++
			}
		case m.SenderID == me:
			s.Sent++
		}
	}
	return s
}

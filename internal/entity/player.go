package entity

// PlayerInfo occupies one of the two slots of a game. ID is the participant id,
// stable for the lifetime of a client.
type PlayerInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Symbol Mark   `json:"symbol"`
}

type ChatMessage struct {
	SenderName string `json:"senderName"`
	Text       string `json:"text"`
	Timestamp  int64  `json:"timestamp"`
}

type VoiceMessage struct {
	SenderName  string `json:"senderName"`
	AudioBase64 string `json:"audioBase64"`
	Timestamp   int64  `json:"timestamp"`
}

// Scores is a per-client tally of won games. It is never synchronized.
type Scores struct {
	X int `json:"x"`
	O int `json:"o"`
}

// Record - counts a finished game. Draws and nil verdicts are ignored.
func (that *Scores) Record(verdict *Verdict) {
	if verdict == nil {
		return
	}

	switch verdict.Winner {
	case PlayerX:
		that.X++
	case PlayerO:
		that.O++
	}
}

package models

// RPSEvent discriminates the rock-paper-scissors sub-events carried inside
// rps_update messages.
type RPSEvent string

const (
	RPSEventGameStart      RPSEvent = "game_start"
	RPSEventOpponentChosen RPSEvent = "opponent_chosen"
	RPSEventReveal         RPSEvent = "reveal"
	RPSEventReset          RPSEvent = "reset"
	RPSEventWaiting        RPSEvent = "waiting"
	RPSEventError          RPSEvent = "error"
	RPSEventPositionUpdate RPSEvent = "position_update"
)

// RPS choices. Write-once per round.
const (
	RPSRock     = "rock"
	RPSPaper    = "paper"
	RPSScissors = "scissors"
)

// RPSSlot is one player position. Chosen is visible to the opponent before
// reveal; Choice is only populated by a reveal event.
type RPSSlot struct {
	Claimed bool   `json:"claimed"`
	Chosen  bool   `json:"chosen"`
	Choice  string `json:"choice,omitempty"`
}

// MatchState is the per-room rock-paper-scissors state. Slots are claimed by
// position (1 or 2), not by persistent identity.
type MatchState struct {
	Slots      [2]RPSSlot `json:"slots"`
	GameActive bool       `json:"gameActive"`
}

// RPSPayload is the server-to-client rps_update payload. Which fields are
// populated depends on Event: position_update carries Positions plus, when it
// answers a claim, Position and Granted; reveal carries Choices and Winner;
// waiting and error carry Message.
type RPSPayload struct {
	Event     RPSEvent   `json:"event"`
	Positions *[2]bool   `json:"positions,omitempty"`
	Position  int        `json:"position,omitempty"`
	Granted   bool       `json:"granted,omitempty"`
	Choices   *[2]string `json:"choices,omitempty"`
	Winner    int        `json:"winner,omitempty"` // 1 or 2; 0 means draw
	Message   string     `json:"message,omitempty"`
}

// RPSClaimPayload asks the server for a player position.
type RPSClaimPayload struct {
	Position int `json:"position"`
}

// RPSChoicePayload commits a claimed player's choice for the current round.
type RPSChoicePayload struct {
	Position int    `json:"position"`
	Choice   string `json:"choice"`
}

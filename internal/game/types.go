package game

import "encoding/json"

// Envelope is the ws wire frame: {"type":"...","ackId":n,"payload":{...}}.
// Inbound frames may carry an ackId; the matching "ack" frame echoes it.
type Envelope struct {
	Type    string          `json:"type"`
	AckID   int64           `json:"ackId,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// inbound payloads

type CreateRoomPayload struct {
	PlayerName string `json:"playerName"`
}

type JoinRoomPayload struct {
	RoomCode   string `json:"roomCode"`
	PlayerName string `json:"playerName"`
}

type ReconnectPayload struct {
	RoomCode   string `json:"roomCode"`
	PlayerName string `json:"playerName"`
}

type PlayerReadyPayload struct {
	Ready bool `json:"ready"`
}

type SubmitResultsPayload struct {
	Words      []SubmittedWord `json:"words"`
	TotalScore int             `json:"totalScore"`
}

// acks

type ErrorAck struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type RoomAck struct {
	Success     bool       `json:"success"`
	RoomCode    string     `json:"roomCode"`
	PlayerID    string     `json:"playerId"`
	Game        *GameState `json:"game"`
	PlayerCount int        `json:"playerCount"`
	MaxPlayers  int        `json:"maxPlayers"`
	Rejoined    bool       `json:"rejoined,omitempty"`
}

type ReadyAck struct {
	Success      bool `json:"success"`
	CanStartNext bool `json:"canStartNext"`
}

type SubmitAck struct {
	Success       bool `json:"success"`
	WordsAccepted int  `json:"wordsAccepted"`
	RoundScore    int  `json:"roundScore"`
}

// outbound broadcasts

type PlayerJoinedPayload struct {
	Player    PlayerState `json:"player"`
	GameState *GameState  `json:"gameState"`
}

type PlayerReadyStatusPayload struct {
	PlayerID  string     `json:"playerId"`
	Ready     bool       `json:"ready"`
	GameState *GameState `json:"gameState"`
}

type PlayerDisconnectedPayload struct {
	PlayerID         string `json:"playerId"`
	RemainingPlayers int    `json:"remainingPlayers"`
}

type PlayerReconnectedPayload struct {
	PlayerID   string     `json:"playerId"`
	PlayerName string     `json:"playerName"`
	GameState  *GameState `json:"gameState"`
}

type CountdownStartedPayload struct {
	Countdown int `json:"countdown"` // seconds
	NextRound int `json:"nextRound"`
}

type RoundStartedPayload struct {
	RoundInfo RoundInfo  `json:"roundInfo"`
	GameState *GameState `json:"gameState"`
}

type TimerUpdatePayload struct {
	TimeRemaining int  `json:"timeRemaining"` // whole seconds
	RoundActive   bool `json:"roundActive"`
}

type RoundTimeExpiredPayload struct {
	Message string `json:"message"`
}

type RoundEndedPayload struct {
	RoundResult *RoundResult `json:"roundResult"`
	GameState   *GameState   `json:"gameState"`
}

type GameFinishedPayload struct {
	RoundResult  *RoundResult  `json:"roundResult"`
	GameState    *GameState    `json:"gameState"`
	FinalResults *FinalResults `json:"finalResults"`
}

type GameRestartedPayload struct {
	GameState *GameState `json:"gameState"`
}

func mustJSON(v any) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

// Package protocol defines the JSON messages exchanged with game clients
// over the realtime connection.
package protocol

// Client -> coordinator message types.
const (
	ActionJoin          = "join"
	ActionStartRoulette = "startRoulette"
	ActionCheckWord     = "checkWord"
	ActionTimeIsUp      = "timeIsUp"
)

// Coordinator -> client event types.
const (
	EventPlayerUpdate   = "playerUpdate"
	EventStartGame      = "startGame"
	EventCountdown      = "countdown"
	EventRouletteResult = "rouletteResult"
	EventGameState      = "updateGameState"
	EventStartTurn      = "startTurn"
	EventCheckResult    = "checkResult"
	EventResultMessage  = "resultMessage"
	EventGameOver       = "gameOver"
	EventError          = "error"
)

// Message is an inbound client message. Only Type is always present; the
// remaining fields depend on the action. The server never trusts client
// identity fields: the authenticated identity of the connection wins.
type Message struct {
	Type     string `json:"type"`
	UserID   string `json:"userId,omitempty"`
	UserName string `json:"userName,omitempty"`
	Word     string `json:"word,omitempty"`
	PlayerID int    `json:"playerId,omitempty"`
	Order    int    `json:"order,omitempty"`
}

// PlayerState is one seat's public view inside state snapshots.
type PlayerState struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
}

type PlayerUpdate struct {
	Type        string   `json:"type"`
	RoomID      string   `json:"roomId"`
	PlayerCount int      `json:"playerCount"`
	Players     []string `json:"players"`
}

func NewPlayerUpdate(roomID string, players []string) PlayerUpdate {
	return PlayerUpdate{
		Type:        EventPlayerUpdate,
		RoomID:      roomID,
		PlayerCount: len(players),
		Players:     players,
	}
}

type StartGame struct {
	Type    string   `json:"type"`
	RoomID  string   `json:"roomId"`
	Players []string `json:"players"`
}

func NewStartGame(roomID string, players []string) StartGame {
	return StartGame{
		Type:    EventStartGame,
		RoomID:  roomID,
		Players: players,
	}
}

type Countdown struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

func NewCountdown(count int) Countdown {
	return Countdown{Type: EventCountdown, Count: count}
}

type RouletteResult struct {
	Type            string `json:"type"`
	Result          int    `json:"result"`
	PlayerPositions []int  `json:"playerPositions"`
}

func NewRouletteResult(result int, positions []int) RouletteResult {
	return RouletteResult{
		Type:            EventRouletteResult,
		Result:          result,
		PlayerPositions: positions,
	}
}

type GameState struct {
	Type               string        `json:"type"`
	Players            []PlayerState `json:"players"`
	CurrentPlayerIndex int           `json:"currentPlayerIndex"`
	WordHistory        []string      `json:"wordHistory"`
	LastCharacter      string        `json:"lastCharacter"`
	Phase              string        `json:"phase"`
}

func NewGameState(players []PlayerState, currentPlayerIndex int, wordHistory []string, lastCharacter, phase string) GameState {
	return GameState{
		Type:               EventGameState,
		Players:            players,
		CurrentPlayerIndex: currentPlayerIndex,
		WordHistory:        wordHistory,
		LastCharacter:      lastCharacter,
		Phase:              phase,
	}
}

type StartTurn struct {
	Type               string `json:"type"`
	CurrentPlayerIndex int    `json:"currentPlayerIndex"`
	IsCurrentUserTurn  bool   `json:"isCurrentUserTurn"`
	Deadline           int64  `json:"deadline"`
}

func NewStartTurn(currentPlayerIndex int, isCurrentUserTurn bool, deadline int64) StartTurn {
	return StartTurn{
		Type:               EventStartTurn,
		CurrentPlayerIndex: currentPlayerIndex,
		IsCurrentUserTurn:  isCurrentUserTurn,
		Deadline:           deadline,
	}
}

type CheckResult struct {
	Type     string `json:"type"`
	Valid    bool   `json:"valid"`
	PlayerID int    `json:"playerId"`
}

func NewCheckResult(valid bool, playerID int) CheckResult {
	return CheckResult{Type: EventCheckResult, Valid: valid, PlayerID: playerID}
}

type ResultMessage struct {
	Type string `json:"type"`
	Body string `json:"body"`
}

func NewResultMessage(body string) ResultMessage {
	return ResultMessage{Type: EventResultMessage, Body: body}
}

type GameOver struct {
	Type    string        `json:"type"`
	Winner  int           `json:"winner"`
	Ranking []PlayerState `json:"ranking"`
}

func NewGameOver(winner int, ranking []PlayerState) GameOver {
	return GameOver{Type: EventGameOver, Winner: winner, Ranking: ranking}
}

type ErrorMessage struct {
	Type string `json:"type"`
	Body string `json:"body"`
}

func NewError(body string) ErrorMessage {
	return ErrorMessage{Type: EventError, Body: body}
}

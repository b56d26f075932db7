package lichess

// Event is one line of the lobby feed.
type Event struct {
	Type      string     `json:"type"`
	Challenge *Challenge `json:"challenge,omitempty"`
	Game      *GameRef   `json:"game,omitempty"`
}

const (
	EventChallenge         = "challenge"
	EventGameStart         = "gameStart"
	EventGameFinish        = "gameFinish"
	EventChallengeCanceled = "challengeCanceled"
	EventChallengeDeclined = "challengeDeclined"
)

type GameRef struct {
	ID string `json:"id"`
}

// Challenge fields are pointers so that a missing object can be told apart
// from a zero value.
type Challenge struct {
	ID          string       `json:"id"`
	Challenger  *Player      `json:"challenger,omitempty"`
	Rated       bool         `json:"rated"`
	Variant     *Variant     `json:"variant,omitempty"`
	TimeControl *TimeControl `json:"timeControl,omitempty"`
}

type Player struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Title string `json:"title,omitempty"`
}

type Variant struct {
	Key string `json:"key"`
}

type TimeControl struct {
	Type      string `json:"type"`
	Limit     *int   `json:"limit,omitempty"`
	Increment *int   `json:"increment,omitempty"`
}

const TimeControlClock = "clock"

// GameEvent is one line of a game feed: either "gameFull" (with State) or
// "gameState" (fields promoted from the embedded GameState).
type GameEvent struct {
	Type       string     `json:"type"`
	ID         string     `json:"id,omitempty"`
	Variant    *Variant   `json:"variant,omitempty"`
	InitialFen string     `json:"initialFen,omitempty"`
	White      *Player    `json:"white,omitempty"`
	Black      *Player    `json:"black,omitempty"`
	State      *GameState `json:"state,omitempty"`
	GameState
}

const (
	GameEventFull  = "gameFull"
	GameEventState = "gameState"
	GameEventChat  = "chatLine"
)

type GameState struct {
	Status string `json:"status,omitempty"`
	Moves  string `json:"moves"`
	WTime  int64  `json:"wtime"`
	BTime  int64  `json:"btime"`
	WInc   int64  `json:"winc"`
	BInc   int64  `json:"binc"`
}

const StatusStarted = "started"

// Chat rooms.
const (
	RoomPlayer    = "player"
	RoomSpectator = "spectator"
)

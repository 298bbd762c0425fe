package ludo

import "ludo-arena/models"

const (
	HomePosition = -1
	RingSize     = 52
	LaneStart    = 52
	LaneLength   = 4
	TokenCount   = 4
	BonusFace    = 6
)

var entryCells = [4]int{1, 14, 27, 40}

// EntryCell is the ring cell where a seat's tokens appear when leaving home.
func EntryCell(boardIndex int) int { return entryCells[boardIndex] }

// LaneBase is the first cell of a seat's private lane.
func LaneBase(boardIndex int) int { return LaneStart + LaneLength*boardIndex }

// LaneEnd is the finishing cell of a seat's private lane.
func LaneEnd(boardIndex int) int { return LaneBase(boardIndex) + LaneLength - 1 }

// HomeTokens returns four tokens waiting at home.
func HomeTokens() [4]models.Token {
	var t [4]models.Token
	for i := range t {
		t[i] = models.Token{ID: i, Position: HomePosition}
	}
	return t
}

// InDomain reports whether pos is legal for a token of the given seat.
func InDomain(pos, boardIndex int) bool {
	if pos == HomePosition || (pos >= 0 && pos < RingSize) {
		return true
	}
	return pos >= LaneBase(boardIndex) && pos <= LaneEnd(boardIndex)
}

// CanMove reports whether token may move dice cells.
func CanMove(token models.Token, dice, boardIndex int) bool {
	if token.Finished || dice < 1 || dice > 6 {
		return false
	}
	switch {
	case token.Position == HomePosition:
		return dice == BonusFace
	case token.InLane:
		return token.Position+dice <= LaneEnd(boardIndex)
	default:
		return ringStep(token.Position, dice, boardIndex) <= LaneEnd(boardIndex)
	}
}

// NextPosition returns where token lands. Callers check CanMove first.
func NextPosition(token models.Token, dice, boardIndex int) int {
	switch {
	case token.Position == HomePosition:
		return EntryCell(boardIndex)
	case token.InLane:
		return token.Position + dice
	default:
		return ringStep(token.Position, dice, boardIndex)
	}
}

// ringStep walks a ring token forward. Reaching the threshold (entry cell - 1)
// or passing it moves the token into the lane, the threshold itself being
// lane offset 0. Results past the lane end are returned unclamped.
func ringStep(pos, dice, boardIndex int) int {
	entry := EntryCell(boardIndex)
	travelled := (pos - entry + RingSize) % RingSize
	next := travelled + dice
	threshold := RingSize - 1
	if next < threshold {
		return (entry + next) % RingSize
	}
	return LaneBase(boardIndex) + next - threshold
}

// Apply moves the token and sets its lane and finish flags.
func Apply(token models.Token, dice, boardIndex int) models.Token {
	token.Position = NextPosition(token, dice, boardIndex)
	token.InLane = token.Position >= LaneStart
	token.Finished = token.Position == LaneEnd(boardIndex)
	return token
}

// Capture sends home the single opposing ring token sitting on landed.
// It returns the captured player's seat index, or -1. Lane cells, finished
// tokens and cells shared by two or more opposing tokens are never captured.
func Capture(players []models.Player, movingUserID string, landed int) int {
	if landed < 0 || landed >= RingSize {
		return -1
	}
	seat, tok, hits := -1, -1, 0
	for i := range players {
		if players[i].UserID == movingUserID {
			continue
		}
		for j, t := range players[i].Tokens {
			if t.Position == landed && !t.InLane && !t.Finished {
				seat, tok = i, j
				hits++
			}
		}
	}
	if hits != 1 {
		return -1
	}
	players[seat].Tokens[tok].Position = HomePosition
	players[seat].Tokens[tok].InLane = false
	return seat
}

// HasWon reports whether all four tokens are finished.
func HasWon(p models.Player) bool {
	for _, t := range p.Tokens {
		if !t.Finished {
			return false
		}
	}
	return true
}

// NextTurn keeps the turn after a six or a capture, otherwise passes it on.
// A roll that moved nothing always passes.
func NextTurn(current, playerCount, dice int, moved, captured bool) int {
	if moved && (dice == BonusFace || captured) {
		return current
	}
	return (current + 1) % playerCount
}

// AnyMovable reports whether some token of p can move dice cells.
func AnyMovable(p models.Player, dice int) bool {
	for _, t := range p.Tokens {
		if CanMove(t, dice, p.BoardIndex) {
			return true
		}
	}
	return false
}

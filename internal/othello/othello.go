// internal/othello/othello.go
package othello

// Size is the board edge length.
const Size = 8

// Color identifies the contents of a square and the two playing sides.
type Color uint8

const (
	None Color = iota
	Black
	White
)

// Opponent returns the opposing side. Opponent of None is None.
func (c Color) Opponent() Color {
	switch c {
	case Black:
		return White
	case White:
		return Black
	default:
		return None
	}
}

func (c Color) String() string {
	switch c {
	case Black:
		return "black"
	case White:
		return "white"
	default:
		return "none"
	}
}

// Board is the 8x8 grid. Serialized as nested arrays of 0/1/2 so clients
// can index it directly.
type Board [Size][Size]Color

// State holds a game in progress: the grid plus whose turn it is.
// All methods are pure board logic; turn rotation is the caller's job.
type State struct {
	Board Board `json:"board"`
	Turn  Color `json:"turn"`
}

// directions covers the eight rays from a square.
var directions = [8][2]int{
	{-1, -1}, {-1, 0}, {-1, 1},
	{0, -1}, {0, 1},
	{1, -1}, {1, 0}, {1, 1},
}

// New returns a fresh game in the canonical starting position,
// black to move.
func New() *State {
	s := &State{Turn: Black}
	s.Board[Size/2-1][Size/2-1] = White
	s.Board[Size/2][Size/2] = White
	s.Board[Size/2-1][Size/2] = Black
	s.Board[Size/2][Size/2-1] = Black
	return s
}

func inBounds(r, c int) bool {
	return r >= 0 && r < Size && c >= 0 && c < Size
}

// flipsInDirection returns how many opponent pieces would be captured
// along one ray from (r,c), or 0 if the ray is not terminated by one of
// side's own pieces.
func (s *State) flipsInDirection(side Color, r, c, dr, dc int) int {
	opp := side.Opponent()
	count := 0
	cr, cc := r+dr, c+dc
	if !inBounds(cr, cc) || s.Board[cr][cc] != opp {
		return 0
	}
	for inBounds(cr, cc) {
		switch s.Board[cr][cc] {
		case opp:
			count++
		case side:
			return count
		default:
			return 0
		}
		cr += dr
		cc += dc
	}
	return 0 // ran off the edge
}

func (s *State) totalFlips(side Color, r, c int) int {
	total := 0
	for _, d := range directions {
		total += s.flipsInDirection(side, r, c, d[0], d[1])
	}
	return total
}

// IsLegal reports whether side may place at (r,c): the square is empty
// and at least one opponent run would be captured.
func (s *State) IsLegal(side Color, r, c int) bool {
	if side != Black && side != White {
		return false
	}
	if !inBounds(r, c) || s.Board[r][c] != None {
		return false
	}
	return s.totalFlips(side, r, c) > 0
}

// Apply places side's piece at (r,c) and flips every captured run,
// returning the number of flipped pieces. Callers must have verified
// legality with IsLegal; applying to an occupied or out-of-bounds
// square is a no-op returning 0. Turn is not advanced here.
func (s *State) Apply(side Color, r, c int) int {
	if !inBounds(r, c) || s.Board[r][c] != None {
		return 0
	}
	flipped := 0
	s.Board[r][c] = side
	for _, d := range directions {
		n := s.flipsInDirection(side, r, c, d[0], d[1])
		cr, cc := r+d[0], c+d[1]
		for i := 0; i < n; i++ {
			s.Board[cr][cc] = side
			flipped++
			cr += d[0]
			cc += d[1]
		}
	}
	return flipped
}

// HasAnyMove reports whether side has at least one legal placement.
func (s *State) HasAnyMove(side Color) bool {
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			if s.Board[r][c] == None && s.IsLegal(side, r, c) {
				return true
			}
		}
	}
	return false
}

// Count returns the number of black and white pieces on the board.
func (s *State) Count() (black, white int) {
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			switch s.Board[r][c] {
			case Black:
				black++
			case White:
				white++
			}
		}
	}
	return black, white
}

// Outcome reports whether the game is over and, if so, the winner by
// piece count. The game is over once neither side has a legal move,
// which subsumes the full-board case. A winner of None means a draw.
func (s *State) Outcome() (over bool, winner Color) {
	if s.HasAnyMove(Black) || s.HasAnyMove(White) {
		return false, None
	}
	black, white := s.Count()
	switch {
	case black > white:
		return true, Black
	case white > black:
		return true, White
	default:
		return true, None
	}
}

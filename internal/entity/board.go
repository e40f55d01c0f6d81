package entity

// Mark is the content of a cell and the identity of a role.
type Mark string

const (
	PlayerX Mark = "X"
	PlayerO Mark = "O"

	// Draw is only ever used as a verdict winner.
	Draw Mark = "Draw"

	EmptyCell Mark = ""
)

// BoardSize - number of cells on the board.
const BoardSize = 9

// WinCombos are checked in this order: rows, columns, diagonals.
var WinCombos = [8][3]int{
	{0, 1, 2},
	{3, 4, 5},
	{6, 7, 8},
	{0, 3, 6},
	{1, 4, 7},
	{2, 5, 8},
	{0, 4, 8},
	{2, 4, 6},
}

type Board [BoardSize]Mark

// Verdict is the outcome of a terminal board. Line is nil for a draw.
type Verdict struct {
	Winner Mark  `json:"winner"`
	Line   []int `json:"line"`
}

func (that Mark) Opponent() Mark {
	if that == PlayerX {
		return PlayerO
	}
	return PlayerX
}

func (that Mark) IsPlayer() bool {
	return that == PlayerX || that == PlayerO
}

// Evaluate - returns the verdict for the board, or nil while the game can continue.
func Evaluate(board Board) *Verdict {
	for _, combo := range WinCombos {
		a, b, c := board[combo[0]], board[combo[1]], board[combo[2]]
		if a != EmptyCell && a == b && b == c {
			return &Verdict{Winner: a, Line: []int{combo[0], combo[1], combo[2]}}
		}
	}

	if len(board.EmptyCells()) > 0 {
		return nil
	}

	return &Verdict{Winner: Draw}
}

// EmptyCells - returns indices of empty cells in ascending order.
func (that Board) EmptyCells() []int {
	cells := make([]int, 0, BoardSize)
	for i, cell := range that {
		if cell == EmptyCell {
			cells = append(cells, i)
		}
	}

	return cells
}

func (that Board) Count(mark Mark) int {
	count := 0
	for _, cell := range that {
		if cell == mark {
			count++
		}
	}

	return count
}

func IsValidCell(cell int) bool {
	return cell >= 0 && cell < BoardSize
}

package engine

// Bucket is the score/stat key for a turn ordinal. It is positional, not a
// stable player identity, so a reordered roster misattributes history.
func Bucket(turn, players int) int {
	if players <= 0 {
		return 0
	}
	return turn % players
}

// ActingSeat is the roster ordinal allowed to submit at this turn.
func ActingSeat(g GameState, players int) int {
	return Bucket(g.Turn, players)
}

// WordsBySeat counts how many words each roster ordinal contributed.
func WordsBySeat(g GameState, players int) map[int]int {
	out := map[int]int{}
	for i := range g.Words {
		out[Bucket(i, players)]++
	}
	return out
}

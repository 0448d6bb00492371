package balance

// Knapsack solves the 0/1 knapsack problem by dynamic programming. It
// returns the best total value fitting in capacity and the chosen item
// indices in ascending order. Items of zero value are never chosen.
func Knapsack(capacity int, weights, values []int) (best int, chosen []int) {
	n := len(weights)
	if capacity < 0 || n == 0 {
		return 0, nil
	}
	table := make([][]int, n+1)
	for i := range table {
		table[i] = make([]int, capacity+1)
	}
	for i := 1; i <= n; i++ {
		wi, vi := weights[i-1], values[i-1]
		for c := 0; c <= capacity; c++ {
			table[i][c] = table[i-1][c]
			if wi <= c {
				if v := table[i-1][c-wi] + vi; v > table[i][c] {
					table[i][c] = v
				}
			}
		}
	}
	best = table[n][capacity]
	c := capacity
	for i := n; i > 0; i-- {
		if table[i][c] != table[i-1][c] {
			chosen = append(chosen, i-1)
			c -= weights[i-1]
		}
	}
	for l, r := 0, len(chosen)-1; l < r; l, r = l+1, r-1 {
		chosen[l], chosen[r] = chosen[r], chosen[l]
	}
	return
}

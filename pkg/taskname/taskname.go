package taskname

const (
	// Burn tasks
	BurnProcess          = "burn:process"
	BurnReconcilePending = "burn:reconcile:pending"

	// Leaderboard tasks
	LeaderboardRebuild = "leaderboard:rebuild"

	// System buy order tasks
	BuyOrderExecute = "buyorder:execute"
)

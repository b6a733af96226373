package rediskey

import (
	"fmt"
	"strconv"
)

const (
	LeaderboardPrefix = "leaderboard"
	SequencePrefix    = "seq"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildLeaderboardTopKey returns "leaderboard:{type}:{period}:top:{limit}".
func BuildLeaderboardTopKey(leaderboardType, period string, limit int) string {
	return NamespaceKey(LeaderboardPrefix, fmt.Sprintf("%s:%s:top:%s", leaderboardType, period, strconv.Itoa(limit)))
}

// BuildLeaderboardPattern matches every cached page of a leaderboard.
func BuildLeaderboardPattern(leaderboardType, period string) string {
	return NamespaceKey(LeaderboardPrefix, fmt.Sprintf("%s:%s:*", leaderboardType, period))
}

// BuildSequenceKey returns "seq:{prefix}:{yymmdd}".
func BuildSequenceKey(prefix, day string) string {
	return NamespaceKey(SequencePrefix, fmt.Sprintf("%s:%s", prefix, day))
}

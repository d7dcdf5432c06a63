package cache

import "fmt"

// DayLayout formats the calendar day in counter keys.
const DayLayout = "2006-01-02"

func deckPrefix(userID, deckID string) string {
	return fmt.Sprintf("deck:%s:user:%s", deckID, userID)
}

func queueKey(userID, deckID string) string {
	return deckPrefix(userID, deckID) + ":queue"
}

func settingsKey(userID, deckID string) string {
	return deckPrefix(userID, deckID) + ":settings"
}

func dailyKey(userID, deckID, day string) string {
	return deckPrefix(userID, deckID) + ":daily:" + day
}

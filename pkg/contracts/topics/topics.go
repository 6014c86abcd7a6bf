package topics

const (
	// Menções entregues pelo chat gateway
	ChatMentions = "chat_mentions"
	ChatReplies  = "chat_replies"

	// Bets
	BetPlaced = "bet_placed"

	// DLQs
	ChatMentionsDLQ = "chat_mentions_dlq"
)

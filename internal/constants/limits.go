package constants

const (
	IDRandomBytes = 12

	MessageHistoryMaxLimit  = 100
	MaxMessageContentLength = 4000

	UserSearchMaxLimit = 50

	MaxPostContentLength    = 500
	MaxCommentContentLength = 300
	FeedDefaultLimit        = 10
	FeedMaxLimit            = 50

	WSClientSendBufferSize = 256
	WSEventBufferSize      = 1024
)

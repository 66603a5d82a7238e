package protocol

// Source identifies which path delivered a snapshot. It is used for logging
// only; acceptance is decided by version alone.
type Source string

const (
	// SourcePush is a state frame from the push channel.
	SourcePush Source = "push"

	// SourcePoll is a GET /state issued by the poll scheduler.
	SourcePoll Source = "poll"

	// SourceCommand is the response body of a fallback command.
	SourceCommand Source = "command"

	// SourceResolve is the fetch made to auto-resolve a card target.
	SourceResolve Source = "resolve"
)

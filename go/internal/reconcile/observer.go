package reconcile

// NoticeKind classifies a user-visible notice.
type NoticeKind string

const (
	// NoticeCommandFailed is a fallback command that the server refused or
	// that never reached it.
	NoticeCommandFailed NoticeKind = "command_failed"
	// NoticeServerError is an error frame received on the push channel.
	NoticeServerError NoticeKind = "server_error"
	// NoticeNoTarget is a targeted card with no enemy to aim at.
	NoticeNoTarget NoticeKind = "no_target"
)

// Notice is a message the presentation layer shows once.
type Notice struct {
	Kind    NoticeKind `json:"kind"`
	Code    string     `json:"code"`
	Message string     `json:"message"`
}

// Observer consumes derived views and notices. OnView is called on the
// session loop and OnNotice from any goroutine; both must return quickly.
type Observer interface {
	OnView(View)
	OnNotice(Notice)
}

type observers []Observer

func (o observers) view(v View) {
	for _, obs := range o {
		obs.OnView(v)
	}
}

func (o observers) notice(n Notice) {
	for _, obs := range o {
		obs.OnNotice(n)
	}
}
